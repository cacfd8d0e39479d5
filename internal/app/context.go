package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"grantflow/internal/config"
	"grantflow/internal/domain"
	"grantflow/internal/repo"
)

// ResolveConfig loads grantflow.yml from the workspace, seeding the default
// file on first use so a fresh workspace works out of the box.
func ResolveConfig(workspace, deploymentID string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	if deploymentID == "" {
		deploymentID = "grantflow"
	}
	seed := config.GenerateDefault(deploymentID)
	if err := os.WriteFile(config.Path(workspace), []byte(seed), 0o644); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return config.Default(deploymentID), nil
}

// EnsureAdmin makes sure at least one active admin exists, creating the
// bootstrap identity if the users table is empty of admins.
func EnsureAdmin(ctx context.Context, r repo.Repo, id, name, email string) (domain.User, error) {
	if id == "" {
		id = "admin"
	}
	u, err := r.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	if name == "" {
		name = "Administrator"
	}
	if email == "" {
		email = id + "@localhost"
	}
	u = domain.User{
		ID:        id,
		Name:      name,
		Email:     email,
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, fmt.Errorf("seed admin: %w", err)
	}
	return u, nil
}
