package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"grantflow/internal/domain"
	"grantflow/internal/events"
)

// UserCreateOptions register a user in the identity table.
type UserCreateOptions struct {
	ID        string
	Name      string
	Email     string
	Role      domain.Role
	Expertise []string
	ActorID   string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	admin, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.User{}, ValidationError{Msg: "name is required"}
	}
	if strings.TrimSpace(opts.Email) == "" {
		return domain.User{}, ValidationError{Msg: "email is required"}
	}
	if !opts.Role.Valid() {
		return domain.User{}, ValidationError{Msg: "role must be admin, proposer or reviewer"}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	u := domain.User{
		ID:        opts.ID,
		Name:      opts.Name,
		Email:     opts.Email,
		Role:      opts.Role,
		Active:    true,
		Expertise: opts.Expertise,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, admin.ID, events.EventPayload{
		"role": string(u.Role),
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
