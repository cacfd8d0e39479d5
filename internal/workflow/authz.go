package workflow

import (
	"context"
	"errors"

	"grantflow/internal/domain"
	"grantflow/internal/repo"
)

// requireUser resolves the acting user from the users table. Tokens and
// headers only carry an id; the role and active flag are always read back here.
func (e Engine) requireUser(ctx context.Context, actorID string) (domain.User, error) {
	if actorID == "" {
		return domain.User{}, AuthorizationError{}
	}
	u, err := e.Repo.GetUser(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, AuthorizationError{}
	}
	if err != nil {
		return domain.User{}, err
	}
	if !u.Active {
		return domain.User{}, AuthorizationError{}
	}
	return u, nil
}

func (e Engine) requireRole(ctx context.Context, actorID string, roles ...domain.Role) (domain.User, error) {
	u, err := e.requireUser(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	for _, r := range roles {
		if u.Role == r {
			return u, nil
		}
	}
	return domain.User{}, AuthorizationError{}
}

// canReadProposal reports whether the user is entitled to see the proposal:
// admins see everything, creators their own, reviewers what they are assigned
// to. Callers surface a negative answer as not found so that ids cannot be
// probed.
func (e Engine) canReadProposal(ctx context.Context, u domain.User, p domain.Proposal) (bool, error) {
	switch u.Role {
	case domain.RoleAdmin:
		return true, nil
	case domain.RoleProposer:
		return p.CreatorID == u.ID, nil
	case domain.RoleReviewer:
		assignments, err := e.Repo.ListAssignmentsByProposal(ctx, p.ID)
		if err != nil {
			return false, err
		}
		for _, a := range assignments {
			if a.ReviewerID == u.ID {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}
