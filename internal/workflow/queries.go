package workflow

import (
	"context"
	"errors"

	"grantflow/internal/domain"
	"grantflow/internal/repo"
)

// ProposalFor returns the proposal if the actor is entitled to see it; an
// unauthorized id is indistinguishable from a missing one.
func (e Engine) ProposalFor(ctx context.Context, proposalID, actorID string) (domain.Proposal, error) {
	u, err := e.requireUser(ctx, actorID)
	if err != nil {
		return domain.Proposal{}, err
	}
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	ok, err := e.canReadProposal(ctx, u, p)
	if err != nil {
		return domain.Proposal{}, err
	}
	if !ok {
		return domain.Proposal{}, repo.ErrNotFound
	}
	return p, nil
}

// ListProposalsFor scopes a proposal listing to what the actor may see.
func (e Engine) ListProposalsFor(ctx context.Context, f repo.ProposalFilters, actorID string) ([]domain.Proposal, error) {
	u, err := e.requireUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	switch u.Role {
	case domain.RoleAdmin:
		return e.Repo.ListProposals(ctx, f)
	case domain.RoleProposer:
		f.CreatorID = u.ID
		return e.Repo.ListProposals(ctx, f)
	case domain.RoleReviewer:
		assignments, err := e.Repo.ListAssignmentsByReviewer(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		var res []domain.Proposal
		for _, a := range assignments {
			p, err := e.Repo.GetProposal(ctx, a.ProposalID)
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if f.Status != "" && string(p.Status) != f.Status {
				continue
			}
			if f.PeriodID != "" && p.PeriodID != f.PeriodID {
				continue
			}
			res = append(res, p)
		}
		return res, nil
	}
	return nil, AuthorizationError{}
}

// TimelineFor assembles the full lifecycle view of one proposal.
func (e Engine) TimelineFor(ctx context.Context, proposalID, actorID string) (domain.Timeline, error) {
	p, err := e.ProposalFor(ctx, proposalID, actorID)
	if err != nil {
		return domain.Timeline{}, err
	}
	t := domain.Timeline{Proposal: p}
	if t.Assignments, err = e.Repo.ListAssignmentsByProposal(ctx, p.ID); err != nil {
		return domain.Timeline{}, err
	}
	if t.Reviews, err = e.Repo.ListReviewsByProposal(ctx, p.ID); err != nil {
		return domain.Timeline{}, err
	}
	c, err := e.Repo.GetContractByProposal(ctx, p.ID)
	if err == nil {
		t.Contract = &c
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Timeline{}, err
	}
	m, err := e.Repo.GetMonitoringByProposal(ctx, p.ID)
	if err == nil {
		t.Monitoring = &m
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Timeline{}, err
	}
	if t.Disbursements, err = e.Repo.ListDisbursementsByProposal(ctx, p.ID); err != nil {
		return domain.Timeline{}, err
	}
	if t.Outputs, err = e.Repo.ListOutputsByProposal(ctx, p.ID); err != nil {
		return domain.Timeline{}, err
	}
	if t.Events, err = e.Repo.ListEventsByProposal(ctx, p.ID); err != nil {
		return domain.Timeline{}, err
	}
	return t, nil
}

// AssignmentsFor lists a reviewer's own assignments, with the live review for
// each attached when present.
func (e Engine) AssignmentsFor(ctx context.Context, actorID string) ([]domain.ReviewAssignment, error) {
	u, err := e.requireRole(ctx, actorID, domain.RoleReviewer, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	assignments, err := e.Repo.ListAssignmentsByReviewer(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	for i := range assignments {
		rv, err := e.Repo.GetCurrentReview(ctx, assignments[i].ID)
		if err == nil {
			assignments[i].Review = &rv
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	return assignments, nil
}

// ListUsersFor returns the identity table for administrators.
func (e Engine) ListUsersFor(ctx context.Context, f repo.UserFilters, actorID string) ([]domain.User, error) {
	if _, err := e.requireRole(ctx, actorID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx, f)
}

// RecentEventsFor pages through the audit trail for administrators.
func (e Engine) RecentEventsFor(ctx context.Context, limit int, cursor int64, proposalID, actorID string) ([]domain.Event, error) {
	if _, err := e.requireRole(ctx, actorID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return e.Repo.EventsAfter(ctx, limit, cursor, proposalID)
}

// DisbursementsFor lists the termin schedule for a proposal the actor may see.
func (e Engine) DisbursementsFor(ctx context.Context, proposalID, actorID string) ([]domain.Disbursement, error) {
	if _, err := e.ProposalFor(ctx, proposalID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListDisbursementsByProposal(ctx, proposalID)
}

// MonitoringFor returns the monitoring record for a proposal the actor may see.
func (e Engine) MonitoringFor(ctx context.Context, proposalID, actorID string) (domain.Monitoring, error) {
	if _, err := e.ProposalFor(ctx, proposalID, actorID); err != nil {
		return domain.Monitoring{}, err
	}
	return e.Repo.GetMonitoringByProposal(ctx, proposalID)
}

// ContractFor returns the contract for a proposal the actor may see.
func (e Engine) ContractFor(ctx context.Context, proposalID, actorID string) (domain.Contract, error) {
	if _, err := e.ProposalFor(ctx, proposalID, actorID); err != nil {
		return domain.Contract{}, err
	}
	return e.Repo.GetContractByProposal(ctx, proposalID)
}

// OutputsFor lists registered outputs for a proposal the actor may see.
func (e Engine) OutputsFor(ctx context.Context, proposalID, actorID string) ([]domain.Output, error) {
	if _, err := e.ProposalFor(ctx, proposalID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListOutputsByProposal(ctx, proposalID)
}
