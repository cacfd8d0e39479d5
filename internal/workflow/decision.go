package workflow

import (
	"context"
	"strings"

	"grantflow/internal/domain"
	"grantflow/internal/events"
)

// ApproveOptions finalize funding for a fully reviewed proposal.
type ApproveOptions struct {
	ProposalID      string
	ApprovedFunding int64
	Remarks         string
	ActorID         string
}

// Approve accepts the proposal, stamps the decided funding and average score,
// and schedules every disbursement termin up front. Completeness of the
// review panel is re-checked inside the transaction so two concurrent
// decisions cannot both pass the gate.
func (e Engine) Approve(ctx context.Context, opts ApproveOptions) (domain.Proposal, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Proposal{}, err
	}
	if opts.ApprovedFunding <= 0 {
		return domain.Proposal{}, ValidationError{Msg: "approved_funding must be positive"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	assignments, err := e.Repo.ListAssignmentsByProposalTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Proposal{}, err
	}
	reviews, err := e.Repo.CurrentReviewsByProposalTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Proposal{}, err
	}
	agg := summarize(assignments, reviews)
	if !agg.AllComplete {
		return domain.Proposal{}, PreconditionError{Msg: "all assigned reviews must be submitted before a decision"}
	}
	if err := e.transition(&p, domain.StatusAccepted); err != nil {
		return domain.Proposal{}, err
	}
	now := e.nowRFC3339()
	p.ApprovedFunding = &opts.ApprovedFunding
	p.AverageScore = agg.AverageScore
	p.DecisionRemarks = opts.Remarks
	p.DecidedAt = &now
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	for _, d := range e.terminSchedule(p.ID, opts.ApprovedFunding, now) {
		if err := e.Repo.InsertDisbursementTx(ctx, tx, d); err != nil {
			return domain.Proposal{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "proposal.approved", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
		"approved_funding": opts.ApprovedFunding,
		"average_score":    agg.AverageScore,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// DecisionOptions carry a revision request or rejection.
type DecisionOptions struct {
	ProposalID string
	Remarks    string
	ActorID    string
}

// RequestRevision sends the proposal back to its creator for a counted
// revision cycle. The ceiling is enforced against the committed counter inside
// the transaction.
func (e Engine) RequestRevision(ctx context.Context, opts DecisionOptions) (domain.Proposal, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Proposal{}, err
	}
	if strings.TrimSpace(opts.Remarks) == "" {
		return domain.Proposal{}, ValidationError{Msg: "remarks are required for a revision request"}
	}
	maxCount := 2
	if e.Config != nil && e.Config.Revision.MaxCount > 0 {
		maxCount = e.Config.Revision.MaxCount
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.RevisionCount >= maxCount {
		return domain.Proposal{}, LimitExceededError{Limit: maxCount, Msg: "revision cycle limit reached"}
	}
	if err := e.transition(&p, domain.StatusRevisionRequested); err != nil {
		return domain.Proposal{}, err
	}
	p.RevisionCount++
	p.DecisionRemarks = opts.Remarks
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.revision_requested", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
		"revision_count": p.RevisionCount,
		"remarks":        opts.Remarks,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// Reject closes the proposal with a terminal negative decision.
func (e Engine) Reject(ctx context.Context, opts DecisionOptions) (domain.Proposal, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Proposal{}, err
	}
	if strings.TrimSpace(opts.Remarks) == "" {
		return domain.Proposal{}, ValidationError{Msg: "remarks are required for a rejection"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := e.transition(&p, domain.StatusRejected); err != nil {
		return domain.Proposal{}, err
	}
	now := e.nowRFC3339()
	p.DecisionRemarks = opts.Remarks
	p.DecidedAt = &now
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.rejected", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
		"remarks": opts.Remarks,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}
