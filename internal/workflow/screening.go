package workflow

import (
	"context"
	"strings"

	"grantflow/internal/domain"
	"grantflow/internal/events"
)

// ScreeningOptions record the administrative checklist verdict.
type ScreeningOptions struct {
	ProposalID             string
	CheckWriting           bool
	CheckWritingRemarks    string
	CheckComponents        bool
	CheckComponentsRemarks string
	Verdict                domain.ScreeningVerdict
	Remarks                string
	ActorID                string
}

// Screen records the administrative screening verdict on a submitted proposal.
// The verdict gates reviewer assignment but never moves the status itself: a
// failed proposal stays submitted until the creator replaces the file, which
// clears the verdict for another pass.
func (e Engine) Screen(ctx context.Context, opts ScreeningOptions) (domain.Proposal, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Proposal{}, err
	}
	if opts.Verdict != domain.ScreeningPass && opts.Verdict != domain.ScreeningFail {
		return domain.Proposal{}, ValidationError{Msg: "verdict must be pass or fail"}
	}
	if opts.Verdict == domain.ScreeningFail && strings.TrimSpace(opts.Remarks) == "" {
		return domain.Proposal{}, ValidationError{Msg: "remarks are required for a failed screening"}
	}
	if opts.Verdict == domain.ScreeningPass && (!opts.CheckWriting || !opts.CheckComponents) {
		return domain.Proposal{}, ValidationError{Msg: "all checklist items must pass for a pass verdict"}
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
	if p.Status != domain.StatusSubmitted {
		return domain.Proposal{}, PreconditionError{Msg: "only submitted proposals can be screened"}
	}
	if p.ScreeningVerdict != "" {
		return domain.Proposal{}, ConflictError{Msg: "proposal already screened"}
	}
	now := e.nowRFC3339()
	p.ScreeningVerdict = opts.Verdict
	p.ScreeningRemarks = opts.Remarks
	p.CheckWriting = opts.CheckWriting
	p.CheckWritingRemarks = opts.CheckWritingRemarks
	p.CheckComponents = opts.CheckComponents
	p.CheckComponentsRemarks = opts.CheckComponentsRemarks
	p.ScreenedBy = &u.ID
	p.ScreenedAt = &now
	p.UpdatedAt = now
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.screened", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
		"verdict": string(opts.Verdict),
		"remarks": opts.Remarks,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}
