package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"grantflow/internal/domain"
	"grantflow/internal/events"
)

// OutputCreateOptions register a research output (publication, prototype,
// patent and the like) against an executing grant.
type OutputCreateOptions struct {
	ProposalID string
	Kind       string
	Title      string
	FileRef    string
	ActorID    string
}

func (e Engine) AddOutput(ctx context.Context, opts OutputCreateOptions) (domain.Output, error) {
	u, err := e.requireUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Output{}, err
	}
	if strings.TrimSpace(opts.Kind) == "" {
		return domain.Output{}, ValidationError{Msg: "kind is required"}
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Output{}, ValidationError{Msg: "title is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Output{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Output{}, err
	}
	if u.Role != domain.RoleAdmin && p.CreatorID != u.ID {
		return domain.Output{}, AuthorizationError{}
	}
	if p.Status != domain.StatusExecuting && p.Status != domain.StatusFinished {
		return domain.Output{}, PreconditionError{Msg: "outputs can only be registered once execution has started"}
	}
	o := domain.Output{
		ID:         uuid.NewString(),
		ProposalID: p.ID,
		Kind:       opts.Kind,
		Title:      opts.Title,
		FileRef:    optionalString(opts.FileRef),
		Status:     domain.VerificationPending,
		CreatedAt:  e.nowRFC3339(),
	}
	if err := e.Repo.InsertOutputTx(ctx, tx, o); err != nil {
		return domain.Output{}, err
	}
	if err := e.Events.Append(ctx, tx, "output.created", p.ID, "output", o.ID, u.ID, events.EventPayload{
		"kind":  o.Kind,
		"title": o.Title,
	}); err != nil {
		return domain.Output{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Output{}, err
	}
	return o, nil
}

// OutputVerifyOptions record the verification verdict for an output.
// Verification is independent of the proposal lifecycle and never gates it.
type OutputVerifyOptions struct {
	OutputID string
	Approved bool
	Remarks  string
	ActorID  string
}

func (e Engine) VerifyOutput(ctx context.Context, opts OutputVerifyOptions) (domain.Output, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Output{}, err
	}
	if !opts.Approved && strings.TrimSpace(opts.Remarks) == "" {
		return domain.Output{}, ValidationError{Msg: "remarks are required to reject an output"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Output{}, err
	}
	defer tx.Rollback()
	o, err := e.Repo.GetOutputTx(ctx, tx, opts.OutputID)
	if err != nil {
		return domain.Output{}, err
	}
	if o.Status == domain.VerificationApproved {
		return domain.Output{}, ConflictError{Msg: "output already verified"}
	}
	now := e.nowRFC3339()
	if opts.Approved {
		o.Status = domain.VerificationApproved
	} else {
		o.Status = domain.VerificationRejected
	}
	o.Remarks = opts.Remarks
	o.VerifiedBy = &u.ID
	o.VerifiedAt = &now
	if err := e.Repo.UpdateOutputTx(ctx, tx, o); err != nil {
		return domain.Output{}, err
	}
	if err := e.Events.Append(ctx, tx, "output.verified", o.ProposalID, "output", o.ID, u.ID, events.EventPayload{
		"approved": opts.Approved,
	}); err != nil {
		return domain.Output{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Output{}, err
	}
	return o, nil
}
