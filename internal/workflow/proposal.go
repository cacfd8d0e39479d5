package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"grantflow/internal/domain"
	"grantflow/internal/events"
)

// ProposalCreateOptions are parameters for creating a draft proposal.
type ProposalCreateOptions struct {
	ID               string
	PeriodID         string
	SchemeID         string
	Title            string
	Abstract         string
	FileRef          string
	RequestedFunding int64
	ActorID          string
}

func (e Engine) CreateProposal(ctx context.Context, opts ProposalCreateOptions) (domain.Proposal, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleProposer, domain.RoleAdmin)
	if err != nil {
		return domain.Proposal{}, err
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Proposal{}, ValidationError{Msg: "title is required"}
	}
	if strings.TrimSpace(opts.PeriodID) == "" {
		return domain.Proposal{}, ValidationError{Msg: "period_id is required"}
	}
	if opts.RequestedFunding < 0 {
		return domain.Proposal{}, ValidationError{Msg: "requested_funding must not be negative"}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.nowRFC3339()
	p := domain.Proposal{
		ID:               opts.ID,
		PeriodID:         opts.PeriodID,
		SchemeID:         opts.SchemeID,
		CreatorID:        u.ID,
		Title:            opts.Title,
		Abstract:         opts.Abstract,
		Status:           domain.StatusDraft,
		FileRef:          optionalString(opts.FileRef),
		RequestedFunding: opts.RequestedFunding,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.created", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
		"title":     p.Title,
		"period_id": p.PeriodID,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// ProposalUpdateOptions carry draft edits. Nil fields are left untouched.
type ProposalUpdateOptions struct {
	ProposalID       string
	Title            *string
	Abstract         *string
	FileRef          *string
	RequestedFunding *int64
	ActorID          string
}

// UpdateDraft edits a proposal that has not yet been submitted.
func (e Engine) UpdateDraft(ctx context.Context, opts ProposalUpdateOptions) (domain.Proposal, error) {
	u, err := e.requireUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Proposal{}, err
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
	if p.CreatorID != u.ID {
		return domain.Proposal{}, AuthorizationError{}
	}
	if p.Status != domain.StatusDraft {
		return domain.Proposal{}, PreconditionError{Msg: "only draft proposals can be edited"}
	}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return domain.Proposal{}, ValidationError{Msg: "title must not be empty"}
		}
		p.Title = *opts.Title
	}
	if opts.Abstract != nil {
		p.Abstract = *opts.Abstract
	}
	if opts.FileRef != nil {
		p.FileRef = optionalString(*opts.FileRef)
	}
	if opts.RequestedFunding != nil {
		if *opts.RequestedFunding < 0 {
			return domain.Proposal{}, ValidationError{Msg: "requested_funding must not be negative"}
		}
		p.RequestedFunding = *opts.RequestedFunding
	}
	p.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.updated", p.ID, "proposal", p.ID, u.ID, nil); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// ReplaceFile swaps the proposal document. Allowed while drafting, and after a
// failed administrative screening, where it also clears the screening verdict
// so the proposal queues for re-screening.
func (e Engine) ReplaceFile(ctx context.Context, proposalID, fileRef, actorID string) (domain.Proposal, error) {
	u, err := e.requireUser(ctx, actorID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if strings.TrimSpace(fileRef) == "" {
		return domain.Proposal{}, ValidationError{Msg: "file_ref is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.CreatorID != u.ID {
		return domain.Proposal{}, AuthorizationError{}
	}
	evtType := "proposal.file_replaced"
	switch {
	case p.Status == domain.StatusDraft:
	case p.Status == domain.StatusSubmitted && p.ScreeningVerdict == domain.ScreeningFail:
		p.ScreeningVerdict = ""
		p.ScreeningRemarks = ""
		p.CheckWriting = false
		p.CheckWritingRemarks = ""
		p.CheckComponents = false
		p.CheckComponentsRemarks = ""
		p.ScreenedBy = nil
		p.ScreenedAt = nil
		evtType = "proposal.rescreen_requested"
	default:
		return domain.Proposal{}, PreconditionError{Msg: "proposal file can only be replaced while drafting or after a failed screening"}
	}
	p.FileRef = &fileRef
	p.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, p.ID, "proposal", p.ID, u.ID, events.EventPayload{"file_ref": fileRef}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// SubmitProposal moves a complete draft into the screening queue.
func (e Engine) SubmitProposal(ctx context.Context, proposalID, actorID string) (domain.Proposal, error) {
	u, err := e.requireUser(ctx, actorID)
	if err != nil {
		return domain.Proposal{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.CreatorID != u.ID {
		return domain.Proposal{}, AuthorizationError{}
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Abstract) == "" {
		return domain.Proposal{}, ValidationError{Msg: "title and abstract are required before submission"}
	}
	if p.FileRef == nil {
		return domain.Proposal{}, ValidationError{Msg: "proposal file is required before submission"}
	}
	if err := e.transition(&p, domain.StatusSubmitted); err != nil {
		return domain.Proposal{}, err
	}
	now := e.nowRFC3339()
	p.SubmittedAt = &now
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.submitted", p.ID, "proposal", p.ID, u.ID, nil); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// RevisionOptions carry a revised proposal back into review.
type RevisionOptions struct {
	ProposalID string
	FileRef    string
	Abstract   string
	Remarks    string
	ActorID    string
}

// ResubmitRevision answers a revision request: the revised document replaces
// the old one, prior reviews are kept as superseded audit rows, and every
// assignment is reset to a fresh round with a new deadline.
func (e Engine) ResubmitRevision(ctx context.Context, opts RevisionOptions) (domain.Proposal, error) {
	u, err := e.requireUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if strings.TrimSpace(opts.FileRef) == "" {
		return domain.Proposal{}, ValidationError{Msg: "file_ref is required"}
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
	if p.CreatorID != u.ID {
		return domain.Proposal{}, AuthorizationError{}
	}
	if err := e.transition(&p, domain.StatusUnderReview); err != nil {
		return domain.Proposal{}, err
	}
	p.FileRef = &opts.FileRef
	if opts.Abstract != "" {
		p.Abstract = opts.Abstract
	}
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Repo.SupersedeReviewsTx(ctx, tx, p.ID); err != nil {
		return domain.Proposal{}, err
	}
	assignments, err := e.Repo.ListAssignmentsByProposalTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Proposal{}, err
	}
	now := e.nowRFC3339()
	deadline := e.reviewDeadline()
	for _, a := range assignments {
		a.Round++
		a.Status = domain.AssignmentPending
		a.AssignedAt = now
		a.Deadline = deadline
		if err := e.Repo.UpdateAssignmentTx(ctx, tx, a); err != nil {
			return domain.Proposal{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "proposal.resubmitted", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
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

// DeleteProposal removes a draft. Nothing downstream exists before submission,
// so the delete has no cascade to clean up.
func (e Engine) DeleteProposal(ctx context.Context, proposalID, actorID string) error {
	u, err := e.requireUser(ctx, actorID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, proposalID)
	if err != nil {
		return err
	}
	if u.Role != domain.RoleAdmin && p.CreatorID != u.ID {
		return AuthorizationError{}
	}
	if p.Status != domain.StatusDraft {
		return PreconditionError{Msg: "only draft proposals can be deleted"}
	}
	if err := e.Repo.DeleteProposalTx(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "proposal.deleted", p.ID, "proposal", p.ID, u.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
