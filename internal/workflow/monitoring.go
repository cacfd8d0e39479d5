package workflow

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"grantflow/internal/domain"
	"grantflow/internal/events"
	"grantflow/internal/repo"
)

// ReportOptions carry a monitoring report upload.
type ReportOptions struct {
	ProposalID string
	Text       string
	FileRef    string
	Percent    int
	ActorID    string
}

func validateReport(opts ReportOptions) error {
	if strings.TrimSpace(opts.Text) == "" {
		return ValidationError{Msg: "report text is required"}
	}
	if strings.TrimSpace(opts.FileRef) == "" {
		return ValidationError{Msg: "report file is required"}
	}
	return nil
}

// ensureSlotWritable enforces the per-report sub-state machine: a slot accepts
// a (re)submission only when empty or previously rejected.
func ensureSlotWritable(rep *domain.MonitoringReport, name string) error {
	if rep == nil {
		return nil
	}
	switch rep.Verification {
	case domain.VerificationPending:
		return ConflictError{Msg: name + " report is awaiting verification"}
	case domain.VerificationApproved:
		return PreconditionError{Msg: name + " report already approved"}
	}
	return nil
}

func (e Engine) monitoringForUpdate(ctx context.Context, tx *sql.Tx, proposalID, now string) (domain.Monitoring, bool, error) {
	m, err := e.Repo.GetMonitoringByProposalTx(ctx, tx, proposalID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Monitoring{
			ID:         uuid.NewString(),
			ProposalID: proposalID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, true, nil
	}
	return m, false, err
}

// SubmitProgressReport uploads the mid-term progress report for an executing
// proposal.
func (e Engine) SubmitProgressReport(ctx context.Context, opts ReportOptions) (domain.Monitoring, error) {
	u, err := e.requireUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if err := validateReport(opts); err != nil {
		return domain.Monitoring{}, err
	}
	if opts.Percent < 1 || opts.Percent > 100 {
		return domain.Monitoring{}, ValidationError{Msg: "progress percent must be between 1 and 100"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Monitoring{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if p.CreatorID != u.ID {
		return domain.Monitoring{}, AuthorizationError{}
	}
	if p.Status != domain.StatusExecuting {
		return domain.Monitoring{}, PreconditionError{Msg: "progress reports can only be submitted while executing"}
	}
	now := e.nowRFC3339()
	m, created, err := e.monitoringForUpdate(ctx, tx, p.ID, now)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if err := ensureSlotWritable(m.Progress, "progress"); err != nil {
		return domain.Monitoring{}, err
	}
	pct := opts.Percent
	m.Progress = &domain.MonitoringReport{
		Text:         opts.Text,
		FileRef:      opts.FileRef,
		Percent:      &pct,
		SubmittedAt:  now,
		Verification: domain.VerificationPending,
	}
	m.UpdatedAt = now
	if created {
		err = e.Repo.InsertMonitoringTx(ctx, tx, m)
	} else {
		err = e.Repo.UpdateMonitoringTx(ctx, tx, m)
	}
	if err != nil {
		return domain.Monitoring{}, err
	}
	if err := e.Events.Append(ctx, tx, "monitoring.progress_submitted", p.ID, "monitoring", m.ID, u.ID, events.EventPayload{
		"percent": opts.Percent,
	}); err != nil {
		return domain.Monitoring{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Monitoring{}, err
	}
	return m, nil
}

// SubmitFinalReport uploads the final report. It is gated on the progress
// report having been approved.
func (e Engine) SubmitFinalReport(ctx context.Context, opts ReportOptions) (domain.Monitoring, error) {
	u, err := e.requireUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if err := validateReport(opts); err != nil {
		return domain.Monitoring{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Monitoring{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if p.CreatorID != u.ID {
		return domain.Monitoring{}, AuthorizationError{}
	}
	if p.Status != domain.StatusExecuting {
		return domain.Monitoring{}, PreconditionError{Msg: "final reports can only be submitted while executing"}
	}
	now := e.nowRFC3339()
	m, created, err := e.monitoringForUpdate(ctx, tx, p.ID, now)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if m.Progress == nil || m.Progress.Verification != domain.VerificationApproved {
		return domain.Monitoring{}, PreconditionError{Msg: "progress report must be approved before the final report"}
	}
	if err := ensureSlotWritable(m.Final, "final"); err != nil {
		return domain.Monitoring{}, err
	}
	m.Final = &domain.MonitoringReport{
		Text:         opts.Text,
		FileRef:      opts.FileRef,
		SubmittedAt:  now,
		Verification: domain.VerificationPending,
	}
	m.UpdatedAt = now
	if created {
		err = e.Repo.InsertMonitoringTx(ctx, tx, m)
	} else {
		err = e.Repo.UpdateMonitoringTx(ctx, tx, m)
	}
	if err != nil {
		return domain.Monitoring{}, err
	}
	if err := e.Events.Append(ctx, tx, "monitoring.final_submitted", p.ID, "monitoring", m.ID, u.ID, nil); err != nil {
		return domain.Monitoring{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Monitoring{}, err
	}
	return m, nil
}

// VerifyOptions record an admin verdict on one report slot.
type VerifyOptions struct {
	ProposalID string
	Report     string // "progress" or "final"
	Approved   bool
	Remarks    string
	ActorID    string
}

// VerifyReport approves or rejects a pending monitoring report. Approving the
// final report closes out the proposal.
func (e Engine) VerifyReport(ctx context.Context, opts VerifyOptions) (domain.Monitoring, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Monitoring{}, err
	}
	if opts.Report != "progress" && opts.Report != "final" {
		return domain.Monitoring{}, ValidationError{Msg: "report must be progress or final"}
	}
	if !opts.Approved && strings.TrimSpace(opts.Remarks) == "" {
		return domain.Monitoring{}, ValidationError{Msg: "remarks are required to reject a report"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Monitoring{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return domain.Monitoring{}, err
	}
	m, err := e.Repo.GetMonitoringByProposalTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Monitoring{}, err
	}
	slot := m.Progress
	if opts.Report == "final" {
		slot = m.Final
	}
	if slot == nil {
		return domain.Monitoring{}, PreconditionError{Msg: opts.Report + " report has not been submitted"}
	}
	if slot.Verification != domain.VerificationPending {
		return domain.Monitoring{}, PreconditionError{Msg: opts.Report + " report is not awaiting verification"}
	}
	now := e.nowRFC3339()
	if opts.Approved {
		slot.Verification = domain.VerificationApproved
	} else {
		slot.Verification = domain.VerificationRejected
	}
	slot.VerificationRemark = opts.Remarks
	slot.VerifiedBy = &u.ID
	slot.VerifiedAt = &now
	m.UpdatedAt = now
	if err := e.Repo.UpdateMonitoringTx(ctx, tx, m); err != nil {
		return domain.Monitoring{}, err
	}
	if opts.Report == "final" && opts.Approved {
		if err := e.transition(&p, domain.StatusFinished); err != nil {
			return domain.Monitoring{}, err
		}
		if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
			return domain.Monitoring{}, err
		}
		if err := e.Events.Append(ctx, tx, "proposal.finished", p.ID, "proposal", p.ID, u.ID, nil); err != nil {
			return domain.Monitoring{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "monitoring.verified", p.ID, "monitoring", m.ID, u.ID, events.EventPayload{
		"report":   opts.Report,
		"approved": opts.Approved,
		"remarks":  opts.Remarks,
	}); err != nil {
		return domain.Monitoring{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Monitoring{}, err
	}
	return m, nil
}
