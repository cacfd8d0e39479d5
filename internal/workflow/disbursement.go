package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"grantflow/internal/config"
	"grantflow/internal/domain"
	"grantflow/internal/events"
)

// terminSchedule splits the approved funding across the configured termins.
// The last termin takes the remainder so the nominals sum to the funding
// exactly regardless of rounding.
func (e Engine) terminSchedule(proposalID string, funding int64, now string) []domain.Disbursement {
	termins := []config.TerminConfig{{Termin: 1, Share: 50}, {Termin: 2, Share: 25}, {Termin: 3, Share: 25}}
	if e.Config != nil && len(e.Config.Termins) > 0 {
		termins = e.Config.Termins
	}
	var res []domain.Disbursement
	var allocated int64
	for i, t := range termins {
		nominal := funding * int64(t.Share) / 100
		if i == len(termins)-1 {
			nominal = funding - allocated
		}
		allocated += nominal
		res = append(res, domain.Disbursement{
			ID:         uuid.NewString(),
			ProposalID: proposalID,
			Termin:     t.Termin,
			Share:      t.Share,
			Nominal:    nominal,
			Status:     domain.DisbursementPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return res
}

// ProofOptions attach a transfer receipt to a termin.
type ProofOptions struct {
	DisbursementID string
	ProofRef       string
	ActorID        string
}

// AttachDisbursementProof stores the proof of transfer for a pending termin.
func (e Engine) AttachDisbursementProof(ctx context.Context, opts ProofOptions) (domain.Disbursement, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Disbursement{}, err
	}
	if strings.TrimSpace(opts.ProofRef) == "" {
		return domain.Disbursement{}, ValidationError{Msg: "proof_ref is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Disbursement{}, err
	}
	defer tx.Rollback()
	d, err := e.Repo.GetDisbursementTx(ctx, tx, opts.DisbursementID)
	if err != nil {
		return domain.Disbursement{}, err
	}
	if d.Status == domain.DisbursementDisbursed {
		return domain.Disbursement{}, PreconditionError{Msg: "termin already disbursed"}
	}
	d.ProofRef = &opts.ProofRef
	d.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateDisbursementTx(ctx, tx, d); err != nil {
		return domain.Disbursement{}, err
	}
	if err := e.Events.Append(ctx, tx, "disbursement.proof_attached", d.ProposalID, "disbursement", d.ID, u.ID, events.EventPayload{
		"termin":    d.Termin,
		"proof_ref": opts.ProofRef,
	}); err != nil {
		return domain.Disbursement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Disbursement{}, err
	}
	return d, nil
}

// DisbursementStatusOptions move a termin between pending, disbursed and rejected.
type DisbursementStatusOptions struct {
	DisbursementID string
	Status         domain.DisbursementStatus
	Remarks        string
	ActorID        string
}

// SetDisbursementStatus updates a termin. A disbursed termin is immutable;
// marking one disbursed requires the proof of transfer to be attached first.
func (e Engine) SetDisbursementStatus(ctx context.Context, opts DisbursementStatusOptions) (domain.Disbursement, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Disbursement{}, err
	}
	if !opts.Status.Valid() {
		return domain.Disbursement{}, ValidationError{Msg: "status must be pending, disbursed or rejected"}
	}
	if opts.Status == domain.DisbursementRejected && strings.TrimSpace(opts.Remarks) == "" {
		return domain.Disbursement{}, ValidationError{Msg: "remarks are required to reject a termin"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Disbursement{}, err
	}
	defer tx.Rollback()
	d, err := e.Repo.GetDisbursementTx(ctx, tx, opts.DisbursementID)
	if err != nil {
		return domain.Disbursement{}, err
	}
	if d.Status == domain.DisbursementDisbursed {
		return domain.Disbursement{}, PreconditionError{Msg: "termin already disbursed"}
	}
	now := e.nowRFC3339()
	if opts.Status == domain.DisbursementDisbursed {
		if d.ProofRef == nil {
			return domain.Disbursement{}, PreconditionError{Msg: "proof of transfer is required before disbursement"}
		}
		d.DisbursedAt = &now
	}
	d.Status = opts.Status
	if opts.Remarks != "" {
		d.Remarks = opts.Remarks
	}
	d.UpdatedAt = now
	if err := e.Repo.UpdateDisbursementTx(ctx, tx, d); err != nil {
		return domain.Disbursement{}, err
	}
	if err := e.Events.Append(ctx, tx, "disbursement.updated", d.ProposalID, "disbursement", d.ID, u.ID, events.EventPayload{
		"termin": d.Termin,
		"status": string(d.Status),
	}); err != nil {
		return domain.Disbursement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Disbursement{}, err
	}
	return d, nil
}
