package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"grantflow/internal/domain"
	"grantflow/internal/events"
	"grantflow/internal/repo"
)

// CreateContract drafts the grant contract for an accepted proposal, with
// generated contract and decree numbers.
func (e Engine) CreateContract(ctx context.Context, proposalID, actorID string) (domain.Contract, error) {
	u, err := e.requireRole(ctx, actorID, domain.RoleAdmin)
	if err != nil {
		return domain.Contract{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, proposalID)
	if err != nil {
		return domain.Contract{}, err
	}
	if p.Status != domain.StatusAccepted {
		return domain.Contract{}, PreconditionError{Msg: "contracts can only be drafted for accepted proposals"}
	}
	if _, err := e.Repo.GetContractByProposalTx(ctx, tx, p.ID); err == nil {
		return domain.Contract{}, ConflictError{Msg: "contract already exists for this proposal"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Contract{}, err
	}
	year := fmt.Sprintf("%d", e.now().UTC().Year())
	n, err := e.Repo.CountContractsByYearTx(ctx, tx, year)
	if err != nil {
		return domain.Contract{}, err
	}
	c := domain.Contract{
		ID:             uuid.NewString(),
		ProposalID:     p.ID,
		ContractNumber: fmt.Sprintf("KTR-%s-%04d", year, n+1),
		DecreeNumber:   fmt.Sprintf("SK-%s-%04d", year, n+1),
		Status:         domain.ContractDraft,
		CreatedBy:      u.ID,
		CreatedAt:      e.nowRFC3339(),
	}
	if err := e.Repo.InsertContractTx(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.created", p.ID, "contract", c.ID, u.ID, events.EventPayload{
		"contract_number": c.ContractNumber,
		"decree_number":   c.DecreeNumber,
	}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

// ActivateOptions attach both signed documents and start execution.
type ActivateOptions struct {
	ContractID      string
	ContractFileRef string
	DecreeFileRef   string
	ActorID         string
}

// ActivateContract records the signed contract and decree documents, marks
// the contract signed and moves the proposal into execution. Documents are
// immutable once the contract is signed.
func (e Engine) ActivateContract(ctx context.Context, opts ActivateOptions) (domain.Contract, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return domain.Contract{}, err
	}
	if strings.TrimSpace(opts.ContractFileRef) == "" || strings.TrimSpace(opts.DecreeFileRef) == "" {
		return domain.Contract{}, ValidationError{Msg: "signed contract and decree documents are both required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, opts.ContractID)
	if err != nil {
		return domain.Contract{}, err
	}
	if c.Status == domain.ContractSigned {
		return domain.Contract{}, ConflictError{Msg: "contract already activated"}
	}
	p, err := e.Repo.GetProposalTx(ctx, tx, c.ProposalID)
	if err != nil {
		return domain.Contract{}, err
	}
	if err := e.transition(&p, domain.StatusExecuting); err != nil {
		return domain.Contract{}, err
	}
	now := e.nowRFC3339()
	c.Status = domain.ContractSigned
	c.ContractFileRef = &opts.ContractFileRef
	c.DecreeFileRef = &opts.DecreeFileRef
	c.SignedBy = &u.ID
	c.ActivatedAt = &now
	if err := e.Repo.UpdateContractTx(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.activated", p.ID, "contract", c.ID, u.ID, events.EventPayload{
		"contract_number": c.ContractNumber,
	}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}
