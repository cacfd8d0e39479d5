package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

func scanContract(row rowScanner) (domain.Contract, error) {
	var c domain.Contract
	var contractRef, decreeRef, signedBy, activatedAt sql.NullString
	err := row.Scan(&c.ID, &c.ProposalID, &c.ContractNumber, &c.DecreeNumber, &c.Status,
		&contractRef, &decreeRef, &c.CreatedBy, &signedBy, &activatedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.ContractFileRef = strPtr(contractRef)
	c.DecreeFileRef = strPtr(decreeRef)
	c.SignedBy = strPtr(signedBy)
	c.ActivatedAt = strPtr(activatedAt)
	return c, nil
}

const contractCols = `id,proposal_id,contract_number,decree_number,status,contract_file_ref,decree_file_ref,created_by,signed_by,activated_at,created_at`

func (r Repo) InsertContractTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contracts(`+contractCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProposalID, c.ContractNumber, c.DecreeNumber, string(c.Status),
		nullableStringPtr(c.ContractFileRef), nullableStringPtr(c.DecreeFileRef), c.CreatedBy,
		nullableStringPtr(c.SignedBy), nullableStringPtr(c.ActivatedAt), c.CreatedAt)
	return err
}

func (r Repo) UpdateContractTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET status=?,contract_file_ref=?,decree_file_ref=?,signed_by=?,activated_at=? WHERE id=?`,
		string(c.Status), nullableStringPtr(c.ContractFileRef), nullableStringPtr(c.DecreeFileRef),
		nullableStringPtr(c.SignedBy), nullableStringPtr(c.ActivatedAt), c.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return scanContract(r.DB.QueryRowContext(ctx, `SELECT `+contractCols+` FROM contracts WHERE id=?`, id))
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(tx.QueryRowContext(ctx, `SELECT `+contractCols+` FROM contracts WHERE id=?`, id))
}

func (r Repo) GetContractByProposal(ctx context.Context, proposalID string) (domain.Contract, error) {
	return scanContract(r.DB.QueryRowContext(ctx, `SELECT `+contractCols+` FROM contracts WHERE proposal_id=?`, proposalID))
}

func (r Repo) GetContractByProposalTx(ctx context.Context, tx *sql.Tx, proposalID string) (domain.Contract, error) {
	return scanContract(tx.QueryRowContext(ctx, `SELECT `+contractCols+` FROM contracts WHERE proposal_id=?`, proposalID))
}

// CountContractsByYearTx feeds contract/decree number generation.
func (r Repo) CountContractsByYearTx(ctx context.Context, tx *sql.Tx, year string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts WHERE contract_number LIKE ?`, "KTR-"+year+"-%").Scan(&n)
	return n, err
}
