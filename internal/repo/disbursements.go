package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

const disbursementCols = `id,proposal_id,termin,share,nominal,status,proof_ref,remarks,disbursed_at,created_at,updated_at`

func scanDisbursement(row rowScanner) (domain.Disbursement, error) {
	var d domain.Disbursement
	var proofRef, remarks, disbursedAt sql.NullString
	err := row.Scan(&d.ID, &d.ProposalID, &d.Termin, &d.Share, &d.Nominal, &d.Status,
		&proofRef, &remarks, &disbursedAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.ProofRef = strPtr(proofRef)
	if remarks.Valid {
		d.Remarks = remarks.String
	}
	d.DisbursedAt = strPtr(disbursedAt)
	return d, nil
}

func (r Repo) InsertDisbursementTx(ctx context.Context, tx *sql.Tx, d domain.Disbursement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO disbursements(`+disbursementCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ProposalID, d.Termin, d.Share, d.Nominal, string(d.Status),
		nullableStringPtr(d.ProofRef), nullable(d.Remarks), nullableStringPtr(d.DisbursedAt), d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) UpdateDisbursementTx(ctx context.Context, tx *sql.Tx, d domain.Disbursement) error {
	res, err := tx.ExecContext(ctx, `UPDATE disbursements SET status=?,proof_ref=?,remarks=?,disbursed_at=?,updated_at=? WHERE id=?`,
		string(d.Status), nullableStringPtr(d.ProofRef), nullable(d.Remarks), nullableStringPtr(d.DisbursedAt), d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDisbursement(ctx context.Context, id string) (domain.Disbursement, error) {
	return scanDisbursement(r.DB.QueryRowContext(ctx, `SELECT `+disbursementCols+` FROM disbursements WHERE id=?`, id))
}

func (r Repo) GetDisbursementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Disbursement, error) {
	return scanDisbursement(tx.QueryRowContext(ctx, `SELECT `+disbursementCols+` FROM disbursements WHERE id=?`, id))
}

func (r Repo) ListDisbursementsByProposal(ctx context.Context, proposalID string) ([]domain.Disbursement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+disbursementCols+` FROM disbursements WHERE proposal_id=? ORDER BY termin ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Disbursement
	for rows.Next() {
		d, err := scanDisbursement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
