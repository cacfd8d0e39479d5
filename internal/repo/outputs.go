package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

const outputCols = `id,proposal_id,kind,title,file_ref,status,remarks,verified_by,verified_at,created_at`

func scanOutput(row rowScanner) (domain.Output, error) {
	var o domain.Output
	var fileRef, remarks, verifiedBy, verifiedAt sql.NullString
	err := row.Scan(&o.ID, &o.ProposalID, &o.Kind, &o.Title, &fileRef, &o.Status, &remarks, &verifiedBy, &verifiedAt, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.FileRef = strPtr(fileRef)
	if remarks.Valid {
		o.Remarks = remarks.String
	}
	o.VerifiedBy = strPtr(verifiedBy)
	o.VerifiedAt = strPtr(verifiedAt)
	return o, nil
}

func (r Repo) InsertOutputTx(ctx context.Context, tx *sql.Tx, o domain.Output) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO outputs(`+outputCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.ProposalID, o.Kind, o.Title, nullableStringPtr(o.FileRef), string(o.Status),
		nullable(o.Remarks), nullableStringPtr(o.VerifiedBy), nullableStringPtr(o.VerifiedAt), o.CreatedAt)
	return err
}

func (r Repo) UpdateOutputTx(ctx context.Context, tx *sql.Tx, o domain.Output) error {
	res, err := tx.ExecContext(ctx, `UPDATE outputs SET file_ref=?,status=?,remarks=?,verified_by=?,verified_at=? WHERE id=?`,
		nullableStringPtr(o.FileRef), string(o.Status), nullable(o.Remarks),
		nullableStringPtr(o.VerifiedBy), nullableStringPtr(o.VerifiedAt), o.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetOutput(ctx context.Context, id string) (domain.Output, error) {
	return scanOutput(r.DB.QueryRowContext(ctx, `SELECT `+outputCols+` FROM outputs WHERE id=?`, id))
}

func (r Repo) GetOutputTx(ctx context.Context, tx *sql.Tx, id string) (domain.Output, error) {
	return scanOutput(tx.QueryRowContext(ctx, `SELECT `+outputCols+` FROM outputs WHERE id=?`, id))
}

func (r Repo) ListOutputsByProposal(ctx context.Context, proposalID string) ([]domain.Output, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+outputCols+` FROM outputs WHERE proposal_id=? ORDER BY created_at ASC, id ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Output
	for rows.Next() {
		o, err := scanOutput(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
