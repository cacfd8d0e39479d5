package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

const proposalCols = `id,period_id,scheme_id,creator_id,title,abstract,status,file_ref,
screening_verdict,screening_remarks,check_writing,check_writing_remarks,
check_components,check_components_remarks,screened_by,screened_at,
revision_count,requested_funding,approved_funding,average_score,decision_remarks,
submitted_at,decided_at,created_at,updated_at`

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var p domain.Proposal
	var schemeID, abstract, fileRef, verdict, screeningRemarks sql.NullString
	var checkWritingRemarks, checkComponentsRemarks, screenedBy, screenedAt sql.NullString
	var decisionRemarks, submittedAt, decidedAt sql.NullString
	var checkWriting, checkComponents int
	var approvedFunding sql.NullInt64
	var avgScore sql.NullFloat64
	err := row.Scan(&p.ID, &p.PeriodID, &schemeID, &p.CreatorID, &p.Title, &abstract, &p.Status, &fileRef,
		&verdict, &screeningRemarks, &checkWriting, &checkWritingRemarks,
		&checkComponents, &checkComponentsRemarks, &screenedBy, &screenedAt,
		&p.RevisionCount, &p.RequestedFunding, &approvedFunding, &avgScore, &decisionRemarks,
		&submittedAt, &decidedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if schemeID.Valid {
		p.SchemeID = schemeID.String
	}
	if abstract.Valid {
		p.Abstract = abstract.String
	}
	p.FileRef = strPtr(fileRef)
	if verdict.Valid {
		p.ScreeningVerdict = domain.ScreeningVerdict(verdict.String)
	}
	if screeningRemarks.Valid {
		p.ScreeningRemarks = screeningRemarks.String
	}
	p.CheckWriting = checkWriting != 0
	p.CheckComponents = checkComponents != 0
	if checkWritingRemarks.Valid {
		p.CheckWritingRemarks = checkWritingRemarks.String
	}
	if checkComponentsRemarks.Valid {
		p.CheckComponentsRemarks = checkComponentsRemarks.String
	}
	p.ScreenedBy = strPtr(screenedBy)
	p.ScreenedAt = strPtr(screenedAt)
	if approvedFunding.Valid {
		v := approvedFunding.Int64
		p.ApprovedFunding = &v
	}
	if avgScore.Valid {
		v := avgScore.Float64
		p.AverageScore = &v
	}
	if decisionRemarks.Valid {
		p.DecisionRemarks = decisionRemarks.String
	}
	p.SubmittedAt = strPtr(submittedAt)
	p.DecidedAt = strPtr(decidedAt)
	return p, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func proposalArgs(p domain.Proposal) []any {
	return []any{
		p.ID, p.PeriodID, nullable(p.SchemeID), p.CreatorID, p.Title, nullable(p.Abstract), string(p.Status), nullableStringPtr(p.FileRef),
		nullable(string(p.ScreeningVerdict)), nullable(p.ScreeningRemarks), boolInt(p.CheckWriting), nullable(p.CheckWritingRemarks),
		boolInt(p.CheckComponents), nullable(p.CheckComponentsRemarks), nullableStringPtr(p.ScreenedBy), nullableStringPtr(p.ScreenedAt),
		p.RevisionCount, p.RequestedFunding, nullableInt64Ptr(p.ApprovedFunding), nullableFloatPtr(p.AverageScore), nullable(p.DecisionRemarks),
		nullableStringPtr(p.SubmittedAt), nullableStringPtr(p.DecidedAt), p.CreatedAt, p.UpdatedAt,
	}
}

func (r Repo) InsertProposalTx(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposals(`+proposalCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		proposalArgs(p)...)
	return err
}

// UpdateProposalTx rewrites every mutable column from the in-memory entity.
// Callers re-read the row in the same transaction before mutating it, so the
// full-row write cannot clobber a concurrent change.
func (r Repo) UpdateProposalTx(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET
period_id=?,scheme_id=?,title=?,abstract=?,status=?,file_ref=?,
screening_verdict=?,screening_remarks=?,check_writing=?,check_writing_remarks=?,
check_components=?,check_components_remarks=?,screened_by=?,screened_at=?,
revision_count=?,requested_funding=?,approved_funding=?,average_score=?,decision_remarks=?,
submitted_at=?,decided_at=?,updated_at=? WHERE id=?`,
		p.PeriodID, nullable(p.SchemeID), p.Title, nullable(p.Abstract), string(p.Status), nullableStringPtr(p.FileRef),
		nullable(string(p.ScreeningVerdict)), nullable(p.ScreeningRemarks), boolInt(p.CheckWriting), nullable(p.CheckWritingRemarks),
		boolInt(p.CheckComponents), nullable(p.CheckComponentsRemarks), nullableStringPtr(p.ScreenedBy), nullableStringPtr(p.ScreenedAt),
		p.RevisionCount, p.RequestedFunding, nullableInt64Ptr(p.ApprovedFunding), nullableFloatPtr(p.AverageScore), nullable(p.DecisionRemarks),
		nullableStringPtr(p.SubmittedAt), nullableStringPtr(p.DecidedAt), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return scanProposal(r.DB.QueryRowContext(ctx, `SELECT `+proposalCols+` FROM proposals WHERE id=?`, id))
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	return scanProposal(tx.QueryRowContext(ctx, `SELECT `+proposalCols+` FROM proposals WHERE id=?`, id))
}

func (r Repo) DeleteProposalTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM proposals WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type ProposalFilters struct {
	Status          string
	PeriodID        string
	CreatorID       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProposals(ctx context.Context, f ProposalFilters) ([]domain.Proposal, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PeriodID != "" {
		clauses = append(clauses, "period_id=?")
		args = append(args, f.PeriodID)
	}
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + proposalCols + ` FROM proposals ` + whereClause(clauses) + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
