package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

const monitoringCols = `id,proposal_id,
progress_text,progress_file_ref,progress_percent,progress_submitted_at,
progress_verification,progress_verification_remark,progress_verified_by,progress_verified_at,
final_text,final_file_ref,final_submitted_at,
final_verification,final_verification_remark,final_verified_by,final_verified_at,
created_at,updated_at`

func scanMonitoring(row rowScanner) (domain.Monitoring, error) {
	var m domain.Monitoring
	var pText, pFile, pSubmitted, pVer, pRemark, pBy, pAt sql.NullString
	var pPercent sql.NullInt64
	var fText, fFile, fSubmitted, fVer, fRemark, fBy, fAt sql.NullString
	err := row.Scan(&m.ID, &m.ProposalID,
		&pText, &pFile, &pPercent, &pSubmitted,
		&pVer, &pRemark, &pBy, &pAt,
		&fText, &fFile, &fSubmitted,
		&fVer, &fRemark, &fBy, &fAt,
		&m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if pSubmitted.Valid {
		rep := &domain.MonitoringReport{
			Text:        pText.String,
			FileRef:     pFile.String,
			SubmittedAt: pSubmitted.String,
		}
		if pPercent.Valid {
			v := int(pPercent.Int64)
			rep.Percent = &v
		}
		if pVer.Valid {
			rep.Verification = domain.VerificationStatus(pVer.String)
		}
		if pRemark.Valid {
			rep.VerificationRemark = pRemark.String
		}
		rep.VerifiedBy = strPtr(pBy)
		rep.VerifiedAt = strPtr(pAt)
		m.Progress = rep
	}
	if fSubmitted.Valid {
		rep := &domain.MonitoringReport{
			Text:        fText.String,
			FileRef:     fFile.String,
			SubmittedAt: fSubmitted.String,
		}
		if fVer.Valid {
			rep.Verification = domain.VerificationStatus(fVer.String)
		}
		if fRemark.Valid {
			rep.VerificationRemark = fRemark.String
		}
		rep.VerifiedBy = strPtr(fBy)
		rep.VerifiedAt = strPtr(fAt)
		m.Final = rep
	}
	return m, nil
}

func reportArgs(rep *domain.MonitoringReport, withPercent bool) []any {
	if rep == nil {
		if withPercent {
			return []any{nil, nil, nil, nil, nil, nil, nil, nil}
		}
		return []any{nil, nil, nil, nil, nil, nil, nil}
	}
	args := []any{rep.Text, rep.FileRef}
	if withPercent {
		args = append(args, nullableIntPtr(rep.Percent))
	}
	args = append(args, rep.SubmittedAt,
		nullable(string(rep.Verification)), nullable(rep.VerificationRemark),
		nullableStringPtr(rep.VerifiedBy), nullableStringPtr(rep.VerifiedAt))
	return args
}

func (r Repo) InsertMonitoringTx(ctx context.Context, tx *sql.Tx, m domain.Monitoring) error {
	args := []any{m.ID, m.ProposalID}
	args = append(args, reportArgs(m.Progress, true)...)
	args = append(args, reportArgs(m.Final, false)...)
	args = append(args, m.CreatedAt, m.UpdatedAt)
	_, err := tx.ExecContext(ctx, `INSERT INTO monitorings(`+monitoringCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

func (r Repo) UpdateMonitoringTx(ctx context.Context, tx *sql.Tx, m domain.Monitoring) error {
	args := reportArgs(m.Progress, true)
	args = append(args, reportArgs(m.Final, false)...)
	args = append(args, m.UpdatedAt, m.ID)
	res, err := tx.ExecContext(ctx, `UPDATE monitorings SET
progress_text=?,progress_file_ref=?,progress_percent=?,progress_submitted_at=?,
progress_verification=?,progress_verification_remark=?,progress_verified_by=?,progress_verified_at=?,
final_text=?,final_file_ref=?,final_submitted_at=?,
final_verification=?,final_verification_remark=?,final_verified_by=?,final_verified_at=?,
updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMonitoringByProposal(ctx context.Context, proposalID string) (domain.Monitoring, error) {
	return scanMonitoring(r.DB.QueryRowContext(ctx, `SELECT `+monitoringCols+` FROM monitorings WHERE proposal_id=?`, proposalID))
}

func (r Repo) GetMonitoringByProposalTx(ctx context.Context, tx *sql.Tx, proposalID string) (domain.Monitoring, error) {
	return scanMonitoring(tx.QueryRowContext(ctx, `SELECT `+monitoringCols+` FROM monitorings WHERE proposal_id=?`, proposalID))
}
