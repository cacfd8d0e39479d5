package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

func scanAssignment(row rowScanner) (domain.ReviewAssignment, error) {
	var a domain.ReviewAssignment
	err := row.Scan(&a.ID, &a.ProposalID, &a.ReviewerID, &a.Round, &a.Status, &a.AssignedAt, &a.Deadline)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.ReviewAssignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO review_assignments(id,proposal_id,reviewer_id,round,status,assigned_at,deadline) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ProposalID, a.ReviewerID, a.Round, string(a.Status), a.AssignedAt, a.Deadline)
	return err
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.ReviewAssignment, error) {
	return scanAssignment(r.DB.QueryRowContext(ctx, `SELECT id,proposal_id,reviewer_id,round,status,assigned_at,deadline FROM review_assignments WHERE id=?`, id))
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.ReviewAssignment, error) {
	return scanAssignment(tx.QueryRowContext(ctx, `SELECT id,proposal_id,reviewer_id,round,status,assigned_at,deadline FROM review_assignments WHERE id=?`, id))
}

// UpdateAssignmentTx rewrites round, status and deadline (the mutable columns).
func (r Repo) UpdateAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.ReviewAssignment) error {
	res, err := tx.ExecContext(ctx, `UPDATE review_assignments SET round=?,status=?,deadline=?,assigned_at=? WHERE id=?`,
		a.Round, string(a.Status), a.Deadline, a.AssignedAt, a.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listAssignments(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.ReviewAssignment, error) {
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) ListAssignmentsByProposal(ctx context.Context, proposalID string) ([]domain.ReviewAssignment, error) {
	return r.listAssignments(ctx, nil, `SELECT id,proposal_id,reviewer_id,round,status,assigned_at,deadline FROM review_assignments WHERE proposal_id=? ORDER BY assigned_at ASC, id ASC`, proposalID)
}

func (r Repo) ListAssignmentsByProposalTx(ctx context.Context, tx *sql.Tx, proposalID string) ([]domain.ReviewAssignment, error) {
	return r.listAssignments(ctx, tx, `SELECT id,proposal_id,reviewer_id,round,status,assigned_at,deadline FROM review_assignments WHERE proposal_id=? ORDER BY assigned_at ASC, id ASC`, proposalID)
}

func (r Repo) ListAssignmentsByReviewer(ctx context.Context, reviewerID string) ([]domain.ReviewAssignment, error) {
	return r.listAssignments(ctx, nil, `SELECT id,proposal_id,reviewer_id,round,status,assigned_at,deadline FROM review_assignments WHERE reviewer_id=? ORDER BY assigned_at DESC, id DESC`, reviewerID)
}

func scanReview(row rowScanner) (domain.Review, error) {
	var rv domain.Review
	var remarks, evidenceRef sql.NullString
	var superseded int
	err := row.Scan(&rv.ID, &rv.AssignmentID, &rv.Round, &rv.Score, &rv.Recommendation, &remarks, &evidenceRef, &superseded, &rv.SubmittedAt)
	if err == sql.ErrNoRows {
		return rv, ErrNotFound
	}
	if err != nil {
		return rv, err
	}
	if remarks.Valid {
		rv.Remarks = remarks.String
	}
	rv.EvidenceRef = strPtr(evidenceRef)
	rv.Superseded = superseded != 0
	return rv, nil
}

func (r Repo) InsertReviewTx(ctx context.Context, tx *sql.Tx, rv domain.Review) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reviews(id,assignment_id,round,score,recommendation,remarks,evidence_ref,superseded,submitted_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		rv.ID, rv.AssignmentID, rv.Round, rv.Score, string(rv.Recommendation), nullable(rv.Remarks), nullableStringPtr(rv.EvidenceRef), boolInt(rv.Superseded), rv.SubmittedAt)
	return err
}

const currentReviewQuery = `SELECT id,assignment_id,round,score,recommendation,remarks,evidence_ref,superseded,submitted_at FROM reviews WHERE assignment_id=? AND superseded=0 LIMIT 1`

// GetCurrentReview returns the non-superseded review for an assignment, if any.
func (r Repo) GetCurrentReview(ctx context.Context, assignmentID string) (domain.Review, error) {
	return scanReview(r.DB.QueryRowContext(ctx, currentReviewQuery, assignmentID))
}

func (r Repo) GetCurrentReviewTx(ctx context.Context, tx *sql.Tx, assignmentID string) (domain.Review, error) {
	return scanReview(tx.QueryRowContext(ctx, currentReviewQuery, assignmentID))
}

// SupersedeReviewsTx flags every live review on the proposal's assignments as
// superseded. Used when a revision cycle resets the review round.
func (r Repo) SupersedeReviewsTx(ctx context.Context, tx *sql.Tx, proposalID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE reviews SET superseded=1 WHERE assignment_id IN (SELECT id FROM review_assignments WHERE proposal_id=?)`, proposalID)
	return err
}

func (r Repo) listReviews(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.Review, error) {
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

// ListReviewsByProposal returns all review rounds, superseded included, oldest first.
func (r Repo) ListReviewsByProposal(ctx context.Context, proposalID string) ([]domain.Review, error) {
	return r.listReviews(ctx, nil, `SELECT rv.id,rv.assignment_id,rv.round,rv.score,rv.recommendation,rv.remarks,rv.evidence_ref,rv.superseded,rv.submitted_at
FROM reviews rv JOIN review_assignments a ON a.id=rv.assignment_id WHERE a.proposal_id=? ORDER BY rv.round ASC, rv.submitted_at ASC`, proposalID)
}

const currentReviewsQuery = `SELECT rv.id,rv.assignment_id,rv.round,rv.score,rv.recommendation,rv.remarks,rv.evidence_ref,rv.superseded,rv.submitted_at
FROM reviews rv JOIN review_assignments a ON a.id=rv.assignment_id WHERE a.proposal_id=? AND rv.superseded=0 ORDER BY rv.submitted_at ASC`

// CurrentReviewsByProposal returns the live (non-superseded) reviews only.
func (r Repo) CurrentReviewsByProposal(ctx context.Context, proposalID string) ([]domain.Review, error) {
	return r.listReviews(ctx, nil, currentReviewsQuery, proposalID)
}

func (r Repo) CurrentReviewsByProposalTx(ctx context.Context, tx *sql.Tx, proposalID string) ([]domain.Review, error) {
	return r.listReviews(ctx, tx, currentReviewsQuery, proposalID)
}
