package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"grantflow/internal/domain"
	"grantflow/internal/events"
	"grantflow/internal/repo"
)

// AssignOptions name the reviewer panel for a screened proposal.
type AssignOptions struct {
	ProposalID  string
	ReviewerIDs []string
	ActorID     string
}

// AssignReviewers attaches the reviewer panel and moves the proposal into
// review. The panel size is fixed by config, reviewers must be distinct,
// active, hold the reviewer role, and cannot include the proposal creator.
func (e Engine) AssignReviewers(ctx context.Context, opts AssignOptions) ([]domain.ReviewAssignment, error) {
	u, err := e.requireRole(ctx, opts.ActorID, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	want := 2
	if e.Config != nil && e.Config.Review.ReviewersPerProposal > 0 {
		want = e.Config.Review.ReviewersPerProposal
	}
	if len(opts.ReviewerIDs) != want {
		return nil, ValidationError{Msg: fmt.Sprintf("exactly %d reviewers are required", want)}
	}
	seen := map[string]bool{}
	for _, id := range opts.ReviewerIDs {
		if seen[id] {
			return nil, ValidationError{Msg: "reviewers must be distinct"}
		}
		seen[id] = true
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProposalTx(ctx, tx, opts.ProposalID)
	if err != nil {
		return nil, err
	}
	if p.ScreeningVerdict != domain.ScreeningPass {
		return nil, PreconditionError{Msg: "proposal has not passed administrative screening"}
	}
	existing, err := e.Repo.ListAssignmentsByProposalTx(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ConflictError{Msg: "reviewers already assigned"}
	}
	for _, id := range opts.ReviewerIDs {
		rv, err := e.Repo.GetUserTx(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ValidationError{Msg: fmt.Sprintf("reviewer %s not found", id)}
		}
		if err != nil {
			return nil, err
		}
		if rv.Role != domain.RoleReviewer || !rv.Active {
			return nil, ValidationError{Msg: fmt.Sprintf("user %s is not an active reviewer", id)}
		}
		if rv.ID == p.CreatorID {
			return nil, ValidationError{Msg: "proposal creator cannot review their own proposal"}
		}
	}
	if err := e.transition(&p, domain.StatusUnderReview); err != nil {
		return nil, err
	}
	if err := e.Repo.UpdateProposalTx(ctx, tx, p); err != nil {
		return nil, err
	}
	now := e.nowRFC3339()
	deadline := e.reviewDeadline()
	var assignments []domain.ReviewAssignment
	for _, id := range opts.ReviewerIDs {
		a := domain.ReviewAssignment{
			ID:         uuid.NewString(),
			ProposalID: p.ID,
			ReviewerID: id,
			Round:      1,
			Status:     domain.AssignmentPending,
			AssignedAt: now,
			Deadline:   deadline,
		}
		if err := e.Repo.InsertAssignmentTx(ctx, tx, a); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := e.Events.Append(ctx, tx, "reviewers.assigned", p.ID, "proposal", p.ID, u.ID, events.EventPayload{
		"reviewer_ids": opts.ReviewerIDs,
		"deadline":     deadline,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ReviewSubmitOptions carry one reviewer's scored verdict.
type ReviewSubmitOptions struct {
	AssignmentID   string
	Score          int
	Recommendation domain.Recommendation
	Remarks        string
	EvidenceRef    string
	ActorID        string
}

// SubmitReview records a review for the assignment's current round. A round's
// review is immutable once stored; a later revision cycle opens a new round
// instead of editing it.
func (e Engine) SubmitReview(ctx context.Context, opts ReviewSubmitOptions) (domain.Review, error) {
	u, err := e.requireUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Review{}, err
	}
	if opts.Score < 0 || opts.Score > 100 {
		return domain.Review{}, ValidationError{Msg: "score must be between 0 and 100"}
	}
	if !opts.Recommendation.Valid() {
		return domain.Review{}, ValidationError{Msg: "recommendation must be accept, revise or reject"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetAssignmentTx(ctx, tx, opts.AssignmentID)
	if err != nil {
		return domain.Review{}, err
	}
	if a.ReviewerID != u.ID {
		// Hide the assignment from everyone but its reviewer.
		return domain.Review{}, repo.ErrNotFound
	}
	p, err := e.Repo.GetProposalTx(ctx, tx, a.ProposalID)
	if err != nil {
		return domain.Review{}, err
	}
	if p.Status != domain.StatusUnderReview {
		return domain.Review{}, PreconditionError{Msg: "proposal is not under review"}
	}
	if _, err := e.Repo.GetCurrentReviewTx(ctx, tx, a.ID); err == nil {
		return domain.Review{}, ConflictError{Msg: "review already submitted for this round"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Review{}, err
	}
	rv := domain.Review{
		ID:             uuid.NewString(),
		AssignmentID:   a.ID,
		Round:          a.Round,
		Score:          opts.Score,
		Recommendation: opts.Recommendation,
		Remarks:        opts.Remarks,
		EvidenceRef:    optionalString(opts.EvidenceRef),
		SubmittedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertReviewTx(ctx, tx, rv); err != nil {
		return domain.Review{}, err
	}
	a.Status = domain.AssignmentCompleted
	if err := e.Repo.UpdateAssignmentTx(ctx, tx, a); err != nil {
		return domain.Review{}, err
	}
	if err := e.Events.Append(ctx, tx, "review.submitted", p.ID, "review", rv.ID, u.ID, events.EventPayload{
		"score":          rv.Score,
		"recommendation": string(rv.Recommendation),
		"round":          rv.Round,
	}); err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// ReviewSummary aggregates the live reviews for a proposal.
func (e Engine) ReviewSummary(ctx context.Context, proposalID string) (domain.ReviewAggregate, error) {
	assignments, err := e.Repo.ListAssignmentsByProposal(ctx, proposalID)
	if err != nil {
		return domain.ReviewAggregate{}, err
	}
	reviews, err := e.Repo.CurrentReviewsByProposal(ctx, proposalID)
	if err != nil {
		return domain.ReviewAggregate{}, err
	}
	return summarize(assignments, reviews), nil
}

func summarize(assignments []domain.ReviewAssignment, reviews []domain.Review) domain.ReviewAggregate {
	agg := domain.ReviewAggregate{TotalCount: len(assignments)}
	for _, a := range assignments {
		if a.Round > agg.Round {
			agg.Round = a.Round
		}
	}
	var sum int
	for _, rv := range reviews {
		agg.CompletedCount++
		sum += rv.Score
	}
	if agg.CompletedCount > 0 {
		avg := float64(sum) / float64(agg.CompletedCount)
		agg.AverageScore = &avg
	}
	agg.AllComplete = agg.TotalCount > 0 && agg.CompletedCount == agg.TotalCount
	return agg
}
