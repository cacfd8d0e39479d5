package workflow

import (
	"database/sql"
	"time"

	"grantflow/internal/config"
	"grantflow/internal/domain"
	"grantflow/internal/events"
	"grantflow/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ensureProposalTransition is the single master transition table. Every status
// change in the package goes through transition(), which consults this and
// nothing else.
func ensureProposalTransition(from, to domain.ProposalStatus) error {
	switch from {
	case domain.StatusDraft:
		if to == domain.StatusSubmitted {
			return nil
		}
	case domain.StatusSubmitted:
		if to == domain.StatusUnderReview {
			return nil
		}
	case domain.StatusUnderReview:
		if to == domain.StatusAccepted || to == domain.StatusRevisionRequested || to == domain.StatusRejected {
			return nil
		}
	case domain.StatusRevisionRequested:
		if to == domain.StatusUnderReview {
			return nil
		}
	case domain.StatusAccepted:
		if to == domain.StatusExecuting {
			return nil
		}
	case domain.StatusExecuting:
		if to == domain.StatusFinished {
			return nil
		}
	}
	return IllegalTransitionError{From: from, To: to}
}

// transition applies a status change in memory after checking the table.
// The proposal must have been re-read inside the caller's open transaction, so
// the old status is the committed one and concurrent transitions serialize.
func (e Engine) transition(p *domain.Proposal, to domain.ProposalStatus) error {
	if err := ensureProposalTransition(p.Status, to); err != nil {
		return err
	}
	p.Status = to
	p.UpdatedAt = e.nowRFC3339()
	return nil
}

// reviewDeadline stamps the advisory due date for a fresh review round.
func (e Engine) reviewDeadline() string {
	days := 7
	if e.Config != nil && e.Config.Review.DeadlineDays > 0 {
		days = e.Config.Review.DeadlineDays
	}
	return e.now().UTC().Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
