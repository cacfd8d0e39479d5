package workflow

import (
	"fmt"

	"grantflow/internal/domain"
)

// ValidationError indicates malformed or missing input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// PreconditionError indicates the entity is not in a state that permits the
// operation, outside of the proposal status transition table itself.
type PreconditionError struct {
	Msg string
}

func (e PreconditionError) Error() string { return e.Msg }

// IllegalTransitionError indicates a proposal status change outside the
// transition table.
type IllegalTransitionError struct {
	From domain.ProposalStatus
	To   domain.ProposalStatus
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("invalid proposal status transition %s -> %s", e.From, e.To)
}

// LimitExceededError indicates a bounded counter (such as the revision cycle
// ceiling) has been exhausted.
type LimitExceededError struct {
	Limit int
	Msg   string
}

func (e LimitExceededError) Error() string { return e.Msg }

// ConflictError indicates the operation collides with an existing record,
// such as submitting a second review for the same round.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

// AuthorizationError indicates the acting user lacks the role or relationship
// the operation requires. The message is deliberately generic so it cannot be
// used to probe which entities exist.
type AuthorizationError struct {
	Msg string
}

func (e AuthorizationError) Error() string {
	if e.Msg == "" {
		return "operation not permitted"
	}
	return e.Msg
}
