package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"grantflow/internal/domain"
)

func scanEvent(row rowScanner) (domain.Event, error) {
	var e domain.Event
	var proposalID, entityID, payload sql.NullString
	err := row.Scan(&e.ID, &e.TS, &e.Type, &proposalID, &e.EntityKind, &entityID, &e.ActorID, &payload)
	if err != nil {
		return e, err
	}
	if proposalID.Valid {
		e.ProposalID = proposalID.String
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	if payload.Valid {
		e.Payload = payload.String
	}
	return e, nil
}

// EventsAfter returns events with id greater than cursor, oldest first.
// Feeds the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, proposalID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if proposalID != "" {
		clauses = append(clauses, "proposal_id=?")
		args = append(args, proposalID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,proposal_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// ListEventsByProposal returns the full audit trail for one proposal, oldest first.
func (r Repo) ListEventsByProposal(ctx context.Context, proposalID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,proposal_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE proposal_id=? ORDER BY id ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
