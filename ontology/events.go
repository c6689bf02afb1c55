package ontology

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sixfold/sixfold/errors"
)

// EventStore handles the append-only audit log. There is deliberately no
// update or delete here.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates a new event store
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// EventFilter narrows ListEvents. Zero values mean no filter.
type EventFilter struct {
	Actor        string
	Verb         string
	SubjectThing string
	Limit        int
	Offset       int
}

// Append records an event. Events are immutable once written.
func (s *EventStore) Append(ctx context.Context, groupID, actor, verb, subjectThing string, payload json.RawMessage) (*Event, error) {
	if actor == "" || verb == "" {
		return nil, errors.NewInvalidRequestError("actor and verb are required")
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	event := &Event{
		ID:           uuid.New().String(),
		GroupID:      groupID,
		Actor:        actor,
		Verb:         verb,
		SubjectThing: subjectThing,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, group_id, actor, verb, subject_thing, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.GroupID, event.Actor, event.Verb,
		nullIfEmpty(event.SubjectThing), string(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to append event")
	}
	return event, nil
}

// ListEvents returns events in a group matching the filter, newest first
func (s *EventStore) ListEvents(ctx context.Context, groupID string, filter EventFilter) ([]*Event, error) {
	query := `SELECT id, group_id, actor, verb, subject_thing, payload, created_at
	          FROM events WHERE group_id = ?`
	args := []any{groupID}

	if filter.Actor != "" {
		query += " AND actor = ?"
		args = append(args, filter.Actor)
	}
	if filter.Verb != "" {
		query += " AND verb = ?"
		args = append(args, filter.Verb)
	}
	if filter.SubjectThing != "" {
		query += " AND subject_thing = ?"
		args = append(args, filter.SubjectThing)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var subject sql.NullString
		var payload string
		if err := rows.Scan(&event.ID, &event.GroupID, &event.Actor, &event.Verb,
			&subject, &payload, &event.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		event.SubjectThing = subject.String
		event.Payload = json.RawMessage(payload)
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
