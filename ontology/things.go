package ontology

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sixfold/sixfold/errors"
)

// ThingStore handles persistence of things
type ThingStore struct {
	db *sql.DB
}

// NewThingStore creates a new thing store
func NewThingStore(db *sql.DB) *ThingStore {
	return &ThingStore{db: db}
}

// ThingFilter narrows ListThings. Zero values mean no filter.
type ThingFilter struct {
	Type   string
	Status ThingStatus
	Limit  int
	Offset int
}

// CreateThing creates a thing in the given group. New things start in draft.
func (s *ThingStore) CreateThing(ctx context.Context, groupID, thingType, name string, properties json.RawMessage) (*Thing, error) {
	if thingType == "" || name == "" {
		return nil, errors.NewInvalidRequestError("type and name are required")
	}
	if properties == nil {
		properties = json.RawMessage("{}")
	}

	thing := &Thing{
		ID:         uuid.New().String(),
		GroupID:    groupID,
		Type:       thingType,
		Name:       name,
		Properties: properties,
		Status:     StatusDraft,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO things (id, group_id, type, name, properties, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		thing.ID, thing.GroupID, thing.Type, thing.Name, string(thing.Properties),
		string(thing.Status), thing.CreatedAt, thing.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create thing")
	}
	return thing, nil
}

// GetThing finds a thing by ID within a group
func (s *ThingStore) GetThing(ctx context.Context, groupID, id string) (*Thing, error) {
	return scanThing(s.db.QueryRowContext(ctx,
		`SELECT id, group_id, type, name, properties, status, created_at, updated_at
		 FROM things WHERE group_id = ? AND id = ?`, groupID, id))
}

func scanThing(row *sql.Row) (*Thing, error) {
	thing := &Thing{}
	var properties, status string
	err := row.Scan(&thing.ID, &thing.GroupID, &thing.Type, &thing.Name,
		&properties, &status, &thing.CreatedAt, &thing.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("thing not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get thing")
	}
	thing.Properties = json.RawMessage(properties)
	thing.Status = ThingStatus(status)
	return thing, nil
}

// ListThings returns things in a group matching the filter, newest first
func (s *ThingStore) ListThings(ctx context.Context, groupID string, filter ThingFilter) ([]*Thing, error) {
	query := `SELECT id, group_id, type, name, properties, status, created_at, updated_at
	          FROM things WHERE group_id = ?`
	args := []any{groupID}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list things")
	}
	defer rows.Close()

	var things []*Thing
	for rows.Next() {
		thing := &Thing{}
		var properties, status string
		if err := rows.Scan(&thing.ID, &thing.GroupID, &thing.Type, &thing.Name,
			&properties, &status, &thing.CreatedAt, &thing.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan thing")
		}
		thing.Properties = json.RawMessage(properties)
		thing.Status = ThingStatus(status)
		things = append(things, thing)
	}
	return things, rows.Err()
}

// UpdateThing updates a thing's name and properties. Status changes go
// through TransitionStatus.
func (s *ThingStore) UpdateThing(ctx context.Context, groupID, id, name string, properties json.RawMessage) (*Thing, error) {
	thing, err := s.GetThing(ctx, groupID, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		thing.Name = name
	}
	if properties != nil {
		thing.Properties = properties
	}
	thing.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE things SET name = ?, properties = ?, updated_at = ? WHERE group_id = ? AND id = ?`,
		thing.Name, string(thing.Properties), thing.UpdatedAt, groupID, id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update thing")
	}
	return thing, nil
}

// TransitionStatus moves a thing to a new lifecycle status. The lifecycle
// only moves forward; archiving is legal from any state. An illegal
// transition is an invalid request.
func (s *ThingStore) TransitionStatus(ctx context.Context, groupID, id string, to ThingStatus) (*Thing, error) {
	if _, ok := statusRank[to]; !ok && to != StatusArchived {
		return nil, errors.NewInvalidRequestError("unknown status: %s", to)
	}

	thing, err := s.GetThing(ctx, groupID, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(thing.Status, to) {
		return nil, errors.NewInvalidRequestError("illegal status transition: %s -> %s", thing.Status, to)
	}

	thing.Status = to
	thing.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE things SET status = ?, updated_at = ? WHERE group_id = ? AND id = ?`,
		string(to), thing.UpdatedAt, groupID, id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to transition thing status")
	}
	return thing, nil
}

// DeleteThing removes a thing and, via cascade, its connections
func (s *ThingStore) DeleteThing(ctx context.Context, groupID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM things WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete thing")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("thing not found")
	}
	return nil
}
