package ontology

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sixfold/sixfold/errors"
)

// ConnectionStore handles persistence of connections
type ConnectionStore struct {
	db *sql.DB
}

// NewConnectionStore creates a new connection store
func NewConnectionStore(db *sql.DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

// Direction selects which edges ListNeighbors follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// CreateConnection creates a directed edge between two things. Both
// endpoints must exist and belong to the given group; a cross-tenant edge
// is an invalid request.
func (s *ConnectionStore) CreateConnection(ctx context.Context, groupID, fromThing, toThing, connType string, metadata json.RawMessage) (*Connection, error) {
	if connType == "" {
		return nil, errors.NewInvalidRequestError("connection type is required")
	}
	if fromThing == toThing {
		return nil, errors.NewInvalidRequestError("connection endpoints must differ")
	}
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	for _, id := range []string{fromThing, toThing} {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM things WHERE group_id = ? AND id = ?)`,
			groupID, id,
		).Scan(&exists)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check connection endpoint")
		}
		if !exists {
			return nil, errors.NewInvalidRequestError("connection endpoint %s does not exist in group", id)
		}
	}

	conn := &Connection{
		ID:        uuid.New().String(),
		GroupID:   groupID,
		FromThing: fromThing,
		ToThing:   toThing,
		Type:      connType,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (id, group_id, from_thing, to_thing, type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.GroupID, conn.FromThing, conn.ToThing, conn.Type, string(conn.Metadata), conn.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection")
	}
	return conn, nil
}

// GetConnection finds a connection by ID within a group
func (s *ConnectionStore) GetConnection(ctx context.Context, groupID, id string) (*Connection, error) {
	conn := &Connection{}
	var metadata string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, from_thing, to_thing, type, metadata, created_at
		 FROM connections WHERE group_id = ? AND id = ?`, groupID, id,
	).Scan(&conn.ID, &conn.GroupID, &conn.FromThing, &conn.ToThing, &conn.Type, &metadata, &conn.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("connection not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get connection")
	}
	conn.Metadata = json.RawMessage(metadata)
	return conn, nil
}

// ListConnections returns all connections in a group, optionally filtered by type
func (s *ConnectionStore) ListConnections(ctx context.Context, groupID, connType string) ([]*Connection, error) {
	query := `SELECT id, group_id, from_thing, to_thing, type, metadata, created_at
	          FROM connections WHERE group_id = ?`
	args := []any{groupID}
	if connType != "" {
		query += " AND type = ?"
		args = append(args, connType)
	}
	query += " ORDER BY created_at DESC"

	return s.queryConnections(ctx, query, args...)
}

// ListNeighbors returns connections touching a thing in the given direction
func (s *ConnectionStore) ListNeighbors(ctx context.Context, groupID, thingID string, direction Direction) ([]*Connection, error) {
	query := `SELECT id, group_id, from_thing, to_thing, type, metadata, created_at
	          FROM connections WHERE group_id = ? AND `
	args := []any{groupID}

	switch direction {
	case DirectionOut:
		query += "from_thing = ?"
		args = append(args, thingID)
	case DirectionIn:
		query += "to_thing = ?"
		args = append(args, thingID)
	case DirectionBoth, "":
		query += "(from_thing = ? OR to_thing = ?)"
		args = append(args, thingID, thingID)
	default:
		return nil, errors.NewInvalidRequestError("unknown direction: %s", direction)
	}
	query += " ORDER BY created_at DESC"

	return s.queryConnections(ctx, query, args...)
}

func (s *ConnectionStore) queryConnections(ctx context.Context, query string, args ...any) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list connections")
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn := &Connection{}
		var metadata string
		if err := rows.Scan(&conn.ID, &conn.GroupID, &conn.FromThing, &conn.ToThing,
			&conn.Type, &metadata, &conn.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan connection")
		}
		conn.Metadata = json.RawMessage(metadata)
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// DeleteConnection removes a connection
func (s *ConnectionStore) DeleteConnection(ctx context.Context, groupID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM connections WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete connection")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("connection not found")
	}
	return nil
}
