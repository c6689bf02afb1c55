package ontology

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/sixfold/sixfold/errors"
)

// GroupStore handles persistence of groups
type GroupStore struct {
	db *sql.DB
}

// NewGroupStore creates a new group store
func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

// CreateGroup creates a tenant. Slugs are unique; a duplicate returns a
// conflict error.
func (s *GroupStore) CreateGroup(ctx context.Context, slug, name string, settings json.RawMessage) (*Group, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" || name == "" {
		return nil, errors.NewInvalidRequestError("slug and name are required")
	}
	if settings == nil {
		settings = json.RawMessage("{}")
	}

	group := &Group{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      name,
		Settings:  settings,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, slug, name, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		group.ID, group.Slug, group.Name, string(group.Settings), group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.NewConflictError("group slug already exists: %s", slug)
		}
		return nil, errors.Wrap(err, "failed to create group")
	}

	return group, nil
}

// GetGroup finds a group by ID
func (s *GroupStore) GetGroup(ctx context.Context, id string) (*Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, settings, created_at, updated_at FROM groups WHERE id = ?`, id))
}

// GetGroupBySlug finds a group by slug
func (s *GroupStore) GetGroupBySlug(ctx context.Context, slug string) (*Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, settings, created_at, updated_at FROM groups WHERE slug = ?`,
		strings.ToLower(strings.TrimSpace(slug))))
}

func (s *GroupStore) scanGroup(row *sql.Row) (*Group, error) {
	group := &Group{}
	var settings string
	err := row.Scan(&group.ID, &group.Slug, &group.Name, &settings, &group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("group not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get group")
	}
	group.Settings = json.RawMessage(settings)
	return group, nil
}

// ListGroups returns all groups ordered by creation time
func (s *GroupStore) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, name, settings, created_at, updated_at FROM groups ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list groups")
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group := &Group{}
		var settings string
		if err := rows.Scan(&group.ID, &group.Slug, &group.Name, &settings, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan group")
		}
		group.Settings = json.RawMessage(settings)
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// UpdateGroup updates a group's name and settings
func (s *GroupStore) UpdateGroup(ctx context.Context, id, name string, settings json.RawMessage) (*Group, error) {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		group.Name = name
	}
	if settings != nil {
		group.Settings = settings
	}
	group.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE groups SET name = ?, settings = ?, updated_at = ? WHERE id = ?`,
		group.Name, string(group.Settings), group.UpdatedAt, group.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update group")
	}
	return group, nil
}

// DeleteGroup removes a group and, via cascade, everything it contains
func (s *GroupStore) DeleteGroup(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete group")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("group not found")
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite unique constraint error
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
