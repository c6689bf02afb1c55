package ontology

import (
	"context"
	"database/sql"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
)

// KnowledgeStore handles labeled text chunks and their embeddings. When an
// embedder is configured, saved entries are mirrored into the vec_knowledge
// virtual table for similarity search.
type KnowledgeStore struct {
	db       *sql.DB
	embedder Embedder
	logger   *zap.SugaredLogger
}

// NewKnowledgeStore creates a new knowledge store. embedder may be nil.
func NewKnowledgeStore(db *sql.DB, embedder Embedder, logger *zap.SugaredLogger) *KnowledgeStore {
	return &KnowledgeStore{db: db, embedder: embedder, logger: logger}
}

// SaveKnowledge creates a knowledge entry. If an embedder is configured the
// content is embedded and indexed for search; embedding failure does not
// lose the entry, it is saved without a vector.
func (s *KnowledgeStore) SaveKnowledge(ctx context.Context, groupID, thingID, label, content string) (*Knowledge, error) {
	if label == "" || content == "" {
		return nil, errors.NewInvalidRequestError("label and content are required")
	}

	k := &Knowledge{
		ID:        uuid.New().String(),
		GroupID:   groupID,
		ThingID:   thingID,
		Label:     label,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, content)
		if err != nil {
			if s.logger != nil {
				s.logger.Warnw("Failed to embed knowledge content, saving without vector",
					"group_id", groupID,
					"label", label,
					"error", err,
				)
			}
		} else {
			k.Embedding = embedding
			k.Model = s.embedder.Model()
			k.Dimensions = len(embedding)
		}
	}

	var blob []byte
	if k.Embedding != nil {
		var err error
		blob, err = sqlite_vec.SerializeFloat32(k.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, "failed to serialize embedding")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (id, group_id, thing_id, label, content, embedding, model, dimensions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.GroupID, nullIfEmpty(k.ThingID), k.Label, k.Content,
		blob, nullIfEmpty(k.Model), k.Dimensions, k.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save knowledge")
	}

	if blob != nil {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO vec_knowledge (knowledge_id, group_id, embedding) VALUES (?, ?, ?)`,
			k.ID, k.GroupID, blob,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to index knowledge %s", k.ID)
		}
	}

	return k, nil
}

// GetKnowledge finds a knowledge entry by ID within a group
func (s *KnowledgeStore) GetKnowledge(ctx context.Context, groupID, id string) (*Knowledge, error) {
	k := &Knowledge{}
	var thingID, model sql.NullString
	var dims sql.NullInt64
	var blob []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, thing_id, label, content, embedding, model, dimensions, created_at
		 FROM knowledge WHERE group_id = ? AND id = ?`, groupID, id,
	).Scan(&k.ID, &k.GroupID, &thingID, &k.Label, &k.Content, &blob, &model, &dims, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("knowledge not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get knowledge")
	}

	k.ThingID = thingID.String
	k.Model = model.String
	k.Dimensions = int(dims.Int64)
	return k, nil
}

// ListKnowledge returns knowledge entries in a group, optionally filtered by thing
func (s *KnowledgeStore) ListKnowledge(ctx context.Context, groupID, thingID string) ([]*Knowledge, error) {
	query := `SELECT id, group_id, thing_id, label, content, model, dimensions, created_at
	          FROM knowledge WHERE group_id = ?`
	args := []any{groupID}
	if thingID != "" {
		query += " AND thing_id = ?"
		args = append(args, thingID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list knowledge")
	}
	defer rows.Close()

	var entries []*Knowledge
	for rows.Next() {
		k := &Knowledge{}
		var tid, model sql.NullString
		var dims sql.NullInt64
		if err := rows.Scan(&k.ID, &k.GroupID, &tid, &k.Label, &k.Content,
			&model, &dims, &k.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan knowledge")
		}
		k.ThingID = tid.String
		k.Model = model.String
		k.Dimensions = int(dims.Int64)
		entries = append(entries, k)
	}
	return entries, rows.Err()
}

// Search performs similarity search over a group's knowledge. The query text
// is embedded, matched against indexed entries by L2 distance, and filtered
// by a similarity threshold (0 disables the filter).
func (s *KnowledgeStore) Search(ctx context.Context, groupID, query string, limit int, threshold float64) ([]*KnowledgeMatch, error) {
	if s.embedder == nil {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "similarity search requires an embedder")
	}
	if query == "" {
		return nil, errors.NewInvalidRequestError("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed search query")
	}
	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize query embedding")
	}

	// Lower L2 distance means more similar
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.id, k.group_id, k.thing_id, k.label, k.content, k.model, k.dimensions, k.created_at,
		       vec_distance_L2(v.embedding, ?) AS distance
		FROM vec_knowledge v
		JOIN knowledge k ON v.knowledge_id = k.id
		WHERE v.group_id = ?
		ORDER BY distance
		LIMIT ?`,
		blob, groupID, limit,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search knowledge (limit=%d)", limit)
	}
	defer rows.Close()

	var matches []*KnowledgeMatch
	for rows.Next() {
		m := &KnowledgeMatch{}
		var tid, model sql.NullString
		var dims sql.NullInt64
		if err := rows.Scan(&m.ID, &m.GroupID, &tid, &m.Label, &m.Content,
			&model, &dims, &m.CreatedAt, &m.Distance); err != nil {
			return nil, errors.Wrap(err, "failed to scan search result")
		}
		m.ThingID = tid.String
		m.Model = model.String
		m.Dimensions = int(dims.Int64)

		// L2 distance for normalized vectors ranges 0..2; convert to a
		// similarity in 0..1 for the threshold check
		similarity := 1.0 - (m.Distance / 2.0)
		if threshold > 0 && similarity < threshold {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate search results")
	}

	if s.logger != nil {
		s.logger.Debugw("Knowledge search completed",
			"group_id", groupID,
			"results", len(matches),
			"limit", limit,
		)
	}
	return matches, nil
}

// DeleteKnowledge removes a knowledge entry and its vector index row
func (s *KnowledgeStore) DeleteKnowledge(ctx context.Context, groupID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete knowledge")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("knowledge not found")
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM vec_knowledge WHERE knowledge_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to remove knowledge from vector index")
	}
	return nil
}
