package ontology_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfold/sixfold/errors"
	qt "github.com/sixfold/sixfold/internal/testing"
	"github.com/sixfold/sixfold/ontology"
)

// stubEmbedder maps known texts to fixed unit vectors so distances are
// deterministic. Unknown texts land on a far-away axis.
type stubEmbedder struct {
	axes map[string]int
}

func newStubEmbedder(texts ...string) *stubEmbedder {
	axes := make(map[string]int, len(texts))
	for i, text := range texts {
		axes[text] = i
	}
	return &stubEmbedder{axes: axes}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 1536)
	axis, ok := e.axes[text]
	if !ok {
		axis = 1535
	}
	vec[axis] = 1
	return vec, nil
}

func (e *stubEmbedder) Model() string   { return "stub" }
func (e *stubEmbedder) Dimensions() int { return 1536 }

func TestSaveAndGetKnowledge(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewKnowledgeStore(conn, nil, nil)
	ctx := context.Background()

	k, err := store.SaveKnowledge(ctx, group.ID, "", "note", "SQLite is a database.")
	require.NoError(t, err)
	assert.Empty(t, k.Model, "no embedder, no embedding")

	got, err := store.GetKnowledge(ctx, group.ID, k.ID)
	require.NoError(t, err)
	assert.Equal(t, "note", got.Label)
	assert.Equal(t, "SQLite is a database.", got.Content)
}

func TestSaveKnowledgeValidation(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewKnowledgeStore(conn, nil, nil)

	_, err := store.SaveKnowledge(context.Background(), group.ID, "", "", "content")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestKnowledgeSearch(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	embedder := newStubEmbedder("go is fast", "cats are soft")
	store := ontology.NewKnowledgeStore(conn, embedder, nil)
	ctx := context.Background()

	_, err := store.SaveKnowledge(ctx, group.ID, "", "langs", "go is fast")
	require.NoError(t, err)
	_, err = store.SaveKnowledge(ctx, group.ID, "", "pets", "cats are soft")
	require.NoError(t, err)

	matches, err := store.Search(ctx, group.ID, "go is fast", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "langs", matches[0].Label, "exact match ranks first")
	assert.Zero(t, matches[0].Distance)
}

func TestKnowledgeSearchThreshold(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	embedder := newStubEmbedder("go is fast")
	store := ontology.NewKnowledgeStore(conn, embedder, nil)
	ctx := context.Background()

	_, err := store.SaveKnowledge(ctx, group.ID, "", "langs", "go is fast")
	require.NoError(t, err)

	// Orthogonal query, high threshold filters everything out
	matches, err := store.Search(ctx, group.ID, "something unrelated", 10, 0.9)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestKnowledgeSearchScopedToGroup(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	groups := ontology.NewGroupStore(conn)
	embedder := newStubEmbedder("shared fact")
	store := ontology.NewKnowledgeStore(conn, embedder, nil)
	ctx := context.Background()

	groupA, err := groups.CreateGroup(ctx, "a", "A", nil)
	require.NoError(t, err)
	groupB, err := groups.CreateGroup(ctx, "b", "B", nil)
	require.NoError(t, err)

	_, err = store.SaveKnowledge(ctx, groupA.ID, "", "fact", "shared fact")
	require.NoError(t, err)

	matches, err := store.Search(ctx, groupB.ID, "shared fact", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, matches, "other tenant's knowledge is invisible")
}

func TestKnowledgeSearchWithoutEmbedder(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewKnowledgeStore(conn, nil, nil)

	_, err := store.Search(context.Background(), group.ID, "query", 10, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
}

func TestDeleteKnowledge(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	embedder := newStubEmbedder("fact")
	store := ontology.NewKnowledgeStore(conn, embedder, nil)
	ctx := context.Background()

	k, err := store.SaveKnowledge(ctx, group.ID, "", "fact", "fact")
	require.NoError(t, err)

	require.NoError(t, store.DeleteKnowledge(ctx, group.ID, k.ID))

	matches, err := store.Search(ctx, group.ID, "fact", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, matches, "vector index row removed with the entry")
}
