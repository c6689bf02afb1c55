package ontology_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfold/sixfold/errors"
	qt "github.com/sixfold/sixfold/internal/testing"
	"github.com/sixfold/sixfold/ontology"
)

func setupGroup(t *testing.T, conn *sql.DB) *ontology.Group {
	t.Helper()
	group, err := ontology.NewGroupStore(conn).CreateGroup(context.Background(), "acme", "Acme", nil)
	require.NoError(t, err)
	return group
}

func TestCreateThing(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	thing, err := store.CreateThing(ctx, group.ID, "product", "Widget", json.RawMessage(`{"sku":"W-1"}`))
	require.NoError(t, err)
	assert.Equal(t, ontology.StatusDraft, thing.Status, "new things start in draft")

	got, err := store.GetThing(ctx, group.ID, thing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
	assert.JSONEq(t, `{"sku":"W-1"}`, string(got.Properties))
}

func TestGetThingScopedToGroup(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	groups := ontology.NewGroupStore(conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	groupA, err := groups.CreateGroup(ctx, "a", "A", nil)
	require.NoError(t, err)
	groupB, err := groups.CreateGroup(ctx, "b", "B", nil)
	require.NoError(t, err)

	thing, err := store.CreateThing(ctx, groupA.ID, "product", "Widget", nil)
	require.NoError(t, err)

	// Another tenant cannot see it
	_, err = store.GetThing(ctx, groupB.ID, thing.ID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListThingsFilter(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	_, err := store.CreateThing(ctx, group.ID, "product", "Widget", nil)
	require.NoError(t, err)
	_, err = store.CreateThing(ctx, group.ID, "product", "Gadget", nil)
	require.NoError(t, err)
	_, err = store.CreateThing(ctx, group.ID, "person", "Ada", nil)
	require.NoError(t, err)

	products, err := store.ListThings(ctx, group.ID, ontology.ThingFilter{Type: "product"})
	require.NoError(t, err)
	assert.Len(t, products, 2)

	all, err := store.ListThings(ctx, group.ID, ontology.ThingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.ListThings(ctx, group.ID, ontology.ThingFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStatusTransitions(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	thing, err := store.CreateThing(ctx, group.ID, "post", "Hello", nil)
	require.NoError(t, err)

	// Forward transitions are legal
	thing, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, ontology.StatusActive, thing.Status)

	thing, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, ontology.StatusPublished, thing.Status)

	// Backward is not
	_, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.StatusDraft)
	assert.True(t, errors.IsInvalidRequestError(err))

	// Archive is legal from anywhere
	thing, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.StatusArchived)
	require.NoError(t, err)
	assert.Equal(t, ontology.StatusArchived, thing.Status)

	// Nothing leaves archived
	_, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.StatusActive)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestStatusSkipAhead(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	thing, err := store.CreateThing(ctx, group.ID, "post", "Hello", nil)
	require.NoError(t, err)

	// draft -> published skips active but still moves forward
	thing, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, ontology.StatusPublished, thing.Status)
}

func TestTransitionUnknownStatus(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	thing, err := store.CreateThing(ctx, group.ID, "post", "Hello", nil)
	require.NoError(t, err)

	_, err = store.TransitionStatus(ctx, group.ID, thing.ID, ontology.ThingStatus("bogus"))
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestUpdateThing(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	thing, err := store.CreateThing(ctx, group.ID, "product", "Widget", nil)
	require.NoError(t, err)

	updated, err := store.UpdateThing(ctx, group.ID, thing.ID, "Widget v2", json.RawMessage(`{"sku":"W-2"}`))
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", updated.Name)
	assert.Equal(t, ontology.StatusDraft, updated.Status, "update does not touch status")
}

func TestDeleteThing(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	group := setupGroup(t, conn)
	store := ontology.NewThingStore(conn)
	ctx := context.Background()

	thing, err := store.CreateThing(ctx, group.ID, "product", "Widget", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteThing(ctx, group.ID, thing.ID))
	assert.True(t, errors.IsNotFoundError(store.DeleteThing(ctx, group.ID, thing.ID)))
}
