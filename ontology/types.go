// Package ontology implements the six-dimension data model: groups contain
// people, things, connections, events, and knowledge. Every row is scoped to
// a group and every query filters on group_id.
package ontology

import (
	"encoding/json"
	"time"
)

// Group is the tenant container. Slugs are unique across the instance.
type Group struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ThingStatus is the lifecycle state of a thing. Transitions only move
// forward (draft, active, published) except archiving, which is legal from
// any state.
type ThingStatus string

const (
	StatusDraft     ThingStatus = "draft"
	StatusActive    ThingStatus = "active"
	StatusPublished ThingStatus = "published"
	StatusArchived  ThingStatus = "archived"
)

// statusRank orders the forward lifecycle. Archived sits outside the
// ordering and is reachable from anywhere.
var statusRank = map[ThingStatus]int{
	StatusDraft:     0,
	StatusActive:    1,
	StatusPublished: 2,
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to ThingStatus) bool {
	if from == to {
		return false
	}
	if to == StatusArchived {
		return from != StatusArchived
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// TypePerson is the thing type backing the /people facade.
const TypePerson = "person"

// Thing is the universal noun: people, products, posts, orders, anything a
// group tracks. Type is the discriminator.
type Thing struct {
	ID         string          `json:"id"`
	GroupID    string          `json:"group_id"`
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Properties json.RawMessage `json:"properties"`
	Status     ThingStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Connection is a typed directed edge between two things in the same group.
type Connection struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"group_id"`
	FromThing string          `json:"from_thing"`
	ToThing   string          `json:"to_thing"`
	Type      string          `json:"type"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Event is an immutable audit record. The store exposes append and list
// only; there is no update or delete.
type Event struct {
	ID           string          `json:"id"`
	GroupID      string          `json:"group_id"`
	Actor        string          `json:"actor"`
	Verb         string          `json:"verb"`
	SubjectThing string          `json:"subject_thing,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Knowledge is a labeled text chunk, optionally anchored to a thing, with an
// optional embedding for similarity search.
type Knowledge struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	ThingID    string    `json:"thing_id,omitempty"`
	Label      string    `json:"label"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	Model      string    `json:"model,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// KnowledgeMatch is a similarity search hit with its L2 distance.
type KnowledgeMatch struct {
	Knowledge
	Distance float64 `json:"distance"`
}
