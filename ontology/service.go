package ontology

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
)

// Service composes the per-type stores and records an audit event for every
// mutation. Handlers talk to the service, not to stores directly.
type Service struct {
	Groups      *GroupStore
	Things      *ThingStore
	Connections *ConnectionStore
	Events      *EventStore
	Knowledge   *KnowledgeStore

	logger *zap.SugaredLogger
}

// NewService wires the ontology stores over a single database handle.
// embedder may be nil to disable similarity search.
func NewService(db *sql.DB, embedder Embedder, logger *zap.SugaredLogger) *Service {
	return &Service{
		Groups:      NewGroupStore(db),
		Things:      NewThingStore(db),
		Connections: NewConnectionStore(db),
		Events:      NewEventStore(db),
		Knowledge:   NewKnowledgeStore(db, embedder, logger),
		logger:      logger,
	}
}

// record appends an audit event for a mutation. Audit failures are logged,
// not propagated; the mutation already happened.
func (s *Service) record(ctx context.Context, groupID, actor, verb, subject string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	if _, err := s.Events.Append(ctx, groupID, actor, verb, subject, raw); err != nil {
		if s.logger != nil {
			s.logger.Errorw("Failed to record audit event",
				"group_id", groupID,
				"verb", verb,
				"error", err,
			)
		}
	}
}

// CreateThing creates a thing and records a thing.created event
func (s *Service) CreateThing(ctx context.Context, groupID, actor, thingType, name string, properties json.RawMessage) (*Thing, error) {
	thing, err := s.Things.CreateThing(ctx, groupID, thingType, name, properties)
	if err != nil {
		return nil, err
	}
	s.record(ctx, groupID, actor, "thing.created", thing.ID, map[string]string{
		"type": thing.Type,
		"name": thing.Name,
	})
	return thing, nil
}

// UpdateThing updates a thing and records a thing.updated event
func (s *Service) UpdateThing(ctx context.Context, groupID, actor, id, name string, properties json.RawMessage) (*Thing, error) {
	thing, err := s.Things.UpdateThing(ctx, groupID, id, name, properties)
	if err != nil {
		return nil, err
	}
	s.record(ctx, groupID, actor, "thing.updated", thing.ID, map[string]string{"name": thing.Name})
	return thing, nil
}

// TransitionThing moves a thing's lifecycle status and records the transition
func (s *Service) TransitionThing(ctx context.Context, groupID, actor, id string, to ThingStatus) (*Thing, error) {
	before, err := s.Things.GetThing(ctx, groupID, id)
	if err != nil {
		return nil, err
	}
	thing, err := s.Things.TransitionStatus(ctx, groupID, id, to)
	if err != nil {
		return nil, err
	}
	s.record(ctx, groupID, actor, "thing.status_changed", thing.ID, map[string]string{
		"from": string(before.Status),
		"to":   string(to),
	})
	return thing, nil
}

// DeleteThing deletes a thing and records a thing.deleted event
func (s *Service) DeleteThing(ctx context.Context, groupID, actor, id string) error {
	if err := s.Things.DeleteThing(ctx, groupID, id); err != nil {
		return err
	}
	s.record(ctx, groupID, actor, "thing.deleted", id, nil)
	return nil
}

// CreatePerson creates a thing of type person. The people surface is a
// typed view over things, not a separate table.
func (s *Service) CreatePerson(ctx context.Context, groupID, actor, name string, properties json.RawMessage) (*Thing, error) {
	return s.CreateThing(ctx, groupID, actor, TypePerson, name, properties)
}

// GetPerson fetches a thing and verifies it is a person
func (s *Service) GetPerson(ctx context.Context, groupID, id string) (*Thing, error) {
	thing, err := s.Things.GetThing(ctx, groupID, id)
	if err != nil {
		return nil, err
	}
	if thing.Type != TypePerson {
		return nil, errors.NewNotFoundError("person not found")
	}
	return thing, nil
}

// ListPeople lists things of type person in a group
func (s *Service) ListPeople(ctx context.Context, groupID string, limit, offset int) ([]*Thing, error) {
	return s.Things.ListThings(ctx, groupID, ThingFilter{Type: TypePerson, Limit: limit, Offset: offset})
}

// CreateConnection creates an edge and records a connection.created event
func (s *Service) CreateConnection(ctx context.Context, groupID, actor, fromThing, toThing, connType string, metadata json.RawMessage) (*Connection, error) {
	conn, err := s.Connections.CreateConnection(ctx, groupID, fromThing, toThing, connType, metadata)
	if err != nil {
		return nil, err
	}
	s.record(ctx, groupID, actor, "connection.created", fromThing, map[string]string{
		"to":   toThing,
		"type": connType,
	})
	return conn, nil
}

// DeleteConnection deletes an edge and records a connection.deleted event
func (s *Service) DeleteConnection(ctx context.Context, groupID, actor, id string) error {
	if err := s.Connections.DeleteConnection(ctx, groupID, id); err != nil {
		return err
	}
	s.record(ctx, groupID, actor, "connection.deleted", "", map[string]string{"connection_id": id})
	return nil
}

// SaveKnowledge saves a knowledge entry and records a knowledge.saved event
func (s *Service) SaveKnowledge(ctx context.Context, groupID, actor, thingID, label, content string) (*Knowledge, error) {
	k, err := s.Knowledge.SaveKnowledge(ctx, groupID, thingID, label, content)
	if err != nil {
		return nil, err
	}
	s.record(ctx, groupID, actor, "knowledge.saved", thingID, map[string]string{"label": label})
	return k, nil
}

// DeleteKnowledge deletes a knowledge entry and records the deletion
func (s *Service) DeleteKnowledge(ctx context.Context, groupID, actor, id string) error {
	if err := s.Knowledge.DeleteKnowledge(ctx, groupID, id); err != nil {
		return err
	}
	s.record(ctx, groupID, actor, "knowledge.deleted", "", map[string]string{"knowledge_id": id})
	return nil
}
