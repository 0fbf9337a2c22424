// Package events defines the domain events emitted when the remote confirms
// a change, and the publisher contract used to fan them out.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ActionConfirmed = "confirmed"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
)

var ErrMalformed = errors.New("malformed event")

// Event is one confirmed change of a synced record. Type is
// "<entity>.<action>" and doubles as the AMQP routing key.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Entity    string          `json:"entity"`
	OwnerID   int64           `json:"owner_id"`
	RecordID  int64           `json:"record_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TypeOf returns the event type for entity and action.
func TypeOf(entity, action string) string {
	return entity + "." + action
}

// New builds an event for a record. payload may be nil for deletions.
func New(entity, action string, ownerID, recordID int64, payload any) (Event, error) {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      TypeOf(entity, action),
		Entity:    entity,
		OwnerID:   ownerID,
		RecordID:  recordID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", ev.Type, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Action returns the part of Type after the entity.
func (e Event) Action() string {
	_, action, _ := strings.Cut(e.Type, ".")
	return action
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses and checks an event body.
func FromJSON(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.ID == "" || ev.Type == "" || ev.Entity == "" {
		return Event{}, fmt.Errorf("%w: missing id, type or entity", ErrMalformed)
	}
	return ev, nil
}

// Publisher fans events out. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler processes one consumed event.
type Handler func(ctx context.Context, ev Event) error

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

// FailWith makes every subsequent Publish return err; nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if len(types) == 0 || contains(types, ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
