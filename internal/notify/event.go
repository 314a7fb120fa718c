// Package notify fans catalog change events out to interested listeners:
// SSE clients of this process and, through Redis or Kafka, other instances.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventUpdateProducts EventType = "updateProducts"
	EventProductAdded   EventType = "productAdded"
	EventProductUpdated EventType = "productUpdated"
	EventProductDeleted EventType = "productDeleted"
)

type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"event"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

func NewEvent(t EventType, data any) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: t,
		Data: data,
		At:   time.Now().UTC(),
	}
}

// Publisher delivers an event. Delivery is best effort: callers log errors
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
