package eventbus

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Event is a value published on the bus. EventType reports the concrete
// type the event is dispatched as; listeners on that type and on every
// ancestor receive it.
type Event interface {
	EventType() *EventType
}

// Identified is implemented by events that carry an ID. The ID appears in
// failure logs and the failure journal.
type Identified interface {
	EventID() string
}

var eventInterface = reflect.TypeFor[Event]()

// Base is an embeddable event header.
//
// Example:
//
//	type PluginLoaded struct {
//	    eventbus.Base
//	    Plugin string
//	}
//
//	bus.FireEvent(ctx, &PluginLoaded{Base: eventbus.NewBase(pluginLoaded), Plugin: "auth"})
type Base struct {
	Type *EventType
	ID   string
	At   time.Time
}

// NewBase returns a header for t with a fresh ID and the current time.
func NewBase(t *EventType) Base {
	return Base{
		Type: t,
		ID:   uuid.NewString(),
		At:   time.Now(),
	}
}

// EventType implements Event.
func (b Base) EventType() *EventType {
	return b.Type
}

// EventID implements Identified.
func (b Base) EventID() string {
	return b.ID
}

func eventID(evt Event) string {
	if id, ok := evt.(Identified); ok {
		return id.EventID()
	}
	return ""
}
