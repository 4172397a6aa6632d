package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RouteSeparator joins the routing fields of an event into its route.
const RouteSeparator = "/"

// Event is one slot of the ring buffer. Slots are allocated once by Factory
// and then overwritten in place by translators on every lap, so handlers must
// not retain an *Event past the call that received it. Use Clone for a
// snapshot.
type Event struct {
	// ID uniquely identifies one publication of the event.
	ID string

	// Name is the event name, the first route segment.
	Name string

	// Tag is the event tag, the second route segment.
	Tag string

	// Key is the event key, the third route segment.
	Key string

	// Timestamp is when the event was published.
	Timestamp time.Time

	// Payload is the opaque event body.
	Payload any
}

// Factory allocates an empty slot. It is passed to the ring buffer arena.
func Factory() Event {
	return Event{}
}

// New creates a standalone event with a fresh ID and timestamp.
func New(name, tag, key string, payload any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Tag:       tag,
		Key:       key,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Route returns "/" + Name + "/" + Tag + "/" + Key. Empty fields produce
// empty segments, so an event with no tag routes as "/name//key".
func (e *Event) Route() string {
	return RouteSeparator + e.Name + RouteSeparator + e.Tag + RouteSeparator + e.Key
}

// Reset clears every field so the payload can be collected.
func (e *Event) Reset() {
	*e = Event{}
}

// CopyFrom overwrites e with the fields of src.
func (e *Event) CopyFrom(src *Event) {
	*e = *src
}

// Clone returns a copy of e that stays valid after the slot is reused.
// The payload itself is shared, not deep-copied.
func (e *Event) Clone() *Event {
	c := *e
	return &c
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	return fmt.Sprintf("Event{id=%s route=%s ts=%s}", e.ID, e.Route(), e.Timestamp.Format(time.RFC3339Nano))
}
