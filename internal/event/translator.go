package event

import (
	"time"

	"github.com/google/uuid"
)

// Translator populates a claimed slot before it is published.
type Translator func(slot *Event, sequence int64)

// Translate returns a translator that writes the routing fields and payload
// into the slot and stamps it with a new ID and the current time.
func Translate(name, tag, key string, payload any) Translator {
	return func(slot *Event, _ int64) {
		slot.ID = uuid.NewString()
		slot.Name = name
		slot.Tag = tag
		slot.Key = key
		slot.Timestamp = time.Now()
		slot.Payload = payload
	}
}

// TranslateEvent returns a translator that copies src into the slot. A
// missing ID or timestamp is filled in; src itself is not modified.
func TranslateEvent(src *Event) Translator {
	return func(slot *Event, _ int64) {
		slot.CopyFrom(src)
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.Timestamp.IsZero() {
			slot.Timestamp = time.Now()
		}
	}
}
