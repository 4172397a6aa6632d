// Package event defines the record that lives in every ring buffer slot and
// the handler capability that consumes it.
//
// An Event carries three routing fields and an opaque payload. The route of
// an event is always
//
//	"/" + Name + "/" + Tag + "/" + Key
//
// and is what route patterns are matched against.
//
// Slots are reused. Producers fill them through a Translator:
//
//	rb.PublishEvent(ctx, event.Translate("order", "create", "42", order))
//
// and handlers receive a pointer that is only valid during Handle. Handlers
// that need to keep an event call Clone.
//
// Typed handlers declare the payload type they accept:
//
//	h := event.Typed(func(ctx context.Context, evt *event.Event, o Order) error {
//		return ship(ctx, o)
//	})
package event
