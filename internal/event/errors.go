package event

import "errors"

// ErrPayloadType is matched by every *PayloadTypeError.
var ErrPayloadType = errors.New("unexpected payload type")

// PayloadTypeError reports an event whose payload does not have the type a
// typed handler declared.
type PayloadTypeError struct {
	// Route is the route of the offending event.
	Route string

	// Want is the declared payload type.
	Want string

	// Got is the actual payload type.
	Got string
}

// Error implements the error interface.
func (e *PayloadTypeError) Error() string {
	return "payload type mismatch on " + e.Route + ": want " + e.Want + ", got " + e.Got
}

// Is allows errors.Is to match PayloadTypeError with ErrPayloadType.
func (e *PayloadTypeError) Is(target error) bool {
	return target == ErrPayloadType
}
