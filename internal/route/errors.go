package route

import (
	"errors"
	"strconv"
)

// Sentinel errors for the route package.
var (
	// ErrInvalidRoute is matched by every *InvalidRouteError.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrInvalidPattern is returned when a pattern is blank or relative.
	ErrInvalidPattern = errors.New("invalid route pattern")

	// ErrEmptyHandlerID is returned when a pattern is mapped to an empty id.
	ErrEmptyHandlerID = errors.New("handler id cannot be empty")

	// ErrTableFrozen is returned by Add after Freeze.
	ErrTableFrozen = errors.New("route table is frozen")

	// ErrMalformedDefinition is matched by every *DefinitionError.
	ErrMalformedDefinition = errors.New("malformed route definition")
)

// InvalidRouteError reports a route that cannot be resolved at all, as
// opposed to one that simply matches no pattern.
type InvalidRouteError struct {
	// Route is the offending route.
	Route string

	// Reason says what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *InvalidRouteError) Error() string {
	return "invalid route " + strconv.Quote(e.Route) + ": " + e.Reason
}

// Is allows errors.Is to match InvalidRouteError with ErrInvalidRoute.
func (e *InvalidRouteError) Is(target error) bool {
	return target == ErrInvalidRoute
}

// DefinitionError reports a line of definition text that could not be parsed.
type DefinitionError struct {
	// Line is the 1-based line number.
	Line int

	// Text is the raw line.
	Text string

	// Reason says what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	return "route definition line " + strconv.Itoa(e.Line) + " " + strconv.Quote(e.Text) + ": " + e.Reason
}

// Is allows errors.Is to match DefinitionError with ErrMalformedDefinition.
func (e *DefinitionError) Is(target error) bool {
	return target == ErrMalformedDefinition
}
