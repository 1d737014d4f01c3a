// Package apierror defines the closed set of error kinds the MetaApi server
// can report and the mapping from wire error descriptors to those kinds.
package apierror

import (
	"encoding/json"
	"fmt"
)

// Kind classifies an API error.
type Kind int

const (
	// Internal is an unclassified server-side error.
	Internal Kind = iota
	// Validation means caller input was rejected; Details enumerate fields.
	Validation
	// NotFound means the referenced entity does not exist.
	NotFound
	// NotSynchronized means the account is not synchronized yet; retry after
	// waitSynchronized.
	NotSynchronized
	// Timeout is a timeout, remote or local.
	Timeout
	// NotConnected means the remote terminal is not connected to the broker.
	NotConnected
	// Trade means a trade was rejected; NumericCode and StringCode carry the
	// broker return code.
	Trade
	// Unauthorized means the auth token is invalid. The gateway tears down
	// the connection when it sees this kind.
	Unauthorized
	// ConnectionClosed is a local kind for RPCs interrupted by teardown.
	ConnectionClosed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case NotFound:
		return "NotFoundError"
	case NotSynchronized:
		return "NotSynchronizedError"
	case Timeout:
		return "TimeoutError"
	case NotConnected:
		return "NotConnectedError"
	case Trade:
		return "TradeError"
	case Unauthorized:
		return "UnauthorizedError"
	case ConnectionClosed:
		return "ConnectionClosedError"
	default:
		return "InternalError"
	}
}

// Error is a typed MetaApi error.
type Error struct {
	Kind    Kind
	Message string

	// Details enumerate rejected fields for Validation errors.
	Details json.RawMessage

	// NumericCode and StringCode carry the broker return code for Trade errors.
	NumericCode int
	StringCode  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == Trade && e.StringCode != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.StringCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error of the same kind, so callers can use
// errors.Is with kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Descriptor is the wire shape of a processingError payload.
type Descriptor struct {
	Error       string          `json:"error"`
	Message     string          `json:"message"`
	Details     json.RawMessage `json:"details,omitempty"`
	NumericCode int             `json:"numericCode,omitempty"`
	StringCode  string          `json:"stringCode,omitempty"`
}

// FromDescriptor maps a wire error descriptor to a typed error. Unknown
// descriptors map to Internal.
func FromDescriptor(d Descriptor) *Error {
	switch d.Error {
	case "ValidationError":
		return &Error{Kind: Validation, Message: d.Message, Details: d.Details}
	case "NotFoundError":
		return &Error{Kind: NotFound, Message: d.Message}
	case "NotSynchronizedError":
		return &Error{Kind: NotSynchronized, Message: d.Message}
	case "TimeoutError":
		return &Error{Kind: Timeout, Message: d.Message}
	case "NotAuthenticatedError":
		return &Error{Kind: NotConnected, Message: d.Message}
	case "TradeError":
		return &Error{Kind: Trade, Message: d.Message, NumericCode: d.NumericCode, StringCode: d.StringCode}
	case "UnauthorizedError":
		return &Error{Kind: Unauthorized, Message: d.Message}
	default:
		return &Error{Kind: Internal, Message: d.Message}
	}
}

// KindOf returns the kind of err if it is an *Error, and Internal otherwise.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return Internal
}
