// Package errors defines error types and utilities for ecsbridge
package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the bridge. Every failure returned to a caller matches exactly one of them.
var (
	// ErrValidation is returned for unsupported structures, malformed field paths and bad configuration
	ErrValidation = errors.New("validation error")

	// ErrQuery is returned when a filter expression cannot be parsed
	ErrQuery = errors.New("query error")

	// ErrRemoteAPI is returned when ECS (or EC2) answers with a typed error envelope
	ErrRemoteAPI = errors.New("remote api error")

	// ErrAuthorization is returned when the remote API answers 401 or 403
	ErrAuthorization = errors.New("authorization error")

	// ErrTransport is returned for network and serialization failures
	ErrTransport = errors.New("transport error")

	// ErrAmbiguousResult is returned when a single-record retrieval matched more than one record
	ErrAmbiguousResult = errors.New("ambiguous result")
)

// BridgeError is the single user-facing error type of the bridge
type BridgeError struct {
	Op        string // Operation that failed (search, retrieve, DescribeTasks, ...)
	Structure string // Structure being queried, if known
	Kind      error  // One of the Err* kinds above
	Message   string // Human readable message
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}

	prefix := "ecsbridge"
	if e.Op != "" {
		prefix = fmt.Sprintf("ecsbridge: %s", e.Op)
	}

	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind. The underlying error is reached through Unwrap.
func (e *BridgeError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// RemoteAPIError carries the type/message pair of a remote error envelope
type RemoteAPIError struct {
	Type       string
	Message    string
	StatusCode int
}

func (e *RemoteAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error type %s", e.Type)
	}
	return fmt.Sprintf("remote error type %s: %s", e.Type, e.Message)
}

// Is makes RemoteAPIError match ErrRemoteAPI
func (e *RemoteAPIError) Is(target error) bool {
	return target == ErrRemoteAPI
}

// New creates a BridgeError of the given kind
func New(kind error, op, message string) *BridgeError {
	return &BridgeError{Op: op, Kind: kind, Message: message}
}

// Wrap creates a BridgeError of the given kind around err
func Wrap(kind error, op, message string, err error) *BridgeError {
	return &BridgeError{Op: op, Kind: kind, Message: message, Err: err}
}

// Validation creates a validation error
func Validation(op string, format string, args ...any) *BridgeError {
	return New(ErrValidation, op, fmt.Sprintf(format, args...))
}

// Query creates a query error
func Query(op string, format string, args ...any) *BridgeError {
	return New(ErrQuery, op, fmt.Sprintf(format, args...))
}

// Remote wraps a remote error envelope
func Remote(op string, remote *RemoteAPIError) *BridgeError {
	return Wrap(ErrRemoteAPI, op, "error retrieving records", remote)
}

// WithStructure sets the structure on a BridgeError found in err's chain and returns err
func WithStructure(err error, structure string) error {
	var be *BridgeError
	if errors.As(err, &be) && be.Structure == "" {
		be.Structure = structure
	}
	return err
}

// AsRemoteAPIError extracts the remote envelope from err, if any
func AsRemoteAPIError(err error) (*RemoteAPIError, bool) {
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsQuery checks if an error is a query error
func IsQuery(err error) bool {
	return errors.Is(err, ErrQuery)
}

// IsRemoteAPI checks if an error came from a remote error envelope
func IsRemoteAPI(err error) bool {
	return errors.Is(err, ErrRemoteAPI)
}

// IsAuthorization checks if an error is an authorization failure
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

// IsTransport checks if an error is a transport failure
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsAmbiguousResult checks if a retrieval matched more than one record
func IsAmbiguousResult(err error) bool {
	return errors.Is(err, ErrAmbiguousResult)
}
