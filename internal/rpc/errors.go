package rpc

import "errors"

// Domain errors for the rpc package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, rpc.ErrNoActiveCall) {
//	    // late or duplicate response
//	}
var (
	// ErrActionNotFound is returned when invoking an undeclared action.
	ErrActionNotFound = errors.New("rpc: action not found")

	// ErrActionExists is returned when declaring an action name twice.
	ErrActionExists = errors.New("rpc: action already registered")

	// ErrNoActiveCall is returned by Respond when the call ID is
	// unknown, already answered, or already timed out.
	ErrNoActiveCall = errors.New("rpc: no active call")

	// ErrInvalidArgument is returned when a supplied argument fails
	// the action's declared schema.
	ErrInvalidArgument = errors.New("rpc: invalid argument")

	// ErrMissingArgument is returned when a declared argument is
	// absent from the invocation.
	ErrMissingArgument = errors.New("rpc: missing argument")

	// ErrResponseNotSupported is returned when a caller requests a
	// payload from an action whose mode cannot produce one.
	ErrResponseNotSupported = errors.New("rpc: action does not support responses")

	// ErrMissingHandler is returned when registering an action with no
	// handler attached.
	ErrMissingHandler = errors.New("rpc: action missing handler")
)
