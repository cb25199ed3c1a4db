package engine

import "errors"

// Domain errors for the engine package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, engine.ErrScriptNotFound) {
//	    // handle unknown script
//	}
var (
	// ErrScriptNotFound is returned when a script name is not registered.
	ErrScriptNotFound = errors.New("engine: script not found")

	// ErrScriptExists is returned when registering a script name twice.
	ErrScriptExists = errors.New("engine: script already registered")

	// ErrScriptRunning is returned by single-mode scripts that refuse a
	// new invocation while one is in flight.
	ErrScriptRunning = errors.New("engine: script already running")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("engine: run not found")

	// ErrNotStarted is returned when firing before the loop is running.
	ErrNotStarted = errors.New("engine: loop not started")

	// ErrInvalidMode is returned for an unrecognised concurrency mode.
	ErrInvalidMode = errors.New("engine: invalid script mode")

	// ErrNilDescriptor is returned when validating a nil graph node.
	ErrNilDescriptor = errors.New("engine: nil descriptor")

	// ErrMissingCondition is returned when an If/While/WaitUntil node
	// has no condition attached.
	ErrMissingCondition = errors.New("engine: descriptor missing condition")

	// ErrMissingCount is returned when a Repeat node has no count.
	ErrMissingCount = errors.New("engine: descriptor missing count")

	// ErrMissingDuration is returned when a Delay node has no duration.
	ErrMissingDuration = errors.New("engine: descriptor missing duration")

	// ErrMissingScript is returned when a script node names no target.
	ErrMissingScript = errors.New("engine: descriptor missing script name")

	// ErrMissingHandler is returned when a call node has no handler.
	ErrMissingHandler = errors.New("engine: descriptor missing handler")

	// ErrEmptyBody is returned when a While node has no body; an empty
	// body with a true condition would busy-spin the loop.
	ErrEmptyBody = errors.New("engine: while descriptor has empty body")
)
