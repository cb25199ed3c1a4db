package rpc

import (
	"context"

	"github.com/google/uuid"
)

// Logger is the minimal logging interface the rpc package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ArgType is the declared type of an action argument.
type ArgType string

const (
	TypeString      ArgType = "string"
	TypeInt         ArgType = "int"
	TypeBool        ArgType = "bool"
	TypeFloat       ArgType = "float"
	TypeStringArray ArgType = "string[]"
	TypeIntArray    ArgType = "int[]"
	TypeBoolArray   ArgType = "bool[]"
	TypeFloatArray  ArgType = "float[]"
)

// valid reports whether t is a recognised argument type.
func (t ArgType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeFloat,
		TypeStringArray, TypeIntArray, TypeBoolArray, TypeFloatArray:
		return true
	}
	return false
}

// Arg declares one named action argument.
type Arg struct {
	Name     string  `json:"name"`
	Type     ArgType `json:"type"`
	Optional bool    `json:"optional,omitempty"`
}

// ResponseMode declares how an action answers its caller.
type ResponseMode string

const (
	// ResponseNone means fire-and-forget: the table acknowledges
	// dispatch and the handler never responds.
	ResponseNone ResponseMode = "none"

	// ResponseStatus means the handler reports success or failure
	// with no payload.
	ResponseStatus ResponseMode = "status"

	// ResponseOptional means a payload is produced only when the
	// caller sets return_response on the invocation.
	ResponseOptional ResponseMode = "optional"

	// ResponseOnly means every response carries a payload.
	ResponseOnly ResponseMode = "only"
)

// valid reports whether m is a recognised response mode.
func (m ResponseMode) valid() bool {
	switch m {
	case ResponseNone, ResponseStatus, ResponseOptional, ResponseOnly:
		return true
	}
	return false
}

// Handler executes one invocation. It receives the live Call and must
// eventually call Respond on it (unless the action's mode is none, in
// which case the table acknowledges on its behalf). Handlers run on
// their own goroutine and may block up to the call timeout.
type Handler func(ctx context.Context, call *Call)

// Action is a declared remote action.
type Action struct {
	Name     string       `json:"name"`
	Args     []Arg        `json:"args,omitempty"`
	Response ResponseMode `json:"supports_response"`
	Handler  Handler      `json:"-"`
}

// Result is the outcome delivered to the caller.
type Result struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Responder delivers a result to the originating connection. MQTT and
// WebSocket transports implement this; implementations must be safe
// for concurrent use.
type Responder interface {
	SendActionResponse(callID string, result Result)
}

// CallState tracks where a pending call is in its lifecycle.
type CallState int

const (
	// StateIdle is the zero state before the call is registered.
	StateIdle CallState = iota

	// StateAwaitingResponse means the handler has been dispatched and
	// the table is holding the caller's channel open.
	StateAwaitingResponse

	// StateResponded means a result was delivered in time.
	StateResponded

	// StateTimedOut means the deadline sweep expired the call.
	StateTimedOut
)

// String returns the lowercase state name for logging.
func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateResponded:
		return "responded"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// newCallID creates a new UUID for a call.
func newCallID() string {
	return uuid.New().String()
}
