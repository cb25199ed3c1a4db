package bridge

import (
	"time"

	"github.com/tealfork/tickline-core/internal/rpc"
)

// MQTT message types for communication between Tickline Core and remote
// peers. These types define the wire shapes on the tickline/action and
// tickline/core topic trees.

// CallRequest is published by a remote peer to invoke an action.
// Topic: tickline/action/call/{action}
type CallRequest struct {
	// CallID is an optional caller-supplied correlation ID. When set,
	// the result is published on tickline/action/result/{CallID}.
	// When empty, the engine-assigned call ID is used instead and the
	// caller must subscribe with a wildcard.
	CallID string `json:"call_id,omitempty"`

	// Args contains the action arguments. They are validated and
	// coerced against the action's declared schema before dispatch.
	Args map[string]any `json:"args,omitempty"`

	// ReturnResponse asks for the handler's payload in the result.
	// Only valid for actions whose response mode permits it.
	ReturnResponse bool `json:"return_response,omitempty"`
}

// CallResult is published when an action call resolves.
// Topic: tickline/action/result/{call_id}
type CallResult struct {
	// CallID is the ID the result topic is scoped by: the caller's
	// correlation ID when one was supplied, the engine's otherwise.
	CallID string `json:"call_id"`

	// EngineCallID is the table-assigned call identifier. It differs
	// from CallID only when the caller supplied its own.
	EngineCallID string `json:"engine_call_id,omitempty"`

	// Timestamp is when the result was produced (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Success reports whether the handler completed without error.
	// Timed-out calls publish Success=false with a descriptive error.
	Success bool `json:"success"`

	// Error holds a human-readable failure description.
	Error string `json:"error,omitempty"`

	// Payload carries the handler's response data, present only when
	// the caller asked for a response and the action supports one.
	Payload map[string]any `json:"payload,omitempty"`
}

// newCallResult builds the wire shape from an rpc result.
func newCallResult(topicID, engineID string, result rpc.Result) CallResult {
	out := CallResult{
		CallID:    topicID,
		Timestamp: time.Now().UTC(),
		Success:   result.Success,
		Error:     result.Error,
		Payload:   result.Payload,
	}
	if engineID != topicID {
		out.EngineCallID = engineID
	}
	return out
}

// RunEvent announces a run lifecycle transition.
// Topics: tickline/core/run/{script}/started, .../completed
type RunEvent struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Script is the script name.
	Script string `json:"script"`

	// TriggerType records what started the run ("api", "boot",
	// "script", "mqtt").
	TriggerType string `json:"trigger_type"`

	// Status is the run status at the time of the event: "running" on
	// start, a terminal status on completion.
	Status string `json:"status"`

	// Timestamp is when the event was produced (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DurationMS is the run duration, present on completion events.
	DurationMS *int `json:"duration_ms,omitempty"`

	// Error holds the failure description for failed runs.
	Error string `json:"error,omitempty"`
}
