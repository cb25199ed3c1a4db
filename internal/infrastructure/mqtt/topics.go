package mqtt

import "fmt"

// Topic prefixes for the Tickline MQTT namespace.
//
// All topics live under the flat scheme: tickline/{category}/...
const (
	// TopicPrefixRoot is the base for all Tickline topics.
	TopicPrefixRoot = "tickline"

	// TopicPrefixCore is the base for engine lifecycle topics.
	TopicPrefixCore = "tickline/core"

	// TopicPrefixState is the base for shared state value topics.
	TopicPrefixState = "tickline/state"

	// TopicPrefixAction is the base for remote action call topics.
	TopicPrefixAction = "tickline/action"

	// TopicPrefixFilter is the base for filter pipeline output topics.
	TopicPrefixFilter = "tickline/filter"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tickline/system"
)

// Topics provides builders for Tickline MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	callTopic := topics.ActionCall("open_valve")
//	// Returns: "tickline/action/call/open_valve"
type Topics struct{}

// =============================================================================
// Engine Run Topics
// =============================================================================

// RunStarted returns the topic announcing a new run of a script.
//
// Example: tickline/core/run/morning_routine/started
func (Topics) RunStarted(script string) string {
	return fmt.Sprintf("%s/run/%s/started", TopicPrefixCore, script)
}

// RunCompleted returns the topic announcing a terminal run transition.
// Completed, failed and cancelled runs all publish here; the payload
// carries the final status.
//
// Example: tickline/core/run/morning_routine/completed
func (Topics) RunCompleted(script string) string {
	return fmt.Sprintf("%s/run/%s/completed", TopicPrefixCore, script)
}

// =============================================================================
// Action Call Topics
// =============================================================================

// ActionCall returns the topic remote peers publish to invoke an action.
//
// Example: tickline/action/call/open_valve
func (Topics) ActionCall(action string) string {
	return fmt.Sprintf("%s/call/%s", TopicPrefixAction, action)
}

// ActionResult returns the topic an action call result is published on.
// The call ID scopes the result to the originating request.
//
// Example: tickline/action/result/call-abc123
func (Topics) ActionResult(callID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefixAction, callID)
}

// =============================================================================
// State Topics
// =============================================================================

// StateValue returns the topic for a shared state key.
// Keys may contain slashes; they map directly onto topic levels.
//
// Example: tickline/state/greenhouse/temperature
func (Topics) StateValue(key string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixState, key)
}

// =============================================================================
// Filter Topics
// =============================================================================

// FilterOutput returns the default output topic for a filter pipeline.
//
// Example: tickline/filter/greenhouse_temp
func (Topics) FilterOutput(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixFilter, name)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic. The client's last will
// publishes "offline" here on unclean disconnect.
//
// Example: tickline/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: tickline/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: tickline/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllActionCalls returns a pattern matching every action call topic.
//
// Pattern: tickline/action/call/+
func (Topics) AllActionCalls() string {
	return fmt.Sprintf("%s/call/+", TopicPrefixAction)
}

// AllStateValues returns a pattern matching every state key, including
// nested ones.
//
// Pattern: tickline/state/#
func (Topics) AllStateValues() string {
	return fmt.Sprintf("%s/#", TopicPrefixState)
}

// AllRunEvents returns a pattern matching run lifecycle topics for
// every script.
//
// Pattern: tickline/core/run/+/+
func (Topics) AllRunEvents() string {
	return fmt.Sprintf("%s/run/+/+", TopicPrefixCore)
}

// AllFilterOutputs returns a pattern matching every filter output topic.
//
// Pattern: tickline/filter/+
func (Topics) AllFilterOutputs() string {
	return fmt.Sprintf("%s/+", TopicPrefixFilter)
}

// AllTopics returns a pattern matching all Tickline topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: tickline/#
func (Topics) AllTopics() string {
	return "tickline/#"
}
