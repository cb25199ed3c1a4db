package engine

import (
	"time"

	"github.com/google/uuid"
)

// Logger is the minimal logging interface the engine needs. It is
// satisfied by *logging.Logger and by test doubles.
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

// Mode is a script's concurrency policy: what happens when the script
// is invoked while a previous invocation is still running.
type Mode string

const (
	// ModeSingle refuses re-entry: the new invocation is dropped with
	// a warning while a run is in flight.
	ModeSingle Mode = "single"

	// ModeRestart cancels the in-flight run and starts fresh with the
	// new arguments.
	ModeRestart Mode = "restart"

	// ModeQueued appends the invocation (with its captured arguments)
	// to a FIFO queue; entries start in arrival order, one at a time.
	ModeQueued Mode = "queued"

	// ModeParallel starts a concurrent run unconditionally.
	ModeParallel Mode = "parallel"
)

// valid reports whether m is a recognised mode.
func (m Mode) valid() bool {
	switch m {
	case ModeSingle, ModeRestart, ModeQueued, ModeParallel:
		return true
	}
	return false
}

// Script is a named, registered action graph plus its concurrency
// policy. The Root descriptor is shared by all runs and never mutated.
type Script struct {
	Name string
	Mode Mode
	Root *Descriptor

	// MaxQueue bounds the queued-mode backlog; zero means unbounded.
	MaxQueue int
}

// RunRecord is the persisted history row for one run. Pointer fields
// follow the repository's nullable-column convention.
type RunRecord struct {
	ID          string     `json:"id"`
	Script      string     `json:"script"`
	TriggerType string     `json:"trigger_type"` // api, mqtt, boot, script, action
	Args        string     `json:"args,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  *int       `json:"duration_ms,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// RunSnapshot is a read-only view of a live run, safe to hand across
// goroutines (everything is copied).
type RunSnapshot struct {
	ID        string         `json:"id"`
	Script    string         `json:"script"`
	Trigger   string         `json:"trigger_type"`
	State     string         `json:"state"`
	Args      map[string]any `json:"args,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

// GenerateID creates a new UUID for a run.
func GenerateID() string {
	return uuid.New().String()
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v // Primitives are immutable
	}
}
