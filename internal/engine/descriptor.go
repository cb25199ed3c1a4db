package engine

import "time"

// Kind identifies the behaviour of a Descriptor node.
//
// Descriptors are a tagged union: each kind uses a subset of the
// Descriptor fields and ignores the rest. This replaces per-node
// closures with small explicit records, keeping the per-run footprint
// fixed regardless of how often a graph is re-entered.
type Kind int

const (
	// KindSequence runs its children in declaration order, each to
	// completion (including suspensions) before the next starts.
	KindSequence Kind = iota

	// KindIf evaluates Condition once on entry and runs Then or Else.
	KindIf

	// KindWhile re-evaluates Condition before every iteration of Body.
	KindWhile

	// KindRepeat runs Body Count times, counting 0..N-1.
	KindRepeat

	// KindDelay suspends the run for Duration, measured from the
	// instant the node starts executing.
	KindDelay

	// KindWaitUntil suspends until Condition reports true or Timeout
	// elapses (whichever first; zero Timeout waits forever).
	KindWaitUntil

	// KindScriptExecute invokes a named script per its concurrency
	// mode and completes immediately.
	KindScriptExecute

	// KindScriptWait suspends until the named script is no longer
	// running (completes immediately if it is not running).
	KindScriptWait

	// KindServiceCall invokes a host-provided handler synchronously.
	KindServiceCall

	// KindLambda is an inline handler; identical semantics to
	// KindServiceCall but conventionally used for glue and logging.
	KindLambda
)

// String returns the lowercase name of the kind for logging.
func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindIf:
		return "if"
	case KindWhile:
		return "while"
	case KindRepeat:
		return "repeat"
	case KindDelay:
		return "delay"
	case KindWaitUntil:
		return "wait_until"
	case KindScriptExecute:
		return "script.execute"
	case KindScriptWait:
		return "script.wait"
	case KindServiceCall:
		return "service.call"
	case KindLambda:
		return "lambda"
	default:
		return "unknown"
	}
}

// Condition is a predicate evaluated against a live run. It must be
// side-effect free: While re-evaluates it every iteration and WaitUntil
// polls it every tick.
type Condition func(r *Run) bool

// Handler is the body of a ServiceCall or Lambda node. It runs on the
// loop goroutine and must not block; a returned error terminates the
// owning run only.
type Handler func(r *Run) error

// Descriptor is one immutable node of a compiled action graph.
//
// Descriptors are built once at configuration time and shared by every
// run of the graph; the engine never mutates them. Per-run position is
// tracked separately in continuation records.
type Descriptor struct {
	Kind  Kind
	Label string // used in the engine's entry/exit log lines

	// Children is the ordered body for Sequence, While and Repeat.
	Children []*Descriptor

	// Then and Else are the branches for If. Either may be empty.
	Then []*Descriptor
	Else []*Descriptor

	// Condition drives If, While and WaitUntil.
	Condition Condition

	// Count returns the iteration bound for Repeat. Evaluated once
	// when the node starts, against the owning run's arguments.
	Count func(r *Run) int

	// Duration returns the delay for Delay nodes. Evaluated when the
	// node starts, so argument-dependent delays see the run's own
	// bindings.
	Duration func(r *Run) time.Duration

	// Timeout bounds WaitUntil. Zero means no timeout.
	Timeout time.Duration

	// Script names the target for ScriptExecute and ScriptWait.
	Script string

	// Args builds the argument bindings passed to a ScriptExecute
	// target. May be nil for no arguments.
	Args func(r *Run) map[string]any

	// Call is the handler for ServiceCall and Lambda nodes.
	Call Handler
}

// ─── Builders ───────────────────────────────────────────────────────────────
//
// Builders keep graph construction terse at the call sites (tests, boot
// wiring, action handlers). They do no validation beyond what the type
// system enforces; ValidateDescriptor covers structural checks.

// Sequence creates a node that runs children in order.
func Sequence(label string, children ...*Descriptor) *Descriptor {
	return &Descriptor{Kind: KindSequence, Label: label, Children: children}
}

// If creates a conditional node. Pass nil for an absent branch.
func If(label string, cond Condition, then, els []*Descriptor) *Descriptor {
	return &Descriptor{Kind: KindIf, Label: label, Condition: cond, Then: then, Else: els}
}

// While creates a condition-bounded loop node.
func While(label string, cond Condition, body ...*Descriptor) *Descriptor {
	return &Descriptor{Kind: KindWhile, Label: label, Condition: cond, Children: body}
}

// Repeat creates a fixed-count loop node.
func Repeat(label string, count func(r *Run) int, body ...*Descriptor) *Descriptor {
	return &Descriptor{Kind: KindRepeat, Label: label, Count: count, Children: body}
}

// RepeatN creates a fixed-count loop with a constant bound.
func RepeatN(label string, n int, body ...*Descriptor) *Descriptor {
	return Repeat(label, func(*Run) int { return n }, body...)
}

// Delay creates a suspension node with a constant duration.
func Delay(label string, d time.Duration) *Descriptor {
	return &Descriptor{Kind: KindDelay, Label: label, Duration: func(*Run) time.Duration { return d }}
}

// DelayFn creates a suspension node whose duration depends on the run.
func DelayFn(label string, d func(r *Run) time.Duration) *Descriptor {
	return &Descriptor{Kind: KindDelay, Label: label, Duration: d}
}

// WaitUntil creates a node that suspends until cond is true, with an
// optional timeout (zero waits forever).
func WaitUntil(label string, cond Condition, timeout time.Duration) *Descriptor {
	return &Descriptor{Kind: KindWaitUntil, Label: label, Condition: cond, Timeout: timeout}
}

// ScriptExecute creates a node that invokes the named script.
func ScriptExecute(label, script string, args func(r *Run) map[string]any) *Descriptor {
	return &Descriptor{Kind: KindScriptExecute, Label: label, Script: script, Args: args}
}

// ScriptWait creates a node that waits for the named script to finish.
func ScriptWait(label, script string) *Descriptor {
	return &Descriptor{Kind: KindScriptWait, Label: label, Script: script}
}

// ServiceCall creates a node that invokes a host handler.
func ServiceCall(label string, call Handler) *Descriptor {
	return &Descriptor{Kind: KindServiceCall, Label: label, Call: call}
}

// Lambda creates an inline handler node.
func Lambda(label string, call Handler) *Descriptor {
	return &Descriptor{Kind: KindLambda, Label: label, Call: call}
}

// ValidateDescriptor checks structural invariants of a compiled graph:
// conditions present where required, positive-capable counts, handlers
// attached, script names non-empty. The engine only accepts validated
// graphs; validation failures are configuration-time errors.
func ValidateDescriptor(d *Descriptor) error {
	if d == nil {
		return ErrNilDescriptor
	}
	switch d.Kind {
	case KindSequence, KindWhile, KindRepeat:
		if d.Kind == KindWhile {
			if d.Condition == nil {
				return ErrMissingCondition
			}
			if len(d.Children) == 0 {
				return ErrEmptyBody
			}
		}
		if d.Kind == KindRepeat && d.Count == nil {
			return ErrMissingCount
		}
		for _, c := range d.Children {
			if err := ValidateDescriptor(c); err != nil {
				return err
			}
		}
	case KindIf:
		if d.Condition == nil {
			return ErrMissingCondition
		}
		for _, c := range d.Then {
			if err := ValidateDescriptor(c); err != nil {
				return err
			}
		}
		for _, c := range d.Else {
			if err := ValidateDescriptor(c); err != nil {
				return err
			}
		}
	case KindDelay:
		if d.Duration == nil {
			return ErrMissingDuration
		}
	case KindWaitUntil:
		if d.Condition == nil {
			return ErrMissingCondition
		}
	case KindScriptExecute, KindScriptWait:
		if d.Script == "" {
			return ErrMissingScript
		}
	case KindServiceCall, KindLambda:
		if d.Call == nil {
			return ErrMissingHandler
		}
	}
	return nil
}
