package engine

import (
	"fmt"
	"time"
)

// RunState describes where a run is in its lifecycle. Suspended states
// record why the run yielded control so the loop knows what to poll.
type RunState int

const (
	// RunStateRunning means the run is actively advancing through its
	// graph (only ever observed on the loop goroutine mid-tick).
	RunStateRunning RunState = iota

	// RunStateSuspendedDelay means the run is parked until wakeAt.
	RunStateSuspendedDelay

	// RunStateSuspendedCondition means the run is parked on a
	// WaitUntil predicate, polled each tick in FIFO arrival order.
	RunStateSuspendedCondition

	// RunStateSuspendedScript means the run is parked until a named
	// script's terminal transition to not-running.
	RunStateSuspendedScript

	// RunStateDone means the graph completed normally.
	RunStateDone

	// RunStateFailed means a handler returned an error or panicked.
	RunStateFailed

	// RunStateCancelled means the run was stopped externally.
	RunStateCancelled
)

// String returns the lowercase state name for logging and the API.
func (s RunState) String() string {
	switch s {
	case RunStateRunning:
		return "running"
	case RunStateSuspendedDelay:
		return "suspended_delay"
	case RunStateSuspendedCondition:
		return "suspended_condition"
	case RunStateSuspendedScript:
		return "suspended_script"
	case RunStateDone:
		return "done"
	case RunStateFailed:
		return "failed"
	case RunStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether the run has finished (any exit path).
func (s RunState) terminal() bool {
	return s == RunStateDone || s == RunStateFailed || s == RunStateCancelled
}

// Run is one live execution of an action graph: a unique ID, its own
// argument bindings and a continuation chain tracking position. Runs of
// the same graph never share mutable state; arguments are deep-copied
// at creation so callers cannot mutate them after the fact.
//
// All fields are owned by the loop goroutine. Handlers receive the Run
// on that goroutine and may read arguments and invoke the In-loop
// methods, but must not retain the pointer past their return.
type Run struct {
	id      string
	script  string // owning script name, empty for ad-hoc graphs
	trigger string
	args    map[string]any

	eng     *Engine
	current *continuation
	state   RunState

	startedAt   time.Time
	suspendedAt time.Time // instant the current suspension began
	wakeAt      time.Time // delay wake instant
	deadline    time.Time // wait_until timeout instant; zero = none
	waitScript  string    // script.wait target

	err error
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// Script returns the owning script name, or "" for an ad-hoc graph.
func (r *Run) Script() string { return r.script }

// State returns the run's current lifecycle state.
func (r *Run) State() RunState { return r.state }

// Args returns the run's argument bindings. The map is owned by the
// run; treat it as read-only.
func (r *Run) Args() map[string]any { return r.args }

// Arg returns the named argument and whether it was bound.
func (r *Run) Arg(name string) (any, bool) {
	v, ok := r.args[name]
	return v, ok
}

// StringArg returns the named argument as a string, or fallback.
func (r *Run) StringArg(name, fallback string) string {
	if v, ok := r.args[name].(string); ok {
		return v
	}
	return fallback
}

// IntArg returns the named argument as an int, or fallback. JSON
// decoding produces float64 for numbers, so both forms are accepted.
func (r *Run) IntArg(name string, fallback int) int {
	switch v := r.args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// FloatArg returns the named argument as a float64, or fallback.
func (r *Run) FloatArg(name string, fallback float64) float64 {
	switch v := r.args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// BoolArg returns the named argument as a bool, or fallback.
func (r *Run) BoolArg(name string, fallback bool) bool {
	if v, ok := r.args[name].(bool); ok {
		return v
	}
	return fallback
}

// ExecuteScript invokes a named script from inside a handler. It runs
// on the loop goroutine, so it must not go through the engine's public
// submit path (that would deadlock the loop on itself).
func (r *Run) ExecuteScript(name string, args map[string]any) error {
	_, err := r.eng.executeScript(name, args, "script")
	return err
}

// StopScript stops a named script from inside a handler.
func (r *Run) StopScript(name string) error {
	return r.eng.stopScript(name)
}

// advance drives the run until it suspends or finishes. It is a small-
// step interpreter over the continuation chain: each pass inspects the
// current node, and either pushes a child, completes the node, or
// parks the run and returns. Nothing here blocks.
func (r *Run) advance(now time.Time) {
	for r.state == RunStateRunning {
		c := r.current
		if c == nil {
			r.eng.finishRun(r, RunStateDone, nil)
			return
		}

		switch c.desc.Kind {
		case KindSequence:
			if c.child < len(c.desc.Children) {
				next := c.desc.Children[c.child]
				c.child++
				r.push(next)
				continue
			}
			r.complete(c)

		case KindIf:
			if !c.entered {
				c.entered = true
				if c.desc.Condition(r) {
					c.branch = c.desc.Then
				} else {
					c.branch = c.desc.Else
				}
			}
			if c.child < len(c.branch) {
				next := c.branch[c.child]
				c.child++
				r.push(next)
				continue
			}
			r.complete(c)

		case KindWhile:
			if c.child == 0 {
				// Empty bodies are rejected at validation; the guard
				// here keeps a malformed graph from spinning the loop.
				if !c.desc.Condition(r) || len(c.desc.Children) == 0 {
					r.complete(c)
					continue
				}
				r.logIteration(c)
			}
			if c.child < len(c.desc.Children) {
				next := c.desc.Children[c.child]
				c.child++
				r.push(next)
				continue
			}
			c.iter++
			c.child = 0

		case KindRepeat:
			if !c.entered {
				c.entered = true
				c.bound = c.desc.Count(r)
			}
			if c.child == 0 {
				if c.iter >= c.bound {
					r.complete(c)
					continue
				}
				if len(c.desc.Children) == 0 {
					c.iter = c.bound
					r.complete(c)
					continue
				}
				r.logIteration(c)
			}
			if c.child < len(c.desc.Children) {
				next := c.desc.Children[c.child]
				c.child++
				r.push(next)
				continue
			}
			c.iter++
			c.child = 0

		case KindDelay:
			// Deadline from the suspension's own start instant, not the
			// tick-start timestamp: a delay entered after 100 ms of
			// same-tick work must still wait its full duration from now.
			d := c.desc.Duration(r)
			if d <= 0 {
				r.complete(c)
				continue
			}
			r.suspendDelay(time.Now(), d)
			return

		case KindWaitUntil:
			if c.desc.Condition(r) {
				r.complete(c)
				continue
			}
			r.suspendCondition(time.Now(), c.desc.Timeout)
			return

		case KindScriptExecute:
			var args map[string]any
			if c.desc.Args != nil {
				args = c.desc.Args(r)
			}
			if _, err := r.eng.executeScript(c.desc.Script, args, "script"); err != nil {
				r.eng.logger.Warn("script execute failed",
					"run_id", r.id,
					"target", c.desc.Script,
					"error", err,
				)
			}
			r.complete(c)

		case KindScriptWait:
			if !r.eng.scriptRunning(c.desc.Script) {
				r.complete(c)
				continue
			}
			r.suspendScript(time.Now(), c.desc.Script)
			return

		case KindServiceCall, KindLambda:
			if err := r.invoke(c.desc.Call); err != nil {
				r.eng.finishRun(r, RunStateFailed, err)
				return
			}
			r.complete(c)

		default:
			r.eng.finishRun(r, RunStateFailed, fmt.Errorf("engine: unknown node kind %d", int(c.desc.Kind)))
			return
		}
	}
}

// invoke runs a handler with panic recovery at the run boundary. A
// panicking handler fails its own run; siblings keep advancing.
func (r *Run) invoke(h Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine: handler panic: %v", p)
			r.eng.logger.Error("handler panic recovered",
				"run_id", r.id,
				"script", r.script,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	return h(r)
}

// complete marks the current node finished, emits its exit log line and
// returns control to the parent.
func (r *Run) complete(c *continuation) {
	if c.desc.Label != "" {
		r.eng.logger.Info(fmt.Sprintf("%s completed", c.desc.Label), "run_id", r.id)
	}
	r.pop()
}

// completeTimed is the resume-path variant of complete for Delay and
// WaitUntil: it reports how long the suspension lasted.
func (r *Run) completeTimed(c *continuation, now time.Time) {
	if c.desc.Label != "" {
		ms := now.Sub(r.suspendedAt).Milliseconds()
		r.eng.logger.Info(fmt.Sprintf("%s completed after %d ms", c.desc.Label, ms), "run_id", r.id)
	}
	r.pop()
}

// logIteration emits the loop-entry log line for While and Repeat.
func (r *Run) logIteration(c *continuation) {
	if c.desc.Label != "" {
		r.eng.logger.Info(fmt.Sprintf("%s iteration %d", c.desc.Label, c.iter), "run_id", r.id)
	}
}

// suspendDelay parks the run until now+d and registers loop interest.
func (r *Run) suspendDelay(now time.Time, d time.Duration) {
	c := r.current
	c.entered = true
	r.state = RunStateSuspendedDelay
	r.suspendedAt = now
	r.wakeAt = now.Add(d)
	r.eng.park(r)
}

// suspendCondition parks the run on its WaitUntil predicate. A zero
// timeout waits indefinitely.
func (r *Run) suspendCondition(now time.Time, timeout time.Duration) {
	c := r.current
	c.entered = true
	r.state = RunStateSuspendedCondition
	r.suspendedAt = now
	if timeout > 0 {
		r.deadline = now.Add(timeout)
	} else {
		r.deadline = time.Time{}
	}
	r.eng.park(r)
}

// suspendScript parks the run until the named script stops running.
func (r *Run) suspendScript(now time.Time, script string) {
	c := r.current
	c.entered = true
	r.state = RunStateSuspendedScript
	r.suspendedAt = now
	r.waitScript = script
	r.eng.parkOnScript(r, script)
}

// due reports whether a parked run is ready to resume on this tick.
// Called once per tick per parked run, in FIFO arrival order. It has
// no side effects; predicates are required to be side-effect free.
func (r *Run) due(now time.Time) bool {
	switch r.state {
	case RunStateSuspendedDelay:
		return !now.Before(r.wakeAt)
	case RunStateSuspendedCondition:
		if r.current.desc.Condition(r) {
			return true
		}
		return !r.deadline.IsZero() && !now.Before(r.deadline)
	}
	return false
}

// resume transitions a suspended run back to running, completes the
// node that suspended it and advances to the next node.
func (r *Run) resume(now time.Time) {
	c := r.current
	if r.state == RunStateSuspendedCondition &&
		!r.deadline.IsZero() && !now.Before(r.deadline) && !c.desc.Condition(r) {
		r.eng.logger.Warn("wait_until timed out",
			"run_id", r.id,
			"label", c.desc.Label,
		)
	}
	r.state = RunStateRunning
	r.wakeAt = time.Time{}
	r.deadline = time.Time{}
	r.waitScript = ""
	r.completeTimed(c, now)
	r.suspendedAt = time.Time{}
	r.advance(now)
}

// resumeFromScriptWait wakes a script-wait waiter after its target
// script's terminal transition. The script registry wakes one waiter
// per tick, so a long waiter list drains over successive ticks.
func (r *Run) resumeFromScriptWait(now time.Time) {
	r.resume(now)
}
