package engine

import (
	"fmt"
	"time"
)

// queuedInvocation is one pending queued-mode start with the arguments
// captured at invocation time.
type queuedInvocation struct {
	args    map[string]any
	trigger string
}

// scriptState is the mutable per-script bookkeeping: active runs, the
// queued-mode backlog and the FIFO list of runs blocked in a
// script-wait on this script. Loop-goroutine confined.
type scriptState struct {
	script  *Script
	running []*Run
	queue   []queuedInvocation
	waiters []*Run
}

// active reports whether the script counts as running for script-wait
// purposes. A queued-mode backlog keeps the script active even between
// runs, so waiters do not slip in ahead of queued invocations.
func (st *scriptState) active() bool {
	return len(st.running) > 0 || len(st.queue) > 0
}

// Register adds a script definition. Typically called during boot
// wiring before Start; a script registered later becomes invocable on
// the next Execute.
func (e *Engine) Register(s *Script) error {
	if s == nil || s.Root == nil {
		return ErrNilDescriptor
	}
	if s.Name == "" {
		return ErrMissingScript
	}
	if !s.Mode.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, s.Mode)
	}
	if err := ValidateDescriptor(s.Root); err != nil {
		return fmt.Errorf("engine: script %q: %w", s.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.scripts[s.Name]; exists {
		return fmt.Errorf("%w: %q", ErrScriptExists, s.Name)
	}
	e.scripts[s.Name] = s
	e.states[s.Name] = &scriptState{script: s}
	return nil
}

// Scripts returns the registered script definitions, for the API layer.
func (e *Engine) Scripts() []*Script {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Script, 0, len(e.scripts))
	for _, s := range e.scripts {
		out = append(out, s)
	}
	return out
}

// executeScript starts (or queues, or refuses) an invocation of a named
// script according to its concurrency mode. Loop goroutine only.
func (e *Engine) executeScript(name string, args map[string]any, trigger string) (string, error) {
	e.mu.RLock()
	st, ok := e.states[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}

	switch st.script.Mode {
	case ModeSingle:
		if st.active() {
			e.logger.Warn("script already running, invocation ignored",
				"script", name,
				"mode", string(ModeSingle),
			)
			return "", fmt.Errorf("%w: %q", ErrScriptRunning, name)
		}

	case ModeRestart:
		// Snapshot: cancellation edits st.running in place.
		for _, r := range append([]*Run(nil), st.running...) {
			e.cancelRun(r, "restarted")
		}

	case ModeQueued:
		if st.active() {
			if st.script.MaxQueue > 0 && len(st.queue) >= st.script.MaxQueue {
				e.logger.Warn("script queue full, invocation dropped",
					"script", name,
					"max_queue", st.script.MaxQueue,
				)
				return "", fmt.Errorf("%w: %q queue full", ErrScriptRunning, name)
			}
			st.queue = append(st.queue, queuedInvocation{args: deepCopyMap(args), trigger: trigger})
			e.addInterest()
			e.logger.Debug("script invocation queued",
				"script", name,
				"queue_depth", len(st.queue),
			)
			return "", nil
		}

	case ModeParallel:
		// Unconditional concurrent start.
	}

	r := e.startRun(st, args, trigger)
	return r.id, nil
}

// startRun creates a run for st's script and advances it until it
// suspends or finishes.
func (e *Engine) startRun(st *scriptState, args map[string]any, trigger string) *Run {
	r := &Run{
		id:        GenerateID(),
		script:    st.script.Name,
		trigger:   trigger,
		args:      deepCopyMap(args),
		eng:       e,
		state:     RunStateRunning,
		startedAt: time.Now().UTC(),
	}
	st.running = append(st.running, r)
	e.runs[r.id] = r

	e.recordStart(r)
	e.logger.Info("script run started",
		"script", r.script,
		"run_id", r.id,
		"trigger", trigger,
	)

	r.push(st.script.Root)
	r.advance(time.Now())
	return r
}

// scriptRunning reports whether a named script counts as running.
// Unknown scripts count as not running, so a script-wait on a typo
// completes immediately rather than hanging the run forever.
func (e *Engine) scriptRunning(name string) bool {
	e.mu.RLock()
	st, ok := e.states[name]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return st.active()
}

// stopScript cancels every active run of a script and drops its queued
// backlog. Waiters stay registered; the next tick observes the script
// idle and wakes the head waiter. Loop goroutine only.
func (e *Engine) stopScript(name string) error {
	e.mu.RLock()
	st, ok := e.states[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}

	dropped := len(st.queue)
	for range st.queue {
		e.dropInterest()
	}
	st.queue = nil

	cancelled := len(st.running)
	for _, r := range append([]*Run(nil), st.running...) {
		e.cancelRun(r, "stopped")
	}

	if dropped > 0 || cancelled > 0 {
		e.logger.Info("script stopped",
			"script", name,
			"queue_dropped", dropped,
		)
	}
	return nil
}

// cancelRun terminates a run immediately, releasing its continuation
// chain and any loop interest it holds. No further nodes execute.
func (e *Engine) cancelRun(r *Run, reason string) {
	if r.state.terminal() {
		return
	}

	switch r.state {
	case RunStateSuspendedDelay, RunStateSuspendedCondition:
		// Parked entry is filtered out on the next sweep; interest is
		// released now so the loop can go idle.
		e.dropInterest()
	case RunStateSuspendedScript:
		e.removeWaiter(r)
		e.dropInterest()
	}

	e.logger.Info("script run cancelled",
		"script", r.script,
		"run_id", r.id,
		"reason", reason,
	)
	e.finishRun(r, RunStateCancelled, nil)
}

// removeWaiter detaches a run from the waiter list it is parked on.
func (e *Engine) removeWaiter(r *Run) {
	e.mu.RLock()
	st, ok := e.states[r.waitScript]
	e.mu.RUnlock()
	if !ok {
		return
	}
	for i, w := range st.waiters {
		if w == r {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			return
		}
	}
}
