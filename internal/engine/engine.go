package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Repository persists run history. Implementations must be safe for
// concurrent use; the engine calls it from the loop goroutine only.
type Repository interface {
	// CreateRun inserts the initial record for a started run.
	CreateRun(ctx context.Context, rec *RunRecord) error

	// CompleteRun updates a record with its terminal status, duration
	// and error.
	CompleteRun(ctx context.Context, rec *RunRecord) error

	// ListRuns returns recent records, newest first, optionally
	// filtered to one script (empty string = all).
	ListRuns(ctx context.Context, script string, limit int) ([]*RunRecord, error)
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// EventPublisher pushes run lifecycle events to the broker.
type EventPublisher interface {
	PublishRunStarted(rec *RunRecord)
	PublishRunCompleted(rec *RunRecord)
}

// CombinePublishers fans lifecycle events out to every given
// publisher. Nil entries are skipped; combining zero publishers
// returns nil, so the engine skips event output entirely.
func CombinePublishers(pubs ...EventPublisher) EventPublisher {
	kept := make(multiPublisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return kept
}

type multiPublisher []EventPublisher

func (m multiPublisher) PublishRunStarted(rec *RunRecord) {
	for _, p := range m {
		p.PublishRunStarted(rec)
	}
}

func (m multiPublisher) PublishRunCompleted(rec *RunRecord) {
	for _, p := range m {
		p.PublishRunCompleted(rec)
	}
}

// Engine owns the action-graph scheduler: registered scripts, live
// runs, parked suspensions and the loop-interest counter. All mutable
// state except the scripts map is confined to the loop goroutine;
// external callers go through the submit-based public methods.
type Engine struct {
	loop   *Loop
	logger Logger
	repo   Repository     // may be nil (history disabled)
	hub    WSHub          // may be nil
	events EventPublisher // may be nil

	mu      sync.RWMutex
	scripts map[string]*Script
	states  map[string]*scriptState

	// Loop-goroutine confined from here down.
	runs   map[string]*Run
	parked []*Run // FIFO arrival order of delay/condition suspensions

	// interest counts pending work items (suspended runs plus queued
	// invocations). Polling is only disabled when it reaches zero, so
	// work created during boot wiring survives startup.
	interest    int
	pollEnabled bool

	ctx context.Context
}

// New creates an engine bound to a loop. repo, hub and events may be
// nil; the corresponding outputs are skipped.
func New(loop *Loop, repo Repository, hub WSHub, events EventPublisher, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	e := &Engine{
		loop:    loop,
		logger:  logger,
		repo:    repo,
		hub:     hub,
		events:  events,
		scripts: make(map[string]*Script),
		states:  make(map[string]*scriptState),
		runs:    make(map[string]*Run),
		ctx:     context.Background(),
	}
	loop.OnTick(e.tick)
	return e
}

// Start launches the loop goroutine and fires the configured boot
// scripts. Polling interest is then settled count-wise: if a boot run
// suspended (delay, wait) the loop keeps ticking; only a fully idle
// engine starts with polling disabled.
func (e *Engine) Start(ctx context.Context, bootScripts []string) error {
	e.ctx = ctx
	go e.loop.Run(ctx)
	<-e.loop.Started()

	errc := make(chan error, 1)
	err := e.loop.Submit(func() {
		for _, name := range bootScripts {
			if _, execErr := e.executeScript(name, nil, "boot"); execErr != nil {
				e.logger.Error("boot script failed to start",
					"script", name,
					"error", execErr,
				)
			}
		}
		// Count-based settle: disable polling only when nothing is
		// pending. A boot script parked mid-graph keeps the loop hot.
		e.pollEnabled = e.interest > 0
		errc <- nil
	})
	if err != nil {
		return err
	}
	return <-errc
}

// Execute invokes a named script from outside the loop (API, MQTT).
// It returns the run ID for started runs; queued-mode invocations that
// were queued rather than started return an empty ID and nil error.
func (e *Engine) Execute(ctx context.Context, name string, args map[string]any, trigger string) (string, error) {
	type reply struct {
		id  string
		err error
	}
	ch := make(chan reply, 1)
	if err := e.loop.Submit(func() {
		id, err := e.executeScript(name, args, trigger)
		ch <- reply{id: id, err: err}
	}); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case rep := <-ch:
		return rep.id, rep.err
	}
}

// Stop cancels a named script's runs and queue from outside the loop.
func (e *Engine) Stop(ctx context.Context, name string) error {
	ch := make(chan error, 1)
	if err := e.loop.Submit(func() {
		ch <- e.stopScript(name)
	}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		return err
	}
}

// Fire starts an ad-hoc action graph that is not registered as a
// script. The graph is validated before submission.
func (e *Engine) Fire(ctx context.Context, label string, root *Descriptor, args map[string]any, trigger string) (string, error) {
	if err := ValidateDescriptor(root); err != nil {
		return "", err
	}
	type reply struct {
		id  string
		err error
	}
	ch := make(chan reply, 1)
	if err := e.loop.Submit(func() {
		r := &Run{
			id:        GenerateID(),
			script:    label,
			trigger:   trigger,
			args:      deepCopyMap(args),
			eng:       e,
			state:     RunStateRunning,
			startedAt: time.Now().UTC(),
		}
		e.runs[r.id] = r
		e.recordStart(r)
		e.logger.Info("script run started",
			"script", r.script,
			"run_id", r.id,
			"trigger", trigger,
		)
		r.push(root)
		r.advance(time.Now())
		ch <- reply{id: r.id}
	}); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case rep := <-ch:
		return rep.id, rep.err
	}
}

// IsRunning reports whether a named script has active work.
func (e *Engine) IsRunning(ctx context.Context, name string) (bool, error) {
	ch := make(chan bool, 1)
	if err := e.loop.Submit(func() {
		ch <- e.scriptRunning(name)
	}); err != nil {
		return false, err
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case v := <-ch:
		return v, nil
	}
}

// ActiveRuns returns snapshots of all live runs.
func (e *Engine) ActiveRuns(ctx context.Context) ([]RunSnapshot, error) {
	ch := make(chan []RunSnapshot, 1)
	if err := e.loop.Submit(func() {
		out := make([]RunSnapshot, 0, len(e.runs))
		for _, r := range e.runs {
			out = append(out, RunSnapshot{
				ID:        r.id,
				Script:    r.script,
				Trigger:   r.trigger,
				State:     r.state.String(),
				Args:      deepCopyMap(r.args),
				StartedAt: r.startedAt,
			})
		}
		ch <- out
	}); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		return out, nil
	}
}

// ListRuns returns persisted run history via the repository.
func (e *Engine) ListRuns(ctx context.Context, script string, limit int) ([]*RunRecord, error) {
	if e.repo == nil {
		return nil, nil
	}
	return e.repo.ListRuns(ctx, script, limit)
}

// ─── Loop internals ─────────────────────────────────────────────────────────

// addInterest registers one unit of pending work and enables polling.
func (e *Engine) addInterest() {
	e.interest++
	e.pollEnabled = true
}

// dropInterest releases one unit of pending work.
func (e *Engine) dropInterest() {
	if e.interest > 0 {
		e.interest--
	}
}

// park appends a delay/condition suspension to the FIFO poll list.
func (e *Engine) park(r *Run) {
	e.parked = append(e.parked, r)
	e.addInterest()
}

// parkOnScript appends r to the target script's FIFO waiter list.
func (e *Engine) parkOnScript(r *Run, script string) {
	e.mu.RLock()
	st, ok := e.states[script]
	e.mu.RUnlock()
	if !ok {
		// scriptRunning returned false for unknown names, so this is
		// unreachable from advance; guard anyway.
		r.state = RunStateRunning
		return
	}
	st.waiters = append(st.waiters, r)
	e.addInterest()
}

// tick is the per-tick poll: wake due suspensions in FIFO arrival
// order, then give every idle script the chance to start one queued
// invocation or wake one waiter. Disabled entirely while no pending
// work exists.
func (e *Engine) tick(now time.Time) {
	if !e.pollEnabled {
		return
	}

	// Two-phase wake keeps arrival order honest: runs that re-suspend
	// during resume are appended behind every already-parked run.
	var due []*Run
	for _, r := range e.parked {
		if r.due(now) {
			due = append(due, r)
		}
	}
	if len(due) > 0 || e.anyTerminalParked() {
		kept := e.parked[:0]
		for _, r := range e.parked {
			if r.state != RunStateSuspendedDelay && r.state != RunStateSuspendedCondition {
				continue
			}
			if r.due(now) {
				continue
			}
			kept = append(kept, r)
		}
		e.parked = kept
		for _, r := range due {
			if r.state == RunStateSuspendedDelay || r.state == RunStateSuspendedCondition {
				e.dropInterest()
				r.resume(now)
			}
		}
	}

	// One dequeue or one waiter wake per script per tick; queued
	// backlogs drain across ticks, never in a single call frame.
	e.mu.RLock()
	states := make([]*scriptState, 0, len(e.states))
	for _, st := range e.states {
		states = append(states, st)
	}
	e.mu.RUnlock()

	for _, st := range states {
		if len(st.running) > 0 {
			continue
		}
		if len(st.queue) > 0 {
			inv := st.queue[0]
			st.queue = st.queue[1:]
			e.dropInterest()
			e.startRun(st, inv.args, inv.trigger)
			continue
		}
		if len(st.waiters) > 0 {
			w := st.waiters[0]
			st.waiters = st.waiters[1:]
			e.dropInterest()
			if !w.state.terminal() {
				w.resumeFromScriptWait(now)
			}
		}
	}

	if e.interest == 0 {
		e.pollEnabled = false
	}
}

// anyTerminalParked reports whether the poll list holds entries for
// runs that were cancelled while suspended and need sweeping.
func (e *Engine) anyTerminalParked() bool {
	for _, r := range e.parked {
		if r.state != RunStateSuspendedDelay && r.state != RunStateSuspendedCondition {
			return true
		}
	}
	return false
}

// finishRun moves a run to a terminal state, persists the outcome and
// publishes lifecycle events. Idempotent across cancel/complete races
// within the loop goroutine.
func (e *Engine) finishRun(r *Run, state RunState, err error) {
	if r.state.terminal() {
		return
	}
	r.state = state
	r.err = err
	r.current = nil

	delete(e.runs, r.id)

	e.mu.RLock()
	st, ok := e.states[r.script]
	e.mu.RUnlock()
	if ok {
		for i, active := range st.running {
			if active == r {
				st.running = append(st.running[:i], st.running[i+1:]...)
				break
			}
		}
	}

	now := time.Now().UTC()
	durMS := int(now.Sub(r.startedAt).Milliseconds())
	rec := &RunRecord{
		ID:          r.id,
		Script:      r.script,
		TriggerType: r.trigger,
		Status:      statusFor(state),
		StartedAt:   r.startedAt,
		CompletedAt: &now,
		DurationMS:  &durMS,
	}
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
	}

	switch state {
	case RunStateFailed:
		e.logger.Error("script run failed",
			"script", r.script,
			"run_id", r.id,
			"duration_ms", durMS,
			"error", err,
		)
	default:
		e.logger.Info("script run completed",
			"script", r.script,
			"run_id", r.id,
			"duration_ms", durMS,
			"status", rec.Status,
		)
	}

	if e.repo != nil {
		if repoErr := e.repo.CompleteRun(e.ctx, rec); repoErr != nil {
			e.logger.Error("failed to update run record", "error", repoErr)
		}
	}
	if e.hub != nil {
		e.hub.Broadcast("runs", map[string]any{
			"type":        "run.completed",
			"run_id":      r.id,
			"script":      r.script,
			"status":      rec.Status,
			"duration_ms": durMS,
		})
	}
	if e.events != nil {
		e.events.PublishRunCompleted(rec)
	}
}

// recordStart persists and announces a newly started run.
func (e *Engine) recordStart(r *Run) {
	rec := &RunRecord{
		ID:          r.id,
		Script:      r.script,
		TriggerType: r.trigger,
		Status:      "running",
		StartedAt:   r.startedAt,
	}
	if len(r.args) > 0 {
		if encoded, err := json.Marshal(r.args); err == nil {
			rec.Args = string(encoded)
		}
	}
	if e.repo != nil {
		if err := e.repo.CreateRun(e.ctx, rec); err != nil {
			e.logger.Error("failed to create run record", "error", err)
			// Keep executing; history is best-effort.
		}
	}
	if e.hub != nil {
		e.hub.Broadcast("runs", map[string]any{
			"type":    "run.started",
			"run_id":  r.id,
			"script":  r.script,
			"trigger": r.trigger,
		})
	}
	if e.events != nil {
		e.events.PublishRunStarted(rec)
	}
}

// statusFor maps terminal run states onto persisted status strings.
func statusFor(s RunState) string {
	switch s {
	case RunStateDone:
		return "completed"
	case RunStateFailed:
		return "failed"
	case RunStateCancelled:
		return "cancelled"
	default:
		return s.String()
	}
}
