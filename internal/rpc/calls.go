package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCallTimeout bounds how long a dispatched handler may take to
// respond before the sweep expires the call.
const DefaultCallTimeout = 500 * time.Millisecond

// Hub is the interface for broadcasting call lifecycle events.
type Hub interface {
	Broadcast(channel string, payload any)
}

// Call is one in-flight invocation, handed to the action handler. The
// handler reads arguments and eventually calls Respond exactly once;
// later calls are dropped by the table.
type Call struct {
	id             string
	action         *Action
	args           map[string]any
	returnResponse bool
	table          *Table
}

// ID returns the call identifier.
func (c *Call) ID() string { return c.id }

// Action returns the declared action name.
func (c *Call) Action() string { return c.action.Name }

// Args returns the validated, coerced arguments.
func (c *Call) Args() map[string]any { return c.args }

// ReturnResponse reports whether the caller asked for a payload.
func (c *Call) ReturnResponse() bool { return c.returnResponse }

// Respond delivers the handler's result. Responding after the call
// has timed out (or twice) returns ErrNoActiveCall and does nothing.
func (c *Call) Respond(result Result) error {
	return c.table.Respond(c.id, result)
}

// pendingCall is the table's bookkeeping for one awaited response.
type pendingCall struct {
	call      *Call
	state     CallState
	deadline  time.Time
	responder Responder
}

// Table tracks pending action calls and expires them on a deadline
// sweep. All methods are safe for concurrent use.
type Table struct {
	registry *Registry
	timeout  time.Duration
	logger   Logger
	hub      Hub // may be nil

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewTable creates a call table. A non-positive timeout selects
// DefaultCallTimeout.
func NewTable(registry *Registry, timeout time.Duration, hub Hub, logger Logger) *Table {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Table{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
		hub:      hub,
		pending:  make(map[string]*pendingCall),
	}
}

// Start launches the deadline sweep. It returns immediately; the sweep
// stops when ctx is cancelled.
func (t *Table) Start(ctx context.Context) {
	interval := t.timeout / 5
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.sweep(now)
			}
		}
	}()
}

// Invoke validates arguments, registers a pending call and dispatches
// the handler on its own goroutine. It returns the assigned call ID.
//
// returnResponse asks for a payload; it is rejected for none/status
// actions and implied for only actions.
func (t *Table) Invoke(ctx context.Context, action string, args map[string]any, responder Responder, returnResponse bool) (string, error) {
	a, err := t.registry.Get(action)
	if err != nil {
		return "", err
	}

	switch a.Response {
	case ResponseNone, ResponseStatus:
		if returnResponse {
			return "", fmt.Errorf("%w: %q (mode %s)", ErrResponseNotSupported, action, a.Response)
		}
	case ResponseOnly:
		returnResponse = true
	}

	coerced, err := CoerceArgs(a, args)
	if err != nil {
		return "", err
	}

	callID := newCallID()
	call := &Call{
		id:             callID,
		action:         a,
		args:           coerced,
		returnResponse: returnResponse,
		table:          t,
	}

	// Fire-and-forget actions are acknowledged by the table itself;
	// nothing is awaited and the handler never responds.
	if a.Response == ResponseNone {
		if a.Handler != nil {
			go a.Handler(ctx, call)
		}
		if responder != nil {
			responder.SendActionResponse(callID, Result{Success: true})
		}
		t.logger.Debug("action dispatched without response tracking",
			"action", action,
			"call_id", callID,
		)
		return callID, nil
	}

	t.mu.Lock()
	t.pending[callID] = &pendingCall{
		call:      call,
		state:     StateAwaitingResponse,
		deadline:  time.Now().Add(t.timeout),
		responder: responder,
	}
	t.mu.Unlock()

	t.logger.Debug("action call awaiting response",
		"action", action,
		"call_id", callID,
		"timeout_ms", t.timeout.Milliseconds(),
	)
	go a.Handler(ctx, call)
	return callID, nil
}

// Respond delivers a result for a pending call. Late and duplicate
// responses are dropped with a warning; the table keeps serving
// subsequent calls normally.
func (t *Table) Respond(callID string, result Result) error {
	t.mu.Lock()
	p, ok := t.pending[callID]
	if !ok {
		t.mu.Unlock()
		t.logger.Warn(fmt.Sprintf("Cannot send response: no active call found for action_call_id %s", callID))
		return ErrNoActiveCall
	}
	delete(t.pending, callID)
	p.state = StateResponded
	t.mu.Unlock()

	// The payload only travels when the caller asked for one; status
	// actions never carry payloads.
	if !p.call.returnResponse {
		result.Payload = nil
	}

	if p.responder != nil {
		p.responder.SendActionResponse(callID, result)
	}
	t.logger.Debug("action call responded",
		"action", p.call.action.Name,
		"call_id", callID,
		"success", result.Success,
	)
	return nil
}

// PendingCount returns the number of calls awaiting a response.
func (t *Table) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// sweep expires pending calls whose deadline has passed.
func (t *Table) sweep(now time.Time) {
	t.mu.Lock()
	var expired []*pendingCall
	for id, p := range t.pending {
		if now.Before(p.deadline) {
			continue
		}
		p.state = StateTimedOut
		delete(t.pending, id)
		expired = append(expired, p)
	}
	t.mu.Unlock()

	for _, p := range expired {
		t.logger.Warn("action call timed out",
			"action", p.call.action.Name,
			"call_id", p.call.id,
			"timeout_ms", t.timeout.Milliseconds(),
		)
		if p.responder != nil {
			p.responder.SendActionResponse(p.call.id, Result{
				Success: false,
				Error:   "action call timed out",
			})
		}
		if t.hub != nil {
			t.hub.Broadcast("actions", map[string]any{
				"type":    "action.call_timeout",
				"action":  p.call.action.Name,
				"call_id": p.call.id,
			})
		}
	}
}
