package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tealfork/tickline-core/internal/rpc"
)

// actionCallWait bounds how long an HTTP caller waits for the action's
// result. The call table enforces its own timeout and answers through the
// responder, so this only guards against a wedged table.
const actionCallWait = 5 * time.Second

// handleListActions returns all declared remote actions.
func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"actions": []*rpc.Action{}, "count": 0})
		return
	}

	actions := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "count": len(actions)})
}

// callRequest is the request body for POST /actions/{name}/call.
type callRequest struct {
	Args           map[string]any `json:"args"`
	ReturnResponse bool           `json:"return_response"`
}

// httpResponder captures the call result so the HTTP handler can return
// it in the response body. SendActionResponse is called at most once per
// call ID; the buffered channel never blocks the call table.
type httpResponder struct {
	ch chan rpc.Result
}

func newHTTPResponder() *httpResponder {
	return &httpResponder{ch: make(chan rpc.Result, 1)}
}

func (h *httpResponder) SendActionResponse(_ string, result rpc.Result) {
	select {
	case h.ch <- result:
	default:
	}
}

// handleCallAction invokes a remote action and waits for its result.
//
// Unlike the MQTT transport, HTTP is synchronous: the handler blocks until
// the action responds, times out, or the client disconnects.
func (s *Server) handleCallAction(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "action calls are not configured")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid action name")
		return
	}

	var req callRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	responder := newHTTPResponder()
	callID, err := s.actions.Invoke(r.Context(), name, req.Args, responder, req.ReturnResponse)
	if err != nil {
		switch {
		case errors.Is(err, rpc.ErrActionNotFound):
			writeNotFound(w, "action not found")
		case errors.Is(err, rpc.ErrInvalidArgument), errors.Is(err, rpc.ErrMissingArgument),
			errors.Is(err, rpc.ErrResponseNotSupported):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to invoke action")
		}
		return
	}

	select {
	case result := <-responder.ch:
		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"call_id": callID,
			"success": result.Success,
			"error":   result.Error,
			"payload": result.Payload,
		})
	case <-time.After(actionCallWait):
		writeError(w, http.StatusGatewayTimeout, ErrCodeInternal, "action call timed out")
	case <-r.Context().Done():
		// Client went away; the table sweeps the pending call on timeout.
	}
}
