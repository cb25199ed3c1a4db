package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetState returns a snapshot of the whole shared state store.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": map[string]any{}, "count": 0})
		return
	}

	snapshot := s.state.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"state": snapshot, "count": len(snapshot)})
}

// handleGetStateKey returns one state value by key.
func (s *Server) handleGetStateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" || len(key) > maxQueryParamLen {
		writeBadRequest(w, "invalid state key")
		return
	}

	if s.state == nil {
		writeNotFound(w, "state key not found")
		return
	}

	value, ok := s.state.Get(key)
	if !ok {
		writeNotFound(w, "state key not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

// setStateRequest is the request body for PUT /state/{key}.
type setStateRequest struct {
	Value any `json:"value"`
}

// handleSetStateKey writes one state value. Condition steps observe the
// new value on the next engine tick; the change is also broadcast to
// WebSocket subscribers of "state".
func (s *Server) handleSetStateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" || len(key) > maxQueryParamLen {
		writeBadRequest(w, "invalid state key")
		return
	}

	if s.state == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "state store is not configured")
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.state.Set(key, req.Value)

	if s.hub != nil {
		s.hub.Broadcast("state", map[string]any{
			"key":   key,
			"value": req.Value,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": req.Value})
}

// handleDeleteStateKey removes one state value.
func (s *Server) handleDeleteStateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" || len(key) > maxQueryParamLen {
		writeBadRequest(w, "invalid state key")
		return
	}

	if s.state == nil {
		writeNotFound(w, "state key not found")
		return
	}

	s.state.Delete(key)
	w.WriteHeader(http.StatusNoContent)
}
