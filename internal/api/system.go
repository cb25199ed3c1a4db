package api

import (
	"encoding/json"
	"net/http"
)

// SystemResetRequest defines the options for a system reset.
type SystemResetRequest struct {
	ClearRuns  bool   `json:"clear_runs"`
	ClearState bool   `json:"clear_state"`
	Confirm    string `json:"confirm"`
}

// SystemResetResponse reports what was cleared.
type SystemResetResponse struct {
	Status  string         `json:"status"`
	Cleared map[string]int `json:"cleared"`
}

// handleSystemReset wipes selected operational data: the persisted run
// history and/or the shared state store.
//
// This is a destructive operation — the request must include an exact
// confirmation string as a safety guard.
func (s *Server) handleSystemReset(w http.ResponseWriter, r *http.Request) {
	var req SystemResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Safety guard: require exact confirmation string.
	if req.Confirm != "SYSTEM RESET" {
		writeBadRequest(w, `confirm field must be exactly "SYSTEM RESET"`)
		return
	}

	// Must select at least one category.
	if !req.ClearRuns && !req.ClearState {
		writeBadRequest(w, "at least one clear_* option must be true")
		return
	}

	ctx := r.Context()
	cleared := make(map[string]int)

	if req.ClearRuns {
		if s.db == nil {
			writeBadRequest(w, "run history is not persisted")
			return
		}
		result, err := s.db.ExecContext(ctx, "DELETE FROM script_runs")
		if err != nil {
			s.logger.Error("system reset: failed to clear run history", "error", err)
			writeInternalError(w, "failed to clear run history")
			return
		}
		n, _ := result.RowsAffected() //nolint:errcheck // sqlite always reports affected rows
		cleared["script_runs"] = int(n)
	}

	if req.ClearState {
		if s.state == nil {
			writeBadRequest(w, "state store is not configured")
			return
		}
		snapshot := s.state.Snapshot()
		for key := range snapshot {
			s.state.Delete(key)
		}
		cleared["state_keys"] = len(snapshot)
	}

	s.logger.Info("system reset committed", "cleared", cleared)

	writeJSON(w, http.StatusOK, SystemResetResponse{
		Status:  "ok",
		Cleared: cleared,
	})
}
