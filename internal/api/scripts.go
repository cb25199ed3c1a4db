package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tealfork/tickline-core/internal/engine"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// scriptSummary is the list representation of a registered script.
type scriptSummary struct {
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	MaxQueue int    `json:"max_queue,omitempty"`
	Running  bool   `json:"running"`
}

// handleListScripts returns all registered scripts with their concurrency modes.
func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scripts := s.engine.Scripts()
	out := make([]scriptSummary, 0, len(scripts))
	for _, sc := range scripts {
		running, err := s.engine.IsRunning(ctx, sc.Name)
		if err != nil {
			writeInternalError(w, "failed to query script state")
			return
		}
		out = append(out, scriptSummary{
			Name:     sc.Name,
			Mode:     string(sc.Mode),
			MaxQueue: sc.MaxQueue,
			Running:  running,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"scripts": out, "count": len(out)})
}

// executeRequest is the request body for POST /scripts/{name}/execute.
type executeRequest struct {
	Args map[string]any `json:"args"`
}

// handleExecuteScript invokes a script by name.
//
// The script's concurrency mode decides the outcome: started runs return
// 202 with the run ID, queued-mode invocations that were queued return 202
// with status "queued", and single-mode re-entry returns 409.
func (s *Server) handleExecuteScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid script name")
		return
	}

	var req executeRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	runID, err := s.engine.Execute(r.Context(), name, req.Args, "api")
	if err != nil {
		if errors.Is(err, engine.ErrScriptNotFound) {
			writeNotFound(w, "script not found")
			return
		}
		if errors.Is(err, engine.ErrScriptRunning) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeInternalError(w, "failed to execute script")
		return
	}

	// Queued-mode invocations that went to the backlog have no run yet.
	if runID == "" {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"script": name,
			"status": "queued",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"script": name,
		"run_id": runID,
		"status": "started",
	})
}

// handleStopScript cancels a script's live runs and clears its queue.
func (s *Server) handleStopScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid script name")
		return
	}

	if err := s.engine.Stop(r.Context(), name); err != nil {
		if errors.Is(err, engine.ErrScriptNotFound) {
			writeNotFound(w, "script not found")
			return
		}
		writeInternalError(w, "failed to stop script")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"script": name,
		"status": "stopped",
	})
}

// handleListScriptRuns returns persisted run history for one script.
//
// Query parameters:
//   - limit: maximum rows to return (default from config, cap 500)
func (s *Server) handleListScriptRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid script name")
		return
	}

	s.listRuns(w, r, name)
}

// handleListRuns returns persisted run history across all scripts.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.listRuns(w, r, "")
}

// maxRunHistoryLimit caps a single history page regardless of the limit param.
const maxRunHistoryLimit = 500

// listRuns is the shared implementation behind the run history endpoints.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request, script string) {
	limit := s.runLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxRunHistoryLimit {
		limit = maxRunHistoryLimit
	}

	runs, err := s.engine.ListRuns(r.Context(), script, limit)
	if err != nil {
		writeInternalError(w, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*engine.RunRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleActiveRuns returns snapshots of all live runs.
func (s *Server) handleActiveRuns(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.engine.ActiveRuns(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list active runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": snapshots, "count": len(snapshots)})
}

// pruneRequest is the request body for POST /runs/prune.
type pruneRequest struct {
	// Before is an RFC 3339 timestamp; runs completed before it are deleted.
	// Exactly one of Before or RetainHours must be supplied.
	Before      string `json:"before,omitempty"`
	RetainHours int    `json:"retain_hours,omitempty"`
}

// handlePruneRuns deletes old run history rows.
func (s *Server) handlePruneRuns(w http.ResponseWriter, r *http.Request) {
	if s.runsRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "run history is not persisted")
		return
	}

	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var cutoff time.Time
	switch {
	case req.Before != "" && req.RetainHours != 0:
		writeBadRequest(w, "supply either before or retain_hours, not both")
		return
	case req.Before != "":
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			writeBadRequest(w, "before must be an RFC 3339 timestamp")
			return
		}
		cutoff = t
	case req.RetainHours > 0:
		cutoff = time.Now().UTC().Add(-time.Duration(req.RetainHours) * time.Hour)
	default:
		writeBadRequest(w, "supply before or a positive retain_hours")
		return
	}

	deleted, err := s.runsRepo.PruneRuns(r.Context(), cutoff)
	if err != nil {
		s.logger.Error("failed to prune run history", "error", err)
		writeInternalError(w, "failed to prune runs")
		return
	}

	s.logger.Info("run history pruned", "deleted", deleted, "before", cutoff)

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"before":  cutoff.Format(time.RFC3339),
	})
}
