package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"evently/internal/core"
	"evently/internal/publish"
	"evently/internal/types"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type createTasksRequest struct {
	URLs       []string `json:"urls"`
	SourceKind string   `json:"source_kind"`
}

type enqueueError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type createTasksResponse struct {
	Tasks  []types.Task   `json:"tasks"`
	Errors []enqueueError `json:"errors,omitempty"`
}

func (s *Server) handleCreateTasks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var req createTasksRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	kind := types.SourceKind(strings.TrimSpace(req.SourceKind))
	if kind != "" && !kind.Known() {
		writeError(w, http.StatusBadRequest, "unknown source_kind "+string(kind))
		return
	}

	resp := createTasksResponse{Tasks: make([]types.Task, 0, len(req.URLs))}
	pushFailed := false
	for _, target := range req.URLs {
		task, err := s.producer.Enqueue(r.Context(), target, kind)
		if err != nil {
			resp.Errors = append(resp.Errors, enqueueError{URL: target, Error: err.Error()})
			if !errors.Is(err, core.ErrInvalidRequest) {
				pushFailed = true
			}
		}
		if task.ID != 0 {
			resp.Tasks = append(resp.Tasks, task)
		}
	}

	status := http.StatusAccepted
	switch {
	case pushFailed:
		status = http.StatusServiceUnavailable
	case len(resp.Tasks) == 0:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	task, err := s.store.Tasks().Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := types.TaskStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	tasks, err := s.store.Tasks().List(r.Context(), status, limit)
	if err != nil {
		s.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	status := types.EventStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status == "" {
		status = types.EventDraft
	}
	if status != types.EventDraft && status != types.EventPublished {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	events, err := s.store.Events().ListByStatus(r.Context(), status, limit)
	if err != nil {
		s.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	event, err := s.store.Events().Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		writeError(w, http.StatusNotImplemented, "publishing is not configured")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	event, err := publish.Promote(r.Context(), s.store.Events(), s.publisher, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.logger.Warn("Publish failed", "event_id", id, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if err := s.store.GetConnection().PingContext(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.queue != nil {
		depth, err := s.queue.Depth(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["queue"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp["queue_depth"] = depth
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) storeError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, types.ErrNotFound) && notFound != "" {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("Store request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
