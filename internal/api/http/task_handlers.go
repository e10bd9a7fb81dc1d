package httpapi

import (
	"net/http"

	"github.com/agentdesk/agentdesk/internal/application/dispatcher"
	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	"github.com/agentdesk/agentdesk/internal/domain/agent"
	"github.com/agentdesk/agentdesk/internal/domain/task"
)

type taskCreateResponse struct {
	*task.Task
	RoutedBy string `json:"routedBy,omitempty"`
}

type dispatchResponse struct {
	Outcome dispatcher.Outcome `json:"outcome"`
	Counts  appTask.Counts     `json:"counts"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req appTask.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	t, err := s.taskSvc.Create(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := taskCreateResponse{Task: t}
	if req.AssignedAgent == "" {
		_, resp.RoutedBy = s.taskSvc.Explain(t.Title)
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var status *task.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := task.Status(v)
		switch st {
		case task.StatusPending, task.StatusProcessing, task.StatusCompleted, task.StatusFailed:
			status = &st
		default:
			badRequest(w, r, "unknown status "+v)
			return
		}
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	tasks, err := s.taskSvc.List(r.Context(), status, limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		badRequest(w, r, "invalid taskId")
		return
	}
	t, err := s.taskSvc.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) retryTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		badRequest(w, r, "invalid taskId")
		return
	}
	t, err := s.taskSvc.Retry(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) taskCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.taskSvc.Counts(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// dispatch runs at most one pending task and reports queue depth afterwards.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.dispatcher.DispatchOne(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	counts, err := s.taskSvc.Counts(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dispatchResponse{Outcome: outcome, Counts: counts})
}

func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"agents": agent.Catalog()})
}
