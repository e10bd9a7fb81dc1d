package httpapi

import (
	"io"
	"net/http"

	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

const maxWorkflowBody = 1 << 20

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxWorkflowBody))
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	wf, err := s.workflowSvc.Import(r.Context(), data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wf)
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 100, 200)
	wfs, err := s.workflowSvc.List(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if wfs == nil {
		wfs = []*workflow.Workflow{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"workflows": wfs})
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "workflowId")
	if err != nil {
		badRequest(w, r, "invalid workflowId")
		return
	}
	wf, err := s.workflowSvc.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "workflowId")
	if err != nil {
		badRequest(w, r, "invalid workflowId")
		return
	}
	res, err := s.workflowSvc.Run(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
