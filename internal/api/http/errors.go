package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/moogar0880/problems"

	"github.com/agentdesk/agentdesk/internal/domain/task"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
)

func respondProblem(w http.ResponseWriter, r *http.Request, status int, kind, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(kind).
		WithDetail(detail)
	w.Header().Set("Content-Type", problems.ProblemMediaType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	respondProblem(w, r, http.StatusBadRequest, "validation_error", detail)
}

// respondError maps domain errors to problem documents.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, task.ErrValidation), errors.Is(err, workflow.ErrInvalidDefinition):
		badRequest(w, r, err.Error())
	case errors.Is(err, task.ErrNotFound):
		respondProblem(w, r, http.StatusNotFound, "task_not_found", err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		respondProblem(w, r, http.StatusNotFound, "workflow_not_found", err.Error())
	case errors.Is(err, task.ErrInvalidState):
		respondProblem(w, r, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, workflow.ErrNoTriggerNode):
		respondProblem(w, r, http.StatusUnprocessableEntity, "no_trigger_node", err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondProblem(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
