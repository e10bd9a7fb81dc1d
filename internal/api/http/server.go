package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appActivity "github.com/agentdesk/agentdesk/internal/application/activity"
	"github.com/agentdesk/agentdesk/internal/application/dispatcher"
	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	appWorkflow "github.com/agentdesk/agentdesk/internal/application/workflow"
	"github.com/agentdesk/agentdesk/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	taskSvc     *appTask.Service
	dispatcher  *dispatcher.Dispatcher
	workflowSvc *appWorkflow.Service
	activityLog *appActivity.Log
	sseHub      *sse.Hub
	logger      zerolog.Logger
}

func NewServer(
	taskSvc *appTask.Service,
	dispatcher *dispatcher.Dispatcher,
	workflowSvc *appWorkflow.Service,
	activityLog *appActivity.Log,
	sseHub *sse.Hub,
	logger zerolog.Logger,
) *Server {
	return &Server{
		taskSvc:     taskSvc,
		dispatcher:  dispatcher,
		workflowSvc: workflowSvc,
		activityLog: activityLog,
		sseHub:      sseHub,
		logger:      logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	// Dispatch, workflow runs and the activity stream are bounded elsewhere.
	timeout := middleware.Timeout(30 * time.Second)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.With(timeout).Post("/", s.createTask)
			r.With(timeout).Get("/", s.listTasks)
			r.With(timeout).Get("/counts", s.taskCounts)
			r.With(timeout).Get("/{taskId}", s.getTask)
			r.With(timeout).Post("/{taskId}/retry", s.retryTask)
		})

		r.Post("/dispatch", s.dispatch)
		r.With(timeout).Get("/agents", s.listAgents)

		r.Route("/workflows", func(r chi.Router) {
			r.With(timeout).Post("/", s.createWorkflow)
			r.With(timeout).Get("/", s.listWorkflows)
			r.With(timeout).Get("/{workflowId}", s.getWorkflow)
			r.Post("/{workflowId}/run", s.runWorkflow)
		})

		r.Route("/activity", func(r chi.Router) {
			r.With(timeout).Get("/", s.listActivity)
			r.Get("/stream", s.activityStream)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
