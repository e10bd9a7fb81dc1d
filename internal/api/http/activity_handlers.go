package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentdesk/agentdesk/internal/domain/activity"
	"github.com/agentdesk/agentdesk/internal/infrastructure/sse"
)

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 50, 500)
	entries, err := s.activityLog.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

// activityStream pushes activity entries as server-sent events.
// ?kinds=task.completed,task.failed narrows the stream.
func (s *Server) activityStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondProblem(w, r, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := sse.NewClient(clientID, splitCSV(r.URL.Query().Get("kinds")))
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Send an initial comment to flush headers.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.Messages:
			if !ok || msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: " + msg.Event + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
