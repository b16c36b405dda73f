package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/agentfleet/orchestrator/internal/tmux"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// handleGetState returns the full dashboard snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.snapshot())
}

// handleGetAgents returns just the agent list, without the paused flag
// wrapper, for callers that only want the table.
func (s *Server) handleGetAgents(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.snapshot().Agents)
}

// handleGetAgentHistory returns the audit trail of decisions applied to
// one target, newest first.
func (s *Server) handleGetAgentHistory(w http.ResponseWriter, r *http.Request) {
	targetStr := mux.Vars(r)["target"]
	if _, err := tmux.ParseTarget(targetStr); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.auditLog == nil {
		s.respondJSON(w, http.StatusOK, []struct{}{})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.auditLog.RecentForTarget(targetStr, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read audit history")
		return
	}
	s.respondJSON(w, http.StatusOK, history)
}

// handleHealthCheck is a liveness probe for orchestratord's dashboard.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"clients":   s.hub.ClientCount(),
	})
}

// handleWebSocket upgrades to a WebSocket and registers the client with
// the hub, sending the current snapshot immediately so the dashboard
// does not wait for the next poll tick.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, WebSocketBufferSize)}
	s.hub.register <- client

	if data, err := json.Marshal(WSMessage{Type: WSTypeStateUpdate, Data: s.snapshot()}); err == nil {
		client.send <- data
	}

	go client.readPump()
	go client.writePump()
}
