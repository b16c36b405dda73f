package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/audit"
	"github.com/agentfleet/orchestrator/internal/eventbus"
	"github.com/agentfleet/orchestrator/internal/schedule"
	"github.com/agentfleet/orchestrator/internal/supervisor"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the read-only dashboard HTTP server (spec.md §4.7's
// "monitor dashboard"). It holds no write path into the Supervisor.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub

	sup       *supervisor.Supervisor
	auditLog  *audit.Store
	pause     *schedule.PauseGate
	tailLines func(tmux.Target) string // optional, injected for activity mining
	log       *zap.Logger
}

// New constructs a Server. auditLog may be nil (the history endpoints
// then report an empty feed). tailFn, if non-nil, is used to enrich
// each AgentView with an ExtractActivitySummary of current pane text.
func New(addr string, sup *supervisor.Supervisor, auditLog *audit.Store, pause *schedule.PauseGate, tailFn func(tmux.Target) string, log *zap.Logger) *Server {
	s := &Server{
		hub:       NewHub(),
		sup:       sup,
		auditLog:  auditLog,
		pause:     pause,
		tailLines: tailFn,
		log:       log,
	}
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleGetState).Methods(http.MethodGet)
	api.HandleFunc("/agents", s.handleGetAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{target}/history", s.handleGetAgentHistory).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealthCheck).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Run starts the hub loop, a tick-poll broadcaster, and the HTTP
// listener, blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context, pollInterval time.Duration) error {
	done := make(chan struct{})
	go s.hub.Run(done)
	defer close(done)

	go s.pollAndBroadcast(ctx, pollInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Subscribe wires the server's hub to the embedded event bus so a
// TickSummary event pushes immediately instead of waiting for the next
// poll tick.
func (s *Server) Subscribe(client *eventbus.Client) error {
	_, err := client.Subscribe(eventbus.KindTickSummary, func(ev eventbus.Event) {
		if reason, ok := ev.Payload["reason"].(string); ok {
			s.hub.BroadcastTickSummary(reason)
		}
	})
	return err
}

// BroadcastPauseChange pushes a fresh snapshot immediately, used when
// internal/schedule.PauseGate.WatchPauseFile observes the on-disk pause
// sentinel change out from under the poll loop.
func (s *Server) BroadcastPauseChange() {
	s.hub.BroadcastState(s.snapshot())
}

func (s *Server) pollAndBroadcast(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.BroadcastState(s.snapshot())
		}
	}
}

func (s *Server) snapshot() DashboardState {
	records := s.sup.Snapshot()
	agents := make([]AgentView, 0, len(records))
	for _, r := range records {
		view := AgentView{
			Target:           r.Target.String(),
			Session:          r.Target.Session,
			Role:             roleString(r.Role),
			State:            stateString(r.State),
			LastSeenChangeAt: r.LastSeenChangeAt,
		}
		if s.tailLines != nil {
			view.Activity = ExtractActivitySummary(s.tailLines(r.Target))
		}
		agents = append(agents, view)
	}
	paused := s.pause != nil && s.pause.Paused()
	return DashboardState{GeneratedAt: time.Now(), Paused: paused, Agents: agents}
}
