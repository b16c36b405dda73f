package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/lifecycle"
	"github.com/agentfleet/orchestrator/internal/messaging"
	"github.com/agentfleet/orchestrator/internal/schedule"
	"github.com/agentfleet/orchestrator/internal/supervisor"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

func noSleep(time.Duration) {}

func newTestServer(t *testing.T, f *tmux.Fake) *Server {
	t.Helper()
	sub := messaging.NewSubmitter(f, messaging.DefaultSubmitOptions(), zap.NewNop(), noSleep)
	pause := schedule.NewPauseGate("")
	lc := lifecycle.NewController(f, sub, pause, lifecycle.DefaultOptions(), zap.NewNop())
	lc.SetClock(noSleep, time.Now)
	opts := supervisor.Options{
		TickInterval:      time.Millisecond,
		TailLines:         50,
		IdleTicks:         2,
		UnresponsiveTicks: 2,
		CrashLoopLimit:    2,
		CrashLoopWindow:   time.Minute,
	}
	sup := supervisor.New(f, lc, sub, pause, opts, zap.NewNop(), nil)
	return New("", sup, nil, pause, nil, zap.NewNop())
}

func TestHandleGetStateReturnsAgents(t *testing.T) {
	f := tmux.NewFake()
	ctx := context.Background()
	_ = f.CreateSession(ctx, "proj", "Claude-orchestrator", "")
	f.SetPaneText(tmux.Target{Session: "proj", Window: 0}, "> ready")

	s := newTestServer(t, f)
	if err := s.sup.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var state DashboardState
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(state.Agents) != 1 {
		t.Fatalf("got %d agents, want 1", len(state.Agents))
	}
	if state.Agents[0].Role != "orchestrator" {
		t.Errorf("Role = %q, want orchestrator", state.Agents[0].Role)
	}
}

func TestHandleGetAgentHistoryWithoutAuditLogReturnsEmpty(t *testing.T) {
	f := tmux.NewFake()
	s := newTestServer(t, f)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/agents/proj:0/history", nil)
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "[]\n" {
		t.Fatalf("body = %q, want empty JSON array", rr.Body.String())
	}
}

func TestHandleGetAgentHistoryRejectsBadTarget(t *testing.T) {
	f := tmux.NewFake()
	s := newTestServer(t, f)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/agents/not-a-target/history", nil)
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleHealthCheck(t *testing.T) {
	f := tmux.NewFake()
	s := newTestServer(t, f)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestSecurityHeadersMiddlewareSetsGenericServerHeader(t *testing.T) {
	f := tmux.NewFake()
	s := newTestServer(t, f)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Server"); got != "orchestratord" {
		t.Fatalf("Server header = %q, want orchestratord", got)
	}
}
