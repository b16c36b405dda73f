// Package server is the read-only dashboard HTTP/WebSocket surface
// named in spec.md §4.7's "monitor dashboard" command and expanded in
// SPEC_FULL.md §11. It never mutates Supervisor state: every handler
// reads a Snapshot or the audit log and renders it. Routing and the
// WebSocket hub follow the teacher's internal/server package
// (ODSapper-CLIAIMONITOR), retargeted from its full read/write
// dashboard API onto a narrow, observation-only one.
package server

import (
	"time"

	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/supervisor"
)

// AgentView is the JSON-facing projection of a supervisor.AgentRecord.
// It exists so wire format stays stable even if AgentRecord grows
// fields the dashboard has no use for.
type AgentView struct {
	Target           string    `json:"target"`
	Session          string    `json:"session"`
	Role             string    `json:"role"`
	State            string    `json:"state"`
	LastSeenChangeAt time.Time `json:"last_seen_change_at"`
	Activity         ActivitySummary `json:"activity"`
}

// ActivitySummary is the best-effort, display-only text-mining result
// from pane scrollback (SPEC_FULL.md §12, grounded in
// agent_manager.py's get_all_status). It never feeds back into
// classification or recovery decisions.
type ActivitySummary struct {
	LastActivity string `json:"last_activity"`
	CurrentTask  string `json:"current_task,omitempty"`
}

// DashboardState is the full snapshot served by GET /api/state and
// pushed over the WebSocket on connect and after every tick.
type DashboardState struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Paused      bool        `json:"paused"`
	Agents      []AgentView `json:"agents"`
}

func roleString(r supervisor.Role) string {
	switch r.Kind {
	case supervisor.RoleOrchestrator:
		return "orchestrator"
	case supervisor.RolePM:
		return "pm"
	case supervisor.RoleWorker:
		return "worker:" + r.RoleName
	default:
		return "unknown"
	}
}

func stateString(s classifier.PaneState) string {
	return s.String()
}
