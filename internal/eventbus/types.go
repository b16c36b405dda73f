// Package eventbus fans out Supervisor activity to in-process and
// remote subscribers over an embedded NATS server, grounded on the
// teacher's internal/nats (embedded server.Server + nats.go client
// wrapper) and internal/events (Event envelope, Bus backpressure
// handling for in-process fan-out).
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the event types carried on the bus. Only the
// Supervisor publishes, through SupervisorPublisher; the Lifecycle
// Controller publishes no events.
type Kind string

const (
	KindPaneStateChanged   Kind = "pane_state_changed"
	KindRecoveryDecision   Kind = "recovery_decision"
	KindAgentSpawned       Kind = "agent_spawned"
	KindAgentRestarted     Kind = "agent_restarted"
	KindAgentKilled        Kind = "agent_killed"
	KindBroadcastCompleted Kind = "broadcast_completed"
	KindDaemonPaused       Kind = "daemon_paused"
	KindTickSummary        Kind = "tick_summary"
)

// Priority levels an event carries, used by the notification Router to
// decide which channels an event is worth escalating to.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is the envelope published on the bus. Payload is kept as a
// generic map so the dashboard and notification Router can both decode
// only the fields they care about without a shared schema package per
// event kind.
type Event struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// New builds a normal-priority Event with a generated ID and timestamp.
func New(kind Kind, source, target string, payload map[string]interface{}) Event {
	return NewWithPriority(kind, source, target, PriorityNormal, payload)
}

// NewWithPriority builds an Event at an explicit priority.
func NewWithPriority(kind Kind, source, target string, priority int, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Subject maps an event Kind to its NATS subject, namespaced under
// "orchestrator." so the embedded server can share a process with
// other subjects without collision.
func (e Event) Subject() string {
	return "orchestrator." + string(e.Kind)
}
