package eventbus

// SupervisorPublisher adapts a Client to supervisor.Publisher, so the
// Supervisor can stay unaware of NATS and eventbus.Event entirely.
type SupervisorPublisher struct {
	client *Client
	source string
}

// NewSupervisorPublisher builds a publisher that tags every event with
// source (typically the daemon's own session/host identity).
func NewSupervisorPublisher(client *Client, source string) *SupervisorPublisher {
	return &SupervisorPublisher{client: client, source: source}
}

// Publish implements supervisor.Publisher.
func (p *SupervisorPublisher) Publish(kind, target, session, reason string) {
	ev := NewWithPriority(mapKind(kind), p.source, target, priorityFor(kind), map[string]interface{}{
		"session": session,
		"reason":  reason,
	})
	_ = p.client.Publish(ev)
}

func mapKind(kind string) Kind {
	switch kind {
	case "Restart":
		return KindAgentRestarted
	case "RespawnPM":
		return KindAgentSpawned
	case "MarkMissing":
		return KindAgentKilled
	case "PaneStateChanged":
		return KindPaneStateChanged
	case "TickSummary":
		return KindTickSummary
	default:
		return KindRecoveryDecision
	}
}

// priorityFor assigns a notification priority to a decision kind, so
// channels with a MinPriority filter (Discord, Slack, email) can ignore
// routine churn and escalate crash-loop trips (Critical) and restarts,
// PM respawns and missing agents (High).
func priorityFor(kind string) int {
	switch kind {
	case "RateLimited":
		return PriorityCritical
	case "Restart", "RespawnPM", "MarkMissing":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}
