package supervisor

import (
	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// DecisionKind enumerates spec.md §3's RecoveryDecision variants.
type DecisionKind int

const (
	DecisionNoOp DecisionKind = iota
	DecisionSendNudge
	DecisionRestart
	DecisionRespawnPM
	DecisionMarkMissing
)

// Decision is the pure value produced by decide.
type Decision struct {
	Kind    DecisionKind
	Target  tmux.Target
	Session string
	Message string
}

// decide implements spec.md §4.6's decision table. It is a pure
// function of (record, new classification) as required by §8's
// testable properties — no I/O, no clock reads beyond what the record
// already carries.
func decide(r *AgentRecord, newState classifier.PaneState) Decision {
	switch newState {
	case classifier.StateBusy, classifier.StateReady:
		return Decision{Kind: DecisionNoOp, Target: r.Target}

	case classifier.StateIdle:
		if r.State != classifier.StateIdle {
			// First tick entering the idle streak: nudge once.
			return Decision{Kind: DecisionSendNudge, Target: r.Target, Message: "status?"}
		}
		if !r.SentNudgeThisIdleRun {
			return Decision{Kind: DecisionSendNudge, Target: r.Target, Message: "status?"}
		}
		return Decision{Kind: DecisionNoOp, Target: r.Target}

	case classifier.StateUnresponsive:
		if r.State != classifier.StateUnresponsive {
			return Decision{Kind: DecisionSendNudge, Target: r.Target, Message: "status?"}
		}
		// Still unresponsive next tick: escalate to Restart.
		if r.Role.Kind == RolePM {
			return Decision{Kind: DecisionRespawnPM, Target: r.Target, Session: r.Target.Session}
		}
		return Decision{Kind: DecisionRestart, Target: r.Target}

	case classifier.StateCrashed:
		if r.Role.Kind == RolePM {
			return Decision{Kind: DecisionRespawnPM, Target: r.Target, Session: r.Target.Session}
		}
		return Decision{Kind: DecisionRestart, Target: r.Target}

	case classifier.StateGone:
		return Decision{Kind: DecisionMarkMissing, Target: r.Target}

	default:
		return Decision{Kind: DecisionNoOp, Target: r.Target}
	}
}
