// Package supervisor implements the Agent Supervisor (spec.md §4.6): the
// central discover → classify → decide → apply state machine, run as a
// single cooperative loop. Crash-loop backoff and concurrent-recovery
// prevention live here; singleton enforcement is left to the caller
// (internal/singleton). The loop is grounded in the
// teacher's captain.Supervisor loop shape (ODSapper-CLIAIMONITOR)
// retargeted at tmux panes instead of WezTerm panes.
package supervisor

import (
	"time"

	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// Role mirrors spec.md §3's AgentRecord.role tagged variant.
type Role struct {
	Kind     RoleKind
	RoleName string // populated only for RoleWorker
}

// RoleKind distinguishes the three role shapes named in spec.md §3.
type RoleKind int

const (
	RoleOrchestrator RoleKind = iota
	RolePM
	RoleWorker
)

// AgentRecord is the in-memory record the Supervisor owns exclusively,
// per spec.md §3's invariant that the Supervisor is the only writer.
type AgentRecord struct {
	Target   tmux.Target
	Role     Role
	State    classifier.PaneState
	PrevTail string

	LastSeenChangeAt time.Time
	LastActivityHash uint64

	ConsecutiveIdleChecks int
	SentNudgeThisIdleRun  bool
	SentNudgeUnresponsive bool

	RecoveryAttemptsInWindow int
	LastRecoveryAt           time.Time
}

// deriveRole reads spec.md §3's role-derivation rule from a window name
// of the form "Claude-<role>".
func deriveRole(windowName string) (Role, bool) {
	const prefix = "Claude-"
	if len(windowName) <= len(prefix) || windowName[:len(prefix)] != prefix {
		return Role{}, false
	}
	name := windowName[len(prefix):]
	switch name {
	case "orchestrator":
		return Role{Kind: RoleOrchestrator}, true
	case "pm":
		return Role{Kind: RolePM}, true
	default:
		return Role{Kind: RoleWorker, RoleName: name}, true
	}
}
