// Package classifier implements the Pane Classifier (spec.md §4.2): a
// pure function from a pane's recent output and timing history to a
// liveness state. It performs no I/O and keeps no clock of its own —
// every timestamp it needs is passed in by the caller, the same
// discipline the teacher's internal/wezterm keeps out of its readiness
// checks so that the decision logic stays table-testable.
package classifier

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// PaneState is the liveness state of one pane, per spec.md §3's AgentRecord.state.
type PaneState int

const (
	StateUnknown PaneState = iota
	StateStarting
	StateReady
	StateBusy
	StateIdle
	StateUnresponsive
	StateCrashed
	StateGone
)

func (s PaneState) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateReady:
		return "Ready"
	case StateBusy:
		return "Busy"
	case StateIdle:
		return "Idle"
	case StateUnresponsive:
		return "Unresponsive"
	case StateCrashed:
		return "Crashed"
	case StateGone:
		return "Gone"
	default:
		return "Unknown"
	}
}

// Thresholds carries the K/M tick thresholds the caller (the Supervisor)
// configures; see internal/config.Config.IdleTicks / UnresponsiveTicks.
type Thresholds struct {
	IdleTicks         int // K: unchanged ticks + prompt indicator -> Idle
	UnresponsiveTicks int // M: unchanged ticks, M > K -> Unresponsive/Crashed
}

// readinessIndicators are substrings that mark an interactive agent UI as
// at least Ready: a `>` prompt, a bordered input box, or a composer
// placeholder. These are deliberately loose text markers rather than a
// strict parser, mirroring how little structure a terminal UI actually
// exposes.
var readinessIndicators = []string{
	"> ",
	"│ >",
	"Type a message",
	"Type your message",
	"Human:",
}

// shellPromptPattern matches a bare shell prompt at the start of the
// final non-empty line: "$ ", "# ", or a typical PS1 like "user@host:~$ ".
var shellPromptPattern = regexp.MustCompile(`(?m)^[^\n]*[#$]\s*$`)

// structuralErrorPatterns require actual evidence of a crash, never the
// bare word "error" appearing in an agent's prose (spec.md §4.2).
var structuralErrorPatterns = []string{
	"Traceback (most recent call last)",
	"Fatal error:",
	"panic:",
	"Segmentation fault",
	"segfault",
	"command not found",
	"core dumped",
}

// Input bundles everything classify needs for one tick.
type Input struct {
	PrevTail     string
	NewTail      string
	PrevState    PaneState
	ElapsedTicks int // ticks since NewTail's hash last changed, inclusive of this one
	Thresholds   Thresholds
}

// HashTail returns a cheap digest of a captured tail, so the Supervisor
// can keep O(#agents) memory instead of storing full pane text
// (spec.md §4.6).
func HashTail(tail string) uint64 {
	return xxhash.Sum64String(tail)
}

// Classify is the pure decision function described in spec.md §4.2.
// It never touches the filesystem, the clock, or the network.
func Classify(in Input) PaneState {
	trimmed := strings.TrimRight(in.NewTail, "\n")
	changed := HashTail(in.PrevTail) != HashTail(in.NewTail)

	if hasStructuralError(trimmed) {
		return StateCrashed
	}

	ready := hasReadinessIndicator(trimmed)
	bareShell := isBareShellPrompt(trimmed)

	// Crashed: a bare shell prompt where the pane previously hosted the
	// agent UI — the process exited and exposed the host shell.
	if bareShell && !ready {
		switch in.PrevState {
		case StateReady, StateBusy, StateIdle, StateUnresponsive:
			return StateCrashed
		}
	}

	if changed {
		if ready {
			return StateReady
		}
		return StateBusy
	}

	// Unchanged tail: fall into Idle/Unresponsive/Crashed territory based
	// on how many ticks it's been stuck and whether a readiness indicator
	// is present.
	switch {
	case ready && in.ElapsedTicks >= thresholdOrDefault(in.Thresholds.IdleTicks, 3):
		return StateIdle
	// Missing-interface (spec.md §4.2): no readiness indicator, no shell
	// prompt, tail non-empty, stuck for more than M ticks. Reported as
	// Crashed, so the decision step recovers it exactly like a crash.
	case !ready && !bareShell && trimmed != "" && in.ElapsedTicks > thresholdOrDefault(in.Thresholds.UnresponsiveTicks, 6):
		return StateCrashed
	// Unresponsive: no readiness indicator, stuck for at least M ticks.
	case !ready && in.ElapsedTicks >= thresholdOrDefault(in.Thresholds.UnresponsiveTicks, 6):
		return StateUnresponsive
	case ready:
		return StateReady
	default:
		if in.PrevState == StateUnknown || in.PrevState == StateGone {
			return StateStarting
		}
		return in.PrevState
	}
}

func thresholdOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func hasReadinessIndicator(tail string) bool {
	for _, ind := range readinessIndicators {
		if strings.Contains(tail, ind) {
			return true
		}
	}
	return false
}

func isBareShellPrompt(tail string) bool {
	lines := strings.Split(tail, "\n")
	var lastNonEmpty string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			lastNonEmpty = lines[i]
			break
		}
	}
	if lastNonEmpty == "" {
		return false
	}
	return shellPromptPattern.MatchString(lastNonEmpty)
}

func hasStructuralError(tail string) bool {
	for _, pat := range structuralErrorPatterns {
		if strings.Contains(tail, pat) {
			return true
		}
	}
	return false
}
