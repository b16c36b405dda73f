package tmux

import (
	"strconv"
	"strings"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// Target is a stable pane identifier of the form "session-name:window-index"
// (spec.md §3). Session names are opaque strings without a colon. The
// window index is looked up by window name only when a window is created;
// later writes use the index as stored, so a window renumbered after
// that lookup is not detected.
type Target struct {
	Session string
	Window  int
}

// String renders the target in session:window form.
func (t Target) String() string {
	return t.Session + ":" + strconv.Itoa(t.Window)
}

// ParseTarget splits "session:window" into its parts.
func ParseTarget(s string) (Target, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return Target{}, &orcerr.BadArgumentError{Reason: "target must be of the form session:window, got " + s}
	}
	session := s[:idx]
	windowStr := s[idx+1:]
	window, err := strconv.Atoi(windowStr)
	if err != nil {
		return Target{}, &orcerr.BadArgumentError{Reason: "window index must be numeric, got " + windowStr}
	}
	if strings.Contains(session, ":") {
		return Target{}, &orcerr.BadArgumentError{Reason: "session name must not contain ':': " + session}
	}
	return Target{Session: session, Window: window}, nil
}
