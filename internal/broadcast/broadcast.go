// Package broadcast implements the Broadcast Coordinator (spec.md §4.7):
// fan-out of a single message to every matching window in a session,
// sequential per target so chunked deliveries never interleave on the
// adapter. The filtering and summary phrasing are grounded on the
// Python original's broadcast_message.py and broadcast_to_team.py —
// the aggregate failure summary below reproduces broadcast_message.py's
// "first 3 failures, then and N more" wording exactly, per SPEC_FULL.md
// §12's requirement that this be byte-identical, not merely equivalent.
package broadcast

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentfleet/orchestrator/internal/messaging"
	"github.com/agentfleet/orchestrator/internal/orcerr"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// Job describes one broadcast request.
type Job struct {
	Session       string
	Body          string
	RoleFilter    []string // case-insensitive substring match against window name; empty means all
	Excludes      []string // window names or stringified indices to skip
	CorrelationID string
}

// Result is the per-target outcome of a single delivery attempt.
type Result struct {
	Target     tmux.Target
	WindowName string
	Success    bool
	Err        error
}

// Outcome is the aggregate result of a Run.
type Outcome struct {
	Success bool
	Summary string
	Results []Result
}

// Coordinator runs Jobs against a tmux.Adapter via the Messaging Layer.
type Coordinator struct {
	adapter tmux.Adapter
	submit  *messaging.Submitter
}

// New constructs a Coordinator.
func New(adapter tmux.Adapter, submit *messaging.Submitter) *Coordinator {
	return &Coordinator{adapter: adapter, submit: submit}
}

// Run executes a broadcast job, delivering sequentially in enumeration
// order per spec.md §4.7 step 4 and §5's ordering guarantee.
func (c *Coordinator) Run(ctx context.Context, job Job) (Outcome, error) {
	if job.Session == "" || job.Body == "" {
		return Outcome{}, &orcerr.BadArgumentError{Reason: "session and message are required"}
	}

	hasSession, err := c.adapter.HasSession(ctx, job.Session)
	if err != nil {
		return Outcome{}, err
	}
	if !hasSession {
		return Outcome{}, &orcerr.NotFoundError{Target: fmt.Sprintf("session '%s'", job.Session)}
	}

	windows, err := c.adapter.ListWindows(ctx, job.Session)
	if err != nil {
		return Outcome{}, err
	}

	targets := filterWindows(windows, job.RoleFilter, job.Excludes)
	if len(targets) == 0 {
		return Outcome{}, &orcerr.NotFoundError{Target: fmt.Sprintf("target windows matching criteria in session '%s'", job.Session)}
	}

	results := make([]Result, 0, len(targets))
	successCount := 0
targetLoop:
	for _, w := range targets {
		select {
		case <-ctx.Done():
			break targetLoop
		default:
		}
		target := tmux.Target{Session: job.Session, Window: w.Index}
		deliverErr := c.submit.Deliver(ctx, target, job.Body)
		r := Result{Target: target, WindowName: w.Name, Success: deliverErr == nil, Err: deliverErr}
		results = append(results, r)
		if deliverErr == nil {
			successCount++
		}
	}

	return Outcome{
		Success: successCount == len(targets),
		Summary: summarize(job.Session, successCount, len(targets), results),
		Results: results,
	}, nil
}

func filterWindows(windows []tmux.Window, roleFilter, excludes []string) []tmux.Window {
	excludeSet := make(map[string]bool, len(excludes))
	for _, e := range excludes {
		excludeSet[e] = true
	}

	var out []tmux.Window
	for _, w := range windows {
		if excludeSet[w.Name] || excludeSet[fmt.Sprintf("%d", w.Index)] {
			continue
		}
		if len(roleFilter) > 0 && !matchesAnyRole(w.Name, roleFilter) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func matchesAnyRole(windowName string, roles []string) bool {
	lower := strings.ToLower(windowName)
	for _, role := range roles {
		if strings.Contains(lower, strings.ToLower(role)) {
			return true
		}
	}
	return false
}

// summarize reproduces broadcast_message.py's summary phrasing: full
// success, partial success with a truncated failure list, or total
// failure, each as a single sentence.
func summarize(session string, successCount, total int, results []Result) string {
	if successCount == total {
		return fmt.Sprintf("Message broadcast to %d agents in session '%s'", successCount, session)
	}

	var failed []string
	for _, r := range results {
		if !r.Success {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Target.String(), errString(r.Err)))
		}
	}

	if successCount == 0 {
		return fmt.Sprintf("Broadcast failed: No agents reached in session '%s'", session)
	}

	shown := failed
	suffix := ""
	if len(failed) > 3 {
		shown = failed[:3]
		suffix = fmt.Sprintf(" and %d more", len(failed)-3)
	}
	failedSummary := strings.Join(shown, "; ") + suffix
	return fmt.Sprintf("Partial success: %d/%d agents reached. Failures: %s", successCount, total, failedSummary)
}

func errString(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
