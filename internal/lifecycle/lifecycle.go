// Package lifecycle implements the Lifecycle Controller (spec.md §4.5):
// Spawn, Restart, and Kill operations for agents running inside tmux
// windows, plus the briefing-delivery and pause-during-spawn behavior
// those operations depend on. The step structure is grounded in the
// teacher's window-allocation flow in ODSapper-CLIAIMONITOR's instance
// package, retargeted at tmux naming conventions.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/messaging"
	"github.com/agentfleet/orchestrator/internal/orcerr"
	"github.com/agentfleet/orchestrator/internal/schedule"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// Role identifies the kind of agent occupying a window, derived from the
// window-name prefix (spec.md §3's AgentRecord.role).
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RolePM           Role = "pm"
	RoleWorker       Role = "worker"
)

// WindowName renders the tmux window name convention "Claude-<role>".
func WindowName(role string) string {
	return "Claude-" + role
}

// Briefing is the message delivered to a freshly spawned agent.
type Briefing struct {
	Body string
	// RecoveryHint supplements a PM's briefing with instructions for
	// restarting a failed worker using the team's role layout, grounded
	// in the original pm_manager.py's PM_BRIEFING text. Empty for
	// non-PM roles.
	RecoveryHint string
}

// Text returns the briefing body with its recovery hint appended, if any.
func (b Briefing) Text() string {
	if b.RecoveryHint == "" {
		return b.Body
	}
	return b.Body + "\n\n" + b.RecoveryHint
}

// DefaultBriefings mirrors agent_manager.py's AGENT_BRIEFINGS table:
// role-keyed defaults used when Spawn is called without an explicit
// briefing. Additive to operator-supplied briefings, never a replacement.
var DefaultBriefings = map[string]Briefing{
	"pm": {
		Body: "You are the project manager for this session. Coordinate the " +
			"worker agents, track task completion, and report blockers.",
		RecoveryHint: "If a worker agent appears crashed or unresponsive, restart " +
			"it with its original role context rather than reassigning the role.",
	},
	"frontend-developer": {
		Body: "You are the frontend developer. Implement UI changes per the task " +
			"plan and coordinate with the backend developer on API contracts.",
	},
	"frontend-qa": {
		Body: "You are frontend QA. Verify UI changes against the task plan and " +
			"report regressions with reproduction steps.",
	},
	"backend-developer": {
		Body: "You are the backend developer. Implement service and API changes " +
			"per the task plan.",
	},
	"backend-qa": {
		Body: "You are backend QA. Verify API and service behavior against the " +
			"task plan.",
	},
	"testing-developer": {
		Body: "You are responsible for test infrastructure. Keep the suite green " +
			"and flag flaky tests.",
	},
	"testing-qa": {
		Body: "You are test QA. Review test coverage and flag gaps against the " +
			"task plan.",
	},
}

// Options carries the timing knobs Spawn/Restart consult.
type Options struct {
	LaunchCommand    string // e.g. "claude" — the agent binary invoked in a fresh window
	ReadinessWait    time.Duration
	ReadinessPoll    time.Duration
	PauseDuringSpawn time.Duration
	BriefingsDir     string
}

// DefaultOptions mirrors config.Default()'s lifecycle-relevant fields.
func DefaultOptions() Options {
	return Options{
		LaunchCommand:    "claude",
		ReadinessWait:    8 * time.Second,
		ReadinessPoll:    500 * time.Millisecond,
		PauseDuringSpawn: 30 * time.Second,
		BriefingsDir:     "./.tmux_orchestrator/briefings",
	}
}

// Controller implements Spawn/Restart/Kill.
type Controller struct {
	adapter tmux.Adapter
	submit  *messaging.Submitter
	pause   *schedule.PauseGate
	opts    Options
	sleep   func(time.Duration)
	now     func() time.Time
	log     *zap.Logger
}

// NewController constructs a lifecycle Controller.
func NewController(adapter tmux.Adapter, submit *messaging.Submitter, pause *schedule.PauseGate, opts Options, log *zap.Logger) *Controller {
	return &Controller{
		adapter: adapter,
		submit:  submit,
		pause:   pause,
		opts:    opts,
		sleep:   time.Sleep,
		now:     time.Now,
		log:     log,
	}
}

// SetClock overrides time sources for deterministic tests.
func (c *Controller) SetClock(sleep func(time.Duration), now func() time.Time) {
	c.sleep = sleep
	c.now = now
}

// Spawn implements spec.md §4.5's Spawn(session, role, cwd, briefing).
func (c *Controller) Spawn(ctx context.Context, session, role, cwd string, briefing Briefing) (tmux.Target, error) {
	if role == "" {
		return tmux.Target{}, &orcerr.BadArgumentError{Reason: "role must not be empty"}
	}

	if c.pause != nil {
		c.pause.PauseFor(c.opts.PauseDuringSpawn)
		defer c.pause.Clear()
	}

	has, err := c.adapter.HasSession(ctx, session)
	if err != nil {
		return tmux.Target{}, err
	}
	if !has {
		if err := c.adapter.CreateSession(ctx, session, "bootstrap", cwd); err != nil {
			return tmux.Target{}, err
		}
	}

	windowName := WindowName(role)
	if err := c.killExistingRole(ctx, session, windowName); err != nil {
		return tmux.Target{}, err
	}

	target, err := c.adapter.CreateWindow(ctx, session, windowName, cwd)
	if err != nil {
		return tmux.Target{}, err
	}

	if err := c.adapter.SendKeys(ctx, target, c.opts.LaunchCommand, true); err != nil {
		return tmux.Target{}, err
	}
	if err := c.adapter.SendKeys(ctx, target, "Enter", false); err != nil {
		return tmux.Target{}, err
	}

	if err := c.waitForReadiness(ctx, target); err != nil {
		return tmux.Target{}, err
	}

	if briefing.Text() == "" {
		if def, ok := DefaultBriefings[role]; ok {
			briefing = def
		}
	}
	c.deliverBriefing(ctx, session, target, briefing)

	return target, nil
}

// killExistingRole implements step 2: replacement semantics for an
// already-present agent of the same role in this session.
func (c *Controller) killExistingRole(ctx context.Context, session, windowName string) error {
	windows, err := c.adapter.ListWindows(ctx, session)
	if err != nil {
		if orcerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, w := range windows {
		if w.Name == windowName {
			if err := c.adapter.KillWindow(ctx, tmux.Target{Session: session, Window: w.Index}); err != nil {
				return err
			}
		}
	}
	return nil
}

// waitForReadiness polls capture_pane until a readiness indicator
// appears or the bounded wait expires, aborting early if the window
// disappears (window-killer protection, spec.md §4.5 step 5).
func (c *Controller) waitForReadiness(ctx context.Context, target tmux.Target) error {
	deadline := c.now().Add(c.opts.ReadinessWait)
	for {
		has, err := c.adapter.HasSession(ctx, target.Session)
		if err != nil {
			return err
		}
		if !has {
			return &orcerr.NotFoundError{Target: target.String()}
		}

		tail, err := c.adapter.CapturePane(ctx, target, 100)
		if err != nil {
			return err
		}
		state := classifier.Classify(classifier.Input{PrevTail: tail, NewTail: tail, PrevState: classifier.StateStarting})
		if state == classifier.StateReady {
			return nil
		}

		if c.now().After(deadline) {
			return &orcerr.TimeoutError{Op: "readiness wait for " + target.String(), Timeout: c.opts.ReadinessWait.String()}
		}
		c.sleep(c.opts.ReadinessPoll)
	}
}

// deliverBriefing sends the briefing via the Messaging Layer; on failure
// it writes the briefing to the briefings directory and sends a one-line
// pointer instead (spec.md §4.5 step 6, §4.4's fallback path).
func (c *Controller) deliverBriefing(ctx context.Context, session string, target tmux.Target, briefing Briefing) {
	text := briefing.Text()
	if text == "" {
		return
	}
	if c.submit == nil {
		return
	}
	if err := c.submit.Deliver(ctx, target, text); err == nil {
		return
	}

	path, writeErr := c.writeBriefingFile(session, target, text)
	if writeErr != nil {
		if c.log != nil {
			c.log.Error("briefing fallback write failed", zap.String("target", target.String()), zap.Error(writeErr))
		}
		return
	}
	_ = c.submit.Deliver(ctx, target, fmt.Sprintf("please read %s", path))
}

func (c *Controller) writeBriefingFile(session string, target tmux.Target, text string) (string, error) {
	dir := c.opts.BriefingsDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("briefing_%s_%d.txt", sanitizeForFilename(session), target.Window)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeForFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Restart implements spec.md §4.5's Restart(target): it does not
// re-send the briefing, trusting the agent to rehydrate its own context.
func (c *Controller) Restart(ctx context.Context, target tmux.Target) error {
	if err := c.adapter.SendKeys(ctx, target, "C-c", false); err != nil {
		return err
	}
	c.sleep(1 * time.Second)
	if err := c.adapter.SendKeys(ctx, target, "C-u", false); err != nil {
		return err
	}
	if err := c.adapter.SendKeys(ctx, target, c.opts.LaunchCommand, true); err != nil {
		return err
	}
	return c.adapter.SendKeys(ctx, target, "Enter", false)
}

// Kill implements spec.md §4.5's Kill(target).
func (c *Controller) Kill(ctx context.Context, target tmux.Target) error {
	return c.adapter.KillWindow(ctx, target)
}
