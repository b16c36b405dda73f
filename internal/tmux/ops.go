// Package tmux is the Multiplexer Adapter (spec.md §4.1): a thin,
// synchronous wrapper over the external tmux binary. Every operation is a
// fresh process invocation; no long-lived connection is kept. The rate
// limiting and per-call timeout pattern is carried over from the
// teacher's internal/wezterm.Ops, retargeted at tmux subcommands instead
// of the WezTerm CLI.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// Session describes one tmux session.
type Session struct {
	Name      string
	CreatedAt time.Time
	Attached  bool
}

// Window describes one window within a session. Indices may be sparse.
type Window struct {
	Index int
	Name  string
}

// Adapter is the narrow interface every other component depends on.
// Ops is the real implementation; tests substitute a Fake.
type Adapter interface {
	ListSessions(ctx context.Context) ([]Session, error)
	ListWindows(ctx context.Context, session string) ([]Window, error)
	HasSession(ctx context.Context, session string) (bool, error)
	CreateSession(ctx context.Context, session, firstWindowName, cwd string) error
	CreateWindow(ctx context.Context, session, name, cwd string) (Target, error)
	KillWindow(ctx context.Context, target Target) error
	KillSession(ctx context.Context, session string) error
	CapturePane(ctx context.Context, target Target, tailLines int) (string, error)
	SendKeys(ctx context.Context, target Target, keys string, literal bool) error
	SetPasteBuffer(ctx context.Context, text string) error
	PasteBuffer(ctx context.Context, target Target) error
}

// Ops provides thread-safe tmux CLI operations with rate limiting, the
// same shape as the teacher's wezterm.Ops singleton but stateless enough
// to be constructed per-daemon rather than as a package-level global.
type Ops struct {
	mu            sync.Mutex
	lastOp        time.Time
	minOpInterval time.Duration
	readTimeout   time.Duration
	execTimeout   time.Duration
	binary        string
	log           *zap.Logger
}

// NewOps constructs an Ops adapter. binary defaults to "tmux" on PATH.
func NewOps(binary string, readTimeout, execTimeout time.Duration, log *zap.Logger) *Ops {
	if binary == "" {
		binary = "tmux"
	}
	return &Ops{
		minOpInterval: 50 * time.Millisecond,
		readTimeout:   readTimeout,
		execTimeout:   execTimeout,
		binary:        binary,
		log:           log,
	}
}

func (o *Ops) waitForInterval() {
	elapsed := time.Since(o.lastOp)
	if elapsed < o.minOpInterval {
		time.Sleep(o.minOpInterval - elapsed)
	}
	o.lastOp = time.Now()
}

func (o *Ops) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	o.mu.Lock()
	o.waitForInterval()
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.binary, args...)
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &orcerr.TransportError{Op: strings.Join(args, " "), Err: fmt.Errorf("timed out after %s", timeout)}
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			if isNotFoundMessage(stderr) {
				return nil, &orcerr.NotFoundError{Target: strings.Join(args, " ")}
			}
			return nil, &orcerr.TransportError{Op: strings.Join(args, " "), Err: fmt.Errorf("%s: %s", err, stderr)}
		}
		return nil, &orcerr.TransportError{Op: strings.Join(args, " "), Err: err}
	}
	return out, nil
}

func isNotFoundMessage(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "can't find session") ||
		strings.Contains(s, "session not found") ||
		strings.Contains(s, "can't find window") ||
		strings.Contains(s, "no such")
}

// ListSessions lists all tmux sessions in current order.
func (o *Ops) ListSessions(ctx context.Context) ([]Session, error) {
	out, err := o.run(ctx, o.readTimeout, "list-sessions", "-F", "#{session_name}\t#{session_created}\t#{session_attached}")
	if err != nil {
		if orcerr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []Session
	for _, line := range splitLines(out) {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		createdUnix, _ := strconv.ParseInt(parts[1], 10, 64)
		sessions = append(sessions, Session{
			Name:      parts[0],
			CreatedAt: time.Unix(createdUnix, 0),
			Attached:  parts[2] == "1",
		})
	}
	return sessions, nil
}

// ListWindows enumerates windows in a session in current display order.
func (o *Ops) ListWindows(ctx context.Context, session string) ([]Window, error) {
	out, err := o.run(ctx, o.readTimeout, "list-windows", "-t", session, "-F", "#{window_index}\t#{window_name}")
	if err != nil {
		return nil, err
	}
	var windows []Window
	for _, line := range splitLines(out) {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		windows = append(windows, Window{Index: idx, Name: parts[1]})
	}
	return windows, nil
}

// HasSession reports whether a session exists.
func (o *Ops) HasSession(ctx context.Context, session string) (bool, error) {
	_, err := o.run(ctx, o.readTimeout, "has-session", "-t", session)
	if err != nil {
		if orcerr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateSession creates a session with a throwaway first window — the
// caller must never name that window like an agent role (lifecycle.go
// enforces this, §4.5 step 1).
func (o *Ops) CreateSession(ctx context.Context, session, firstWindowName, cwd string) error {
	args := []string{"new-session", "-d", "-s", session, "-n", firstWindowName}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	_, err := o.run(ctx, o.execTimeout, args...)
	if err == nil && o.log != nil {
		o.log.Debug("created session", zap.String("session", session))
	}
	return err
}

// CreateWindow appends a new window and resolves its index by name
// lookup afterward, per spec.md §4.1's append-plus-renumbering rationale.
func (o *Ops) CreateWindow(ctx context.Context, session, name, cwd string) (Target, error) {
	args := []string{"new-window", "-t", session, "-n", name}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	if _, err := o.run(ctx, o.execTimeout, args...); err != nil {
		return Target{}, err
	}
	return o.ResolveByName(ctx, session, name)
}

// ResolveByName finds a window's current index from its name, tolerating
// renumbering that may have happened since it was created.
func (o *Ops) ResolveByName(ctx context.Context, session, name string) (Target, error) {
	windows, err := o.ListWindows(ctx, session)
	if err != nil {
		return Target{}, err
	}
	for _, w := range windows {
		if w.Name == name {
			return Target{Session: session, Window: w.Index}, nil
		}
	}
	return Target{}, &orcerr.NotFoundError{Target: session + ":" + name}
}

// KillWindow closes a single window, idempotently swallowing NotFound.
func (o *Ops) KillWindow(ctx context.Context, target Target) error {
	_, err := o.run(ctx, o.execTimeout, "kill-window", "-t", target.String())
	if orcerr.IsNotFound(err) {
		return nil
	}
	return err
}

// KillSession closes an entire session, idempotently.
func (o *Ops) KillSession(ctx context.Context, session string) error {
	_, err := o.run(ctx, o.execTimeout, "kill-session", "-t", session)
	if orcerr.IsNotFound(err) {
		return nil
	}
	return err
}

// CapturePane reads the visible pane plus scrollback tail without
// blocking for new output (spec.md §4.1).
func (o *Ops) CapturePane(ctx context.Context, target Target, tailLines int) (string, error) {
	startLine := fmt.Sprintf("-%d", tailLines)
	out, err := o.run(ctx, o.readTimeout, "capture-pane", "-p", "-t", target.String(), "-S", startLine)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SendKeys injects keystrokes. literal=true writes data verbatim;
// literal=false interprets tokens like Enter, C-c, C-u as control
// sequences (spec.md §4.1).
func (o *Ops) SendKeys(ctx context.Context, target Target, keys string, literal bool) error {
	args := []string{"send-keys", "-t", target.String()}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, keys)
	_, err := o.run(ctx, o.execTimeout, args...)
	return err
}

// SetPasteBuffer loads text into the tmux paste buffer, used by the
// Submitter's paste-buffer fallback method (spec.md §4.4).
func (o *Ops) SetPasteBuffer(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, o.binary, "load-buffer", "-")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return &orcerr.TransportError{Op: "load-buffer", Err: err}
	}
	return nil
}

// PasteBuffer pastes the current tmux paste buffer into target.
func (o *Ops) PasteBuffer(ctx context.Context, target Target) error {
	_, err := o.run(ctx, o.execTimeout, "paste-buffer", "-t", target.String())
	return err
}

func splitLines(out []byte) []string {
	text := strings.TrimRight(string(out), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
