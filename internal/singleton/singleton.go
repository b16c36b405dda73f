// Package singleton enforces spec.md §4.6's process-wide supervisor
// singleton: an exclusive file lock guards a short critical section that
// reads and atomically rewrites a PID file, following the structure of
// the teacher's internal/instance.InstanceManager (PID file plus a
// platform-specific exclusive lock), generalized to cover POSIX via
// golang.org/x/sys/unix flock rather than only the teacher's Windows
// path. Liveness checks use github.com/mitchellh/go-ps instead of
// shelling out, matching the cross-platform process enumeration
// wingedpig-trellis relies on for its service manager.
package singleton

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// PIDFileData is the persisted shape of daemon.pid.
type PIDFileData struct {
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	ProcessName string    `json:"process_name"`
}

// Guard owns the start-lock and PID file lifecycle for one installation.
type Guard struct {
	root        string // install root; daemon.pid / daemon.start.lock / daemon.graceful live here
	processName string // expected image name, e.g. "orchestratord"
}

// NewGuard constructs a Guard rooted at root.
func NewGuard(root, processName string) *Guard {
	return &Guard{root: root, processName: processName}
}

func (g *Guard) pidPath() string      { return filepath.Join(g.root, "daemon.pid") }
func (g *Guard) lockPath() string     { return filepath.Join(g.root, "daemon.start.lock") }
func (g *Guard) gracefulPath() string { return filepath.Join(g.root, "daemon.graceful") }

// Acquire implements spec.md §4.6 steps 1–3: take the exclusive start
// lock, check for a live conflicting PID, then atomically write the new
// PID file. Returns *orcerr.AlreadyRunningError if another daemon holds
// the singleton.
func (g *Guard) Acquire(pid int) error {
	if err := os.MkdirAll(g.root, 0o755); err != nil {
		return err
	}

	lock, err := acquireFileLock(g.lockPath(), 2*time.Second)
	if err != nil {
		return err
	}
	defer lock.Release()

	if existing, alive := g.readLivePID(); alive {
		return &orcerr.AlreadyRunningError{PID: existing, Path: g.pidPath()}
	}

	_ = os.Remove(g.gracefulPath())
	return g.writePIDAtomic(pid)
}

// readLivePID returns the PID in daemon.pid and whether it belongs to a
// live process whose image name matches g.processName. A stale file
// (process not alive, or PID reused by an unrelated process) reports
// alive=false so the caller reclaims it.
func (g *Guard) readLivePID() (pid int, alive bool) {
	data, err := os.ReadFile(g.pidPath())
	if err != nil {
		return 0, false
	}
	var parsed PIDFileData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, false
	}

	proc, err := ps.FindProcess(parsed.PID)
	if err != nil || proc == nil {
		return 0, false
	}
	if g.processName != "" && proc.Executable() != g.processName {
		return 0, false
	}
	return parsed.PID, true
}

// writePIDAtomic implements the open+O_EXCL... pattern via a temp file
// plus rename, matching spec.md §3's PID-file lifecycle note.
func (g *Guard) writePIDAtomic(pid int) error {
	data := PIDFileData{PID: pid, StartedAt: time.Now(), ProcessName: g.processName}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := g.pidPath() + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, g.pidPath())
}

// MarkGracefulIntent writes the daemon.graceful sentinel ahead of sending
// a shutdown signal. It is called by the `monitor stop` command, before
// signaling, so the daemon's own signal handler can later distinguish a
// confirmed operator stop from an external SIGTERM (spec.md §6's
// `monitor stop` contract).
func (g *Guard) MarkGracefulIntent() error {
	return os.WriteFile(g.gracefulPath(), nil, 0o644)
}

// ReleaseGraceful implements the graceful-shutdown half of §4.6 step 4:
// mark the shutdown as intentional and remove the PID file.
func (g *Guard) ReleaseGraceful() error {
	if err := os.WriteFile(g.gracefulPath(), nil, 0o644); err != nil {
		return err
	}
	if err := os.Remove(g.pidPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// WasGraceful reports whether the last shutdown set the graceful
// sentinel, distinguishing an operator stop from a crash.
func (g *Guard) WasGraceful() bool {
	_, err := os.Stat(g.gracefulPath())
	return err == nil
}

// CurrentPID returns the PID recorded on disk, if any, regardless of
// liveness — used by `monitor status`.
func (g *Guard) CurrentPID() (int, bool) {
	data, err := os.ReadFile(g.pidPath())
	if err != nil {
		return 0, false
	}
	var parsed PIDFileData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, false
	}
	return parsed.PID, true
}
