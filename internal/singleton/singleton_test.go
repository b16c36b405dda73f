package singleton

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-ps"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// selfProcessName returns the image name go-ps reports for the running
// test binary, so a guard built with it sees this process as a live
// daemon.
func selfProcessName(t *testing.T) string {
	t.Helper()
	proc, err := ps.FindProcess(os.Getpid())
	if err != nil || proc == nil {
		t.Fatalf("looking up the test process: %v", err)
	}
	return proc.Executable()
}

func TestAcquireFreshInstall(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, "orchestratord")

	if err := g.Acquire(os.Getpid()); err != nil {
		t.Fatalf("Acquire on a fresh install: %v", err)
	}

	pid, ok := g.CurrentPID()
	if !ok || pid != os.Getpid() {
		t.Fatalf("CurrentPID() = %d, %v, want %d, true", pid, ok, os.Getpid())
	}
}

func TestAcquireConflictsWithLiveProcess(t *testing.T) {
	root := t.TempDir()
	name := selfProcessName(t)
	g := NewGuard(root, name)

	if err := g.Acquire(os.Getpid()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// A second guard pointed at the same root, with the test binary's
	// own process name, sees the first PID as live (it's our own test
	// process) and must refuse.
	g2 := NewGuard(root, name)
	err := g2.Acquire(os.Getpid() + 1)
	var already *orcerr.AlreadyRunningError
	if !errors.As(err, &already) {
		t.Fatalf("second Acquire error = %v, want *orcerr.AlreadyRunningError", err)
	}
	if already.PID != os.Getpid() {
		t.Fatalf("AlreadyRunningError.PID = %d, want %d", already.PID, os.Getpid())
	}
}

func TestReclaimsStalePIDWithWrongProcessName(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, "orchestratord")
	if err := g.Acquire(os.Getpid()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// A guard that expects a different process image treats the
	// recorded PID as not matching, so it's free to reclaim.
	g2 := NewGuard(root, "some-other-binary")
	if err := g2.Acquire(os.Getpid()); err != nil {
		t.Fatalf("Acquire with mismatched process name should reclaim, got: %v", err)
	}
}

func TestReleaseGracefulRemovesPIDFile(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, "orchestratord")
	if err := g.Acquire(os.Getpid()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.ReleaseGraceful(); err != nil {
		t.Fatalf("ReleaseGraceful: %v", err)
	}
	if _, ok := g.CurrentPID(); ok {
		t.Fatal("CurrentPID should report false after graceful release")
	}
	if !g.WasGraceful() {
		t.Fatal("WasGraceful should be true after ReleaseGraceful")
	}
}

func TestMarkGracefulIntentPrecedesSignal(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, "orchestratord")
	if err := g.Acquire(os.Getpid()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if g.WasGraceful() {
		t.Fatal("a freshly acquired guard should not report graceful before any stop was requested")
	}

	// `monitor stop` calls this before signaling, so the daemon's own
	// handler can later confirm the SIGTERM was expected.
	if err := g.MarkGracefulIntent(); err != nil {
		t.Fatalf("MarkGracefulIntent: %v", err)
	}
	if !g.WasGraceful() {
		t.Fatal("WasGraceful should report true once MarkGracefulIntent has run")
	}

	// The daemon's own shutdown path still removes the PID file.
	if err := g.ReleaseGraceful(); err != nil {
		t.Fatalf("ReleaseGraceful: %v", err)
	}
	if _, ok := g.CurrentPID(); ok {
		t.Fatal("CurrentPID should report false after ReleaseGraceful")
	}
}

func TestCurrentPIDMissingFile(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, "orchestratord")
	if _, ok := g.CurrentPID(); ok {
		t.Fatal("CurrentPID should report false when no PID file exists")
	}
}

func TestConcurrentAcquireOnlyOneWinner(t *testing.T) {
	root := t.TempDir()
	name := selfProcessName(t)

	const attempts = 8
	type result struct {
		pid int
		err error
	}
	results := make(chan result, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			// Every goroutine races to record the same real, currently
			// alive PID (the test process itself) so that whichever one
			// writes first is correctly seen as live by every other
			// contender's readLivePID check, under the test binary's own
			// process name.
			g := NewGuard(root, name)
			results <- result{pid: os.Getpid(), err: g.Acquire(os.Getpid())}
		}()
	}

	wins, conflicts := 0, 0
	for i := 0; i < attempts; i++ {
		r := <-results
		switch {
		case r.err == nil:
			wins++
		case orcerr.IsNotFound(r.err):
			t.Fatalf("unexpected NotFoundError from Acquire: %v", r.err)
		default:
			var already *orcerr.AlreadyRunningError
			if !errors.As(r.err, &already) {
				t.Fatalf("Acquire error = %v, want nil or *orcerr.AlreadyRunningError", r.err)
			}
			conflicts++
		}
	}

	if wins != 1 {
		t.Fatalf("got %d winning Acquire calls racing for the same root, want exactly 1 (other %d correctly conflicted)", wins, conflicts)
	}
}

func TestAcquireCreatesRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "install")
	g := NewGuard(root, "orchestratord")
	if err := g.Acquire(os.Getpid()); err != nil {
		t.Fatalf("Acquire should create the install root: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("install root not created: %v", err)
	}
}
