// Package schedule implements the Scheduler / Pause Gate (spec.md §4.8):
// an advisory pause sentinel with a deadline that the Supervisor's loop
// consults each tick, and a deferred one-shot cooperative task. The
// atomic temp-plus-rename sentinel write
// follows the same pattern the teacher's instance package uses for its
// PID file.
package schedule

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PauseGate is an in-memory pause sentinel shared between the Lifecycle
// Controller (writer, during spawn) and the Supervisor (reader, each
// tick). It is also optionally persisted to disk so that `monitor pause`
// issued from a separate CLI invocation is visible to a running daemon.
type PauseGate struct {
	mu       sync.Mutex
	deadline time.Time
	path     string // optional on-disk sentinel; empty disables persistence
	now      func() time.Time
}

// NewPauseGate constructs a PauseGate. path may be empty to keep the
// gate purely in-memory, visible only within this process.
func NewPauseGate(path string) *PauseGate {
	return &PauseGate{path: path, now: time.Now}
}

// PauseFor sets the pause deadline to now+d, writing the on-disk
// sentinel if a path was configured (spec.md's daemon.pause).
func (p *PauseGate) PauseFor(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = p.now().Add(d)
	if p.path != "" {
		_ = writeSentinelAtomic(p.path, strconv.FormatInt(p.deadline.Unix(), 10))
	}
}

// Clear removes the pause immediately.
func (p *PauseGate) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = time.Time{}
	if p.path != "" {
		_ = os.Remove(p.path)
	}
}

// Paused reports whether the gate is currently paused and unexpired,
// consulting only the on-disk sentinel if persistence is enabled (so
// that an out-of-process `monitor pause` is observed) and only the
// in-memory deadline otherwise.
func (p *PauseGate) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path != "" {
		if deadline, ok := readSentinelDeadline(p.path); ok {
			return p.now().Before(deadline)
		}
		return false
	}
	if p.deadline.IsZero() {
		return false
	}
	return p.now().Before(p.deadline)
}

func readSentinelDeadline(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(epoch, 0), true
}

func writeSentinelAtomic(path, contents string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(contents), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WatchPauseFile watches the directory holding the gate's on-disk
// sentinel and calls onChange whenever the sentinel is created, written,
// or removed, so a dashboard can reflect pause transitions immediately
// instead of waiting for its own poll tick. Returns a stop function; a
// PauseGate built without a path returns a no-op stop function, since
// there is nothing on disk to watch.
func (p *PauseGate) WatchPauseFile(onChange func()) (stop func(), err error) {
	if p.path == "" {
		return func() {}, nil
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(p.path) {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

// DeferredTask is a fire-and-forget cooperative timer for a one-shot
// follow-up action. The Lifecycle Controller does not use it: Spawn
// delivers the briefing synchronously once the readiness wait ends.
// It is implemented as a goroutine plus a cancel channel, never a
// separate process.
type DeferredTask struct {
	cancel chan struct{}
	once   sync.Once
}

// After schedules fn to run after d unless Cancel is called first.
func After(d time.Duration, fn func()) *DeferredTask {
	t := &DeferredTask{cancel: make(chan struct{})}
	timer := time.NewTimer(d)
	go func() {
		select {
		case <-timer.C:
			fn()
		case <-t.cancel:
			timer.Stop()
		}
	}()
	return t
}

// Cancel prevents the deferred task from firing, if it hasn't already.
func (t *DeferredTask) Cancel() {
	t.once.Do(func() { close(t.cancel) })
}
