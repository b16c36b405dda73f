package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentfleet/orchestrator/internal/messaging"
	"github.com/agentfleet/orchestrator/internal/schedule"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

func newTestController(t *testing.T, adapter *tmux.Fake) *Controller {
	t.Helper()
	submitter := messaging.NewSubmitter(adapter, messaging.DefaultSubmitOptions(), nil, func(time.Duration) {})
	pause := schedule.NewPauseGate("")
	opts := DefaultOptions()
	opts.ReadinessWait = 200 * time.Millisecond
	opts.ReadinessPoll = 5 * time.Millisecond
	opts.BriefingsDir = t.TempDir()
	c := NewController(adapter, submitter, pause, opts, nil)
	c.SetClock(func(time.Duration) {}, time.Now)
	return c
}

func TestSpawnCreatesSessionAndWindow(t *testing.T) {
	ctx := context.Background()
	adapter := tmux.NewFake()
	c := newTestController(t, adapter)

	// The fake never shows a readiness indicator on its own, so seed one
	// right after the window would be created. We exploit that
	// CreateWindow is synchronous in the fake: call Spawn in a goroutine
	// is unnecessary because waitForReadiness polls CapturePane, and the
	// fake's pane text defaults to empty — set it on the target window
	// index we expect (pm is the first agent window in a fresh session,
	// window 1, after the bootstrap window 0).
	go func() {
		for i := 0; i < 50; i++ {
			adapter.SetPaneText(tmux.Target{Session: "demo", Window: 1}, "> ")
			time.Sleep(2 * time.Millisecond)
		}
	}()

	target, err := c.Spawn(ctx, "demo", "pm", "", Briefing{Body: "hello"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if target.Session != "demo" {
		t.Fatalf("target session = %q, want demo", target.Session)
	}

	windows, err := adapter.ListWindows(ctx, "demo")
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	found := false
	for _, w := range windows {
		if w.Name == WindowName("pm") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a window named %q, got %v", WindowName("pm"), windows)
	}
}

func TestSpawnReplacesExistingRole(t *testing.T) {
	ctx := context.Background()
	adapter := tmux.NewFake()
	_ = adapter.CreateSession(ctx, "demo", "bootstrap", "")
	existing, _ := adapter.CreateWindow(ctx, "demo", WindowName("pm"), "")
	adapter.SetPaneText(existing, "> old pm instance")

	c := newTestController(t, adapter)
	go func() {
		for i := 0; i < 50; i++ {
			windows, _ := adapter.ListWindows(ctx, "demo")
			for _, w := range windows {
				if w.Name == WindowName("pm") {
					adapter.SetPaneText(tmux.Target{Session: "demo", Window: w.Index}, "> ")
				}
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	_, err := c.Spawn(ctx, "demo", "pm", "", Briefing{Body: "hello again"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	windows, _ := adapter.ListWindows(ctx, "demo")
	count := 0
	for _, w := range windows {
		if w.Name == WindowName("pm") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one pm window after replacement, got %d", count)
	}
}

func TestSpawnTimesOutWithoutReadiness(t *testing.T) {
	ctx := context.Background()
	adapter := tmux.NewFake()
	c := newTestController(t, adapter)
	// No goroutine seeds a readiness indicator: pane stays empty forever.
	_, err := c.Spawn(ctx, "demo", "worker", "", Briefing{Body: "hi"})
	if err == nil {
		t.Fatal("expected a timeout error when readiness never appears")
	}
}

func TestSpawnBriefingFallbackWritesFile(t *testing.T) {
	adapter := tmux.NewFake()
	c := newTestController(t, adapter)

	path, err := c.writeBriefingFile("demo", tmux.Target{Session: "demo", Window: 2}, "fallback text")
	if err != nil {
		t.Fatalf("writeBriefingFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if string(data) != "fallback text" {
		t.Fatalf("briefing file contents = %q, want %q", data, "fallback text")
	}
	if filepath.Dir(path) != c.opts.BriefingsDir {
		t.Fatalf("briefing file dir = %q, want %q", filepath.Dir(path), c.opts.BriefingsDir)
	}
}

func TestRestartDoesNotResendBriefing(t *testing.T) {
	ctx := context.Background()
	adapter := tmux.NewFake()
	_ = adapter.CreateSession(ctx, "demo", "bootstrap", "")
	target, _ := adapter.CreateWindow(ctx, "demo", WindowName("backend"), "")

	c := newTestController(t, adapter)
	if err := c.Restart(ctx, target); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	for _, call := range adapter.SendKeysLog {
		if call.Literal && len(call.Keys) > 0 && call.Keys != c.opts.LaunchCommand {
			t.Fatalf("Restart sent unexpected literal payload %q; briefings must not be re-sent", call.Keys)
		}
	}
}

func TestKillCallsAdapter(t *testing.T) {
	ctx := context.Background()
	adapter := tmux.NewFake()
	_ = adapter.CreateSession(ctx, "demo", "bootstrap", "")
	target, _ := adapter.CreateWindow(ctx, "demo", WindowName("backend"), "")

	c := newTestController(t, adapter)
	if err := c.Kill(ctx, target); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	windows, _ := adapter.ListWindows(ctx, "demo")
	for _, w := range windows {
		if w.Index == target.Window {
			t.Fatalf("window %d still present after Kill", target.Window)
		}
	}
}

func TestDefaultPMBriefingCarriesRecoveryHint(t *testing.T) {
	if _, ok := DefaultBriefings["pm"]; !ok {
		t.Fatal("expected a default pm briefing")
	}
	if DefaultBriefings["pm"].RecoveryHint == "" {
		t.Fatal("expected the pm default briefing to carry a RecoveryHint")
	}
}

func TestSanitizeForFilename(t *testing.T) {
	got := sanitizeForFilename("my session:name!")
	for _, r := range got {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			t.Fatalf("sanitizeForFilename produced unsafe character %q in %q", r, got)
		}
	}
}
