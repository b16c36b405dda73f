package classifier

import "testing"

func TestClassifyChangeDetection(t *testing.T) {
	in := Input{
		PrevTail:  "thinking...",
		NewTail:   "still generating a response, no prompt yet",
		PrevState: StateIdle,
	}
	if got := Classify(in); got != StateBusy {
		t.Fatalf("Classify() = %v, want Busy for changed tail without a readiness indicator", got)
	}
}

func TestClassifyReadyOnChange(t *testing.T) {
	in := Input{
		PrevTail:  "working...",
		NewTail:   "Type a message to continue\n> ",
		PrevState: StateBusy,
	}
	if got := Classify(in); got != StateReady {
		t.Fatalf("Classify() = %v, want Ready", got)
	}
}

func TestClassifyIdleAfterKTicks(t *testing.T) {
	tail := "done.\n> "
	in := Input{
		PrevTail:     tail,
		NewTail:      tail,
		PrevState:    StateReady,
		ElapsedTicks: 3,
		Thresholds:   Thresholds{IdleTicks: 3, UnresponsiveTicks: 6},
	}
	if got := Classify(in); got != StateIdle {
		t.Fatalf("Classify() = %v, want Idle at K=3 unchanged ticks with prompt", got)
	}
}

func TestClassifyUnresponsiveAfterMTicks(t *testing.T) {
	tail := "still working, no prompt visible"
	in := Input{
		PrevTail:     tail,
		NewTail:      tail,
		PrevState:    StateBusy,
		ElapsedTicks: 6,
		Thresholds:   Thresholds{IdleTicks: 3, UnresponsiveTicks: 6},
	}
	if got := Classify(in); got != StateUnresponsive {
		t.Fatalf("Classify() = %v, want Unresponsive at M=6 unchanged ticks without prompt", got)
	}
}

func TestClassifyCrashedOnBareShellPrompt(t *testing.T) {
	in := Input{
		PrevTail:  "> working on task\nDone!",
		NewTail:   "user@host:~/project$ ",
		PrevState: StateIdle,
	}
	if got := Classify(in); got != StateCrashed {
		t.Fatalf("Classify() = %v, want Crashed when a bare shell prompt replaces the agent UI", got)
	}
}

func TestClassifyCrashedRequiresPriorAgentUI(t *testing.T) {
	// A bare shell prompt with no prior agent-UI state (e.g. Starting) is
	// not yet a crash — the window simply hasn't launched the agent yet.
	in := Input{
		PrevTail:  "user@host:~$ ",
		NewTail:   "user@host:~$ ",
		PrevState: StateStarting,
	}
	if got := Classify(in); got == StateCrashed {
		t.Fatalf("Classify() = %v, want non-Crashed when there was no prior agent UI", got)
	}
}

func TestClassifyStructuralErrorEvidence(t *testing.T) {
	cases := []struct {
		name string
		tail string
	}{
		{"python traceback", "Traceback (most recent call last):\n  File \"x.py\", line 1"},
		{"go panic", "panic: runtime error: index out of range"},
		{"fatal error", "Fatal error: out of memory"},
		{"segfault", "Segmentation fault (core dumped)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := Input{PrevTail: "> working", NewTail: tc.tail, PrevState: StateBusy}
			if got := Classify(in); got != StateCrashed {
				t.Fatalf("Classify() = %v, want Crashed for structural evidence %q", got, tc.tail)
			}
		})
	}
}

// TestClassifyErrorWordIsNotCrash is the explicit spec.md §4.2/§8 boundary
// case: the word "error" inside agent prose must never trip a Crashed
// classification absent structural evidence.
func TestClassifyErrorWordIsNotCrash(t *testing.T) {
	tail := "I found the error in your code and fixed it.\n> "
	in := Input{PrevTail: "> working on it", NewTail: tail, PrevState: StateBusy}
	got := Classify(in)
	if got == StateCrashed {
		t.Fatalf("Classify() = %v, want Busy/Idle/Ready, not Crashed, for prose containing 'error'", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	in := Input{
		PrevTail:     "> a",
		NewTail:      "> b",
		PrevState:    StateReady,
		ElapsedTicks: 1,
		Thresholds:   Thresholds{IdleTicks: 3, UnresponsiveTicks: 6},
	}
	first := Classify(in)
	second := Classify(in)
	if first != second {
		t.Fatalf("Classify is not deterministic: %v != %v", first, second)
	}
}

func TestHashTailStability(t *testing.T) {
	a := HashTail("some pane text")
	b := HashTail("some pane text")
	c := HashTail("different pane text")
	if a != b {
		t.Fatal("HashTail not stable across identical input")
	}
	if a == c {
		t.Fatal("HashTail collided on distinct input (unexpected in this test)")
	}
}

func TestPaneStateString(t *testing.T) {
	cases := map[PaneState]string{
		StateUnknown:      "Unknown",
		StateStarting:     "Starting",
		StateReady:        "Ready",
		StateBusy:         "Busy",
		StateIdle:         "Idle",
		StateUnresponsive: "Unresponsive",
		StateCrashed:      "Crashed",
		StateGone:         "Gone",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("PaneState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
