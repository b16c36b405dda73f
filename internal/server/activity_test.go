package server

import "testing"

func TestExtractLastActivityPrefersBracketedTimestamp(t *testing.T) {
	tail := "[2024-01-02 03:04:05] started\nsome output\n[2024-01-02 03:05:00] next\n"
	got := ExtractActivitySummary(tail)
	if got.LastActivity != "2024-01-02 03:05:00" {
		t.Fatalf("LastActivity = %q, want the last bracketed timestamp", got.LastActivity)
	}
}

func TestExtractLastActivityFallsBackToRelative(t *testing.T) {
	cases := map[string]string{
		"updated 5 minutes ago":  "5 minutes ago",
		"finished 2 hours ago":   "2 hours ago",
		"done, pushed just now":  "just now",
	}
	for tail, want := range cases {
		got := ExtractActivitySummary(tail).LastActivity
		if got != want {
			t.Errorf("ExtractActivitySummary(%q).LastActivity = %q, want %q", tail, got, want)
		}
	}
}

func TestExtractLastActivityUnknown(t *testing.T) {
	got := ExtractActivitySummary("no timestamps here")
	if got.LastActivity != "Unknown" {
		t.Fatalf("LastActivity = %q, want Unknown", got.LastActivity)
	}
}

func TestExtractCurrentTaskPatterns(t *testing.T) {
	cases := map[string]string{
		"working on the login flow.":        "the login flow",
		"Current task: refactor the parser": "refactor the parser",
		"task: write tests":                 "write tests",
	}
	for tail, want := range cases {
		got := ExtractActivitySummary(tail).CurrentTask
		if got != want {
			t.Errorf("ExtractActivitySummary(%q).CurrentTask = %q, want %q", tail, got, want)
		}
	}
}

func TestExtractCurrentTaskAbsent(t *testing.T) {
	got := ExtractActivitySummary("> ready for input")
	if got.CurrentTask != "" {
		t.Fatalf("CurrentTask = %q, want empty", got.CurrentTask)
	}
}
