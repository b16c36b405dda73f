package tmux

import "testing"

func TestParseTarget(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    Target
		wantErr bool
	}{
		{"simple", "backend:1", Target{Session: "backend", Window: 1}, false},
		{"zero window", "pm:0", Target{Session: "pm", Window: 0}, false},
		{"session with dashes", "my-project-frontend:3", Target{Session: "my-project-frontend", Window: 3}, false},
		{"missing colon", "backend1", Target{}, true},
		{"trailing colon", "backend:", Target{}, true},
		{"non numeric window", "backend:main", Target{}, true},
		{"empty session", ":1", Target{}, true},
		{"double colon", "sess:ion:1", Target{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTarget(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseTarget(%q) = %v, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTarget(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseTarget(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestTargetString(t *testing.T) {
	tg := Target{Session: "backend", Window: 2}
	if got, want := tg.String(), "backend:2"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParseTargetRoundTrip(t *testing.T) {
	tg := Target{Session: "qa-suite", Window: 12}
	parsed, err := ParseTarget(tg.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != tg {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, tg)
	}
}
