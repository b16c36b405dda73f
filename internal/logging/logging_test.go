package logging

import "testing"

func TestNewValidConfigs(t *testing.T) {
	cases := []Config{
		{Level: "debug", Format: "console"},
		{Level: "info", Format: "json"},
		{Level: "warn", Format: ""},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); err != nil {
			t.Errorf("New(%+v): %v", cfg, err)
		}
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "not-a-level", Format: "console"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewInvalidFormat(t *testing.T) {
	if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestComponentTagsLogger(t *testing.T) {
	base, err := New(Config{Level: "info", Format: "console"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := Component(base, "supervisor")
	if child == nil {
		t.Fatal("Component returned nil logger")
	}
}
