package external

import (
	"strings"
	"testing"

	"github.com/agentfleet/orchestrator/internal/eventbus"
)

func TestEmailSendRequiresConfig(t *testing.T) {
	cases := []EmailConfig{
		{},
		{SMTPHost: "smtp.example.com"},
		{SMTPHost: "smtp.example.com", From: "a@example.com"},
	}
	for _, cfg := range cases {
		e := NewEmail(cfg)
		if err := e.Send(eventbus.New(eventbus.KindAgentRestarted, "supervisor", "proj:1", nil)); err == nil {
			t.Fatalf("expected error for incomplete config %+v", cfg)
		}
	}
}

func TestEmailBuildSubjectPriorityPrefix(t *testing.T) {
	e := NewEmail(EmailConfig{})
	ev := eventbus.Event{Kind: eventbus.KindAgentKilled, ID: "abc", Priority: eventbus.PriorityCritical}
	subject := e.buildSubject(ev)
	if !strings.HasPrefix(subject, "[CRITICAL] ") {
		t.Fatalf("subject = %q, want [CRITICAL] prefix", subject)
	}
	if !strings.Contains(subject, "abc") {
		t.Fatalf("subject = %q, want event ID included", subject)
	}
}

func TestEmailBuildBodyIncludesPayload(t *testing.T) {
	e := NewEmail(EmailConfig{})
	ev := eventbus.Event{Kind: eventbus.KindAgentKilled, Payload: map[string]interface{}{"reason": "window disappeared"}}
	body := e.buildBody(ev)
	if !strings.Contains(body, "window disappeared") {
		t.Fatalf("body missing payload content: %s", body)
	}
}
