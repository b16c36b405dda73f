package external

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/agentfleet/orchestrator/internal/eventbus"
)

// EmailConfig configures an SMTP-based email channel.
type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	From        string
	To          []string
	Kinds       []eventbus.Kind
	MinPriority int
}

// Email sends notifications via SMTP.
type Email struct {
	cfg EmailConfig
}

// NewEmail constructs an email channel.
func NewEmail(cfg EmailConfig) *Email {
	return &Email{cfg: cfg}
}

func (e *Email) Name() string { return "email" }

func (e *Email) ShouldNotify(event eventbus.Event) bool {
	return matches(event, e.cfg.Kinds, e.cfg.MinPriority)
}

func (e *Email) Send(event eventbus.Event) error {
	if e.cfg.SMTPHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if e.cfg.From == "" {
		return fmt.Errorf("from address not configured")
	}
	if len(e.cfg.To) == 0 {
		return fmt.Errorf("no recipient addresses configured")
	}

	message := e.buildMessage(e.buildSubject(event), e.buildBody(event))

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)
	var auth smtp.Auth
	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(message)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (e *Email) buildSubject(event eventbus.Event) string {
	prefix := ""
	switch event.Priority {
	case eventbus.PriorityCritical:
		prefix = "[CRITICAL] "
	case eventbus.PriorityHigh:
		prefix = "[HIGH] "
	}
	return fmt.Sprintf("%sorchestratord %s event - %s", prefix, event.Kind, event.ID)
}

func (e *Email) buildBody(event eventbus.Event) string {
	var body strings.Builder
	body.WriteString("orchestratord event notification\n")
	body.WriteString("=================================\n\n")
	body.WriteString(fmt.Sprintf("Event ID: %s\n", event.ID))
	body.WriteString(fmt.Sprintf("Kind: %s\n", event.Kind))
	body.WriteString(fmt.Sprintf("Source: %s\n", event.Source))
	if event.Target != "" {
		body.WriteString(fmt.Sprintf("Target: %s\n", event.Target))
	}
	body.WriteString(fmt.Sprintf("Priority: %s\n", priorityString(event.Priority)))
	body.WriteString(fmt.Sprintf("Timestamp: %s\n", event.CreatedAt.Format(time.RFC3339)))
	if len(event.Payload) > 0 {
		body.WriteString("\nPayload:\n--------\n")
		for k, v := range event.Payload {
			body.WriteString(fmt.Sprintf("%s: %v\n", k, v))
		}
	}
	return body.String()
}

func (e *Email) buildMessage(subject, body string) string {
	var m strings.Builder
	m.WriteString(fmt.Sprintf("From: %s\r\n", e.cfg.From))
	m.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.cfg.To, ", ")))
	m.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	m.WriteString("MIME-Version: 1.0\r\n")
	m.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	m.WriteString(body)
	return m.String()
}
