package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentfleet/orchestrator/internal/eventbus"
)

// SlackConfig configures a webhook-based Slack channel.
type SlackConfig struct {
	WebhookURL  string
	Channel     string
	Username    string
	IconEmoji   string
	Kinds       []eventbus.Kind
	MinPriority int
}

// Slack sends notifications to a Slack channel via an incoming webhook.
type Slack struct {
	cfg    SlackConfig
	client *http.Client
}

// NewSlack constructs a Slack channel.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) ShouldNotify(event eventbus.Event) bool {
	return matches(event, s.cfg.Kinds, s.cfg.MinPriority)
}

func (s *Slack) Send(event eventbus.Event) error {
	if s.cfg.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	color := "good"
	switch event.Priority {
	case eventbus.PriorityCritical:
		color = "danger"
	case eventbus.PriorityHigh:
		color = "warning"
	}

	fields := []map[string]interface{}{
		{"title": "Kind", "value": string(event.Kind), "short": true},
		{"title": "Source", "value": event.Source, "short": true},
		{"title": "Priority", "value": priorityString(event.Priority), "short": true},
	}
	if event.Target != "" {
		fields = append(fields, map[string]interface{}{"title": "Target", "value": event.Target, "short": true})
	}
	for k, v := range event.Payload {
		fields = append(fields, map[string]interface{}{"title": k, "value": fmt.Sprintf("%v", v), "short": false})
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("Event: %s", event.ID),
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  fmt.Sprintf("%s event", event.Kind),
				"fields": fields,
				"ts":     event.CreatedAt.Unix(),
			},
		},
	}
	if s.cfg.Channel != "" {
		payload["channel"] = s.cfg.Channel
	}
	if s.cfg.Username != "" {
		payload["username"] = s.cfg.Username
	}
	if s.cfg.IconEmoji != "" {
		payload["icon_emoji"] = s.cfg.IconEmoji
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	resp, err := s.client.Post(s.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sending slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
