// Package external holds webhook/SMTP-based notification channels,
// adapted line-for-line in shape from the teacher's
// internal/notifications/external package but retargeted at
// internal/eventbus.Event instead of the teacher's internal/events.Event.
package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentfleet/orchestrator/internal/eventbus"
)

// DiscordConfig configures a webhook-based Discord channel.
type DiscordConfig struct {
	WebhookURL  string
	Username    string
	AvatarURL   string
	Kinds       []eventbus.Kind
	MinPriority int
}

// Discord sends notifications to a Discord channel via an incoming webhook.
type Discord struct {
	cfg    DiscordConfig
	client *http.Client
}

// NewDiscord constructs a Discord channel.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) ShouldNotify(event eventbus.Event) bool {
	return matches(event, d.cfg.Kinds, d.cfg.MinPriority)
}

func (d *Discord) Send(event eventbus.Event) error {
	if d.cfg.WebhookURL == "" {
		return fmt.Errorf("discord webhook URL not configured")
	}

	color := 0x2ECC71
	switch event.Priority {
	case eventbus.PriorityCritical:
		color = 0xE74C3C
	case eventbus.PriorityHigh:
		color = 0xE67E22
	}

	fields := []map[string]interface{}{
		{"name": "Kind", "value": string(event.Kind), "inline": true},
		{"name": "Source", "value": event.Source, "inline": true},
		{"name": "Priority", "value": priorityString(event.Priority), "inline": true},
	}
	if event.Target != "" {
		fields = append(fields, map[string]interface{}{"name": "Target", "value": event.Target, "inline": true})
	}
	for k, v := range event.Payload {
		fields = append(fields, map[string]interface{}{"name": k, "value": fmt.Sprintf("%v", v), "inline": false})
	}

	embed := map[string]interface{}{
		"title":       fmt.Sprintf("%s event", event.Kind),
		"description": fmt.Sprintf("Event ID: %s", event.ID),
		"color":       color,
		"timestamp":   event.CreatedAt.Format(time.RFC3339),
		"fields":      fields,
	}
	payload := map[string]interface{}{"embeds": []map[string]interface{}{embed}}
	if d.cfg.Username != "" {
		payload["username"] = d.cfg.Username
	}
	if d.cfg.AvatarURL != "" {
		payload["avatar_url"] = d.cfg.AvatarURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	resp, err := d.client.Post(d.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sending discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func priorityString(priority int) string {
	switch priority {
	case eventbus.PriorityCritical:
		return "Critical"
	case eventbus.PriorityHigh:
		return "High"
	case eventbus.PriorityNormal:
		return "Normal"
	case eventbus.PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("Unknown (%d)", priority)
	}
}

func matches(event eventbus.Event, kinds []eventbus.Kind, minPriority int) bool {
	if minPriority > 0 && event.Priority > minPriority {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == event.Kind {
			return true
		}
	}
	return false
}
