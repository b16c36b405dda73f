package notifications

import "github.com/agentfleet/orchestrator/internal/eventbus"

// Filter is the shared min-priority/event-kind matching logic every
// outbound channel uses to decide whether to fire, grounded on the
// teacher's per-channel ShouldNotify bodies (identical across
// Discord/Slack/email save for field names).
type Filter struct {
	Kinds       []eventbus.Kind
	MinPriority int // 0 means unfiltered; lower value is more urgent
}

// Matches reports whether event passes this filter.
func (f Filter) Matches(event eventbus.Event) bool {
	if f.MinPriority > 0 && event.Priority > f.MinPriority {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == event.Kind {
			return true
		}
	}
	return false
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
		return "Unknown"
	}
}
