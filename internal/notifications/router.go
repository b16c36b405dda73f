// Package notifications fans eventbus events out to external channels —
// desktop toast, Discord, Slack, email — grounded on the teacher's
// internal/notifications Router/channel-interface shape, adapted from
// the teacher's own internal/events.Event to internal/eventbus.Event.
package notifications

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/eventbus"
)

// Channel is one outbound notification destination.
type Channel interface {
	Name() string
	ShouldNotify(event eventbus.Event) bool
	Send(event eventbus.Event) error
}

// Router dispatches events to every channel that opts in, fire-and-forget,
// the same pattern as the teacher's Router.Route.
type Router struct {
	mu       sync.RWMutex
	channels []Channel
	log      *zap.Logger
}

// NewRouter constructs a Router over an initial channel set (nil is fine).
func NewRouter(channels []Channel, log *zap.Logger) *Router {
	if channels == nil {
		channels = []Channel{}
	}
	return &Router{channels: channels, log: log}
}

// AddChannel registers an additional channel.
func (r *Router) AddChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, ch)
}

// RemoveChannel drops a channel by name.
func (r *Router) RemoveChannel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Name() != name {
			filtered = append(filtered, ch)
		}
	}
	r.channels = filtered
}

// Route sends event to every matching channel asynchronously.
func (r *Router) Route(event eventbus.Event) {
	for _, ch := range r.snapshot() {
		go r.deliver(ch, event)
	}
}

// RouteWithWait routes event and blocks until every channel has finished.
func (r *Router) RouteWithWait(event eventbus.Event) {
	var wg sync.WaitGroup
	for _, ch := range r.snapshot() {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			r.deliver(c, event)
		}(ch)
	}
	wg.Wait()
}

func (r *Router) deliver(ch Channel, event eventbus.Event) {
	if !ch.ShouldNotify(event) {
		return
	}
	if err := ch.Send(event); err != nil && r.log != nil {
		r.log.Warn("notification channel failed",
			zap.String("channel", ch.Name()),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

func (r *Router) snapshot() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// ChannelNames lists the registered channels, for status reporting.
func (r *Router) ChannelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}
