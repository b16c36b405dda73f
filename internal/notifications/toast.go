package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"

	"github.com/agentfleet/orchestrator/internal/eventbus"
)

// ToastChannel shows a desktop toast for events its Filter passes (the
// daemon wires it to crash-loop trips and missing agents; an
// AlreadyRunning collision is not published as an event, so it never
// produces a toast) — windows-only like the teacher's
// ToastNotifier, since go-toast/toast shells out to the Windows
// notification center.
type ToastChannel struct {
	appID        string
	dashboardURL string
	filter       Filter
}

// NewToastChannel constructs a toast channel. dashboardURL is attached as
// a click-through action on the notification, empty disables the action.
func NewToastChannel(appID, dashboardURL string, filter Filter) *ToastChannel {
	if appID == "" {
		appID = "orchestratord"
	}
	return &ToastChannel{appID: appID, dashboardURL: dashboardURL, filter: filter}
}

func (t *ToastChannel) Name() string { return "toast" }

func (t *ToastChannel) ShouldNotify(event eventbus.Event) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	return t.filter.Matches(event)
}

func (t *ToastChannel) Send(event eventbus.Event) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	n := toast.Notification{
		AppID:   t.appID,
		Title:   fmt.Sprintf("%s: %s", event.Kind, event.Target),
		Message: fmt.Sprintf("%v", event.Payload["reason"]),
		Audio:   toast.IM,
	}
	if t.dashboardURL != "" {
		n.Actions = []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: t.dashboardURL},
		}
	}
	return n.Push()
}
