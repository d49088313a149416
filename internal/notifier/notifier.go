// Package notifier is the receiving side of alert pushes: it turns inbound push messages into visible
// notifications and routes notification clicks to an application window.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resq-app/resq-backend/internal/logging"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

// Notification is a push message ready to be displayed.
type Notification struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon"`
	Badge              string                 `json:"badge"`
	Tag                string                 `json:"tag"`
	RequireInteraction bool                   `json:"requireInteraction"`
	Data               map[string]interface{} `json:"data"`
}

type inbound struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon"`
	Badge              string                 `json:"badge"`
	RequireInteraction *bool                  `json:"requireInteraction"`
	Data               map[string]interface{} `json:"data"`
}

// Parse decodes an inbound push message. Every field is optional and a missing, empty or malformed
// message yields the defaults.
func Parse(raw []byte) Notification {
	var msg inbound
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg = inbound{}
		}
	}

	n := Notification{
		Title:              orDefault(msg.Title, v1.DefaultAlertTitle),
		Body:               orDefault(msg.Body, v1.DefaultAlertBody),
		Icon:               orDefault(msg.Icon, v1.DefaultAlertIcon),
		Badge:              orDefault(msg.Badge, v1.DefaultAlertIcon),
		RequireInteraction: msg.RequireInteraction == nil || *msg.RequireInteraction,
		Data:               msg.Data,
		Tag:                v1.DefaultAlertTag,
	}

	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}
	if id, ok := n.Data[v1.DataEmergencyID]; ok && id != nil {
		if s := fmt.Sprint(id); s != "" {
			n.Tag = s
		}
	}

	return n
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Display shows notifications.
type Display interface {
	Show(ctx context.Context, n Notification) error
}

// Run displays every inbound message until ctx is done or inbound is closed.
func Run(ctx context.Context, in <-chan []byte, display Display) {
	logger := logging.FromContext(ctx).Named("notifier.Run")

	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-in:
			if !ok {
				return
			}

			n := Parse(raw)
			logger.Debugf("Showing notification %q with tag %v", n.Title, n.Tag)

			if err := display.Show(ctx, n); err != nil {
				logger.Warnf("Could not show notification %v: %v", n.Tag, err)
			}
		}
	}
}
