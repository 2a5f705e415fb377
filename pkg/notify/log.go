package notify

import (
	"context"

	"github.com/platinummonkey/masthead/pkg/observability"
)

// LogDispatcher writes notifications to the application log instead of
// delivering them. It is used when no relay is configured.
type LogDispatcher struct{}

// Dispatch logs n at info level
func (LogDispatcher) Dispatch(ctx context.Context, n *Notification) error {
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"notification_id": n.ID,
		"kind":            string(n.Kind),
		"recipients":      n.Recipients,
		"context":         n.Context,
	}).Info("notification not delivered: no relay configured")
	return nil
}
