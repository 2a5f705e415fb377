package content

import (
	"context"
	"time"

	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// notifier builds workflow notifications. Recipient lookup and dispatch
// failures are logged and never returned.
type notifier struct {
	users      UserDirectory
	dispatcher notify.Dispatcher
}

func noticeContext(item *Item) map[string]interface{} {
	ctx := map[string]interface{}{
		"item_id": item.ID,
		"kind":    string(item.Kind),
		"title":   item.Title,
	}
	if item.PublishedAt != nil {
		ctx["published_at"] = item.PublishedAt.Format(time.RFC3339)
	}
	return ctx
}

// awaitingApproval tells every holder of the kind's publish permission
func (n *notifier) awaitingApproval(ctx context.Context, item *Item) {
	if n == nil || n.dispatcher == nil {
		return
	}
	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{"item_id": item.ID, "kind": item.Kind})

	holders, err := n.users.ListHolders(ctx, item.Kind.Permissions().Publish)
	if err != nil {
		logger.WithError(err).Warn("failed to resolve approval recipients")
		return
	}
	recipients := make([]string, 0, len(holders))
	for _, user := range holders {
		recipients = append(recipients, user.Email)
	}
	if len(recipients) == 0 {
		logger.Debug("no publishers to notify")
		return
	}

	if err := n.dispatcher.Dispatch(ctx, notify.New(notify.KindAwaitingApproval, recipients, noticeContext(item))); err != nil {
		logger.WithError(err).Warn("failed to dispatch approval notification")
	}
}

// published tells the owner their item went live
func (n *notifier) published(ctx context.Context, item *Item) {
	if n == nil || n.dispatcher == nil {
		return
	}
	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{"item_id": item.ID, "kind": item.Kind})

	owner, err := n.users.GetUser(ctx, item.OwnerID)
	if err != nil {
		logger.WithError(err).Warn("failed to resolve item owner")
		return
	}

	if err := n.dispatcher.Dispatch(ctx, notify.New(notify.KindPublished, []string{owner.Email}, noticeContext(item))); err != nil {
		logger.WithError(err).Warn("failed to dispatch published notification")
	}
}
