package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind selects the message template on the relay side
type Kind string

const (
	// KindAwaitingApproval tells publishers an item is waiting for review
	KindAwaitingApproval Kind = "awaiting_approval"
	// KindPublished tells an owner their item went live
	KindPublished Kind = "published"
)

// Notification is one templated message to a set of recipients
type Notification struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	Recipients []string               `json:"recipients"`
	Context    map[string]interface{} `json:"context"`
	CreatedAt  time.Time              `json:"created_at"`
}

// New creates a notification with a fresh id
func New(kind Kind, recipients []string, context map[string]interface{}) *Notification {
	if context == nil {
		context = make(map[string]interface{})
	}
	return &Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		Recipients: recipients,
		Context:    context,
		CreatedAt:  time.Now().UTC(),
	}
}

// Dispatcher delivers notifications
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, n *Notification) error

// Dispatch calls f
func (f DispatcherFunc) Dispatch(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}
