package content

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/masthead/pkg/async"
	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/rbac"
)

var tracer = otel.Tracer("github.com/platinummonkey/masthead/pkg/content")

const (
	maxTitleLength     = 500
	assetDeleteWorkers = 4
	assetDeleteTimeout = 10 * time.Second
)

// Authorizer is the part of rbac.Guard the service gates operations with
type Authorizer interface {
	Require(ctx context.Context, identity *auth.Identity, req rbac.Requirement) error
	Has(ctx context.Context, identity *auth.Identity, p rbac.Permission) (bool, error)
}

// ServiceDeps wires a Service. Notifier, Assets, AuditLogger and Metrics
// are optional.
type ServiceDeps struct {
	Store       *Store
	Guard       Authorizer
	Users       UserDirectory
	Notifier    notify.Dispatcher
	Assets      AssetStore
	Sweeper     *Sweeper
	AuditLogger audit.Logger
	Metrics     *observability.Metrics
}

// Service runs the publication workflow for blogs and editions
type Service struct {
	store       *Store
	guard       Authorizer
	notices     *notifier
	assets      AssetStore
	sweeper     *Sweeper
	auditLogger audit.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService creates a content service. A sweeper sharing the store and
// notifier is created when deps.Sweeper is nil.
func NewService(deps ServiceDeps) *Service {
	if deps.AuditLogger == nil {
		deps.AuditLogger = audit.NewNoOpLogger()
	}
	if deps.Sweeper == nil {
		deps.Sweeper = NewSweeper(deps.Store, deps.Users, deps.Notifier, deps.AuditLogger, deps.Metrics)
	}
	return &Service{
		store:       deps.Store,
		guard:       deps.Guard,
		notices:     &notifier{users: deps.Users, dispatcher: deps.Notifier},
		assets:      deps.Assets,
		sweeper:     deps.Sweeper,
		auditLogger: deps.AuditLogger,
		metrics:     deps.Metrics,
		now:         time.Now,
	}
}

// WithClock replaces the clock of the service and its sweeper
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.sweeper.WithClock(now)
	return s
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Sweeper returns the sweeper used before listings
func (s *Service) Sweeper() *Sweeper {
	return s.sweeper
}

// Create stores a new item owned by actor
func (s *Service) Create(ctx context.Context, actor *auth.Identity, kind Kind, in CreateInput) (*Item, error) {
	ctx, span := startSpan(ctx, "Service.Create", kind, 0)
	defer span.End()

	perms := kind.Permissions()
	if err := s.guard.Require(ctx, actor, rbac.RequireAll(perms.Create)); err != nil {
		return nil, s.fail(span, kind, "create", err)
	}

	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, s.fail(span, kind, "create", err)
	}
	keys, err := validateAssetKeys(in.AssetKeys)
	if err != nil {
		return nil, s.fail(span, kind, "create", err)
	}

	canSubmit, err := s.guard.Has(ctx, actor, perms.Submit)
	if err != nil {
		return nil, s.fail(span, kind, "create", err)
	}

	item := &Item{
		Kind:      kind,
		OwnerID:   actor.UserID,
		Title:     title,
		Body:      in.Body,
		Status:    NormalizeCreateStatus(canSubmit, in.Status),
		AssetKeys: keys,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, s.fail(span, kind, "create", err)
	}

	s.metrics.RecordTransition(string(kind), "create", "success")
	s.record(ctx, actor, audit.EventTypeContentCreate, item, map[string]interface{}{
		"status": item.Status.String(),
	})
	if item.Status == StatusPending {
		s.notices.awaitingApproval(ctx, item)
	}
	return item, nil
}

// Get returns an item. Published items are visible to any authenticated
// caller; others only to the owner or holders of the read permission.
func (s *Service) Get(ctx context.Context, actor *auth.Identity, kind Kind, id int64) (*Item, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	item, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if item.Status == StatusPublished || item.OwnerID == actor.UserID {
		return item, nil
	}
	if err := s.guard.Require(ctx, actor, rbac.RequireAll(kind.Permissions().Read)); err != nil {
		return nil, err
	}
	return item, nil
}

// Update changes the content fields of an unpublished item. The owner may
// always edit; anyone else needs the update permission.
func (s *Service) Update(ctx context.Context, actor *auth.Identity, kind Kind, id int64, in UpdateInput) (*Item, error) {
	ctx, span := startSpan(ctx, "Service.Update", kind, id)
	defer span.End()

	if actor == nil {
		return nil, s.fail(span, kind, "update", ErrUnauthenticated)
	}
	item, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, s.fail(span, kind, "update", err)
	}
	if item.OwnerID != actor.UserID {
		if err := s.guard.Require(ctx, actor, rbac.RequireAll(kind.Permissions().Update)); err != nil {
			return nil, s.fail(span, kind, "update", err)
		}
	}
	if item.Status == StatusPublished {
		return nil, s.fail(span, kind, "update", invalid("update", item.Status))
	}

	if in.Title != nil {
		if item.Title, err = validateTitle(*in.Title); err != nil {
			return nil, s.fail(span, kind, "update", err)
		}
	}
	if in.Body != nil {
		item.Body = *in.Body
	}
	if in.AssetKeys != nil {
		if item.AssetKeys, err = validateAssetKeys(*in.AssetKeys); err != nil {
			return nil, s.fail(span, kind, "update", err)
		}
	}

	updated, err := s.store.UpdateContent(ctx, item)
	if err != nil {
		return nil, s.fail(span, kind, "update", err)
	}
	s.metrics.RecordTransition(string(kind), "update", "success")
	s.record(ctx, actor, audit.EventTypeContentUpdate, updated, nil)
	return updated, nil
}

// SubmitForApproval moves a Draft to Pending and tells the publishers
func (s *Service) SubmitForApproval(ctx context.Context, actor *auth.Identity, kind Kind, id int64) (*Item, error) {
	perm := kind.Permissions().Submit
	item, err := s.transition(ctx, actor, kind, id, "submit", &perm, SubmitForApproval)
	if err != nil {
		return nil, err
	}
	s.notices.awaitingApproval(ctx, item)
	return item, nil
}

// Approve schedules a Pending item to go live at scheduledAt
func (s *Service) Approve(ctx context.Context, actor *auth.Identity, kind Kind, id int64, scheduledAt time.Time) (*Item, error) {
	perm := kind.Permissions().Approve
	at := scheduledAt.UTC().Truncate(time.Microsecond)
	return s.transition(ctx, actor, kind, id, "approve", &perm, func(item *Item) (Transition, error) {
		return Approve(item, at, s.timestamp())
	})
}

// Publish makes an item live now and tells its owner
func (s *Service) Publish(ctx context.Context, actor *auth.Identity, kind Kind, id int64) (*Item, error) {
	perm := kind.Permissions().Publish
	item, err := s.transition(ctx, actor, kind, id, "publish", &perm, func(item *Item) (Transition, error) {
		return Publish(item, s.timestamp())
	})
	if err != nil {
		return nil, err
	}
	s.notices.published(ctx, item)
	return item, nil
}

// TakeDown lets an owner withdraw their Pending or Approved item
func (s *Service) TakeDown(ctx context.Context, actor *auth.Identity, kind Kind, id int64, toPending bool) (*Item, error) {
	return s.transition(ctx, actor, kind, id, "take_down", nil, func(item *Item) (Transition, error) {
		if item.OwnerID != actor.UserID {
			return Transition{}, ErrNotOwner
		}
		return TakeDown(item, toPending)
	})
}

// AdminTakeDown withdraws any Pending or Approved item for holders of the
// take down permission
func (s *Service) AdminTakeDown(ctx context.Context, actor *auth.Identity, kind Kind, id int64, toPending bool) (*Item, error) {
	perm := kind.Permissions().TakeDown
	return s.transition(ctx, actor, kind, id, "admin_take_down", &perm, func(item *Item) (Transition, error) {
		return TakeDown(item, toPending)
	})
}

// Delete removes an item and, best effort, its assets
func (s *Service) Delete(ctx context.Context, actor *auth.Identity, kind Kind, id int64) error {
	ctx, span := startSpan(ctx, "Service.Delete", kind, id)
	defer span.End()

	if actor == nil {
		return s.fail(span, kind, "delete", ErrUnauthenticated)
	}
	item, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return s.fail(span, kind, "delete", err)
	}
	canDeleteAny, err := s.guard.Has(ctx, actor, kind.Permissions().Delete)
	if err != nil {
		return s.fail(span, kind, "delete", err)
	}
	if err := CanDelete(item, item.OwnerID == actor.UserID, canDeleteAny); err != nil {
		return s.fail(span, kind, "delete", err)
	}

	var expected *Status
	if !canDeleteAny {
		draft := StatusDraft
		expected = &draft
	}
	if err := s.store.Delete(ctx, kind, id, expected); err != nil {
		return s.fail(span, kind, "delete", err)
	}

	s.metrics.RecordTransition(string(kind), "delete", "success")
	s.record(ctx, actor, audit.EventTypeContentDelete, item, map[string]interface{}{
		"status": item.Status.String(),
	})
	s.deleteAssets(ctx, item)
	return nil
}

func (s *Service) deleteAssets(ctx context.Context, item *Item) {
	if s.assets == nil || len(item.AssetKeys) == 0 {
		return
	}
	errs := async.Batch(ctx, item.AssetKeys, assetDeleteWorkers, "delete asset", assetDeleteTimeout,
		func(ctx context.Context, key string) error {
			return s.assets.Delete(ctx, key)
		})
	for _, err := range errs {
		s.metrics.RecordAssetDeleteFailure()
		observability.FromContext(ctx).
			WithError(err).
			WithFields(map[string]interface{}{"item_id": item.ID, "kind": item.Kind}).
			Warn("failed to delete asset")
	}
}

// ListPublished sweeps due items and returns live items of kind. It needs
// no authentication.
func (s *Service) ListPublished(ctx context.Context, kind Kind, opts ListOptions) ([]*Item, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.ListPublished(ctx, kind, opts)
}

// List sweeps due items and returns items of kind in status
func (s *Service) List(ctx context.Context, actor *auth.Identity, kind Kind, status Status, opts ListOptions) ([]*Item, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrValidation, int(status))
	}
	if err := s.guard.Require(ctx, actor, rbac.RequireAll(kind.Permissions().Read)); err != nil {
		return nil, err
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.ListByStatus(ctx, kind, status, opts)
}

// Sweep runs the sweeper on demand for holders of either publish permission
func (s *Service) Sweep(ctx context.Context, actor *auth.Identity) (SweepResult, error) {
	if err := s.guard.Require(ctx, actor, rbac.RequireAny(rbac.PublishBlog, rbac.PublishEdition)); err != nil {
		return SweepResult{}, err
	}
	return s.sweeper.Sweep(ctx)
}

// transition loads the item, asks decide for the target state and applies
// it conditionally. A nil perm only requires an authenticated actor.
func (s *Service) transition(ctx context.Context, actor *auth.Identity, kind Kind, id int64, operation string,
	perm *rbac.Permission, decide func(*Item) (Transition, error)) (*Item, error) {

	ctx, span := startSpan(ctx, "Service.Transition", kind, id)
	defer span.End()
	span.SetAttributes(attribute.String("content.operation", operation))

	if perm != nil {
		if err := s.guard.Require(ctx, actor, rbac.RequireAll(*perm)); err != nil {
			return nil, s.fail(span, kind, operation, err)
		}
	} else if actor == nil {
		return nil, s.fail(span, kind, operation, ErrUnauthenticated)
	}

	item, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, s.fail(span, kind, operation, err)
	}
	t, err := decide(item)
	if err != nil {
		return nil, s.fail(span, kind, operation, err)
	}
	updated, err := s.store.Transition(ctx, kind, id, t)
	if err != nil {
		return nil, s.fail(span, kind, operation, err)
	}

	s.metrics.RecordTransition(string(kind), operation, "success")
	metadata := map[string]interface{}{
		"operation": operation,
		"from":      t.From.String(),
		"to":        t.To.String(),
	}
	if t.PublishedAt != nil {
		metadata["published_at"] = t.PublishedAt.Format(time.RFC3339)
	}
	s.record(ctx, actor, audit.EventTypeContentTransition, updated, metadata)
	return updated, nil
}

func (s *Service) fail(span trace.Span, kind Kind, operation string, err error) error {
	outcome := outcomeOf(err)
	s.metrics.RecordTransition(string(kind), operation, outcome)
	if outcome == "error" {
		return recordSpanError(span, err)
	}
	span.SetAttributes(attribute.String("content.outcome", outcome))
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotOwner):
		return "denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrSchedulingViolation):
		return "scheduling_violation"
	case errors.Is(err, ErrValidation):
		return "invalid_input"
	default:
		return "error"
	}
}

func (s *Service) record(ctx context.Context, actor *auth.Identity, eventType audit.EventType, item *Item, metadata map[string]interface{}) {
	var userID *int64
	if actor != nil {
		userID = &actor.UserID
	}
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess, userID)
	event.ResourceType = resourceType(item.Kind)
	event.ResourceID = strconv.FormatInt(item.ID, 10)
	event.Message = fmt.Sprintf("%s %d %s", item.Kind, item.ID, strings.TrimPrefix(string(eventType), "content."))
	for k, v := range metadata {
		event.Metadata[k] = v
	}
	audit.Record(ctx, s.auditLogger, event)
}

func resourceType(kind Kind) audit.ResourceType {
	if kind == KindEdition {
		return audit.ResourceTypeEdition
	}
	return audit.ResourceTypeBlog
}

func startSpan(ctx context.Context, name string, kind Kind, id int64) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("content.kind", string(kind))}
	if id != 0 {
		attrs = append(attrs, attribute.Int64("content.id", id))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrValidation, maxTitleLength)
	}
	return title, nil
}

func validateAssetKeys(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%w: asset keys must not be empty", ErrValidation)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out, nil
}
