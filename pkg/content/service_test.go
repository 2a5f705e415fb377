package content

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/rbac"
	"github.com/platinummonkey/masthead/pkg/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []*notify.Notification
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n *notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) ofKind(kind notify.Kind) []*notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*notify.Notification
	for _, n := range d.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) ofType(eventType audit.EventType) []*audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.AuditEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeAssets struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]bool
}

func (a *fakeAssets) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail[key] {
		return errors.New("bucket unavailable")
	}
	a.deleted = append(a.deleted, key)
	return nil
}

type fixture struct {
	service *Service
	store   *Store
	users   *rbac.Store
	clock   *fakeClock
	sent    *recordingDispatcher
	audit   *recordingAudit
	assets  *fakeAssets
	metrics *observability.Metrics

	admin     *auth.Identity
	writer    *auth.Identity
	author    *auth.Identity
	publisher *auth.Identity
	reader    *auth.Identity
	outsider  *auth.Identity
}

const (
	writerRoleID    = 10
	authorRoleID    = 11
	publisherRoleID = 12
	outsiderRoleID  = 13
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	cfg := storage.DefaultConfig()
	cfg.Driver = storage.DialectSQLite
	cfg.DatabaseURL = ":memory:"
	db, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(ctx, db, storage.DialectSQLite, "rbac", rbac.Migrations()))
	require.NoError(t, storage.Migrate(ctx, db, storage.DialectSQLite, "content", Migrations()))
	return db
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := openDB(t)
	users := rbac.NewStore(db)
	roles := []*rbac.Role{
		{ID: writerRoleID, Name: "writer", Permissions: rbac.NewPermissionSet(
			rbac.ReadBlog, rbac.CreateBlog, rbac.SubmitBlog, rbac.CreateEdition, rbac.SubmitEdition)},
		{ID: authorRoleID, Name: "author", Permissions: rbac.NewPermissionSet(rbac.ReadBlog, rbac.CreateBlog)},
		{ID: publisherRoleID, Name: "publisher", Permissions: rbac.NewPermissionSet(
			rbac.ReadBlog, rbac.ApproveBlog, rbac.PublishBlog, rbac.TakeDownBlog, rbac.DeleteBlog, rbac.UpdateBlog)},
		{ID: outsiderRoleID, Name: "outsider", Permissions: rbac.NewPermissionSet()},
	}
	for _, role := range roles {
		require.NoError(t, users.UpsertSeedRole(ctx, role))
	}

	newUser := func(email string, roleID int64) *auth.Identity {
		user := &rbac.User{Email: email, RoleID: roleID}
		require.NoError(t, users.CreateUser(ctx, user))
		return &auth.Identity{UserID: user.ID, Email: user.Email}
	}

	f := &fixture{
		store:   NewStore(db),
		users:   users,
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		sent:    &recordingDispatcher{},
		audit:   &recordingAudit{},
		assets:  &fakeAssets{fail: map[string]bool{}},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	f.admin = newUser("admin@example.com", rbac.SuperuserRoleID)
	f.writer = newUser("writer@example.com", writerRoleID)
	f.author = newUser("author@example.com", authorRoleID)
	f.publisher = newUser("publisher@example.com", publisherRoleID)
	f.reader = newUser("reader@example.com", rbac.DefaultRoleID)
	f.outsider = newUser("outsider@example.com", outsiderRoleID)

	f.service = NewService(ServiceDeps{
		Store:       f.store,
		Guard:       rbac.NewGuard(users, f.audit, f.metrics),
		Users:       users,
		Notifier:    f.sent,
		Assets:      f.assets,
		AuditLogger: f.audit,
		Metrics:     f.metrics,
	}).WithClock(f.clock.Now)
	return f
}

func (f *fixture) pendingBlog(t *testing.T, title string) *Item {
	t.Helper()
	item, err := f.service.Create(context.Background(), f.writer, KindBlog, CreateInput{Title: title, Status: intPtr(int(StatusPending))})
	require.NoError(t, err)
	require.Equal(t, StatusPending, item.Status)
	return item
}

func recipients(n *notify.Notification) []string {
	out := append([]string(nil), n.Recipients...)
	sort.Strings(out)
	return out
}

func TestService_CreateNormalizesRequestedStatus(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	item, err := f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Launch", Status: intPtr(int(StatusPublished))})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Nil(t, item.PublishedAt)
	assert.Equal(t, f.writer.UserID, item.OwnerID)

	approvals := f.sent.ofKind(notify.KindAwaitingApproval)
	require.Len(t, approvals, 1)
	assert.Equal(t, []string{"admin@example.com", "publisher@example.com"}, recipients(approvals[0]))
	assert.Equal(t, item.ID, approvals[0].Context["item_id"])
	assert.Equal(t, "Launch", approvals[0].Context["title"])

	item, err = f.service.Create(ctx, f.author, KindBlog, CreateInput{Title: "No submit", Status: intPtr(int(StatusApproved))})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, item.Status)

	item, err = f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Garbage", Status: intPtr(42)})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, item.Status)

	item, err = f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Plain"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, item.Status)

	assert.Len(t, f.sent.ofKind(notify.KindAwaitingApproval), 1)
	assert.Len(t, f.audit.ofType(audit.EventTypeContentCreate), 4)
}

func TestService_CreateRequiresPermission(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, nil, KindBlog, CreateInput{Title: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.Create(ctx, f.reader, KindBlog, CreateInput{Title: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Create(ctx, f.author, KindEdition, CreateInput{Title: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "ok", AssetKeys: []string{""}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_ApproveInThePastKeepsItemPending(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Yesterday's news")

	_, err := f.service.Approve(ctx, f.publisher, KindBlog, item.ID, f.clock.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ErrSchedulingViolation)

	_, err = f.service.Approve(ctx, f.publisher, KindBlog, item.ID, f.clock.Now())
	assert.ErrorIs(t, err, ErrSchedulingViolation)

	stored, err := f.store.Get(ctx, KindBlog, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.PublishedAt)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("blog", "approve", "scheduling_violation")))
}

func TestService_ApproveRequiresPermission(t *testing.T) {
	f := setupFixture(t)
	item := f.pendingBlog(t, "Mine")

	_, err := f.service.Approve(context.Background(), f.writer, KindBlog, item.ID, f.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotEmpty(t, f.audit.ofType(audit.EventTypeAuthzAccessDenied))
}

func TestService_ScheduledPublicationRoundTrip(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Tomorrow")

	scheduled := f.clock.Now().Add(time.Hour)
	approved, err := f.service.Approve(ctx, f.publisher, KindBlog, item.ID, scheduled)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.PublishedAt)
	assert.True(t, approved.PublishedAt.Equal(scheduled))

	live, err := f.service.ListPublished(ctx, KindBlog, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, live)

	f.clock.Advance(2 * time.Hour)

	live, err = f.service.ListPublished(ctx, KindBlog, ListOptions{})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, StatusPublished, live[0].Status)
	require.NotNil(t, live[0].PublishedAt)
	assert.True(t, live[0].PublishedAt.Equal(scheduled), "published_at keeps the scheduled time")

	published := f.sent.ofKind(notify.KindPublished)
	require.Len(t, published, 1)
	assert.Equal(t, []string{"writer@example.com"}, published[0].Recipients)

	result, err := f.service.Sweeper().Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Modified)
	assert.Len(t, f.sent.ofKind(notify.KindPublished), 1)
}

func TestService_SweepOnlyPromotesDueItems(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	soon := f.pendingBlog(t, "Soon")
	later := f.pendingBlog(t, "Later")
	_, err := f.service.Approve(ctx, f.publisher, KindBlog, soon.ID, f.clock.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, f.publisher, KindBlog, later.ID, f.clock.Now().Add(24*time.Hour))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	result, err := f.service.Sweep(ctx, f.publisher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, []int64{soon.ID}, result.PromotedIDs)

	stored, err := f.store.Get(ctx, KindBlog, later.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)

	_, err = f.service.Sweep(ctx, f.writer)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_PublishImmediately(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	draft, err := f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Breaking"})
	require.NoError(t, err)

	item, err := f.service.Publish(ctx, f.publisher, KindBlog, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, item.Status)
	require.NotNil(t, item.PublishedAt)
	assert.True(t, item.PublishedAt.Equal(f.clock.Now()))
	assert.Len(t, f.sent.ofKind(notify.KindPublished), 1)

	transitions := f.audit.ofType(audit.EventTypeContentTransition)
	require.NotEmpty(t, transitions)
	last := transitions[len(transitions)-1]
	assert.Equal(t, "draft", last.Metadata["from"])
	assert.Equal(t, "published", last.Metadata["to"])
}

func TestService_PublishedItemsAreTerminal(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Final")

	_, err := f.service.Publish(ctx, f.publisher, KindBlog, item.ID)
	require.NoError(t, err)

	_, err = f.service.SubmitForApproval(ctx, f.writer, KindBlog, item.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.service.Approve(ctx, f.publisher, KindBlog, item.ID, f.clock.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition, "status is checked before the time")

	_, err = f.service.Publish(ctx, f.publisher, KindBlog, item.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.service.TakeDown(ctx, f.writer, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.service.AdminTakeDown(ctx, f.publisher, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	title := "Edited"
	_, err = f.service.Update(ctx, f.writer, KindBlog, item.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = f.service.Delete(ctx, f.writer, KindBlog, item.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.store.Get(ctx, KindBlog, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, stored.Status)
	assert.Equal(t, "Final", stored.Title)
}

func TestService_TakeDownByNonOwnerIsRejected(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Owned")

	_, err := f.service.Approve(ctx, f.publisher, KindBlog, item.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = f.service.TakeDown(ctx, f.publisher, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrNotOwner)

	stored, err := f.store.Get(ctx, KindBlog, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.NotNil(t, stored.PublishedAt)

	taken, err := f.service.TakeDown(ctx, f.writer, KindBlog, item.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, taken.Status)
	assert.Nil(t, taken.PublishedAt)
}

func TestService_TakeDownDraftByNonOwnerIsRejected(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	item, err := f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Unsent"})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, item.Status)

	_, err = f.service.TakeDown(ctx, f.author, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.NotErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.store.Get(ctx, KindBlog, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
	assert.True(t, item.UpdatedAt.Equal(stored.UpdatedAt))

	_, err = f.service.TakeDown(ctx, f.writer, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_AdminTakeDown(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Questionable")

	_, err := f.service.AdminTakeDown(ctx, f.writer, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrForbidden)

	taken, err := f.service.AdminTakeDown(ctx, f.publisher, KindBlog, item.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, taken.Status)

	taken, err = f.service.AdminTakeDown(ctx, f.publisher, KindBlog, item.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, taken.Status)

	_, err = f.service.AdminTakeDown(ctx, f.publisher, KindBlog, item.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_SubmitNotifiesPublishers(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	draft, err := f.service.Create(ctx, f.writer, KindEdition, CreateInput{Title: "Spring issue"})
	require.NoError(t, err)
	assert.Empty(t, f.sent.ofKind(notify.KindAwaitingApproval))

	item, err := f.service.SubmitForApproval(ctx, f.writer, KindEdition, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)

	approvals := f.sent.ofKind(notify.KindAwaitingApproval)
	require.Len(t, approvals, 1)
	// only the superuser can publish editions in this fixture
	assert.Equal(t, []string{"admin@example.com"}, approvals[0].Recipients)
	assert.Equal(t, "edition", approvals[0].Context["kind"])

	_, err = f.service.SubmitForApproval(ctx, f.author, KindEdition, draft.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_GetVisibility(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Embargoed")

	_, err := f.service.Get(ctx, nil, KindBlog, item.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.Get(ctx, f.outsider, KindBlog, item.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.service.Get(ctx, f.writer, KindBlog, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Embargoed", got.Title)

	_, err = f.service.Get(ctx, f.reader, KindBlog, item.ID)
	require.NoError(t, err)

	_, err = f.service.Publish(ctx, f.publisher, KindBlog, item.ID)
	require.NoError(t, err)
	got, err = f.service.Get(ctx, f.outsider, KindBlog, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, got.Status)

	_, err = f.service.Get(ctx, f.writer, KindEdition, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Update(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	draft, err := f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Draft", Body: "v1"})
	require.NoError(t, err)

	title, body := "Better title", "v2"
	keys := []string{"img/a.png", "img/a.png", "img/b.png"}
	updated, err := f.service.Update(ctx, f.writer, KindBlog, draft.ID, UpdateInput{Title: &title, Body: &body, AssetKeys: &keys})
	require.NoError(t, err)
	assert.Equal(t, "Better title", updated.Title)
	assert.Equal(t, "v2", updated.Body)
	assert.Equal(t, []string{"img/a.png", "img/b.png"}, updated.AssetKeys)
	assert.Equal(t, StatusDraft, updated.Status)

	_, err = f.service.Update(ctx, f.author, KindBlog, draft.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	edited := "Desk edit"
	updated, err = f.service.Update(ctx, f.publisher, KindBlog, draft.ID, UpdateInput{Title: &edited})
	require.NoError(t, err)
	assert.Equal(t, "Desk edit", updated.Title)
	assert.Equal(t, "v2", updated.Body)

	empty := ""
	_, err = f.service.Update(ctx, f.writer, KindBlog, draft.ID, UpdateInput{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_Delete(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	draft, err := f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Scratch", AssetKeys: []string{"a.png", "b.png"}})
	require.NoError(t, err)
	f.assets.fail["b.png"] = true

	err = f.service.Delete(ctx, f.author, KindBlog, draft.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.service.Delete(ctx, f.writer, KindBlog, draft.ID))
	_, err = f.store.Get(ctx, KindBlog, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"a.png"}, f.assets.deleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AssetDeleteFailuresTotal))

	pending := f.pendingBlog(t, "Queued")
	err = f.service.Delete(ctx, f.writer, KindBlog, pending.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, f.service.Delete(ctx, f.publisher, KindBlog, pending.ID))
	assert.Len(t, f.audit.ofType(audit.EventTypeContentDelete), 2)

	err = f.service.Delete(ctx, f.publisher, KindBlog, pending.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListQueue(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	first := f.pendingBlog(t, "First")
	second := f.pendingBlog(t, "Second")
	_, err := f.service.Create(ctx, f.writer, KindBlog, CreateInput{Title: "Draft"})
	require.NoError(t, err)

	items, err := f.service.List(ctx, f.publisher, KindBlog, StatusPending, ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	ids := []int64{items[0].ID, items[1].ID}
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, ids)

	items, err = f.service.List(ctx, f.publisher, KindBlog, StatusPending, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = f.service.List(ctx, f.outsider, KindBlog, StatusPending, ListOptions{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.List(ctx, f.publisher, KindBlog, Status(9), ListOptions{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_ConcurrentApprovalsCommitOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.pendingBlog(t, "Contested")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Approve(ctx, f.publisher, KindBlog, item.ID, f.clock.Now().Add(time.Duration(i+1)*time.Hour))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
}
