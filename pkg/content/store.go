package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store persists content items. All status changes are conditional on the
// status the caller read, so concurrent writers cannot skip a state.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new content store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

const itemColumns = "id, kind, owner_id, title, body, status, published_at, asset_keys, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item        Item
		kind        string
		publishedAt sql.NullTime
		assetsJSON  string
	)
	err := row.Scan(&item.ID, &kind, &item.OwnerID, &item.Title, &item.Body, &item.Status,
		&publishedAt, &assetsJSON, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Kind = Kind(kind)
	if publishedAt.Valid {
		at := publishedAt.Time.UTC()
		item.PublishedAt = &at
	}
	if err := json.Unmarshal([]byte(assetsJSON), &item.AssetKeys); err != nil {
		return nil, fmt.Errorf("item %d: invalid asset keys: %w", item.ID, err)
	}
	if item.AssetKeys == nil {
		item.AssetKeys = []string{}
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func encodeAssets(keys []string) (string, error) {
	if keys == nil {
		keys = []string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("failed to marshal asset keys: %w", err)
	}
	return string(data), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC().Truncate(time.Microsecond), Valid: true}
}

// Create inserts item and fills in its id and timestamps
func (s *Store) Create(ctx context.Context, item *Item) error {
	assetsJSON, err := encodeAssets(item.AssetKeys)
	if err != nil {
		return err
	}

	now := s.timestamp()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO content_items (kind, owner_id, title, body, status, published_at, asset_keys, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`, string(item.Kind), item.OwnerID, item.Title, item.Body, item.Status,
		nullTime(item.PublishedAt), assetsJSON, now,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	if item.AssetKeys == nil {
		item.AssetKeys = []string{}
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// Get returns the item of kind with id
func (s *Store) Get(ctx context.Context, kind Kind, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM content_items WHERE id = $1 AND kind = $2", id, string(kind))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// UpdateContent writes the content fields of item. Published items are
// immutable; the write is refused if the item went live after it was read.
func (s *Store) UpdateContent(ctx context.Context, item *Item) (*Item, error) {
	assetsJSON, err := encodeAssets(item.AssetKeys)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE content_items SET title = $1, body = $2, asset_keys = $3, updated_at = $4
		WHERE id = $5 AND kind = $6 AND status <> $7
	`, item.Title, item.Body, assetsJSON, s.timestamp(), item.ID, string(item.Kind), StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	if err := s.checkAffected(ctx, result, item.Kind, item.ID, "update"); err != nil {
		return nil, err
	}
	return s.Get(ctx, item.Kind, item.ID)
}

// Transition applies t to the item, provided it is still in t.From
func (s *Store) Transition(ctx context.Context, kind Kind, id int64, t Transition) (*Item, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE content_items SET status = $1, published_at = $2, updated_at = $3
		WHERE id = $4 AND kind = $5 AND status = $6
	`, t.To, nullTime(t.PublishedAt), s.timestamp(), id, string(kind), t.From)
	if err != nil {
		return nil, fmt.Errorf("failed to transition item: %w", err)
	}
	if err := s.checkAffected(ctx, result, kind, id, "transition"); err != nil {
		return nil, err
	}
	return s.Get(ctx, kind, id)
}

// Delete removes the item. When expected is non-nil the row is only removed
// while it is still in that status.
func (s *Store) Delete(ctx context.Context, kind Kind, id int64, expected *Status) error {
	var (
		result sql.Result
		err    error
	)
	if expected != nil {
		result, err = s.db.ExecContext(ctx,
			"DELETE FROM content_items WHERE id = $1 AND kind = $2 AND status = $3", id, string(kind), *expected)
	} else {
		result, err = s.db.ExecContext(ctx,
			"DELETE FROM content_items WHERE id = $1 AND kind = $2", id, string(kind))
	}
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return s.checkAffected(ctx, result, kind, id, "delete")
}

// checkAffected turns a conditional write that matched nothing into
// ErrNotFound or ErrInvalidTransition by re-reading the row
func (s *Store) checkAffected(ctx context.Context, result sql.Result, kind Kind, id int64, operation string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s item: %w", operation, err)
	}
	if n > 0 {
		return nil
	}
	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	return invalid(operation, current.Status)
}

// ListByStatus returns items of kind in status, newest first
func (s *Store) ListByStatus(ctx context.Context, kind Kind, status Status, opts ListOptions) ([]*Item, error) {
	return s.list(ctx, `
		SELECT `+itemColumns+` FROM content_items
		WHERE kind = $1 AND status = $2
		ORDER BY updated_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, string(kind), status, limitOf(opts), opts.Offset)
}

// ListPublished returns live items of kind, most recently published first
func (s *Store) ListPublished(ctx context.Context, kind Kind, opts ListOptions) ([]*Item, error) {
	return s.list(ctx, `
		SELECT `+itemColumns+` FROM content_items
		WHERE kind = $1 AND status = $2
		ORDER BY published_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, string(kind), StatusPublished, limitOf(opts), opts.Offset)
}

func limitOf(opts ListOptions) int {
	if opts.Limit <= 0 {
		return 50
	}
	return opts.Limit
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]*Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// CountDue counts Approved items whose scheduled time is at or before now
func (s *Store) CountDue(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM content_items WHERE status = $1 AND published_at <= $2",
		StatusApproved, now.UTC().Truncate(time.Microsecond),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due items: %w", err)
	}
	return n, nil
}

// PromoteDue publishes every Approved item whose scheduled time is at or
// before now and returns the promoted rows. published_at keeps the
// scheduled time. Rows promoted by a concurrent caller are not returned.
func (s *Store) PromoteDue(ctx context.Context, now time.Time) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE content_items SET status = $1, updated_at = $2
		WHERE status = $3 AND published_at <= $4
		RETURNING id, kind`,
		StatusPublished, s.timestamp(), StatusApproved, now.UTC().Truncate(time.Microsecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to promote due items: %w", err)
	}

	type ref struct {
		id   int64
		kind Kind
	}
	var refs []ref
	for rows.Next() {
		var r ref
		var kind string
		if err := rows.Scan(&r.id, &kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan promoted item: %w", err)
		}
		r.kind = Kind(kind)
		refs = append(refs, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to promote due items: %w", err)
	}

	promoted := make([]*Item, 0, len(refs))
	for _, r := range refs {
		item, err := s.Get(ctx, r.kind, r.id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		promoted = append(promoted, item)
	}
	return promoted, nil
}
