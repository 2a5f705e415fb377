package content

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/masthead/pkg/rbac"
)

// Status is the publication state of an item. Values are persisted.
type Status int

const (
	StatusDraft     Status = 0
	StatusPending   Status = 1
	StatusApproved  Status = 2
	StatusPublished Status = 3
)

var statusNames = map[Status]string{
	StatusDraft:     "draft",
	StatusPending:   "pending",
	StatusApproved:  "approved",
	StatusPublished: "published",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the four known states
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus parses a status name such as "pending"
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == strings.ToLower(name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrValidation, name)
}

// MarshalJSON encodes the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Kind is the type of a content item
type Kind string

const (
	KindBlog    Kind = "blog"
	KindEdition Kind = "edition"
)

// ParseKind accepts the singular kind name or its plural route segment
func ParseKind(s string) (Kind, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "s") {
	case string(KindBlog):
		return KindBlog, nil
	case string(KindEdition):
		return KindEdition, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, s)
}

// KindPermissions names the catalog permissions governing one kind
type KindPermissions struct {
	Read     rbac.Permission
	Create   rbac.Permission
	Update   rbac.Permission
	Delete   rbac.Permission
	Submit   rbac.Permission
	Approve  rbac.Permission
	Publish  rbac.Permission
	TakeDown rbac.Permission
}

// Permissions returns the permissions governing items of kind k
func (k Kind) Permissions() KindPermissions {
	if k == KindEdition {
		return KindPermissions{
			Read:     rbac.ReadEdition,
			Create:   rbac.CreateEdition,
			Update:   rbac.UpdateEdition,
			Delete:   rbac.DeleteEdition,
			Submit:   rbac.SubmitEdition,
			Approve:  rbac.ApproveEdition,
			Publish:  rbac.PublishEdition,
			TakeDown: rbac.TakeDownEdition,
		}
	}
	return KindPermissions{
		Read:     rbac.ReadBlog,
		Create:   rbac.CreateBlog,
		Update:   rbac.UpdateBlog,
		Delete:   rbac.DeleteBlog,
		Submit:   rbac.SubmitBlog,
		Approve:  rbac.ApproveBlog,
		Publish:  rbac.PublishBlog,
		TakeDown: rbac.TakeDownBlog,
	}
}

// Item is a blog post or an edition.
//
// PublishedAt is nil while Draft or Pending, the scheduled time while
// Approved, and the time the item went live once Published.
type Item struct {
	ID          int64      `json:"id"`
	Kind        Kind       `json:"kind"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Status      Status     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AssetKeys   []string   `json:"asset_keys"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateInput is the caller-supplied part of a new item. Status is the raw
// requested status, normalized by NormalizeCreateStatus.
type CreateInput struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	AssetKeys []string `json:"asset_keys"`
	Status    *int     `json:"status,omitempty"`
}

// UpdateInput changes content fields. Nil fields are left as they are.
type UpdateInput struct {
	Title     *string   `json:"title,omitempty"`
	Body      *string   `json:"body,omitempty"`
	AssetKeys *[]string `json:"asset_keys,omitempty"`
}

// ListOptions is a limit/offset window
type ListOptions struct {
	Limit  int
	Offset int
}

// SweepResult reports one sweep. Matched counts rows found due before the
// update; Modified counts rows this sweep actually promoted.
type SweepResult struct {
	Matched     int     `json:"matched"`
	Modified    int     `json:"modified"`
	PromotedIDs []int64 `json:"promoted_ids"`
}
