package content

import (
	"fmt"
	"time"
)

// Transition is the target of a legal status change. Status and PublishedAt
// are always written together.
type Transition struct {
	From        Status
	To          Status
	PublishedAt *time.Time
}

// NormalizeCreateStatus picks the status a new item starts in. Callers
// without the submit permission always start in Draft; anything other than
// Draft that a submitter asks for is downgraded to Pending, so approval and
// publication can only happen through their own operations.
func NormalizeCreateStatus(canSubmit bool, requested *int) Status {
	if !canSubmit || requested == nil {
		return StatusDraft
	}
	switch Status(*requested) {
	case StatusPending, StatusApproved, StatusPublished:
		return StatusPending
	default:
		return StatusDraft
	}
}

// SubmitForApproval moves a Draft to Pending. Submitting a Pending item again
// is allowed and leaves it Pending.
func SubmitForApproval(item *Item) (Transition, error) {
	switch item.Status {
	case StatusDraft, StatusPending:
		return Transition{From: item.Status, To: StatusPending}, nil
	}
	return Transition{}, invalid("submit", item.Status)
}

// Approve schedules a Pending item for publication at scheduledAt, which must
// be strictly after now. The status is checked before the time.
func Approve(item *Item, scheduledAt, now time.Time) (Transition, error) {
	if item.Status != StatusPending {
		return Transition{}, invalid("approve", item.Status)
	}
	if !scheduledAt.After(now) {
		return Transition{}, fmt.Errorf("%w: %s is not after %s",
			ErrSchedulingViolation, scheduledAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	at := scheduledAt
	return Transition{From: item.Status, To: StatusApproved, PublishedAt: &at}, nil
}

// Publish makes an item live immediately from any state except Published
func Publish(item *Item, now time.Time) (Transition, error) {
	if item.Status == StatusPublished {
		return Transition{}, invalid("publish", item.Status)
	}
	at := now
	return Transition{From: item.Status, To: StatusPublished, PublishedAt: &at}, nil
}

// TakeDown withdraws a Pending or Approved item to Pending or Draft and
// clears the publication time. Ownership is checked by the caller.
func TakeDown(item *Item, toPending bool) (Transition, error) {
	switch item.Status {
	case StatusPending, StatusApproved:
	default:
		return Transition{}, invalid("take down", item.Status)
	}
	to := StatusDraft
	if toPending {
		to = StatusPending
	}
	return Transition{From: item.Status, To: to}, nil
}

// CanDelete decides whether an item may be deleted. Holders of the delete
// permission may delete in any state; owners may delete their own drafts.
func CanDelete(item *Item, isOwner, canDeleteAny bool) error {
	if canDeleteAny {
		return nil
	}
	if !isOwner {
		return ErrForbidden
	}
	if item.Status != StatusDraft {
		return invalid("delete", item.Status)
	}
	return nil
}

func invalid(operation string, from Status) error {
	return fmt.Errorf("%w: cannot %s a %s item", ErrInvalidTransition, operation, from)
}
