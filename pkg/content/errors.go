package content

import (
	"errors"

	"github.com/platinummonkey/masthead/pkg/rbac"
)

var (
	// ErrNotFound is returned when no item of the kind has the id
	ErrNotFound = errors.New("content item not found")
	// ErrInvalidTransition is returned when the item's current status does not allow the operation
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSchedulingViolation is returned when an approval is scheduled at or before now
	ErrSchedulingViolation = errors.New("publish time must be in the future")
	// ErrNotOwner is returned when a non-owner takes down an item through the owner path
	ErrNotOwner = errors.New("only the owner may take down this item")
	// ErrValidation is returned for malformed input
	ErrValidation = errors.New("validation failed")

	// Authorization outcomes share the rbac sentinels so callers match on one set
	ErrUnauthenticated = rbac.ErrUnauthenticated
	ErrForbidden       = rbac.ErrForbidden
)
