package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError reports that a referenced resource does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// ConflictError reports an attempt to create an already-existing named
// resource, or an unsupported mutation of an existing one.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %s", e.Resource, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s %s already exists", e.Resource, e.Key)
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IllegalTransitionError reports a lifecycle operation attempted while the
// subscription is not in the state the operation requires.
type IllegalTransitionError struct {
	SubscriptionID uuid.UUID
	Action         Action
	Field          string
	Required       string
	Actual         string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s subscription %s: %s must be %s, is %s",
		e.Action, e.SubscriptionID, e.Field, e.Required, e.Actual)
}

// NotPermittedError hides a missing subscription behind the action that was
// attempted, so callers get actionable context instead of a raw not-found.
type NotPermittedError struct {
	SubscriptionID uuid.UUID
	Action         Action
}

func (e *NotPermittedError) Error() string {
	return fmt.Sprintf("cannot %s subscription %s: the subscription does not exist or you do not have permission to access it",
		e.Action, e.SubscriptionID)
}

// CapacityError reports pool exhaustion. This is a server-side condition,
// not a caller error.
type CapacityError struct {
	IPConfig string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("no IP addresses available in %s", e.IPConfig)
}

// IntegrityError signals a violated uniqueness invariant in the store.
// It is never caused by caller input.
type IntegrityError struct {
	Resource string
	Key      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("more than one %s exists for %s", e.Resource, e.Key)
}
