package domain

import (
	"time"

	"github.com/google/uuid"
)

// FulfillmentState is the purchaser-visible lifecycle stage of a subscription.
type FulfillmentState string

const (
	StateNotStarted              FulfillmentState = "NotStarted"
	StatePendingFulfillmentStart FulfillmentState = "PendingFulfillmentStart"
	StateSubscribed              FulfillmentState = "Subscribed"
	StateSuspended               FulfillmentState = "Suspended"
	StateUnsubscribed            FulfillmentState = "Unsubscribed"
	StatePurged                  FulfillmentState = "Purged"
)

// ProvisioningState tracks the in-progress infrastructure operation for a
// subscription.
type ProvisioningState string

const (
	ProvisioningPending            ProvisioningState = "ProvisioningPending"
	DeployResourceGroupRunning     ProvisioningState = "DeployResourceGroupRunning"
	ArmTemplatePending             ProvisioningState = "ArmTemplatePending"
	ArmTemplateRunning             ProvisioningState = "ArmTemplateRunning"
	WebhookPending                 ProvisioningState = "WebhookPending"
	NotificationPending            ProvisioningState = "NotificationPending"
	DeployResourceGroupFailed      ProvisioningState = "DeployResourceGroupFailed"
	ArmTemplateFailed              ProvisioningState = "ArmTemplateFailed"
	WebhookFailed                  ProvisioningState = "WebhookFailed"
	NotificationFailed             ProvisioningState = "NotificationFailed"
	ManualActivationPending        ProvisioningState = "ManualActivationPending"
	ManualCompleteOperationPending ProvisioningState = "ManualCompleteOperationPending"
	ProvisioningSucceeded          ProvisioningState = "Succeeded"
	ProvisioningNotSpecified       ProvisioningState = "NotSpecified"
)

// IsErrorState reports whether the provisioning state is a failure state that
// needs operator attention.
func (s ProvisioningState) IsErrorState() bool {
	switch s {
	case DeployResourceGroupFailed, ArmTemplateFailed, WebhookFailed, NotificationFailed:
		return true
	}
	return false
}

// ProvisioningType tags which lifecycle operation is in flight.
type ProvisioningType string

const (
	TypeSubscribe   ProvisioningType = "Subscribe"
	TypeUpdate      ProvisioningType = "Update"
	TypeSuspend     ProvisioningType = "Suspend"
	TypeUnsubscribe ProvisioningType = "Unsubscribe"
	TypeReinstate   ProvisioningType = "Reinstate"
	TypeDeleteData  ProvisioningType = "DeleteData"
)

// Action names a lifecycle operation for guard checks and error messages.
type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionUnsubscribe Action = "unsubscribe"
	ActionSuspend     Action = "suspend"
	ActionReinstate   Action = "reinstate"
	ActionDeleteData  Action = "delete data for"
	ActionActivate    Action = "activate"
)

// stateGuard is the compound state an action requires before it may start.
type stateGuard struct {
	Status       FulfillmentState
	Provisioning ProvisioningState
}

// readyGuards is the transition table: an action listed here is legal only
// when the subscription matches the guard exactly. Actions not listed
// (activate) are unguarded.
var readyGuards = map[Action]stateGuard{
	ActionUpdate:      {StateSubscribed, ProvisioningSucceeded},
	ActionUnsubscribe: {StateSubscribed, ProvisioningSucceeded},
	ActionSuspend:     {StateSubscribed, ProvisioningSucceeded},
	ActionReinstate:   {StateSuspended, ProvisioningSucceeded},
	ActionDeleteData:  {StateUnsubscribed, ProvisioningSucceeded},
}

// Subscription is the root entity of the fulfillment domain. It is never
// hard-deleted: Purged is a terminal status, not row removal.
type Subscription struct {
	SubscriptionID     uuid.UUID
	Name               string
	OfferID            int64
	OfferName          string
	PlanID             int64
	PlanName           string
	Owner              string
	Quantity           int
	Status             FulfillmentState
	ProvisioningStatus ProvisioningState
	ProvisioningType   ProvisioningType
	OperationID        uuid.NullUUID
	CreatedTime        time.Time
	LastUpdatedTime    *time.Time
	ActivatedTime      *time.Time
	ActivatedBy        string
	RetryCount         int
	LastException      string
}

// CheckReadyFor enforces the guard invariant for the given action. The
// returned error names the first offending field.
func (s *Subscription) CheckReadyFor(action Action) error {
	guard, ok := readyGuards[action]
	if !ok {
		return nil
	}
	if s.Status != guard.Status {
		return &IllegalTransitionError{
			SubscriptionID: s.SubscriptionID,
			Action:         action,
			Field:          "fulfillment state",
			Required:       string(guard.Status),
			Actual:         string(s.Status),
		}
	}
	if s.ProvisioningStatus != guard.Provisioning {
		return &IllegalTransitionError{
			SubscriptionID: s.SubscriptionID,
			Action:         action,
			Field:          "provisioning state",
			Required:       string(guard.Provisioning),
			Actual:         string(s.ProvisioningStatus),
		}
	}
	return nil
}

// SubscriptionParameter is a name/type/value tuple bound to a subscription at
// creation time. It is immutable once created.
type SubscriptionParameter struct {
	ID             int64
	SubscriptionID uuid.UUID
	Name           string
	Type           string
	Value          string
}
