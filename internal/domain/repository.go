package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BlockAddresses carries one CIDR block together with its pre-expanded pool
// addresses, ready for bulk insertion.
type BlockAddresses struct {
	CIDR      string
	Addresses []string
}

// IPRepository persists IP configs, blocks, and the claimable address pool.
type IPRepository interface {
	GetConfig(ctx context.Context, offerID int64, name string) (*IPConfig, error)
	ConfigExists(ctx context.Context, offerID int64, name string) (bool, error)
	// CreateConfig inserts the config, its blocks, and every pool address in
	// one transaction.
	CreateConfig(ctx context.Context, cfg *IPConfig, blocks []BlockAddresses) error
	// AppendBlocks adds blocks to an existing config, expanding their
	// addresses, in one transaction.
	AppendBlocks(ctx context.Context, configID int64, blocks []BlockAddresses) error
	// DeleteConfig removes the config with its blocks and addresses. It fails
	// with a ConflictError when any address is still assigned.
	DeleteConfig(ctx context.Context, configID int64) error
	// AssignAddress claims the first available address in the config's blocks
	// for the subscription. It fails with a CapacityError when none is free.
	AssignAddress(ctx context.Context, cfg *IPConfig, subscriptionID uuid.UUID) (*IPAddress, error)
	// ReleaseAddresses frees every address assigned to the subscription and
	// reports how many were released.
	ReleaseAddresses(ctx context.Context, subscriptionID uuid.UUID) (int64, error)
}

// SubscriptionRepository persists subscriptions and their creation-time
// dependents.
type SubscriptionRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Create inserts the subscription, its parameters, and one meter usage row
	// per custom meter in one transaction.
	Create(ctx context.Context, sub *Subscription, params []SubscriptionParameter, usages []SubscriptionCustomMeterUsage) error
	Update(ctx context.Context, sub *Subscription) error
	// Unsubscribe stamps UnsubscribedTime on the subscription's enabled meter
	// usage rows and persists the provisioning transition in one transaction.
	Unsubscribe(ctx context.Context, sub *Subscription, unsubscribedAt time.Time) error
	// Suspend disables the subscription's meter usage rows and persists the
	// provisioning transition in one transaction.
	Suspend(ctx context.Context, sub *Subscription, suspendedAt time.Time) error
	// Reinstate re-enables the subscription's meter usage rows and persists
	// the provisioning transition in one transaction.
	Reinstate(ctx context.Context, sub *Subscription, reinstatedAt time.Time) error
	List(ctx context.Context, statuses []FulfillmentState, owner string) ([]Subscription, error)
}

// MeterUsageRepository persists per-subscription custom meter bookkeeping.
type MeterUsageRepository interface {
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]SubscriptionCustomMeterUsage, error)
	// SetEnabledBySubscription flips every usage row of the subscription and
	// stamps EnabledTime or DisabledTime accordingly.
	SetEnabledBySubscription(ctx context.Context, subscriptionID uuid.UUID, enabled bool, now time.Time) error
	// EarliestEnabledUpdate returns the minimum LastUpdatedTime among enabled
	// rows of the meter; ok is false when the meter has no enabled rows.
	EarliestEnabledUpdate(ctx context.Context, meterID int64) (t time.Time, ok bool, err error)
	// AdvanceUnreported moves LastUpdatedTime forward to t for enabled rows
	// that have not reported since before t, disabling rows whose subscription
	// churned before t. Returns the number of rows touched.
	AdvanceUnreported(ctx context.Context, meterID int64, t time.Time) (int64, error)
}

// ParameterRepository persists the shared parameter definitions of one
// parameter kind (ARM template or webhook) and their join links.
type ParameterRepository interface {
	ListByOffer(ctx context.Context, offerID int64) ([]TemplateParameter, error)
	GetByName(ctx context.Context, offerID int64, name string) (*TemplateParameter, error)
	Exists(ctx context.Context, offerID int64, name string) (bool, error)
	ListLinked(ctx context.Context, templateID int64) ([]TemplateParameter, error)
	// Reconcile applies one batch: insert-and-link the given new parameters,
	// link existing parameter ids, and remove the join links in unlink. All in
	// one transaction.
	Reconcile(ctx context.Context, templateID int64, create []TemplateParameter, link []int64, unlink []int64) error
	// DeleteUnused removes parameter definitions with no remaining links and
	// reports how many were deleted.
	DeleteUnused(ctx context.Context, offerID int64) (int64, error)
}

// CatalogRepository resolves offer-scoped configuration by name. These are
// the read-only collaborator lookups of the fulfillment core.
type CatalogRepository interface {
	OfferExists(ctx context.Context, name string) (bool, error)
	GetOffer(ctx context.Context, name string) (*Offer, error)
	GetPlan(ctx context.Context, offerID int64, name string) (*Plan, error)
	ListOfferParameters(ctx context.Context, offerID int64) ([]OfferParameter, error)
	ListCustomMeters(ctx context.Context, offerID int64) ([]CustomMeter, error)
	GetCustomMeter(ctx context.Context, offerID int64, name string) (*CustomMeter, error)
}
