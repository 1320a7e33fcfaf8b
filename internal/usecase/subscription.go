package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/offerstack/fulfillment/internal/domain"
)

// SubscriptionLifecycle drives the fulfillment state machine. Every operation
// loads the subscription, checks the transition guard, and persists the new
// compound state; the provisioning workers observe the pending states it sets.
type SubscriptionLifecycle struct {
	subs    domain.SubscriptionRepository
	catalog domain.CatalogRepository
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewSubscriptionLifecycle(subs domain.SubscriptionRepository, catalog domain.CatalogRepository, clock clockwork.Clock, logger *slog.Logger) *SubscriptionLifecycle {
	return &SubscriptionLifecycle{subs: subs, catalog: catalog, clock: clock, logger: logger}
}

// CreateSubscriptionInput carries the purchase data for a new subscription.
type CreateSubscriptionInput struct {
	SubscriptionID uuid.UUID
	Name           string
	OfferName      string
	PlanName       string
	Owner          string
	Quantity       int
	Parameters     []domain.SubscriptionParameter
}

// UpdateSubscriptionInput carries a plan change or a quantity change. Zero
// values mean "unchanged".
type UpdateSubscriptionInput struct {
	SubscriptionID uuid.UUID
	PlanName       string
	Quantity       int
}

// SubscriptionWarning flags a subscription stuck in a failed provisioning
// state for operator attention.
type SubscriptionWarning struct {
	SubscriptionID uuid.UUID
	Status         domain.FulfillmentState
	Provisioning   domain.ProvisioningState
	Detail         string
}

// Create registers a new subscription in PendingFulfillmentStart with the
// subscribe flow pending, seeding one disabled meter usage row per custom
// meter of the offer.
func (l *SubscriptionLifecycle) Create(ctx context.Context, in CreateSubscriptionInput) (*domain.Subscription, error) {
	if in.SubscriptionID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "subscriptionId", Reason: "not provided"}
	}

	exists, err := l.subs.Exists(ctx, in.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &domain.ConflictError{Resource: "subscription", Key: in.SubscriptionID.String()}
	}

	offer, err := l.catalog.GetOffer(ctx, in.OfferName)
	if err != nil {
		return nil, err
	}
	plan, err := l.catalog.GetPlan(ctx, offer.ID, in.PlanName)
	if err != nil {
		return nil, err
	}

	params, err := l.resolveParameters(ctx, offer.ID, in)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	sub := &domain.Subscription{
		SubscriptionID: in.SubscriptionID,
		Name:           in.Name,
		OfferID:        offer.ID,
		OfferName:      offer.Name,
		PlanID:         plan.ID,
		PlanName:       plan.Name,
		Owner:          in.Owner,
		// The marketplace reports unreliable quantities on new purchases, so
		// every subscription starts at 1 regardless of the requested amount.
		Quantity:           1,
		Status:             domain.StatePendingFulfillmentStart,
		ProvisioningStatus: domain.ProvisioningPending,
		ProvisioningType:   domain.TypeSubscribe,
		CreatedTime:        now,
	}

	usages, err := l.seedMeterUsages(ctx, offer.ID, sub.SubscriptionID, now)
	if err != nil {
		return nil, err
	}

	if err := l.subs.Create(ctx, sub, params, usages); err != nil {
		return nil, err
	}
	l.logger.Info("created subscription", "subscription", sub.SubscriptionID, "offer", offer.Name, "plan", plan.Name)
	return sub, nil
}

// resolveParameters checks the purchase parameters against the offer's
// declared parameters: every declared parameter must be supplied with a
// matching type.
func (l *SubscriptionLifecycle) resolveParameters(ctx context.Context, offerID int64, in CreateSubscriptionInput) ([]domain.SubscriptionParameter, error) {
	declared, err := l.catalog.ListOfferParameters(ctx, offerID)
	if err != nil {
		return nil, err
	}

	supplied := make(map[string]domain.SubscriptionParameter, len(in.Parameters))
	for _, p := range in.Parameters {
		supplied[p.Name] = p
	}

	params := make([]domain.SubscriptionParameter, 0, len(declared))
	for _, d := range declared {
		p, ok := supplied[d.Name]
		if !ok {
			return nil, &domain.ValidationError{Field: d.Name, Reason: "required parameter not provided"}
		}
		if !strings.EqualFold(p.Type, d.ValueType) {
			return nil, &domain.ValidationError{
				Field:  d.Name,
				Reason: fmt.Sprintf("expected type %s, got %s", d.ValueType, p.Type),
			}
		}
		p.SubscriptionID = in.SubscriptionID
		params = append(params, p)
	}
	return params, nil
}

func (l *SubscriptionLifecycle) seedMeterUsages(ctx context.Context, offerID int64, subscriptionID uuid.UUID, now time.Time) ([]domain.SubscriptionCustomMeterUsage, error) {
	meters, err := l.catalog.ListCustomMeters(ctx, offerID)
	if err != nil {
		return nil, err
	}
	usages := make([]domain.SubscriptionCustomMeterUsage, 0, len(meters))
	for _, m := range meters {
		usages = append(usages, domain.SubscriptionCustomMeterUsage{
			MeterID:         m.ID,
			SubscriptionID:  subscriptionID,
			IsEnabled:       false,
			LastUpdatedTime: now,
		})
	}
	return usages, nil
}

// getForAction loads the subscription for a lifecycle action. A missing
// subscription surfaces as NotPermittedError: callers learn the action was
// refused, not whether the id exists.
func (l *SubscriptionLifecycle) getForAction(ctx context.Context, id uuid.UUID, action domain.Action) (*domain.Subscription, error) {
	sub, err := l.subs.Get(ctx, id)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, &domain.NotPermittedError{SubscriptionID: id, Action: action}
		}
		return nil, err
	}
	if err := sub.CheckReadyFor(action); err != nil {
		return nil, err
	}
	return sub, nil
}

// Update changes the plan or the quantity of a subscription, never both in
// one call. A plan change starts the update provisioning flow; a quantity
// change is recorded without re-provisioning.
func (l *SubscriptionLifecycle) Update(ctx context.Context, in UpdateSubscriptionInput, operationID uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.getForAction(ctx, in.SubscriptionID, domain.ActionUpdate)
	if err != nil {
		return nil, err
	}

	planChanged := in.PlanName != "" && in.PlanName != sub.PlanName
	quantityChanged := in.Quantity != 0 && in.Quantity != sub.Quantity
	if planChanged && quantityChanged {
		return nil, &domain.ValidationError{Field: "planId", Reason: "plan and quantity cannot change in the same update"}
	}

	now := l.clock.Now().UTC()
	switch {
	case planChanged:
		plan, err := l.catalog.GetPlan(ctx, sub.OfferID, in.PlanName)
		if err != nil {
			return nil, err
		}
		sub.PlanID = plan.ID
		sub.PlanName = plan.Name
		sub.OperationID = uuid.NullUUID{UUID: operationID, Valid: true}
		sub.ProvisioningStatus = domain.ArmTemplatePending
		sub.ProvisioningType = domain.TypeUpdate
	case quantityChanged:
		sub.Quantity = in.Quantity
	default:
		return nil, &domain.ValidationError{Field: "planId", Reason: "nothing to update"}
	}
	sub.LastUpdatedTime = &now

	if err := l.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	l.logger.Info("updated subscription", "subscription", sub.SubscriptionID, "plan", sub.PlanName, "quantity", sub.Quantity)
	return sub, nil
}

// Unsubscribe starts the unsubscribe flow and stamps the churn time on the
// subscription's enabled meter usage rows so the unreported sweep can close
// them out.
func (l *SubscriptionLifecycle) Unsubscribe(ctx context.Context, id uuid.UUID, operationID uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.getForAction(ctx, id, domain.ActionUnsubscribe)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	sub.OperationID = uuid.NullUUID{UUID: operationID, Valid: true}
	sub.ProvisioningStatus = domain.ArmTemplatePending
	sub.ProvisioningType = domain.TypeUnsubscribe
	sub.LastUpdatedTime = &now

	if err := l.subs.Unsubscribe(ctx, sub, now); err != nil {
		return nil, err
	}
	l.logger.Info("unsubscribe started", "subscription", sub.SubscriptionID)
	return sub, nil
}

// Suspend starts the suspend flow, disabling the subscription's custom meter
// reporting in the same transaction.
func (l *SubscriptionLifecycle) Suspend(ctx context.Context, id uuid.UUID, operationID uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.getForAction(ctx, id, domain.ActionSuspend)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	sub.OperationID = uuid.NullUUID{UUID: operationID, Valid: true}
	sub.ProvisioningStatus = domain.ArmTemplatePending
	sub.ProvisioningType = domain.TypeSuspend
	sub.LastUpdatedTime = &now

	if err := l.subs.Suspend(ctx, sub, now); err != nil {
		return nil, err
	}
	l.logger.Info("suspend started", "subscription", sub.SubscriptionID)
	return sub, nil
}

// Reinstate starts the reinstate flow for a suspended subscription,
// re-enabling its custom meter reporting in the same transaction.
func (l *SubscriptionLifecycle) Reinstate(ctx context.Context, id uuid.UUID, operationID uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.getForAction(ctx, id, domain.ActionReinstate)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	sub.OperationID = uuid.NullUUID{UUID: operationID, Valid: true}
	sub.ProvisioningStatus = domain.ArmTemplatePending
	sub.ProvisioningType = domain.TypeReinstate
	sub.LastUpdatedTime = &now

	if err := l.subs.Reinstate(ctx, sub, now); err != nil {
		return nil, err
	}
	l.logger.Info("reinstate started", "subscription", sub.SubscriptionID)
	return sub, nil
}

// DeleteData starts the delete-data flow for an unsubscribed subscription.
func (l *SubscriptionLifecycle) DeleteData(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.getForAction(ctx, id, domain.ActionDeleteData)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	sub.ProvisioningStatus = domain.ArmTemplatePending
	sub.ProvisioningType = domain.TypeDeleteData
	sub.LastUpdatedTime = &now

	if err := l.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	l.logger.Info("data deletion started", "subscription", sub.SubscriptionID)
	return sub, nil
}

// Activate marks the subscription live. It is unguarded so an operator can
// force-activate out of a stuck provisioning flow.
func (l *SubscriptionLifecycle) Activate(ctx context.Context, id uuid.UUID, activatedBy string) (*domain.Subscription, error) {
	sub, err := l.getForAction(ctx, id, domain.ActionActivate)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	if activatedBy == "" {
		activatedBy = "system"
	}
	sub.Status = domain.StateSubscribed
	sub.ActivatedTime = &now
	sub.ActivatedBy = activatedBy
	sub.LastUpdatedTime = &now

	if err := l.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	l.logger.Info("activated subscription", "subscription", sub.SubscriptionID, "by", activatedBy)
	return sub, nil
}

// Get returns one subscription by id.
func (l *SubscriptionLifecycle) Get(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return l.subs.Get(ctx, id)
}

// List returns subscriptions filtered by status and owner. Empty filters
// match everything.
func (l *SubscriptionLifecycle) List(ctx context.Context, statuses []domain.FulfillmentState, owner string) ([]domain.Subscription, error) {
	return l.subs.List(ctx, statuses, owner)
}

// Warnings lists subscriptions stuck in a failed provisioning state.
func (l *SubscriptionLifecycle) Warnings(ctx context.Context) ([]SubscriptionWarning, error) {
	subs, err := l.subs.List(ctx, nil, "")
	if err != nil {
		return nil, err
	}
	var warnings []SubscriptionWarning
	for _, sub := range subs {
		if !sub.ProvisioningStatus.IsErrorState() {
			continue
		}
		warnings = append(warnings, SubscriptionWarning{
			SubscriptionID: sub.SubscriptionID,
			Status:         sub.Status,
			Provisioning:   sub.ProvisioningStatus,
			Detail:         sub.LastException,
		})
	}
	return warnings, nil
}
