package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/offerstack/fulfillment/internal/domain"
)

// MeterUsageTracker keeps the per-subscription custom meter bookkeeping: what
// is enabled, since when, and how far reporting has caught up.
type MeterUsageTracker struct {
	usages  domain.MeterUsageRepository
	catalog domain.CatalogRepository
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewMeterUsageTracker(usages domain.MeterUsageRepository, catalog domain.CatalogRepository, clock clockwork.Clock, logger *slog.Logger) *MeterUsageTracker {
	return &MeterUsageTracker{usages: usages, catalog: catalog, clock: clock, logger: logger}
}

// Enable turns on custom meter reporting for every meter of the subscription,
// stamping the enable time.
func (t *MeterUsageTracker) Enable(ctx context.Context, subscriptionID uuid.UUID) error {
	now := t.clock.Now().UTC()
	if err := t.usages.SetEnabledBySubscription(ctx, subscriptionID, true, now); err != nil {
		return err
	}
	t.logger.Info("enabled meter usage", "subscription", subscriptionID)
	return nil
}

// Disable turns off custom meter reporting for every meter of the
// subscription, stamping the disable time.
func (t *MeterUsageTracker) Disable(ctx context.Context, subscriptionID uuid.UUID) error {
	now := t.clock.Now().UTC()
	if err := t.usages.SetEnabledBySubscription(ctx, subscriptionID, false, now); err != nil {
		return err
	}
	t.logger.Info("disabled meter usage", "subscription", subscriptionID)
	return nil
}

// ListBySubscription returns the meter usage rows of the subscription.
func (t *MeterUsageTracker) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCustomMeterUsage, error) {
	return t.usages.ListBySubscription(ctx, subscriptionID)
}

// EffectiveStartTime reports the hour from which usage reporting for the
// meter must resume: the earliest unreported time across enabled
// subscriptions, rounded down to the hour. With no enabled rows it returns
// the end-of-time sentinel, meaning nothing is due.
func (t *MeterUsageTracker) EffectiveStartTime(ctx context.Context, offerName, meterName string) (time.Time, error) {
	meter, err := t.getMeter(ctx, offerName, meterName)
	if err != nil {
		return time.Time{}, err
	}
	earliest, ok, err := t.usages.EarliestEnabledUpdate(ctx, meter.ID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return domain.EndOfTime, nil
	}
	return earliest.UTC().Truncate(time.Hour), nil
}

// CatchUpUnreported advances every enabled usage row of the meter that has
// not reported since before t, closing out rows whose subscription
// unsubscribed before t. It reports how many rows were touched.
func (t *MeterUsageTracker) CatchUpUnreported(ctx context.Context, offerName, meterName string, upTo time.Time) (int64, error) {
	meter, err := t.getMeter(ctx, offerName, meterName)
	if err != nil {
		return 0, err
	}
	touched, err := t.usages.AdvanceUnreported(ctx, meter.ID, upTo.UTC())
	if err != nil {
		return 0, err
	}
	if touched > 0 {
		t.logger.Info("caught up unreported meter usage", "offer", offerName, "meter", meterName, "rows", touched)
	}
	return touched, nil
}

func (t *MeterUsageTracker) getMeter(ctx context.Context, offerName, meterName string) (*domain.CustomMeter, error) {
	offer, err := t.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return nil, err
	}
	return t.catalog.GetCustomMeter(ctx, offer.ID, meterName)
}
