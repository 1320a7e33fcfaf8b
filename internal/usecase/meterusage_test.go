package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackerFixture struct {
	tracker *MeterUsageTracker
	usages  *fakeMeterUsageRepo
	clock   *clockwork.FakeClock
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	catalog := newFakeCatalog()
	catalog.addOffer(1, "vpn-offer", "basic")
	catalog.meters[1] = []domain.CustomMeter{{ID: 7, OfferID: 1, Name: "gb-transferred"}}
	usages := &fakeMeterUsageRepo{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 10, 42, 17, 0, time.UTC))
	return &trackerFixture{
		tracker: NewMeterUsageTracker(usages, catalog, clock, testLogger()),
		usages:  usages,
		clock:   clock,
	}
}

func (f *trackerFixture) addRow(subID uuid.UUID, enabled bool, lastUpdated time.Time) *domain.SubscriptionCustomMeterUsage {
	row := &domain.SubscriptionCustomMeterUsage{
		MeterID:         7,
		SubscriptionID:  subID,
		IsEnabled:       enabled,
		LastUpdatedTime: lastUpdated,
	}
	f.usages.rows = append(f.usages.rows, row)
	return row
}

func TestTrackerEnableStampsTimes(t *testing.T) {
	f := newTrackerFixture(t)
	subID := uuid.New()
	f.addRow(subID, false, f.clock.Now().Add(-24*time.Hour))

	require.NoError(t, f.tracker.Enable(context.Background(), subID))

	rows, err := f.tracker.ListBySubscription(context.Background(), subID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsEnabled)
	require.NotNil(t, rows[0].EnabledTime)
	assert.Equal(t, f.clock.Now().UTC(), *rows[0].EnabledTime)
	assert.Equal(t, f.clock.Now().UTC(), rows[0].LastUpdatedTime)
}

func TestTrackerDisableStampsTime(t *testing.T) {
	f := newTrackerFixture(t)
	subID := uuid.New()
	f.addRow(subID, true, f.clock.Now())

	require.NoError(t, f.tracker.Disable(context.Background(), subID))

	rows, err := f.tracker.ListBySubscription(context.Background(), subID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsEnabled)
	require.NotNil(t, rows[0].DisabledTime)
	assert.Equal(t, f.clock.Now().UTC(), *rows[0].DisabledTime)
}

func TestTrackerEffectiveStartTimeRoundsDown(t *testing.T) {
	f := newTrackerFixture(t)
	f.addRow(uuid.New(), true, time.Date(2024, 6, 1, 9, 58, 31, 0, time.UTC))
	f.addRow(uuid.New(), true, time.Date(2024, 6, 1, 8, 12, 5, 0, time.UTC))
	// Disabled rows never move the start time.
	f.addRow(uuid.New(), false, time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC))

	start, err := f.tracker.EffectiveStartTime(context.Background(), "vpn-offer", "gb-transferred")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), start)
}

func TestTrackerEffectiveStartTimeNoEnabledRows(t *testing.T) {
	f := newTrackerFixture(t)
	f.addRow(uuid.New(), false, f.clock.Now())

	start, err := f.tracker.EffectiveStartTime(context.Background(), "vpn-offer", "gb-transferred")
	require.NoError(t, err)
	assert.Equal(t, domain.EndOfTime, start)
}

func TestTrackerEffectiveStartTimeUnknownMeter(t *testing.T) {
	f := newTrackerFixture(t)

	_, err := f.tracker.EffectiveStartTime(context.Background(), "vpn-offer", "no-such-meter")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestTrackerCatchUpAdvancesStaleRows(t *testing.T) {
	f := newTrackerFixture(t)
	upTo := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	stale := f.addRow(uuid.New(), true, upTo.Add(-3*time.Hour))
	current := f.addRow(uuid.New(), true, upTo)

	touched, err := f.tracker.CatchUpUnreported(context.Background(), "vpn-offer", "gb-transferred", upTo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), touched)
	assert.Equal(t, upTo, stale.LastUpdatedTime)
	assert.True(t, stale.IsEnabled)
	assert.Equal(t, upTo, current.LastUpdatedTime)
}

func TestTrackerCatchUpClosesChurnedRows(t *testing.T) {
	f := newTrackerFixture(t)
	upTo := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	churnedAt := upTo.Add(-time.Hour)
	row := f.addRow(uuid.New(), true, upTo.Add(-3*time.Hour))
	row.UnsubscribedTime = &churnedAt

	touched, err := f.tracker.CatchUpUnreported(context.Background(), "vpn-offer", "gb-transferred", upTo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), touched)
	assert.False(t, row.IsEnabled)
	require.NotNil(t, row.DisabledTime)
	assert.Equal(t, upTo, *row.DisabledTime)
	assert.Equal(t, upTo, row.LastUpdatedTime)
}

func TestTrackerCatchUpSkipsRecentErrors(t *testing.T) {
	f := newTrackerFixture(t)
	upTo := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	errAt := upTo.Add(time.Minute)
	row := f.addRow(uuid.New(), true, upTo.Add(-3*time.Hour))
	row.LastErrorReportedTime = &errAt

	touched, err := f.tracker.CatchUpUnreported(context.Background(), "vpn-offer", "gb-transferred", upTo)
	require.NoError(t, err)
	assert.Equal(t, int64(0), touched)
	assert.Equal(t, upTo.Add(-3*time.Hour), row.LastUpdatedTime)
}

func TestTrackerCatchUpIdempotent(t *testing.T) {
	f := newTrackerFixture(t)
	upTo := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.addRow(uuid.New(), true, upTo.Add(-3*time.Hour))

	touched, err := f.tracker.CatchUpUnreported(context.Background(), "vpn-offer", "gb-transferred", upTo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), touched)

	touched, err = f.tracker.CatchUpUnreported(context.Background(), "vpn-offer", "gb-transferred", upTo)
	require.NoError(t, err)
	assert.Equal(t, int64(0), touched)
}
