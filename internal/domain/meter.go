package domain

import (
	"time"

	"github.com/google/uuid"
)

// EndOfTime is the effective start time reported for a meter with no enabled
// subscriptions: no billable window exists yet.
var EndOfTime = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// CustomMeter is a billable usage dimension defined on an offer.
type CustomMeter struct {
	ID      int64
	OfferID int64
	Name    string
}

// SubscriptionCustomMeterUsage tracks one (subscription, meter) pair. A row is
// created per meter when the subscription is created and lives as long as the
// subscription does.
type SubscriptionCustomMeterUsage struct {
	ID                    int64
	MeterID               int64
	SubscriptionID        uuid.UUID
	IsEnabled             bool
	EnabledTime           *time.Time
	DisabledTime          *time.Time
	UnsubscribedTime      *time.Time
	LastUpdatedTime       time.Time
	LastErrorReportedTime *time.Time
}
