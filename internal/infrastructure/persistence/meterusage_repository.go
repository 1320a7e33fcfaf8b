package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
)

type MeterUsageRepository struct {
	db *db.DB
}

func NewMeterUsageRepository(db *db.DB) *MeterUsageRepository {
	return &MeterUsageRepository{db: db}
}

const meterUsageColumns = `id, meter_id, subscription_id, is_enabled, enabled_time, disabled_time,
	unsubscribed_time, last_updated_time, last_error_reported_time`

func scanMeterUsage(row rowScanner) (*domain.SubscriptionCustomMeterUsage, error) {
	var usage domain.SubscriptionCustomMeterUsage
	var enabled, disabled, unsubscribed, lastError sql.NullTime
	err := row.Scan(&usage.ID, &usage.MeterID, &usage.SubscriptionID, &usage.IsEnabled,
		&enabled, &disabled, &unsubscribed, &usage.LastUpdatedTime, &lastError)
	if err != nil {
		return nil, err
	}
	if enabled.Valid {
		usage.EnabledTime = &enabled.Time
	}
	if disabled.Valid {
		usage.DisabledTime = &disabled.Time
	}
	if unsubscribed.Valid {
		usage.UnsubscribedTime = &unsubscribed.Time
	}
	if lastError.Valid {
		usage.LastErrorReportedTime = &lastError.Time
	}
	return &usage, nil
}

func (r *MeterUsageRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCustomMeterUsage, error) {
	query := `SELECT ` + meterUsageColumns + ` FROM subscription_custom_meter_usages WHERE subscription_id = $1 ORDER BY meter_id`
	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meter usages: %v", err)
	}
	defer rows.Close()

	var usages []domain.SubscriptionCustomMeterUsage
	for rows.Next() {
		usage, err := scanMeterUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meter usage row: %v", err)
		}
		usages = append(usages, *usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meter usage rows: %v", err)
	}
	return usages, nil
}

func (r *MeterUsageRepository) SetEnabledBySubscription(ctx context.Context, subscriptionID uuid.UUID, enabled bool, now time.Time) error {
	var query string
	if enabled {
		query = `UPDATE subscription_custom_meter_usages
			SET is_enabled = TRUE, enabled_time = $2, last_updated_time = $2
			WHERE subscription_id = $1`
	} else {
		query = `UPDATE subscription_custom_meter_usages
			SET is_enabled = FALSE, disabled_time = $2
			WHERE subscription_id = $1`
	}
	if _, err := r.db.ExecContext(ctx, query, subscriptionID, now); err != nil {
		return fmt.Errorf("failed to update meter usages: %v", err)
	}
	return nil
}

func (r *MeterUsageRepository) EarliestEnabledUpdate(ctx context.Context, meterID int64) (time.Time, bool, error) {
	query := `SELECT last_updated_time FROM subscription_custom_meter_usages
		WHERE meter_id = $1 AND is_enabled
		ORDER BY last_updated_time
		LIMIT 1`
	var t time.Time
	err := r.db.QueryRowContext(ctx, query, meterID).Scan(&t)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get earliest meter usage: %v", err)
	}
	return t, true, nil
}

func (r *MeterUsageRepository) AdvanceUnreported(ctx context.Context, meterID int64, t time.Time) (int64, error) {
	var touched int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Rows whose subscription churned before t are closed out entirely.
		result, err := tx.ExecContext(ctx,
			`UPDATE subscription_custom_meter_usages
			SET last_updated_time = $2, disabled_time = $2, is_enabled = FALSE
			WHERE meter_id = $1 AND is_enabled
				AND last_updated_time < $2
				AND (last_error_reported_time IS NULL OR last_error_reported_time < $2)
				AND unsubscribed_time < $2`,
			meterID, t)
		if err != nil {
			return fmt.Errorf("failed to disable churned meter usages: %v", err)
		}
		disabled, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %v", err)
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE subscription_custom_meter_usages
			SET last_updated_time = $2
			WHERE meter_id = $1 AND is_enabled
				AND last_updated_time < $2
				AND (last_error_reported_time IS NULL OR last_error_reported_time < $2)`,
			meterID, t)
		if err != nil {
			return fmt.Errorf("failed to advance meter usages: %v", err)
		}
		advanced, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %v", err)
		}

		touched = disabled + advanced
		return nil
	})
	if err != nil {
		return 0, err
	}
	return touched, nil
}
