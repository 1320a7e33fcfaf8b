package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
)

type SubscriptionRepository struct {
	db *db.DB
}

func NewSubscriptionRepository(db *db.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.subscription_id, s.name, s.offer_id, o.name, s.plan_id, p.name,
	s.owner, s.quantity, s.status, s.provisioning_status, s.provisioning_type, s.operation_id,
	s.created_time, s.last_updated_time, s.activated_time, s.activated_by, s.retry_count, s.last_exception`

const subscriptionJoin = `FROM subscriptions s
	JOIN offers o ON s.offer_id = o.id
	JOIN plans p ON s.plan_id = p.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var lastUpdated, activated sql.NullTime
	var activatedBy, lastException sql.NullString
	err := row.Scan(
		&sub.SubscriptionID, &sub.Name, &sub.OfferID, &sub.OfferName, &sub.PlanID, &sub.PlanName,
		&sub.Owner, &sub.Quantity, &sub.Status, &sub.ProvisioningStatus, &sub.ProvisioningType,
		&sub.OperationID, &sub.CreatedTime, &lastUpdated, &activated, &activatedBy,
		&sub.RetryCount, &lastException,
	)
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		sub.LastUpdatedTime = &lastUpdated.Time
	}
	if activated.Valid {
		sub.ActivatedTime = &activated.Time
	}
	sub.ActivatedBy = activatedBy.String
	sub.LastException = lastException.String
	return &sub, nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` ` + subscriptionJoin + ` WHERE s.subscription_id = $1`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Resource: "subscription", Key: id.String()}
		}
		return nil, fmt.Errorf("failed to get subscription: %v", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE subscription_id = $1`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription existence: %v", err)
	}
	if count > 1 {
		return false, &domain.IntegrityError{Resource: "subscription", Key: id.String()}
	}
	return count == 1, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription, params []domain.SubscriptionParameter, usages []domain.SubscriptionCustomMeterUsage) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO subscriptions (subscription_id, name, offer_id, plan_id, owner, quantity,
			status, provisioning_status, provisioning_type, created_time, retry_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		_, err := tx.ExecContext(ctx, query,
			sub.SubscriptionID, sub.Name, sub.OfferID, sub.PlanID, sub.Owner, sub.Quantity,
			sub.Status, sub.ProvisioningStatus, sub.ProvisioningType, sub.CreatedTime, sub.RetryCount)
		if err != nil {
			return fmt.Errorf("failed to create subscription: %v", err)
		}

		for _, param := range params {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO subscription_parameters (subscription_id, name, type, value) VALUES ($1, $2, $3, $4)`,
				sub.SubscriptionID, param.Name, param.Type, param.Value)
			if err != nil {
				return fmt.Errorf("failed to create subscription parameter %s: %v", param.Name, err)
			}
		}

		for _, usage := range usages {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO subscription_custom_meter_usages (meter_id, subscription_id, is_enabled, last_updated_time)
				VALUES ($1, $2, $3, $4)`,
				usage.MeterID, sub.SubscriptionID, usage.IsEnabled, usage.LastUpdatedTime)
			if err != nil {
				return fmt.Errorf("failed to create meter usage for meter %d: %v", usage.MeterID, err)
			}
		}
		return nil
	})
}

const subscriptionUpdateSet = `UPDATE subscriptions SET plan_id = $2, quantity = $3, status = $4,
	provisioning_status = $5, provisioning_type = $6, operation_id = $7, last_updated_time = $8,
	activated_time = $9, activated_by = $10, retry_count = $11, last_exception = $12
	WHERE subscription_id = $1`

func updateSubscription(ctx context.Context, tx *sql.Tx, sub *domain.Subscription) error {
	result, err := tx.ExecContext(ctx, subscriptionUpdateSet,
		sub.SubscriptionID, sub.PlanID, sub.Quantity, sub.Status,
		sub.ProvisioningStatus, sub.ProvisioningType, sub.OperationID, sub.LastUpdatedTime,
		sub.ActivatedTime, nullString(sub.ActivatedBy), sub.RetryCount, nullString(sub.LastException))
	if err != nil {
		return fmt.Errorf("failed to update subscription: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "subscription", Key: sub.SubscriptionID.String()}
	}
	return nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return updateSubscription(ctx, tx, sub)
	})
}

func (r *SubscriptionRepository) Unsubscribe(ctx context.Context, sub *domain.Subscription, unsubscribedAt time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE subscription_custom_meter_usages SET unsubscribed_time = $2 WHERE subscription_id = $1 AND is_enabled`,
			sub.SubscriptionID, unsubscribedAt)
		if err != nil {
			return fmt.Errorf("failed to stamp meter usages: %v", err)
		}
		return updateSubscription(ctx, tx, sub)
	})
}

func (r *SubscriptionRepository) Suspend(ctx context.Context, sub *domain.Subscription, suspendedAt time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE subscription_custom_meter_usages SET is_enabled = FALSE, disabled_time = $2 WHERE subscription_id = $1`,
			sub.SubscriptionID, suspendedAt)
		if err != nil {
			return fmt.Errorf("failed to disable meter usages: %v", err)
		}
		return updateSubscription(ctx, tx, sub)
	})
}

func (r *SubscriptionRepository) Reinstate(ctx context.Context, sub *domain.Subscription, reinstatedAt time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE subscription_custom_meter_usages
			SET is_enabled = TRUE, enabled_time = $2, last_updated_time = $2
			WHERE subscription_id = $1`,
			sub.SubscriptionID, reinstatedAt)
		if err != nil {
			return fmt.Errorf("failed to enable meter usages: %v", err)
		}
		return updateSubscription(ctx, tx, sub)
	})
}

func (r *SubscriptionRepository) List(ctx context.Context, statuses []domain.FulfillmentState, owner string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` ` + subscriptionJoin
	args := []any{}
	where := ""
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		args = append(args, pq.Array(values))
		where = fmt.Sprintf(" WHERE s.status = ANY($%d)", len(args))
	}
	if owner != "" {
		args = append(args, owner)
		if where == "" {
			where = fmt.Sprintf(" WHERE s.owner = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND s.owner = $%d", len(args))
		}
	}

	rows, err := r.db.QueryContext(ctx, query+where+` ORDER BY s.created_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %v", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %v", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscription rows: %v", err)
	}
	return subs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
