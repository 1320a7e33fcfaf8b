package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
)

// CatalogRepository serves the read-only lookups the fulfillment core needs
// from the offer catalog. Catalog writes belong to the admin layer.
type CatalogRepository struct {
	db *db.DB
}

func NewCatalogRepository(db *db.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) OfferExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE name = $1`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check offer existence: %v", err)
	}
	if count > 1 {
		return false, &domain.IntegrityError{Resource: "offer", Key: name}
	}
	return count == 1, nil
}

func (r *CatalogRepository) GetOffer(ctx context.Context, name string) (*domain.Offer, error) {
	var offer domain.Offer
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, container_name FROM offers WHERE name = $1`, name).
		Scan(&offer.ID, &offer.Name, &offer.ContainerName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Resource: "offer", Key: name}
		}
		return nil, fmt.Errorf("failed to get offer: %v", err)
	}
	return &offer, nil
}

func (r *CatalogRepository) GetPlan(ctx context.Context, offerID int64, name string) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.QueryRowContext(ctx,
		`SELECT id, offer_id, name FROM plans WHERE offer_id = $1 AND name = $2`, offerID, name).
		Scan(&plan.ID, &plan.OfferID, &plan.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Resource: "plan", Key: name}
		}
		return nil, fmt.Errorf("failed to get plan: %v", err)
	}
	return &plan, nil
}

func (r *CatalogRepository) ListOfferParameters(ctx context.Context, offerID int64) ([]domain.OfferParameter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, offer_id, name, value_type FROM offer_parameters WHERE offer_id = $1 ORDER BY id`, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offer parameters: %v", err)
	}
	defer rows.Close()

	var params []domain.OfferParameter
	for rows.Next() {
		var p domain.OfferParameter
		if err := rows.Scan(&p.ID, &p.OfferID, &p.Name, &p.ValueType); err != nil {
			return nil, fmt.Errorf("failed to scan offer parameter row: %v", err)
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read offer parameter rows: %v", err)
	}
	return params, nil
}

func (r *CatalogRepository) ListCustomMeters(ctx context.Context, offerID int64) ([]domain.CustomMeter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, offer_id, name FROM custom_meters WHERE offer_id = $1 ORDER BY id`, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom meters: %v", err)
	}
	defer rows.Close()

	var meters []domain.CustomMeter
	for rows.Next() {
		var m domain.CustomMeter
		if err := rows.Scan(&m.ID, &m.OfferID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan custom meter row: %v", err)
		}
		meters = append(meters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read custom meter rows: %v", err)
	}
	return meters, nil
}

func (r *CatalogRepository) GetCustomMeter(ctx context.Context, offerID int64, name string) (*domain.CustomMeter, error) {
	var meter domain.CustomMeter
	err := r.db.QueryRowContext(ctx,
		`SELECT id, offer_id, name FROM custom_meters WHERE offer_id = $1 AND name = $2`, offerID, name).
		Scan(&meter.ID, &meter.OfferID, &meter.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Resource: "custom meter", Key: name}
		}
		return nil, fmt.Errorf("failed to get custom meter: %v", err)
	}
	return &meter, nil
}
