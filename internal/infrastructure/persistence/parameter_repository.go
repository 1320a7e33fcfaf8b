package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
)

// ParameterRepository persists shared parameter definitions and their join
// links for one parameter kind. ARM template and webhook parameters use the
// same schema shape, so one implementation serves both with different tables.
type ParameterRepository struct {
	db         *db.DB
	resource   string
	paramTable string
	joinTable  string
	ownerCol   string
}

func NewArmTemplateParameterRepository(db *db.DB) *ParameterRepository {
	return &ParameterRepository{
		db:         db,
		resource:   "ARM template parameter",
		paramTable: "arm_template_parameters",
		joinTable:  "arm_template_parameter_links",
		ownerCol:   "arm_template_id",
	}
}

func NewWebhookParameterRepository(db *db.DB) *ParameterRepository {
	return &ParameterRepository{
		db:         db,
		resource:   "webhook parameter",
		paramTable: "webhook_parameters",
		joinTable:  "webhook_parameter_links",
		ownerCol:   "webhook_id",
	}
}

func (r *ParameterRepository) ListByOffer(ctx context.Context, offerID int64) ([]domain.TemplateParameter, error) {
	query := fmt.Sprintf(`SELECT id, offer_id, name, type, value FROM %s WHERE offer_id = $1 ORDER BY id`, r.paramTable)
	rows, err := r.db.QueryContext(ctx, query, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %v", r.resource, err)
	}
	defer rows.Close()
	return collectParameters(rows, r.resource)
}

func (r *ParameterRepository) GetByName(ctx context.Context, offerID int64, name string) (*domain.TemplateParameter, error) {
	query := fmt.Sprintf(`SELECT id, offer_id, name, type, value FROM %s WHERE offer_id = $1 AND name = $2`, r.paramTable)
	var p domain.TemplateParameter
	err := r.db.QueryRowContext(ctx, query, offerID, name).Scan(&p.ID, &p.OfferID, &p.Name, &p.Type, &p.Value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Resource: r.resource, Key: name}
		}
		return nil, fmt.Errorf("failed to get %s: %v", r.resource, err)
	}
	return &p, nil
}

func (r *ParameterRepository) Exists(ctx context.Context, offerID int64, name string) (bool, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE offer_id = $1 AND name = $2`, r.paramTable)
	var count int
	if err := r.db.QueryRowContext(ctx, query, offerID, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %v", r.resource, err)
	}
	if count > 1 {
		return false, &domain.IntegrityError{Resource: r.resource, Key: name}
	}
	return count == 1, nil
}

func (r *ParameterRepository) ListLinked(ctx context.Context, templateID int64) ([]domain.TemplateParameter, error) {
	query := fmt.Sprintf(`SELECT p.id, p.offer_id, p.name, p.type, p.value FROM %s p
		JOIN %s l ON l.parameter_id = p.id
		WHERE l.%s = $1 ORDER BY p.id`, r.paramTable, r.joinTable, r.ownerCol)
	rows, err := r.db.QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked %ss: %v", r.resource, err)
	}
	defer rows.Close()
	return collectParameters(rows, r.resource)
}

func (r *ParameterRepository) Reconcile(ctx context.Context, templateID int64, create []domain.TemplateParameter, link []int64, unlink []int64) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		insertParam := fmt.Sprintf(`INSERT INTO %s (offer_id, name, type, value) VALUES ($1, $2, $3, $4) RETURNING id`, r.paramTable)
		insertLink := fmt.Sprintf(`INSERT INTO %s (%s, parameter_id) VALUES ($1, $2)`, r.joinTable, r.ownerCol)
		deleteLink := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND parameter_id = $2`, r.joinTable, r.ownerCol)

		for _, p := range create {
			var paramID int64
			if err := tx.QueryRowContext(ctx, insertParam, p.OfferID, p.Name, p.Type, p.Value).Scan(&paramID); err != nil {
				return fmt.Errorf("failed to create %s %s: %v", r.resource, p.Name, err)
			}
			if _, err := tx.ExecContext(ctx, insertLink, templateID, paramID); err != nil {
				return fmt.Errorf("failed to link %s %s: %v", r.resource, p.Name, err)
			}
		}
		for _, paramID := range link {
			if _, err := tx.ExecContext(ctx, insertLink, templateID, paramID); err != nil {
				return fmt.Errorf("failed to link %s %d: %v", r.resource, paramID, err)
			}
		}
		for _, paramID := range unlink {
			if _, err := tx.ExecContext(ctx, deleteLink, templateID, paramID); err != nil {
				return fmt.Errorf("failed to unlink %s %d: %v", r.resource, paramID, err)
			}
		}
		return nil
	})
}

func (r *ParameterRepository) DeleteUnused(ctx context.Context, offerID int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE offer_id = $1
		AND id NOT IN (SELECT parameter_id FROM %s)`, r.paramTable, r.joinTable)
	result, err := r.db.ExecContext(ctx, query, offerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused %ss: %v", r.resource, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return deleted, nil
}

func collectParameters(rows *sql.Rows, resource string) ([]domain.TemplateParameter, error) {
	var params []domain.TemplateParameter
	for rows.Next() {
		var p domain.TemplateParameter
		if err := rows.Scan(&p.ID, &p.OfferID, &p.Name, &p.Type, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %v", resource, err)
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %v", resource, err)
	}
	return params, nil
}
