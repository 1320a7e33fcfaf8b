package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
)

type IPRepository struct {
	db *db.DB
}

func NewIPRepository(db *db.DB) *IPRepository {
	return &IPRepository{db: db}
}

func (r *IPRepository) GetConfig(ctx context.Context, offerID int64, name string) (*domain.IPConfig, error) {
	query := `SELECT id, offer_id, name, ips_per_sub FROM ip_configs WHERE offer_id = $1 AND name = $2`
	var cfg domain.IPConfig
	err := r.db.QueryRowContext(ctx, query, offerID, name).Scan(&cfg.ID, &cfg.OfferID, &cfg.Name, &cfg.IPsPerSub)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Resource: "IP config", Key: name}
		}
		return nil, fmt.Errorf("failed to get IP config: %v", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT cidr FROM ip_blocks WHERE ip_config_id = $1 ORDER BY id`, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list IP blocks: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cidr string
		if err := rows.Scan(&cidr); err != nil {
			return nil, fmt.Errorf("failed to scan IP block row: %v", err)
		}
		cfg.Blocks = append(cfg.Blocks, cidr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read IP block rows: %v", err)
	}
	return &cfg, nil
}

func (r *IPRepository) ConfigExists(ctx context.Context, offerID int64, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ip_configs WHERE offer_id = $1 AND name = $2`, offerID, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check IP config existence: %v", err)
	}
	if count > 1 {
		return false, &domain.IntegrityError{Resource: "IP config", Key: name}
	}
	return count == 1, nil
}

func (r *IPRepository) CreateConfig(ctx context.Context, cfg *domain.IPConfig, blocks []domain.BlockAddresses) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO ip_configs (offer_id, name, ips_per_sub) VALUES ($1, $2, $3) RETURNING id`
		if err := tx.QueryRowContext(ctx, query, cfg.OfferID, cfg.Name, cfg.IPsPerSub).Scan(&cfg.ID); err != nil {
			return fmt.Errorf("failed to create IP config: %v", err)
		}
		return insertBlocks(ctx, tx, cfg.ID, blocks)
	})
}

func (r *IPRepository) AppendBlocks(ctx context.Context, configID int64, blocks []domain.BlockAddresses) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return insertBlocks(ctx, tx, configID, blocks)
	})
}

// insertBlocks persists each block row and every pool address expanded from
// it within the caller's transaction.
func insertBlocks(ctx context.Context, tx *sql.Tx, configID int64, blocks []domain.BlockAddresses) error {
	for _, block := range blocks {
		var blockID int64
		query := `INSERT INTO ip_blocks (ip_config_id, cidr) VALUES ($1, $2) RETURNING id`
		if err := tx.QueryRowContext(ctx, query, configID, block.CIDR).Scan(&blockID); err != nil {
			return fmt.Errorf("failed to create IP block %s: %v", block.CIDR, err)
		}
		for _, addr := range block.Addresses {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO ip_addresses (ip_block_id, value, is_available) VALUES ($1, $2, TRUE)`,
				blockID, addr)
			if err != nil {
				return fmt.Errorf("failed to create IP address %s: %v", addr, err)
			}
		}
	}
	return nil
}

func (r *IPRepository) DeleteConfig(ctx context.Context, configID int64) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var inUse int
		query := `SELECT COUNT(*) FROM ip_addresses a
			JOIN ip_blocks b ON a.ip_block_id = b.id
			WHERE b.ip_config_id = $1 AND NOT a.is_available`
		if err := tx.QueryRowContext(ctx, query, configID).Scan(&inUse); err != nil {
			return fmt.Errorf("failed to count assigned IP addresses: %v", err)
		}
		if inUse > 0 {
			return &domain.ConflictError{
				Resource: "IP config",
				Key:      fmt.Sprintf("%d", configID),
				Reason:   fmt.Sprintf("%d IP addresses are still assigned", inUse),
			}
		}

		stmts := []string{
			`DELETE FROM ip_addresses WHERE ip_block_id IN (SELECT id FROM ip_blocks WHERE ip_config_id = $1)`,
			`DELETE FROM ip_blocks WHERE ip_config_id = $1`,
			`DELETE FROM ip_configs WHERE id = $1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, configID); err != nil {
				return fmt.Errorf("failed to delete IP config: %v", err)
			}
		}
		return nil
	})
}

func (r *IPRepository) AssignAddress(ctx context.Context, cfg *domain.IPConfig, subscriptionID uuid.UUID) (*domain.IPAddress, error) {
	var addr domain.IPAddress
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Row-level lock on the candidate keeps two concurrent claims from
		// selecting the same address.
		query := `SELECT a.id, a.ip_block_id, a.value FROM ip_addresses a
			JOIN ip_blocks b ON a.ip_block_id = b.id
			WHERE b.ip_config_id = $1 AND a.is_available
			ORDER BY a.id
			LIMIT 1
			FOR UPDATE OF a SKIP LOCKED`
		err := tx.QueryRowContext(ctx, query, cfg.ID).Scan(&addr.ID, &addr.IPBlockID, &addr.Value)
		if err != nil {
			if err == sql.ErrNoRows {
				return &domain.CapacityError{IPConfig: cfg.Name}
			}
			return fmt.Errorf("failed to find an available IP address: %v", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE ip_addresses SET is_available = FALSE, subscription_id = $1 WHERE id = $2`,
			subscriptionID, addr.ID)
		if err != nil {
			return fmt.Errorf("failed to assign IP address: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	addr.Available = false
	addr.SubscriptionID = uuid.NullUUID{UUID: subscriptionID, Valid: true}
	return &addr, nil
}

func (r *IPRepository) ReleaseAddresses(ctx context.Context, subscriptionID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ip_addresses SET is_available = TRUE, subscription_id = NULL WHERE subscription_id = $1`,
		subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("failed to release IP addresses: %v", err)
	}
	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return released, nil
}
