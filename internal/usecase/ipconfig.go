package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
)

// IPConfigService owns the IP pool: config validation, pool expansion, and
// per-subscription address assignment.
type IPConfigService struct {
	ips     domain.IPRepository
	catalog domain.CatalogRepository
	logger  *slog.Logger
}

func NewIPConfigService(ips domain.IPRepository, catalog domain.CatalogRepository, logger *slog.Logger) *IPConfigService {
	return &IPConfigService{ips: ips, catalog: catalog, logger: logger}
}

func (s *IPConfigService) GetConfig(ctx context.Context, offerName, name string) (*domain.IPConfig, error) {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return nil, err
	}
	return s.ips.GetConfig(ctx, offer.ID, name)
}

// CreateConfig validates the config, expands every block into pool addresses,
// and persists the whole pool in one transaction.
func (s *IPConfigService) CreateConfig(ctx context.Context, offerName string, cfg *domain.IPConfig) (*domain.IPConfig, error) {
	if cfg == nil {
		return nil, &domain.ValidationError{Field: "ipConfig", Reason: "payload not provided"}
	}

	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return nil, err
	}

	exists, err := s.ips.ConfigExists(ctx, offer.ID, cfg.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &domain.ConflictError{Resource: "IP config", Key: cfg.Name}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.OfferID = offer.ID

	blocks, err := expandBlocks(cfg.Blocks, cfg.IPsPerSub)
	if err != nil {
		return nil, err
	}

	if err := s.ips.CreateConfig(ctx, cfg, blocks); err != nil {
		return nil, err
	}
	s.logger.Info("created IP config", "offer", offerName, "config", cfg.Name, "blocks", len(cfg.Blocks))
	return cfg, nil
}

// UpdateConfig accepts only block appends. Any other change to the persisted
// config is rejected; the newly appended blocks are expanded and added to the
// pool.
func (s *IPConfigService) UpdateConfig(ctx context.Context, offerName, name string, updated *domain.IPConfig) (*domain.IPConfig, error) {
	if updated == nil {
		return nil, &domain.ValidationError{Field: "ipConfig", Reason: "payload not provided"}
	}

	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return nil, err
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	current, err := s.ips.GetConfig(ctx, offer.ID, name)
	if err != nil {
		return nil, err
	}

	added, err := current.BlocksAdded(updated)
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		blocks, err := expandBlocks(added, current.IPsPerSub)
		if err != nil {
			return nil, err
		}
		if err := s.ips.AppendBlocks(ctx, current.ID, blocks); err != nil {
			return nil, err
		}
		s.logger.Info("extended IP config", "offer", offerName, "config", name, "added_blocks", len(added))
	}

	return s.ips.GetConfig(ctx, offer.ID, name)
}

// DeleteConfig removes the config with its pool. It fails while any address
// is still assigned to a subscription.
func (s *IPConfigService) DeleteConfig(ctx context.Context, offerName, name string) error {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return err
	}
	cfg, err := s.ips.GetConfig(ctx, offer.ID, name)
	if err != nil {
		return err
	}
	if err := s.ips.DeleteConfig(ctx, cfg.ID); err != nil {
		return err
	}
	s.logger.Info("deleted IP config", "offer", offerName, "config", name)
	return nil
}

// AssignAddress claims one free address from the named config for the
// subscription. Exhaustion is a capacity problem, not a caller error.
func (s *IPConfigService) AssignAddress(ctx context.Context, subscriptionID uuid.UUID, offerName, configName string) (*domain.IPAddress, error) {
	cfg, err := s.GetConfig(ctx, offerName, configName)
	if err != nil {
		return nil, err
	}

	addr, err := s.ips.AssignAddress(ctx, cfg, subscriptionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("assigned IP address", "subscription", subscriptionID, "config", configName, "address", addr.Value)
	return addr, nil
}

// ReleaseAddresses frees every address held by the subscription.
func (s *IPConfigService) ReleaseAddresses(ctx context.Context, subscriptionID uuid.UUID) error {
	released, err := s.ips.ReleaseAddresses(ctx, subscriptionID)
	if err != nil {
		return err
	}
	s.logger.Info("released IP addresses", "subscription", subscriptionID, "count", released)
	return nil
}

func expandBlocks(cidrs []string, ipsPerSub int) ([]domain.BlockAddresses, error) {
	blocks := make([]domain.BlockAddresses, 0, len(cidrs))
	for _, cidr := range cidrs {
		addrs, err := domain.SubnetAddresses(cidr, ipsPerSub)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, domain.BlockAddresses{CIDR: cidr, Addresses: addrs})
	}
	return blocks, nil
}
