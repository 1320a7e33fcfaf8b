package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
)

func newMockRepo(t *testing.T) (*IPRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return NewIPRepository(db.NewDB(mockDB)), mock, func() { mockDB.Close() }
}

func TestGetConfig(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()
	ctx := context.Background()

	t.Run("Config with blocks", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, offer_id, name, ips_per_sub FROM ip_configs").
			WithArgs(int64(1), "tunnel").
			WillReturnRows(sqlmock.NewRows([]string{"id", "offer_id", "name", "ips_per_sub"}).
				AddRow(10, 1, "tunnel", 2))
		mock.ExpectQuery("SELECT cidr FROM ip_blocks").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"cidr"}).
				AddRow("10.0.0.0/29").AddRow("10.0.1.0/29"))

		cfg, err := repo.GetConfig(ctx, 1, "tunnel")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.IPsPerSub != 2 {
			t.Errorf("expected ips_per_sub 2, got %d", cfg.IPsPerSub)
		}
		if len(cfg.Blocks) != 2 {
			t.Errorf("expected 2 blocks, got %d", len(cfg.Blocks))
		}
	})

	t.Run("Config not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, offer_id, name, ips_per_sub FROM ip_configs").
			WithArgs(int64(1), "missing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "offer_id", "name", "ips_per_sub"}))

		_, err := repo.GetConfig(ctx, 1, "missing")
		if _, ok := err.(*domain.NotFoundError); !ok {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})
}

func TestConfigExists(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(int64(1), "tunnel").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := repo.ConfigExists(ctx, 1, "tunnel")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !exists {
			t.Error("expected config to exist")
		}
	})

	t.Run("Duplicate rows", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(int64(1), "tunnel").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		_, err := repo.ConfigExists(ctx, 1, "tunnel")
		if _, ok := err.(*domain.IntegrityError); !ok {
			t.Errorf("expected IntegrityError, got %v", err)
		}
	})
}

func TestCreateConfig(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()
	ctx := context.Background()

	t.Run("Config with expanded pool", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO ip_configs").
			WithArgs(int64(1), "tunnel", 2).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
		mock.ExpectQuery("INSERT INTO ip_blocks").
			WithArgs(int64(10), "10.0.0.0/30").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
		mock.ExpectExec("INSERT INTO ip_addresses").
			WithArgs(int64(20), "10.0.0.0").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ip_addresses").
			WithArgs(int64(20), "10.0.0.2").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		cfg := &domain.IPConfig{OfferID: 1, Name: "tunnel", IPsPerSub: 2}
		blocks := []domain.BlockAddresses{{CIDR: "10.0.0.0/30", Addresses: []string{"10.0.0.0", "10.0.0.2"}}}
		if err := repo.CreateConfig(ctx, cfg, blocks); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ID != 10 {
			t.Errorf("expected config id 10, got %d", cfg.ID)
		}
	})
}

func TestDeleteConfig(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()
	ctx := context.Background()

	t.Run("Addresses still assigned", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectRollback()

		err := repo.DeleteConfig(ctx, 10)
		if _, ok := err.(*domain.ConflictError); !ok {
			t.Errorf("expected ConflictError, got %v", err)
		}
	})

	t.Run("Delete free config", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("DELETE FROM ip_addresses").
			WithArgs(int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 8))
		mock.ExpectExec("DELETE FROM ip_blocks").
			WithArgs(int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM ip_configs").
			WithArgs(int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.DeleteConfig(ctx, 10); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestAssignAddress(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()
	ctx := context.Background()
	subID := uuid.New()
	cfg := &domain.IPConfig{ID: 10, OfferID: 1, Name: "tunnel", IPsPerSub: 1}

	t.Run("Claim first free address", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT a.id, a.ip_block_id, a.value FROM ip_addresses").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "ip_block_id", "value"}).
				AddRow(100, 20, "192.168.1.0"))
		mock.ExpectExec("UPDATE ip_addresses").
			WithArgs(subID, int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		addr, err := repo.AssignAddress(ctx, cfg, subID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if addr.Value != "192.168.1.0" {
			t.Errorf("expected address 192.168.1.0, got %s", addr.Value)
		}
		if addr.Available {
			t.Error("expected address to be marked unavailable")
		}
		if !addr.SubscriptionID.Valid || addr.SubscriptionID.UUID != subID {
			t.Error("expected address to carry the subscription id")
		}
	})

	t.Run("Pool exhausted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT a.id, a.ip_block_id, a.value FROM ip_addresses").
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "ip_block_id", "value"}))
		mock.ExpectRollback()

		_, err := repo.AssignAddress(ctx, cfg, subID)
		capErr, ok := err.(*domain.CapacityError)
		if !ok {
			t.Fatalf("expected CapacityError, got %v", err)
		}
		if capErr.IPConfig != "tunnel" {
			t.Errorf("expected config name tunnel, got %s", capErr.IPConfig)
		}
	})
}

func TestReleaseAddresses(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()
	ctx := context.Background()
	subID := uuid.New()

	t.Run("Release assigned addresses", func(t *testing.T) {
		mock.ExpectExec("UPDATE ip_addresses").
			WithArgs(subID).
			WillReturnResult(sqlmock.NewResult(0, 2))

		released, err := repo.ReleaseAddresses(ctx, subID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if released != 2 {
			t.Errorf("expected 2 released addresses, got %d", released)
		}
	})

	t.Run("Nothing to release", func(t *testing.T) {
		mock.ExpectExec("UPDATE ip_addresses").
			WithArgs(subID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		released, err := repo.ReleaseAddresses(ctx, subID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if released != 0 {
			t.Errorf("expected 0 released addresses, got %d", released)
		}
	})
}
