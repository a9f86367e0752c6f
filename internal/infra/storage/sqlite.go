package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"coinfolio/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the sqlite-backed repository for portfolios, holdings
// and snapshots.
type Storage struct {
	db *gorm.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go sqlite, no cgo
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Portfolio{}, &domain.Holding{}, &domain.Snapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Portfolio Operations
// ======================================================================================

// CreatePortfolio persists a new portfolio.
func (s *Storage) CreatePortfolio(p *domain.Portfolio) error {
	return s.db.Create(p).Error
}

// GetPortfolio retrieves a portfolio by id.
func (s *Storage) GetPortfolio(id uint) (*domain.Portfolio, error) {
	var p domain.Portfolio
	err := s.db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPortfolios retrieves all portfolios ordered by creation.
func (s *Storage) ListPortfolios() ([]domain.Portfolio, error) {
	var portfolios []domain.Portfolio
	err := s.db.Order("id asc").Find(&portfolios).Error
	return portfolios, err
}

// CountPortfolios returns the number of portfolios.
func (s *Storage) CountPortfolios() (int64, error) {
	var n int64
	err := s.db.Model(&domain.Portfolio{}).Count(&n).Error
	return n, err
}

// SavePortfolio updates an existing portfolio.
func (s *Storage) SavePortfolio(p *domain.Portfolio) error {
	return s.db.Save(p).Error
}

// DeletePortfolio removes a portfolio and cascades to its holdings
// and snapshots in one transaction.
func (s *Storage) DeletePortfolio(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p domain.Portfolio
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
			}
			return err
		}
		if err := tx.Where("portfolio_id = ?", id).Delete(&domain.Holding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("portfolio_id = ?", id).Delete(&domain.Snapshot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
}

// ======================================================================================
// Holding Operations
// ======================================================================================

// CreateHolding inserts a new holding at the end of the portfolio's
// display order.
func (s *Storage) CreateHolding(h *domain.Holding) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		err := tx.Model(&domain.Holding{}).
			Where("portfolio_id = ?", h.PortfolioID).
			Select("COALESCE(MAX(display_order), 0)").
			Scan(&maxOrder).Error
		if err != nil {
			return err
		}
		h.DisplayOrder = maxOrder + 1
		return tx.Create(h).Error
	})
}

// GetHolding retrieves a holding by id.
func (s *Storage) GetHolding(id uint) (*domain.Holding, error) {
	var h domain.Holding
	err := s.db.First(&h, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("holding %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHoldings returns a portfolio's holdings in display order, ties
// broken by insertion id.
func (s *Storage) ListHoldings(portfolioID uint) ([]domain.Holding, error) {
	var holdings []domain.Holding
	err := s.db.Where("portfolio_id = ?", portfolioID).
		Order("display_order asc, id asc").
		Find(&holdings).Error
	return holdings, err
}

// ListAllHoldings returns every holding across all portfolios, used by
// the bulk price refresh.
func (s *Storage) ListAllHoldings() ([]domain.Holding, error) {
	var holdings []domain.Holding
	err := s.db.Order("portfolio_id asc, display_order asc, id asc").Find(&holdings).Error
	return holdings, err
}

// SaveHolding updates an existing holding.
func (s *Storage) SaveHolding(h *domain.Holding) error {
	return s.db.Save(h).Error
}

// SaveHoldings persists a batch of holdings atomically; either every
// row commits or none does.
func (s *Storage) SaveHoldings(holdings []domain.Holding) error {
	if len(holdings) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range holdings {
			if err := tx.Save(&holdings[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteHolding removes a holding.
func (s *Storage) DeleteHolding(id uint) error {
	res := s.db.Delete(&domain.Holding{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("holding %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SwapDisplayOrder exchanges the display order of two holdings. The
// swap is atomic as a pair: both rows update or neither does.
func (s *Storage) SwapDisplayOrder(aID, bID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var a, b domain.Holding
		if err := tx.First(&a, aID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("holding %d: %w", aID, domain.ErrNotFound)
			}
			return err
		}
		if err := tx.First(&b, bID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("holding %d: %w", bID, domain.ErrNotFound)
			}
			return err
		}
		if err := tx.Model(&domain.Holding{}).Where("id = ?", a.ID).
			Update("display_order", b.DisplayOrder).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Holding{}).Where("id = ?", b.ID).
			Update("display_order", a.DisplayOrder).Error
	})
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// UpsertSnapshot stores snap keyed on (portfolio_id, snapshot_date).
// A same-day capture overwrites total value, holdings payload,
// capture time and the manual flag of the existing row instead of
// inserting a duplicate.
func (s *Storage) UpsertSnapshot(snap *domain.Snapshot) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.Snapshot
		err := tx.Where("portfolio_id = ? AND snapshot_date = ?", snap.PortfolioID, snap.SnapshotDate).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(snap).Error
		}
		if err != nil {
			return err
		}

		existing.TotalValue = snap.TotalValue
		existing.HoldingsData = snap.HoldingsData
		existing.CreatedAt = snap.CreatedAt
		existing.IsManual = snap.IsManual
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*snap = existing
		return nil
	})
}

// GetSnapshot retrieves a snapshot by id.
func (s *Storage) GetSnapshot(id uint) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.db.First(&snap, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("snapshot %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns snapshots newest first. portfolioID 0 means
// all portfolios.
func (s *Storage) ListSnapshots(portfolioID uint) ([]domain.Snapshot, error) {
	q := s.db.Order("snapshot_date desc, portfolio_id asc")
	if portfolioID != 0 {
		q = q.Where("portfolio_id = ?", portfolioID)
	}
	var snapshots []domain.Snapshot
	err := q.Find(&snapshots).Error
	return snapshots, err
}

// GetSnapshotsByIDs returns the requested snapshots ordered by date
// ascending, as the comparison walk requires.
func (s *Storage) GetSnapshotsByIDs(ids []uint) ([]domain.Snapshot, error) {
	var snapshots []domain.Snapshot
	err := s.db.Where("id IN ?", ids).
		Order("snapshot_date asc").
		Find(&snapshots).Error
	return snapshots, err
}

// DeleteSnapshot removes a snapshot.
func (s *Storage) DeleteSnapshot(id uint) error {
	res := s.db.Delete(&domain.Snapshot{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("snapshot %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
