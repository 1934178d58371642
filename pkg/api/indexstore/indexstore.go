package indexstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for the indexed ledger rows.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// ReplaceRuns makes the index for ledgerPath mirror runs exactly.
	ReplaceRuns(ctx context.Context, ledgerPath string, runs []ledger.ExperimentRun) error
	// ListRuns returns the indexed runs of a ledger in ledger order.
	ListRuns(ctx context.Context, ledgerPath string) ([]Run, error)
	// ListExperimentNames returns the distinct experiment names of a ledger.
	ListExperimentNames(ctx context.Context, ledgerPath string) ([]string, error)
	CountRuns(ctx context.Context, ledgerPath string) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		sslMode := s.cfg.Postgres.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}

		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			sslMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		// A second connection to ":memory:" would see a different database.
		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Run{}); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// ReplaceRuns deletes the ledger's indexed rows and inserts runs in a single
// transaction, so readers see either the old or the new mirror.
func (s *store) ReplaceRuns(
	ctx context.Context, ledgerPath string, runs []ledger.ExperimentRun,
) error {
	const batchSize = 100

	now := time.Now().UTC()

	records := make([]*Run, 0, len(runs))
	for i := range runs {
		records = append(records, NewRun(ledgerPath, i, &runs[i], now))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ledger_path = ?", ledgerPath).
			Delete(&Run{}).Error; err != nil {
			return fmt.Errorf("deleting indexed runs: %w", err)
		}

		if len(records) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(records, batchSize).Error; err != nil {
			return fmt.Errorf("inserting indexed runs: %w", err)
		}

		return nil
	})
}

// ListRuns returns all runs for a ledger ordered by their ledger position.
func (s *store) ListRuns(
	ctx context.Context, ledgerPath string,
) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).
		Where("ledger_path = ?", ledgerPath).
		Order("row_index ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListExperimentNames returns the sorted distinct experiment names.
func (s *store) ListExperimentNames(
	ctx context.Context, ledgerPath string,
) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("ledger_path = ?", ledgerPath).
		Distinct("experiment_name").
		Order("experiment_name ASC").
		Pluck("experiment_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing experiment names: %w", err)
	}

	return names, nil
}

// CountRuns returns the number of indexed runs of a ledger.
func (s *store) CountRuns(ctx context.Context, ledgerPath string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("ledger_path = ?", ledgerPath).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}

	return n, nil
}
