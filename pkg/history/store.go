// Package history persists reconstructed test durations so runs can be
// compared over time.
package history

import (
	"context"
	"fmt"

	"github.com/ethpandaops/ctesttrace/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store provides persistence for recorded runs and their test durations.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context) ([]Run, error)
	DeleteRun(ctx context.Context, runID string) error

	ReplaceTestDurations(
		ctx context.Context, runID string, durations []*TestDuration,
	) error
	ListTestDurations(ctx context.Context, testName string) ([]TestDuration, error)
	ListTestDurationsForRun(ctx context.Context, runID string) ([]TestDuration, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new history Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "history"),
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
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&TestDuration{},
	); err != nil {
		return fmt.Errorf("running history migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Debug("History database connected")

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

// UpsertRun inserts a run or overwrites every column of the existing row
// with the same run_id, zero values included.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			UpdateAll: true,
		}).
		Create(run).Error; err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	return nil
}

// ListRuns returns all runs, newest first.
func (s *store) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// DeleteRun removes a run and its test durations.
func (s *store) DeleteRun(ctx context.Context, runID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).
			Delete(&TestDuration{}).Error; err != nil {
			return fmt.Errorf("deleting test durations for run: %w", err)
		}

		if err := tx.Where("run_id = ?", runID).
			Delete(&Run{}).Error; err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}

		return nil
	})
}

// ReplaceTestDurations swaps all duration rows of runID for the given
// ones in a single transaction.
func (s *store) ReplaceTestDurations(
	ctx context.Context, runID string, durations []*TestDuration,
) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).
			Delete(&TestDuration{}).Error; err != nil {
			return fmt.Errorf("clearing test durations: %w", err)
		}

		if len(durations) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(durations, batchSize).Error; err != nil {
			return fmt.Errorf("bulk inserting test durations: %w", err)
		}

		return nil
	})
}

// ListTestDurations returns every recorded interval of a test, newest
// run first.
func (s *store) ListTestDurations(
	ctx context.Context, testName string,
) ([]TestDuration, error) {
	var durations []TestDuration
	if err := s.db.WithContext(ctx).
		Table("test_durations").
		Select("test_durations.*").
		Joins("JOIN runs ON runs.run_id = test_durations.run_id").
		Where("test_durations.test_name = ?", testName).
		Order("runs.timestamp DESC").
		Order("test_durations.id DESC").
		Find(&durations).Error; err != nil {
		return nil, fmt.Errorf("listing test durations: %w", err)
	}

	return durations, nil
}

// ListTestDurationsForRun returns the intervals of one run in insertion
// order.
func (s *store) ListTestDurationsForRun(
	ctx context.Context, runID string,
) ([]TestDuration, error) {
	var durations []TestDuration
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&durations).Error; err != nil {
		return nil, fmt.Errorf("listing run test durations: %w", err)
	}

	return durations, nil
}
