package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the embedded Local Store mirroring the remote catalog plus the
// offline operation queue. It is the only state shared between the
// background sync task and the interaction thread; every page upsert runs
// inside one transaction so readers never observe a half-written page.
type Store struct {
	db *gorm.DB
}

// Open opens the store with the configured driver and runs migrations.
// driver is "sqlite" (dsn is a file path, or ":memory:" in tests) or
// "postgres" (dsn is a connection string).
func Open(driver string, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Category{},
		&domain.Brand{},
		&domain.Product{},
		&domain.Customer{},
		&domain.PriceListEntry{},
		&domain.SyncState{},
		&domain.OfflineOperation{},
	); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens a throwaway in-memory store for tests.
func OpenMemory() (*Store, error) {
	return Open("sqlite", ":memory:")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
