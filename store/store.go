package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/x402-foundation/sponsorgate/pkg/logger"
)

// Store is the SQLite-backed persistence layer for sponsors, actions,
// redemptions and funding transactions. All cross-request invariants
// (balance non-negativity, instance-id uniqueness, terminal-state
// immutability) are enforced here through constrained updates and unique
// indexes, not in-process locks, so multiple server instances can share a
// database.
type Store struct {
	db      *gorm.DB
	logger  *logger.Logger
	dataDir string
}

// New creates a store. Uses an in-memory database if dataDir is empty.
func New(dataDir string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	var db *gorm.DB
	var err error
	if dataDir == "" {
		// In-memory database when no data directory is specified, useful for
		// testing; cache=shared lets multiple connections see the same data
		db, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(dataDir, "sponsorgate.sqlite")
		// WAL journal mode so concurrent orchestrator requests don't serialize
		// on the writer
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		db, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	s := &Store{
		db:      db,
		logger:  log,
		dataDir: dataDir,
	}
	for _, model := range MigrateModels {
		if err := s.db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
