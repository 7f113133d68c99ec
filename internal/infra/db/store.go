package db

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("database not configured")

// Store owns the gorm handle and the repositories. With an empty DSN it
// starts in no-db mode: repositories exist but fail on use, which lets the
// binary boot for local smoke tests with the in-memory stores swapped in.
type Store struct {
	DB *gorm.DB

	LogEntries  *LogEntryRepository
	Bundles     *WeightBundleRepository
	Checkpoints *CheckpointRepository
	EpochAudits *EpochAuditRepository
	Snapshots   *ChainSnapshotRepository
}

func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		log.Printf("POSTGRES_DSN not set; starting in no-db mode.")
		return newStore(nil), nil
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := gdb.AutoMigrate(
		&LogEntryModel{},
		&WeightBundleModel{},
		&CheckpointModel{},
		&EpochAuditModel{},
		&ChainSnapshotModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return newStore(gdb), nil
}

func newStore(gdb *gorm.DB) *Store {
	return &Store{
		DB:          gdb,
		LogEntries:  NewLogEntryRepository(gdb),
		Bundles:     NewWeightBundleRepository(gdb),
		Checkpoints: NewCheckpointRepository(gdb),
		EpochAudits: NewEpochAuditRepository(gdb),
		Snapshots:   NewChainSnapshotRepository(gdb),
	}
}

// Available reports whether a real database backs this store.
func (s *Store) Available() bool {
	return s.DB != nil
}
