package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	cryptoinfra "github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

type LogEntryRepository struct {
	db *gorm.DB
}

func NewLogEntryRepository(db *gorm.DB) *LogEntryRepository {
	return &LogEntryRepository{db: db}
}

// Append persists one signed entry. Uniqueness of (boot_id, monotonic_seq)
// and of event_hash is enforced by the schema, so a second writer racing on
// the same slot fails here instead of forking the chain.
func (r *LogEntryRepository) Append(ctx context.Context, entry domain.SignedLogEntry) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := logEntryModelFromDomain(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: entry seq %d of boot %s", domain.ErrChainBroken, entry.Event.MonotonicSeq, entry.Event.BootID)
		}
		return err
	}
	return nil
}

func (r *LogEntryRepository) LatestEntry(ctx context.Context) (*domain.SignedLogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LogEntryModel
	err := r.db.WithContext(ctx).Order("id DESC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logEntryFromModel(model)
}

func (r *LogEntryRepository) LastInBoot(ctx context.Context, bootID string) (*domain.SignedLogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LogEntryModel
	err := r.db.WithContext(ctx).
		Where("boot_id = ?", bootID).
		Order("monotonic_seq DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logEntryFromModel(model)
}

// ListByBoot returns entries of one boot session in sequence order. toSeq of
// zero or below means unbounded.
func (r *LogEntryRepository) ListByBoot(ctx context.Context, bootID string, fromSeq, toSeq int64) ([]domain.SignedLogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).
		Where("boot_id = ? AND monotonic_seq >= ?", bootID, fromSeq)
	if toSeq > 0 {
		q = q.Where("monotonic_seq <= ?", toSeq)
	}
	var models []LogEntryModel
	if err := q.Order("monotonic_seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return logEntriesFromModels(models)
}

func (r *LogEntryRepository) GetByEventHash(ctx context.Context, eventHash string) (*domain.SignedLogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LogEntryModel
	err := r.db.WithContext(ctx).Where("event_hash = ?", eventHash).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return logEntryFromModel(model)
}

func (r *LogEntryRepository) ListForCheckpoint(ctx context.Context, bootID string, watermark int64) ([]domain.SignedLogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []LogEntryModel
	err := r.db.WithContext(ctx).
		Where("boot_id = ? AND monotonic_seq <= ? AND checkpoint_tx_id IS NULL", bootID, watermark).
		Order("monotonic_seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return logEntriesFromModels(models)
}

func (r *LogEntryRepository) MarkCheckpointed(ctx context.Context, bootID string, fromSeq, toSeq int64, txID string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Model(&LogEntryModel{}).
		Where("boot_id = ? AND monotonic_seq BETWEEN ? AND ? AND checkpoint_tx_id IS NULL", bootID, fromSeq, toSeq).
		Update("checkpoint_tx_id", txID).Error
}

func logEntryModelFromDomain(entry domain.SignedLogEntry) (LogEntryModel, error) {
	payloadJSON, err := cryptoinfra.CanonicalizeAny(entry.Event.Payload)
	if err != nil {
		return LogEntryModel{}, fmt.Errorf("encode payload: %w", err)
	}
	return LogEntryModel{
		BootID:         entry.Event.BootID,
		MonotonicSeq:   entry.Event.MonotonicSeq,
		EventType:      string(entry.Event.EventType),
		EventTimestamp: entry.Event.Timestamp,
		PrevEventHash:  entry.Event.PrevEventHash,
		PayloadJSON:    payloadJSON,
		EventHash:      entry.EventHash,
		SignerPubKey:   entry.SignerPubKey,
		Signature:      entry.Signature,
		SubnetID:       entry.SubnetID,
		EpochID:        entry.EpochID,
		ActorID:        entry.ActorID,
		CheckpointTxID: entry.CheckpointTxID,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// logEntryFromModel rebuilds a domain entry. The payload is decoded with
// UseNumber so integers survive the round trip and the stored event hash
// stays recomputable.
func logEntryFromModel(model LogEntryModel) (*domain.SignedLogEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(model.PayloadJSON))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload of entry %d: %w", model.ID, err)
	}
	return &domain.SignedLogEntry{
		Event: domain.Event{
			EventType:     domain.EventType(model.EventType),
			Timestamp:     model.EventTimestamp,
			BootID:        model.BootID,
			MonotonicSeq:  model.MonotonicSeq,
			PrevEventHash: model.PrevEventHash,
			Payload:       payload,
		},
		EventHash:      model.EventHash,
		SignerPubKey:   model.SignerPubKey,
		Signature:      model.Signature,
		SubnetID:       model.SubnetID,
		EpochID:        model.EpochID,
		ActorID:        model.ActorID,
		CheckpointTxID: model.CheckpointTxID,
	}, nil
}

func logEntriesFromModels(models []LogEntryModel) ([]domain.SignedLogEntry, error) {
	out := make([]domain.SignedLogEntry, 0, len(models))
	for _, model := range models {
		entry, err := logEntryFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, nil
}
