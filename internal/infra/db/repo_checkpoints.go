package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

type CheckpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Save indexes a sealed checkpoint. Replaying the same tx id is idempotent;
// a different header under an existing id is rejected, matching the
// write-once blob store.
func (r *CheckpointRepository) Save(ctx context.Context, cp domain.Checkpoint, bootID string, fromSeq, toSeq int64) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := CheckpointModel{
		TxID:         cp.TxID,
		MerkleRoot:   cp.Header.MerkleRoot,
		EntryCount:   cp.Header.EntryCount,
		TimeFrom:     cp.Header.TimeRange.From,
		TimeTo:       cp.Header.TimeRange.To,
		CodeIdentity: cp.Header.CodeIdentity,
		Signature:    cp.Header.Signature,
		BootID:       bootID,
		FromSeq:      fromSeq,
		ToSeq:        toSeq,
		CreatedAt:    time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var existing CheckpointModel
		if gerr := r.db.WithContext(ctx).Where("tx_id = ?", cp.TxID).Take(&existing).Error; gerr != nil {
			return err
		}
		if existing.MerkleRoot == model.MerkleRoot && existing.Signature == model.Signature {
			return nil
		}
		return fmt.Errorf("%w: checkpoint %s with different contents", domain.ErrAlreadyExists, cp.TxID)
	}
	return err
}

func (r *CheckpointRepository) GetHeader(ctx context.Context, txID string) (*domain.CheckpointHeader, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CheckpointModel
	err := r.db.WithContext(ctx).Where("tx_id = ?", txID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.CheckpointHeader{
		MerkleRoot:   model.MerkleRoot,
		EntryCount:   model.EntryCount,
		TimeRange:    domain.TimeRange{From: model.TimeFrom, To: model.TimeTo},
		CodeIdentity: model.CodeIdentity,
		Signature:    model.Signature,
	}, nil
}

func (r *CheckpointRepository) LatestTxID(ctx context.Context) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var model CheckpointModel
	err := r.db.WithContext(ctx).Order("created_at DESC, tx_id DESC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.TxID, nil
}
