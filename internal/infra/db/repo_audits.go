package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

type EpochAuditRepository struct {
	db *gorm.DB
}

func NewEpochAuditRepository(db *gorm.DB) *EpochAuditRepository {
	return &EpochAuditRepository{db: db}
}

// Save records a verdict. One verdict per (subnet, epoch), forever.
func (r *EpochAuditRepository) Save(ctx context.Context, result domain.EpochAuditResult) error {
	if r.db == nil {
		return errDBUnavailable
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	model := EpochAuditModel{
		SubnetID:  result.SubnetID,
		EpochID:   result.EpochID,
		Status:    string(result.Status),
		Detail:    result.Detail,
		CreatedAt: createdAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: audit for epoch %d", domain.ErrAlreadyExists, result.EpochID)
		}
		return err
	}
	return nil
}

func (r *EpochAuditRepository) Get(ctx context.Context, subnetID, epochID int64) (*domain.EpochAuditResult, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model EpochAuditModel
	err := r.db.WithContext(ctx).
		Where("subnet_id = ? AND epoch_id = ?", subnetID, epochID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.EpochAuditResult{
		SubnetID:  model.SubnetID,
		EpochID:   model.EpochID,
		Status:    domain.AuditStatus(model.Status),
		Detail:    model.Detail,
		CreatedAt: model.CreatedAt.UTC(),
	}, nil
}

type ChainSnapshotRepository struct {
	db *gorm.DB
}

func NewChainSnapshotRepository(db *gorm.DB) *ChainSnapshotRepository {
	return &ChainSnapshotRepository{db: db}
}

func (r *ChainSnapshotRepository) Save(ctx context.Context, snapshot domain.ChainSnapshot) error {
	if r.db == nil {
		return errDBUnavailable
	}
	pairsJSON, err := json.Marshal(snapshotPairs(snapshot.Pairs))
	if err != nil {
		return err
	}
	capturedAt := snapshot.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	model := ChainSnapshotModel{
		SubnetID:      snapshot.SubnetID,
		Block:         snapshot.Block,
		ActorID:       snapshot.ActorID,
		EpochID:       snapshot.EpochID,
		PairsJSON:     pairsJSON,
		ReferenceHash: snapshot.ReferenceHash,
		CapturedAt:    capturedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: snapshot (%d, %d, %s)", domain.ErrAlreadyExists, snapshot.SubnetID, snapshot.Block, snapshot.ActorID)
		}
		return err
	}
	return nil
}

func (r *ChainSnapshotRepository) GetReference(ctx context.Context, subnetID, block int64, actorID string) (*domain.ChainSnapshot, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ChainSnapshotModel
	err := r.db.WithContext(ctx).
		Where("subnet_id = ? AND block = ? AND actor_id = ?", subnetID, block, actorID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var pairs [][2]int64
	if err := json.Unmarshal(model.PairsJSON, &pairs); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", model.ID, err)
	}
	out := &domain.ChainSnapshot{
		SubnetID:      model.SubnetID,
		EpochID:       model.EpochID,
		Block:         model.Block,
		ActorID:       model.ActorID,
		Pairs:         make([]domain.WeightPair, len(pairs)),
		ReferenceHash: model.ReferenceHash,
		CapturedAt:    model.CapturedAt.UTC(),
	}
	for i, p := range pairs {
		out.Pairs[i] = domain.WeightPair{UID: p[0], Weight: p[1]}
	}
	return out, nil
}

func snapshotPairs(pairs []domain.WeightPair) [][2]int64 {
	out := make([][2]int64, len(pairs))
	for i, p := range pairs {
		out[i] = [2]int64{p.UID, p.Weight}
	}
	return out
}
