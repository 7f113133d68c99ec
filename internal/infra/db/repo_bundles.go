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

type WeightBundleRepository struct {
	db *gorm.DB
}

func NewWeightBundleRepository(db *gorm.DB) *WeightBundleRepository {
	return &WeightBundleRepository{db: db}
}

func (r *WeightBundleRepository) Save(ctx context.Context, bundle domain.WeightBundle) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := bundleModelFromDomain(bundle)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: bundle (%d, %d, %s)", domain.ErrAlreadyExists, bundle.SubnetID, bundle.EpochID, bundle.ActorID)
		}
		return err
	}
	return nil
}

func (r *WeightBundleRepository) Get(ctx context.Context, subnetID, epochID int64, actorID string) (*domain.WeightBundle, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model WeightBundleModel
	err := r.db.WithContext(ctx).
		Where("subnet_id = ? AND epoch_id = ? AND actor_id = ?", subnetID, epochID, actorID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return bundleFromModel(model)
}

func (r *WeightBundleRepository) ListByEpoch(ctx context.Context, subnetID, epochID int64) ([]domain.WeightBundle, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []WeightBundleModel
	err := r.db.WithContext(ctx).
		Where("subnet_id = ? AND epoch_id = ?", subnetID, epochID).
		Order("actor_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.WeightBundle, 0, len(models))
	for _, model := range models {
		bundle, err := bundleFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, *bundle)
	}
	return out, nil
}

func bundleModelFromDomain(bundle domain.WeightBundle) (WeightBundleModel, error) {
	uidsJSON, err := json.Marshal(bundle.UIDs)
	if err != nil {
		return WeightBundleModel{}, err
	}
	weightsJSON, err := json.Marshal(bundle.Weights)
	if err != nil {
		return WeightBundleModel{}, err
	}
	createdAt := bundle.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return WeightBundleModel{
		SubnetID:              bundle.SubnetID,
		EpochID:               bundle.EpochID,
		ActorID:               bundle.ActorID,
		Block:                 bundle.Block,
		UIDsJSON:              uidsJSON,
		WeightsJSON:           weightsJSON,
		WeightsHash:           bundle.WeightsHash,
		ActorPubKey:           bundle.ActorPubKey,
		ActorSignature:        bundle.ActorSignature,
		Attestation:           bundle.Attestation,
		CodeHash:              bundle.CodeHash,
		SnapshotBlock:         bundle.SnapshotBlock,
		SnapshotReferenceHash: bundle.SnapshotReferenceHash,
		SubmissionEventHash:   bundle.SubmissionEventHash,
		CreatedAt:             createdAt.UTC(),
	}, nil
}

func bundleFromModel(model WeightBundleModel) (*domain.WeightBundle, error) {
	var uids, weights []int64
	if err := json.Unmarshal(model.UIDsJSON, &uids); err != nil {
		return nil, fmt.Errorf("decode uids of bundle %d: %w", model.ID, err)
	}
	if err := json.Unmarshal(model.WeightsJSON, &weights); err != nil {
		return nil, fmt.Errorf("decode weights of bundle %d: %w", model.ID, err)
	}
	return &domain.WeightBundle{
		SubnetID:              model.SubnetID,
		EpochID:               model.EpochID,
		Block:                 model.Block,
		UIDs:                  uids,
		Weights:               weights,
		WeightsHash:           model.WeightsHash,
		ActorID:               model.ActorID,
		ActorPubKey:           model.ActorPubKey,
		ActorSignature:        model.ActorSignature,
		Attestation:           model.Attestation,
		CodeHash:              model.CodeHash,
		SnapshotBlock:         model.SnapshotBlock,
		SnapshotReferenceHash: model.SnapshotReferenceHash,
		SubmissionEventHash:   model.SubmissionEventHash,
		CreatedAt:             model.CreatedAt.UTC(),
	}, nil
}
