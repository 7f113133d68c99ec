package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

// BundleService ingests validator weight bundles: it checks internal
// consistency and the actor signature, records the submission in the
// append-only log, and persists the bundle keyed by (subnet, epoch, actor).
type BundleService struct {
	bundles   WeightBundleRepository
	sequencer *Sequencer
	svc       *crypto.Service

	// Serializes the duplicate check against the log append. The log is
	// append-only, so a duplicate must lose before its submission event is
	// sequenced, not at the store's unique index afterwards.
	mu sync.Mutex
}

func NewBundleService(bundles WeightBundleRepository, sequencer *Sequencer, svc *crypto.Service) *BundleService {
	return &BundleService{bundles: bundles, sequencer: sequencer, svc: svc}
}

// Bundles exposes the backing repository for read paths.
func (s *BundleService) Bundles() WeightBundleRepository {
	return s.bundles
}

// Submit validates and stores one bundle. The stored bundle carries the
// event hash of its WEIGHT_SUBMISSION log entry, which is what later ties
// the claim to a sealed checkpoint.
func (s *BundleService) Submit(ctx context.Context, bundle domain.WeightBundle) (domain.WeightBundle, error) {
	if err := validateBundle(bundle); err != nil {
		return domain.WeightBundle{}, err
	}

	computed, err := s.svc.BundleWeightsHash(bundle.SubnetID, bundle.EpochID, bundle.Block, bundle.Pairs())
	if err != nil {
		return domain.WeightBundle{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if computed != bundle.WeightsHash {
		return domain.WeightBundle{}, fmt.Errorf("%w: weights_hash does not match weights", domain.ErrMalformedInput)
	}
	if err := crypto.VerifyHashSignature(bundle.ActorPubKey, bundle.WeightsHash, bundle.ActorSignature); err != nil {
		return domain.WeightBundle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.bundles.Get(ctx, bundle.SubnetID, bundle.EpochID, bundle.ActorID); err == nil && existing != nil {
		return domain.WeightBundle{}, fmt.Errorf("%w: bundle for epoch %d by %s", domain.ErrAlreadyExists, bundle.EpochID, bundle.ActorID)
	}

	entry, err := s.sequencer.Append(ctx, AppendRequest{
		EventType: domain.EventWeightSubmission,
		Payload: map[string]any{
			"subnet_id":    bundle.SubnetID,
			"epoch_id":     bundle.EpochID,
			"actor_id":     bundle.ActorID,
			"weights_hash": bundle.WeightsHash,
			"block":        bundle.Block,
		},
		SubnetID: &bundle.SubnetID,
		EpochID:  &bundle.EpochID,
		ActorID:  &bundle.ActorID,
	})
	if err != nil {
		return domain.WeightBundle{}, err
	}

	bundle.SubmissionEventHash = entry.EventHash
	if err := s.bundles.Save(ctx, bundle); err != nil {
		return domain.WeightBundle{}, err
	}
	return bundle, nil
}

func validateBundle(bundle domain.WeightBundle) error {
	switch {
	case bundle.SubnetID <= 0:
		return fmt.Errorf("%w: missing subnet_id", domain.ErrMalformedInput)
	case bundle.EpochID < 0:
		return fmt.Errorf("%w: missing epoch_id", domain.ErrMalformedInput)
	case bundle.Block <= 0:
		return fmt.Errorf("%w: missing block", domain.ErrMalformedInput)
	case bundle.ActorID == "":
		return fmt.Errorf("%w: missing actor_id", domain.ErrMalformedInput)
	case bundle.ActorPubKey == "":
		return fmt.Errorf("%w: missing actor_pubkey", domain.ErrMalformedInput)
	case bundle.ActorSignature == "":
		return fmt.Errorf("%w: missing actor_signature", domain.ErrMalformedInput)
	case bundle.WeightsHash == "":
		return fmt.Errorf("%w: missing weights_hash", domain.ErrMalformedInput)
	case len(bundle.UIDs) == 0:
		return fmt.Errorf("%w: empty weights", domain.ErrMalformedInput)
	case len(bundle.UIDs) != len(bundle.Weights):
		return fmt.Errorf("%w: uids and weights lengths differ", domain.ErrMalformedInput)
	}
	// The hash normalizes pairs (sorts, drops zeros) before encoding, so
	// ordering and range have to be enforced on the submitted form itself.
	last := int64(-1)
	for i, uid := range bundle.UIDs {
		if uid <= last {
			return fmt.Errorf("%w: uids are not strictly increasing at index %d", domain.ErrMalformedInput, i)
		}
		last = uid
		if w := bundle.Weights[i]; w < 1 || w > domain.MaxWeight {
			return fmt.Errorf("%w: weight %d for uid %d outside [1, %d]", domain.ErrMalformedInput, w, uid, domain.MaxWeight)
		}
	}
	return nil
}
