package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/merkle"
)

// EquivocationAuditor decides, once per epoch, whether the primary
// validator's published bundle matches the independently observed reference
// state. The verdict is written exactly once; a decided epoch is never
// re-audited.
type EquivocationAuditor struct {
	bundles     WeightBundleRepository
	snapshots   SnapshotRepository
	audits      EpochAuditRepository
	entries     LogEntryRepository
	blobs       CheckpointStore
	checkpoints CheckpointRepository
	svc         *crypto.Service

	// Tolerance for auditor cross-checks, in u16 weight units. Primary
	// snapshot comparison is always exact-hash.
	tolerance int64
	clock     func() time.Time
}

func NewEquivocationAuditor(
	bundles WeightBundleRepository,
	snapshots SnapshotRepository,
	audits EpochAuditRepository,
	entries LogEntryRepository,
	blobs CheckpointStore,
	checkpoints CheckpointRepository,
	svc *crypto.Service,
	tolerance int64,
	clock func() time.Time,
) *EquivocationAuditor {
	if clock == nil {
		clock = time.Now
	}
	return &EquivocationAuditor{
		bundles:     bundles,
		snapshots:   snapshots,
		audits:      audits,
		entries:     entries,
		blobs:       blobs,
		checkpoints: checkpoints,
		svc:         svc,
		tolerance:   tolerance,
		clock:       clock,
	}
}

// AuditEpoch runs the audit for one epoch against the expected primary
// actor and returns the terminal verdict. Re-running a decided epoch
// returns the recorded verdict unchanged.
func (a *EquivocationAuditor) AuditEpoch(ctx context.Context, subnetID, epochID int64, primaryActor string) (domain.EpochAuditResult, error) {
	if existing, err := a.audits.Get(ctx, subnetID, epochID); err == nil && existing != nil {
		return *existing, nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.EpochAuditResult{}, err
	}

	result, err := a.decide(ctx, subnetID, epochID, primaryActor)
	if err != nil {
		return domain.EpochAuditResult{}, err
	}
	if err := a.audits.Save(ctx, result); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			if recorded, gerr := a.audits.Get(ctx, subnetID, epochID); gerr == nil && recorded != nil {
				return *recorded, nil
			}
		}
		return domain.EpochAuditResult{}, err
	}
	return result, nil
}

func (a *EquivocationAuditor) decide(ctx context.Context, subnetID, epochID int64, primaryActor string) (domain.EpochAuditResult, error) {
	verdict := func(status domain.AuditStatus, detail string) domain.EpochAuditResult {
		return domain.EpochAuditResult{
			SubnetID:  subnetID,
			EpochID:   epochID,
			Status:    status,
			Detail:    detail,
			CreatedAt: a.clock(),
		}
	}

	bundle, err := a.bundles.Get(ctx, subnetID, epochID, primaryActor)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && bundle == nil) {
		return verdict(domain.AuditNoTEEBundle, fmt.Sprintf("no bundle from %s", primaryActor)), nil
	}
	if err != nil {
		return domain.EpochAuditResult{}, err
	}

	// Internal consistency: the stored weights must reproduce the stored
	// hash and the actor signature must verify. A bundle that fails either
	// is a forged or tampered claim, not a transport error.
	computed, err := a.svc.BundleWeightsHash(bundle.SubnetID, bundle.EpochID, bundle.Block, bundle.Pairs())
	if err != nil {
		return verdict(domain.AuditEquivocationDetected, "bundle weights are not canonically encodable"), nil
	}
	if computed != bundle.WeightsHash {
		return verdict(domain.AuditEquivocationDetected, "stored weights do not reproduce weights_hash"), nil
	}
	if err := crypto.VerifyHashSignature(bundle.ActorPubKey, bundle.WeightsHash, bundle.ActorSignature); err != nil {
		return verdict(domain.AuditEquivocationDetected, "actor signature does not verify"), nil
	}

	// Reference comparison: what the actor committed on chain at the
	// snapshot block versus what the bundle claims. Exact hash equality.
	snapshot, err := a.snapshots.GetReference(ctx, subnetID, bundle.SnapshotBlock, primaryActor)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && snapshot == nil) {
		return verdict(domain.AuditAuditorMismatch, fmt.Sprintf("no reference state at block %d", bundle.SnapshotBlock)), nil
	}
	if err != nil {
		return domain.EpochAuditResult{}, err
	}
	referenceHash := snapshot.ReferenceHash
	if referenceHash == "" {
		referenceHash, err = a.svc.CompareWeightsHash(subnetID, epochID, snapshot.Pairs)
		if err != nil {
			return domain.EpochAuditResult{}, fmt.Errorf("audit: hash reference state: %w", err)
		}
	}
	if bundle.SnapshotReferenceHash != referenceHash {
		return verdict(domain.AuditEquivocationDetected, "claimed snapshot hash differs from observed reference state"), nil
	}
	bundleCompare, err := a.svc.CompareWeightsHash(subnetID, epochID, bundle.Pairs())
	if err != nil {
		return verdict(domain.AuditEquivocationDetected, "bundle weights are not canonically encodable"), nil
	}
	if bundleCompare != referenceHash {
		return verdict(domain.AuditEquivocationDetected, "bundle weights differ from reference state"), nil
	}

	// The submission must resolve to an entry covered by a sealed
	// checkpoint, and the checkpoint's tree must still commit to it.
	if detail, ok := a.submissionCheckpointed(ctx, bundle); !ok {
		return verdict(domain.AuditAuditorMismatch, detail), nil
	}

	// Cross-check against the other auditors' bundles. Tolerance absorbs
	// the u16 rounding drift of independent recomputation; disagreeing
	// with the majority indicts the auditor, not the primary.
	if detail, ok := a.majorityAgrees(ctx, bundle, primaryActor); !ok {
		return verdict(domain.AuditAuditorMismatch, detail), nil
	}

	return verdict(domain.AuditVerified, ""), nil
}

func (a *EquivocationAuditor) submissionCheckpointed(ctx context.Context, bundle *domain.WeightBundle) (string, bool) {
	if bundle.SubmissionEventHash == "" {
		return "bundle has no submission event", false
	}
	entry, err := a.entries.GetByEventHash(ctx, bundle.SubmissionEventHash)
	if err != nil || entry == nil {
		return "submission event is not in the log", false
	}
	if entry.CheckpointTxID == nil || *entry.CheckpointTxID == "" {
		return "submission event is not checkpointed", false
	}
	cp, err := a.blobs.Get(ctx, *entry.CheckpointTxID)
	if err != nil {
		return "checkpoint blob is missing", false
	}

	leaves := make([][]byte, 0, len(cp.Entries))
	found := false
	for _, e := range cp.Entries {
		leaf, err := entryLeaf(e)
		if err != nil {
			return "checkpoint blob is corrupt", false
		}
		leaves = append(leaves, leaf)
		if e.EventHash == bundle.SubmissionEventHash {
			found = true
		}
	}
	if !found {
		return "submission event is missing from its checkpoint", false
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return "checkpoint blob is corrupt", false
	}
	if hex.EncodeToString(root) != cp.Header.MerkleRoot {
		return "checkpoint root does not reproduce", false
	}
	return "", true
}

func (a *EquivocationAuditor) majorityAgrees(ctx context.Context, primary *domain.WeightBundle, primaryActor string) (string, bool) {
	others, err := a.bundles.ListByEpoch(ctx, primary.SubnetID, primary.EpochID)
	if err != nil {
		return "cannot list epoch bundles", false
	}
	total, agree := 0, 0
	for _, other := range others {
		if other.ActorID == primaryActor {
			continue
		}
		total++
		if crypto.WeightsWithinTolerance(primary.Pairs(), other.Pairs(), a.tolerance) {
			agree++
		}
	}
	if total == 0 {
		return "", true
	}
	// A strict majority must agree: an exact tie is not agreement.
	if agree*2 <= total {
		return fmt.Sprintf("aggregate agrees with %d of %d auditors", agree, total), false
	}
	return "", true
}
