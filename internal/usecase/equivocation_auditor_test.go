package usecase

import (
	"testing"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

// submitSealed drives a bundle through the full ingest path: validated
// submission, WEIGHT_SUBMISSION log entry, and a sealed checkpoint covering
// it.
func (f *fixture) submitSealed(bundle domain.WeightBundle) domain.WeightBundle {
	f.t.Helper()
	stored, err := NewBundleService(f.bundles, f.seq, f.svc).Submit(f.ctx, bundle)
	if err != nil {
		f.t.Fatalf("submit: %v", err)
	}
	f.seal()
	return stored
}

// saveReference records the observed chain state that matches the bundle's
// claimed snapshot.
func (f *fixture) saveReference(bundle domain.WeightBundle) {
	f.t.Helper()
	if err := f.snapshots.Save(f.ctx, domain.ChainSnapshot{
		SubnetID:      bundle.SubnetID,
		EpochID:       bundle.EpochID,
		Block:         bundle.SnapshotBlock,
		ActorID:       bundle.ActorID,
		ReferenceHash: bundle.SnapshotReferenceHash,
	}); err != nil {
		f.t.Fatalf("save snapshot: %v", err)
	}
}

func newActor(t *testing.T) *crypto.Signer {
	t.Helper()
	actor, err := crypto.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	return actor
}

func TestAuditVerified(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200}))
	f.saveReference(bundle)

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if result.Status != domain.AuditVerified {
		t.Fatalf("status = %s (%s), want VERIFIED", result.Status, result.Detail)
	}
	if !result.Status.Terminal() {
		t.Fatal("verdict must be terminal")
	}
}

func TestAuditVerifiedAgainstRawSnapshotPairs(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200}))

	// A snapshot without a precomputed hash is hashed from its pairs.
	if err := f.snapshots.Save(f.ctx, domain.ChainSnapshot{
		SubnetID: 71,
		EpochID:  361,
		Block:    bundle.SnapshotBlock,
		ActorID:  "validator-1",
		Pairs:    []domain.WeightPair{{UID: 1, Weight: 100}, {UID: 2, Weight: 200}},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditVerified {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditNoBundle(t *testing.T) {
	f := newFixture(t)
	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditNoTEEBundle {
		t.Fatalf("status = %s", result.Status)
	}
}

func TestAuditSnapshotHashMismatch(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200}))

	// The chain observed different weights at the snapshot block than the
	// bundle claims: the primary equivocated.
	observed, err := f.svc.CompareWeightsHash(71, 361, []domain.WeightPair{{UID: 1, Weight: 100}, {UID: 2, Weight: 50}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.snapshots.Save(f.ctx, domain.ChainSnapshot{
		SubnetID:      71,
		EpochID:       361,
		Block:         bundle.SnapshotBlock,
		ActorID:       "validator-1",
		ReferenceHash: observed,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditEquivocationDetected {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditTamperedStoredBundle(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200})
	bundle.Weights = []int64{100, 201} // no longer reproduces weights_hash
	if err := f.bundles.Save(f.ctx, bundle); err != nil {
		t.Fatal(err)
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditEquivocationDetected {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditForgedActorSignature(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	imposter := newActor(t)
	bundle := signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1}, []int64{100})
	bundle.ActorPubKey = imposter.PublicKeyHex()
	if err := f.bundles.Save(f.ctx, bundle); err != nil {
		t.Fatal(err)
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditEquivocationDetected {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditMissingSnapshot(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1}, []int64{100}))

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditAuditorMismatch {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditUncheckpointedSubmission(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1}, []int64{100})
	stored, err := NewBundleService(f.bundles, f.seq, f.svc).Submit(f.ctx, bundle)
	if err != nil {
		t.Fatal(err)
	}
	f.saveReference(stored)

	// Submission is logged but no checkpoint covers it yet.
	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditAuditorMismatch {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditMajorityCrossCheck(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200}))
	f.saveReference(bundle)

	// Two auditors recomputed materially different aggregates.
	for _, other := range []domain.WeightBundle{
		{SubnetID: 71, EpochID: 361, ActorID: "auditor-1", UIDs: []int64{1, 2}, Weights: []int64{500, 1}},
		{SubnetID: 71, EpochID: 361, ActorID: "auditor-2", UIDs: []int64{9}, Weights: []int64{300}},
	} {
		if err := f.bundles.Save(f.ctx, other); err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditAuditorMismatch {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditSplitAuditorsIsNotAMajority(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200}))
	f.saveReference(bundle)

	// One auditor agrees, one does not. An exact tie is not a majority.
	for _, other := range []domain.WeightBundle{
		{SubnetID: 71, EpochID: 361, ActorID: "auditor-1", UIDs: []int64{1, 2}, Weights: []int64{100, 200}},
		{SubnetID: 71, EpochID: 361, ActorID: "auditor-2", UIDs: []int64{1, 2}, Weights: []int64{900, 1}},
	} {
		if err := f.bundles.Save(f.ctx, other); err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditAuditorMismatch {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditToleratesRoundingDrift(t *testing.T) {
	f := newFixture(t)
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1, 2}, []int64{100, 200}))
	f.saveReference(bundle)

	// Independent recomputation lands within one u16 unit per uid.
	if err := f.bundles.Save(f.ctx, domain.WeightBundle{
		SubnetID: 71, EpochID: 361, ActorID: "auditor-1",
		UIDs: []int64{1, 2}, Weights: []int64{101, 199},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.AuditVerified {
		t.Fatalf("status = %s (%s)", result.Status, result.Detail)
	}
}

func TestAuditVerdictIsImmutable(t *testing.T) {
	f := newFixture(t)

	first, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != domain.AuditNoTEEBundle {
		t.Fatalf("status = %s", first.Status)
	}

	// The bundle arriving after the verdict changes nothing: the recorded
	// verdict is returned unchanged.
	actor := newActor(t)
	bundle := f.submitSealed(signedBundle(t, f.svc, actor, 71, 361, 4200000, "validator-1", []int64{1}, []int64{100}))
	f.saveReference(bundle)

	second, err := f.auditor(1).AuditEpoch(f.ctx, 71, 361, "validator-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != domain.AuditNoTEEBundle {
		t.Fatalf("re-audit status = %s, want the recorded verdict", second.Status)
	}
}
