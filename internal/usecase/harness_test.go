package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/blobfs"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/logmem"
)

var fixtureCodeIdentity = strings.Repeat("ab", 48)

// fixture wires the in-memory stores, a filesystem blob store, and a live
// sequencer the way the server does, with a deterministic clock.
type fixture struct {
	t   *testing.T
	ctx context.Context

	entries     *logmem.LogEntryStore
	bundles     *logmem.BundleStore
	checkpoints *logmem.CheckpointIndex
	audits      *logmem.AuditStore
	snapshots   *logmem.SnapshotStore
	blobs       *blobfs.Store

	svc    *crypto.Service
	signer *crypto.Signer
	seq    *Sequencer

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		entries:     logmem.NewLogEntryStore(),
		bundles:     logmem.NewBundleStore(),
		checkpoints: logmem.NewCheckpointIndex(),
		audits:      logmem.NewAuditStore(),
		snapshots:   logmem.NewSnapshotStore(),
		svc:         crypto.NewService(),
		now:         time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
	blobs, err := blobfs.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f.blobs = blobs
	f.signer, err = crypto.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	f.seq, err = OpenSequencer(f.ctx, f.entries, f.signer, f.svc, f.clock)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// clock advances one second per reading so consecutive entries carry
// distinct timestamps. Callers only read it under the sequencer's or
// auditor's own serialization.
func (f *fixture) clock() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fixture) builder() *CheckpointBuilder {
	return NewCheckpointBuilder(f.entries, f.checkpoints, f.blobs, f.signer, f.svc, fixtureCodeIdentity)
}

func (f *fixture) auditor(tolerance int64) *EquivocationAuditor {
	return NewEquivocationAuditor(f.bundles, f.snapshots, f.audits, f.entries, f.blobs, f.checkpoints, f.svc, tolerance, f.clock)
}

func (f *fixture) append(eventType domain.EventType, payload map[string]any) domain.SignedLogEntry {
	f.t.Helper()
	entry, err := f.seq.Append(f.ctx, AppendRequest{EventType: eventType, Payload: payload})
	if err != nil {
		f.t.Fatalf("append: %v", err)
	}
	return entry
}

// seal checkpoints everything the sequencer has durably written.
func (f *fixture) seal() domain.Checkpoint {
	f.t.Helper()
	bootID, watermark := f.seq.Watermark()
	cp, err := f.builder().Run(f.ctx, bootID, watermark)
	if err != nil {
		f.t.Fatalf("seal: %v", err)
	}
	if cp == nil {
		f.t.Fatal("seal: nothing to checkpoint")
	}
	return *cp
}

// signedBundle builds an internally consistent bundle: the weights hash is
// recomputed from the pairs, the claimed snapshot hash is the comparison
// form of the same pairs, and the actor signature is genuine.
func signedBundle(t *testing.T, svc *crypto.Service, actor *crypto.Signer, subnetID, epochID, block int64, actorID string, uids, weights []int64) domain.WeightBundle {
	t.Helper()
	pairs := make([]domain.WeightPair, len(uids))
	for i := range uids {
		pairs[i] = domain.WeightPair{UID: uids[i], Weight: weights[i]}
	}
	weightsHash, err := svc.BundleWeightsHash(subnetID, epochID, block, pairs)
	if err != nil {
		t.Fatalf("weights hash: %v", err)
	}
	compareHash, err := svc.CompareWeightsHash(subnetID, epochID, pairs)
	if err != nil {
		t.Fatalf("compare hash: %v", err)
	}
	sig, err := actor.SignHashHex(weightsHash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return domain.WeightBundle{
		SubnetID:              subnetID,
		EpochID:               epochID,
		Block:                 block,
		UIDs:                  uids,
		Weights:               weights,
		WeightsHash:           weightsHash,
		ActorID:               actorID,
		ActorPubKey:           actor.PublicKeyHex(),
		ActorSignature:        sig,
		SnapshotBlock:         block,
		SnapshotReferenceHash: compareHash,
	}
}
