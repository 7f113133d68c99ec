package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

func TestRunSealsAndMarksEntries(t *testing.T) {
	f := newFixture(t)
	a := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(1)})
	b := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(2)})

	cp := f.seal()
	if cp.Header.EntryCount != 3 {
		t.Fatalf("entry count = %d, want 3 (restart + 2)", cp.Header.EntryCount)
	}
	if cp.Header.CodeIdentity != fixtureCodeIdentity {
		t.Fatalf("code identity = %s", cp.Header.CodeIdentity)
	}
	if cp.Header.TimeRange.From == "" || cp.Header.TimeRange.To == "" || cp.Header.TimeRange.From > cp.Header.TimeRange.To {
		t.Fatalf("bad time range %+v", cp.Header.TimeRange)
	}

	for _, hash := range []string{a.EventHash, b.EventHash} {
		entry, err := f.entries.GetByEventHash(f.ctx, hash)
		if err != nil {
			t.Fatal(err)
		}
		if entry.CheckpointTxID == nil || *entry.CheckpointTxID != cp.TxID {
			t.Fatalf("entry %s not marked with tx %s", hash, cp.TxID)
		}
	}

	blob, err := f.blobs.Get(f.ctx, cp.TxID)
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	if len(blob.Entries) != 3 {
		t.Fatalf("blob has %d entries", len(blob.Entries))
	}
	if header, err := f.checkpoints.GetHeader(f.ctx, cp.TxID); err != nil || header.MerkleRoot != cp.Header.MerkleRoot {
		t.Fatalf("index header: %v", err)
	}
}

func TestRunWithNothingToSealReturnsNil(t *testing.T) {
	f := newFixture(t)
	f.seal()

	bootID, watermark := f.seq.Watermark()
	cp, err := f.builder().Run(f.ctx, bootID, watermark)
	if err != nil {
		t.Fatal(err)
	}
	if cp != nil {
		t.Fatal("nothing new to seal, got a checkpoint")
	}
}

func TestSuccessiveCheckpointsCoverDisjointRanges(t *testing.T) {
	f := newFixture(t)
	first := f.seal()

	c := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(3)})
	second := f.seal()

	if second.TxID == first.TxID {
		t.Fatal("distinct ranges must seal under distinct tx ids")
	}
	if second.Header.EntryCount != 1 {
		t.Fatalf("second checkpoint covers %d entries, want 1", second.Header.EntryCount)
	}
	if second.Entries[0].EventHash != c.EventHash {
		t.Fatal("second checkpoint covers the wrong entry")
	}
	if latest, err := f.checkpoints.LatestTxID(f.ctx); err != nil || latest != second.TxID {
		t.Fatalf("latest tx = %s, %v", latest, err)
	}
}

func TestTxIDIsTheSignedHeaderHash(t *testing.T) {
	f := newFixture(t)
	cp := f.seal()

	headerHash, err := f.svc.CheckpointHeaderHash(cp.Header)
	if err != nil {
		t.Fatal(err)
	}
	if cp.TxID != headerHash {
		t.Fatalf("tx id %s is not the header hash %s", cp.TxID, headerHash)
	}
	if err := crypto.VerifyHashSignature(f.signer.PublicKeyHex(), headerHash, cp.Header.Signature); err != nil {
		t.Fatalf("header signature: %v", err)
	}
}

func TestRunInvokesOnSealed(t *testing.T) {
	f := newFixture(t)
	builder := f.builder()

	var sealed []domain.Checkpoint
	builder.OnSealed = func(_ context.Context, cp domain.Checkpoint) {
		sealed = append(sealed, cp)
	}

	bootID, watermark := f.seq.Watermark()
	cp, err := builder.Run(f.ctx, bootID, watermark)
	if err != nil {
		t.Fatal(err)
	}
	if len(sealed) != 1 || sealed[0].TxID != cp.TxID {
		t.Fatalf("OnSealed calls: %d", len(sealed))
	}

	// A run that seals nothing must not fire the callback.
	if _, err := builder.Run(f.ctx, bootID, watermark); err != nil {
		t.Fatal(err)
	}
	if len(sealed) != 1 {
		t.Fatal("OnSealed fired on an empty run")
	}
}

func TestProofRoundTrip(t *testing.T) {
	f := newFixture(t)
	target := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(7)})
	f.append(domain.EventWeightSubmission, map[string]any{"n": int64(8)})
	f.seal()

	proofs := NewProofService(f.entries, f.blobs)
	proof, header, err := proofs.Prove(f.ctx, target.EventHash)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if proof.TreeSize != header.EntryCount {
		t.Fatalf("tree size %d, header count %d", proof.TreeSize, header.EntryCount)
	}

	entry, err := f.entries.GetByEventHash(f.ctx, target.EventHash)
	if err != nil {
		t.Fatal(err)
	}
	verifier := NewInclusionVerifier(f.svc)
	if ok, reason := verifier.Verify(*entry, *proof, *header, f.seq.PublicKeyHex()); !ok {
		t.Fatalf("valid proof rejected: %s", reason)
	}
	// Without an attested key the entry's own signer is used.
	if ok, reason := verifier.Verify(*entry, *proof, *header, ""); !ok {
		t.Fatalf("self-keyed verification rejected: %s", reason)
	}
}

func TestProofVerificationFailureReasons(t *testing.T) {
	f := newFixture(t)
	target := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(7)})
	f.seal()

	proof, header, err := NewProofService(f.entries, f.blobs).Prove(f.ctx, target.EventHash)
	if err != nil {
		t.Fatal(err)
	}
	entry, err := f.entries.GetByEventHash(f.ctx, target.EventHash)
	if err != nil {
		t.Fatal(err)
	}
	verifier := NewInclusionVerifier(f.svc)

	tamperedEntry := *entry
	tamperedEntry.Event.Payload = map[string]any{"n": int64(999)}
	if ok, reason := verifier.Verify(tamperedEntry, *proof, *header, ""); ok || reason != "event hash does not match entry content" {
		t.Fatalf("substituted payload: ok=%v reason=%q", ok, reason)
	}

	otherKey := newOtherKey(t)
	if ok, reason := verifier.Verify(*entry, *proof, *header, otherKey); ok || reason != "entry signer does not match attested enclave key" {
		t.Fatalf("wrong attested key: ok=%v reason=%q", ok, reason)
	}

	badRoot := *header
	badRoot.MerkleRoot = flipHex(badRoot.MerkleRoot)
	if ok, reason := verifier.Verify(*entry, *proof, badRoot, ""); ok || reason != "proof does not reproduce checkpoint root" {
		t.Fatalf("forged root: ok=%v reason=%q", ok, reason)
	}

	badSig := *header
	badSig.Signature = flipHex(badSig.Signature)
	if ok, reason := verifier.Verify(*entry, *proof, badSig, ""); ok || reason != "checkpoint signature invalid" {
		t.Fatalf("forged header signature: ok=%v reason=%q", ok, reason)
	}

	badSize := *proof
	badSize.TreeSize++
	if ok, _ := verifier.Verify(*entry, badSize, *header, ""); ok {
		t.Fatal("oversized tree claim verified")
	}
}

func TestProveRequiresSealedEntry(t *testing.T) {
	f := newFixture(t)
	pending := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(1)})

	_, _, err := NewProofService(f.entries, f.blobs).Prove(f.ctx, pending.EventHash)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unsealed entry: got %v", err)
	}
	_, _, err = NewProofService(f.entries, f.blobs).Prove(f.ctx, domain.ZeroEventHash)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown hash: got %v", err)
	}
}

func flipHex(s string) string {
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}

func newOtherKey(t *testing.T) string {
	t.Helper()
	signer, err := crypto.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	return signer.PublicKeyHex()
}
