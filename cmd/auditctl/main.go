// auditctl verifies exported artifacts offline: attestation envelopes,
// checkpoint blobs and inclusion proofs, with nothing but the files and an
// optional attested enclave key.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/logmem"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/merkle"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/nitro"
	"github.com/nathancole636-ui/my-lead-poet/internal/usecase"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "verify-attestation":
		verifyAttestation(os.Args[2:])
	case "verify-checkpoint":
		verifyCheckpoint(os.Args[2:])
	case "verify-proof":
		verifyProof(os.Args[2:])
	case "run-audit":
		runAudit(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: auditctl <verify-attestation|verify-checkpoint|verify-proof|run-audit> [flags]")
	os.Exit(2)
}

func verifyAttestation(args []string) {
	fs := flag.NewFlagSet("verify-attestation", flag.ExitOnError)
	file := fs.String("file", "", "attestation envelope (base64 or raw CBOR)")
	allowDebug := fs.Bool("allow-debug", false, "accept debug-mode documents (all-zero PCR0)")
	at := fs.String("at", "", "evaluate certificate validity at this RFC3339 time (default now)")
	fs.Parse(args)
	if *file == "" {
		log.Fatal("verify-attestation: -file is required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}
	// Exported envelopes are base64; accept raw CBOR too.
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw))); err == nil {
		raw = decoded
	}

	now := time.Now
	if *at != "" {
		when, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("verify-attestation: bad -at time: %v", err)
		}
		now = func() time.Time { return when }
	}

	verifier, err := nitro.NewVerifier(nil, now)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}
	doc, err := verifier.Verify(raw, domain.AttestationPolicy{RequireProduction: !*allowDebug})
	if err != nil {
		log.Fatalf("attestation invalid: %v", err)
	}

	fmt.Printf("ok: module %s, signed %s\n", doc.ModuleID, doc.Timestamp.Format(time.RFC3339))
	fmt.Printf("pcr0: %s\n", doc.CodeIdentity())
	if doc.DebugMode {
		fmt.Println("warning: document is in debug mode")
	}
	if len(doc.PublicKey) > 0 {
		fmt.Printf("enclave pubkey: %s\n", doc.PublicKey)
	}
}

func verifyCheckpoint(args []string) {
	fs := flag.NewFlagSet("verify-checkpoint", flag.ExitOnError)
	file := fs.String("file", "", "checkpoint blob (JSON)")
	pubkey := fs.String("pubkey", "", "attested enclave key (hex, optional)")
	fs.Parse(args)
	if *file == "" {
		log.Fatal("verify-checkpoint: -file is required")
	}

	var cp domain.Checkpoint
	decodeFile(*file, &cp)

	svc := crypto.NewService()
	leaves := make([][]byte, 0, len(cp.Entries))
	for _, entry := range cp.Entries {
		computed, err := svc.EventHash(entry.Event)
		if err != nil {
			log.Fatalf("entry seq %d: %v", entry.Event.MonotonicSeq, err)
		}
		if computed != entry.EventHash {
			log.Fatalf("entry seq %d: stored hash does not match content", entry.Event.MonotonicSeq)
		}
		if err := crypto.VerifyHashSignature(entry.SignerPubKey, entry.EventHash, entry.Signature); err != nil {
			log.Fatalf("entry seq %d: %v", entry.Event.MonotonicSeq, err)
		}
		eventHash, err := hex.DecodeString(entry.EventHash)
		if err != nil {
			log.Fatalf("entry seq %d: event hash is not hex", entry.Event.MonotonicSeq)
		}
		sig, err := hex.DecodeString(entry.Signature)
		if err != nil {
			log.Fatalf("entry seq %d: signature is not hex", entry.Event.MonotonicSeq)
		}
		leaves = append(leaves, merkle.LeafHash(eventHash, sig))
	}

	root, err := merkle.Root(leaves)
	if err != nil {
		log.Fatalf("merkle root: %v", err)
	}
	if hex.EncodeToString(root) != cp.Header.MerkleRoot {
		log.Fatalf("merkle root does not reproduce header root")
	}
	if int64(len(leaves)) != cp.Header.EntryCount {
		log.Fatalf("entry count %d does not match header %d", len(leaves), cp.Header.EntryCount)
	}

	headerHash, err := svc.CheckpointHeaderHash(cp.Header)
	if err != nil {
		log.Fatalf("header hash: %v", err)
	}
	signerKey := *pubkey
	if signerKey == "" && len(cp.Entries) > 0 {
		signerKey = cp.Entries[0].SignerPubKey
	}
	if err := crypto.VerifyHashSignature(signerKey, headerHash, cp.Header.Signature); err != nil {
		log.Fatalf("checkpoint signature: %v", err)
	}

	fmt.Printf("ok: checkpoint %s, %d entries, root %s\n", cp.TxID, len(leaves), cp.Header.MerkleRoot)
}

type proofBundle struct {
	Entry             domain.SignedLogEntry   `json:"entry"`
	Proof             domain.InclusionProof   `json:"proof"`
	Header            domain.CheckpointHeader `json:"checkpoint_header"`
	AttestedPubKeyHex string                  `json:"attested_pubkey,omitempty"`
}

func verifyProof(args []string) {
	fs := flag.NewFlagSet("verify-proof", flag.ExitOnError)
	file := fs.String("file", "", "proof bundle (JSON: entry, proof, checkpoint_header)")
	pubkey := fs.String("pubkey", "", "attested enclave key (hex, overrides file)")
	fs.Parse(args)
	if *file == "" {
		log.Fatal("verify-proof: -file is required")
	}

	var bundle proofBundle
	decodeFile(*file, &bundle)
	if *pubkey != "" {
		bundle.AttestedPubKeyHex = *pubkey
	}

	ok, reason := usecase.NewInclusionVerifier(crypto.NewService()).
		Verify(bundle.Entry, bundle.Proof, bundle.Header, bundle.AttestedPubKeyHex)
	if !ok {
		log.Fatalf("proof invalid: %s", reason)
	}
	fmt.Printf("ok: event %s included at index %d of %d\n", bundle.Proof.EventHash, bundle.Proof.LeafIndex, bundle.Proof.TreeSize)
}

// auditExport is a self-contained epoch dataset: everything the audit
// needs, exported from a gateway and re-checked here without trusting it.
type auditExport struct {
	SubnetID     int64                   `json:"subnet_id"`
	EpochID      int64                   `json:"epoch_id"`
	PrimaryActor string                  `json:"primary_actor"`
	Bundles      []domain.WeightBundle   `json:"bundles"`
	Snapshots    []domain.ChainSnapshot  `json:"snapshots"`
	Entries      []domain.SignedLogEntry `json:"entries"`
	Checkpoints  []domain.Checkpoint     `json:"checkpoints"`
}

func runAudit(args []string) {
	fs := flag.NewFlagSet("run-audit", flag.ExitOnError)
	file := fs.String("file", "", "epoch export (JSON)")
	tolerance := fs.Int64("tolerance", 1, "auditor cross-check tolerance in u16 weight units")
	fs.Parse(args)
	if *file == "" {
		log.Fatal("run-audit: -file is required")
	}

	var export auditExport
	decodeFile(*file, &export)
	if export.PrimaryActor == "" {
		log.Fatal("run-audit: export names no primary actor")
	}

	ctx := context.Background()
	bundles := logmem.NewBundleStore()
	for _, b := range export.Bundles {
		if err := bundles.Save(ctx, b); err != nil {
			log.Fatalf("load bundle %s: %v", b.ActorID, err)
		}
	}
	snapshots := logmem.NewSnapshotStore()
	for _, s := range export.Snapshots {
		if err := snapshots.Save(ctx, s); err != nil {
			log.Fatalf("load snapshot at block %d: %v", s.Block, err)
		}
	}
	entries := logmem.NewLogEntryStore()
	for _, e := range export.Entries {
		if err := entries.Append(ctx, e); err != nil {
			log.Fatalf("load entry %s: %v", e.EventHash, err)
		}
	}
	blobs := make(memBlobs, len(export.Checkpoints))
	for _, cp := range export.Checkpoints {
		blobs[cp.TxID] = cp
	}

	auditor := usecase.NewEquivocationAuditor(
		bundles, snapshots, logmem.NewAuditStore(), entries, blobs,
		logmem.NewCheckpointIndex(), crypto.NewService(), *tolerance, nil)
	result, err := auditor.AuditEpoch(ctx, export.SubnetID, export.EpochID, export.PrimaryActor)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	fmt.Printf("subnet %d epoch %d actor %s: %s\n",
		export.SubnetID, export.EpochID, export.PrimaryActor, result.Status)
	if result.Detail != "" {
		fmt.Printf("detail: %s\n", result.Detail)
	}
	if result.Status != domain.AuditVerified {
		os.Exit(1)
	}
}

// memBlobs serves exported checkpoint blobs to the auditor without touching
// the filesystem.
type memBlobs map[string]domain.Checkpoint

func (m memBlobs) Put(_ context.Context, cp domain.Checkpoint) error {
	m[cp.TxID] = cp
	return nil
}

func (m memBlobs) Get(_ context.Context, txID string) (*domain.Checkpoint, error) {
	cp, ok := m[txID]
	if !ok {
		return nil, fmt.Errorf("%w: checkpoint %s not in export", domain.ErrNotFound, txID)
	}
	return &cp, nil
}

func decodeFile(path string, v any) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		log.Fatalf("decode %s: %v", path, err)
	}
}
