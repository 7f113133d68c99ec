package main

import (
	"context"
	"log"

	"github.com/nathancole636-ui/my-lead-poet/internal/config"
	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/blobfs"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/cachemem"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/cacheredis"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/db"
	httpinfra "github.com/nathancole636-ui/my-lead-poet/internal/infra/http"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/logmem"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/nitro"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/policyopa"
	"github.com/nathancole636-ui/my-lead-poet/internal/usecase"
)

func main() {
	ctx := context.Background()
	cfg := config.FromEnv()

	store, err := db.NewStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	var (
		entries     usecase.LogEntryRepository
		bundles     usecase.WeightBundleRepository
		checkpoints usecase.CheckpointRepository
		audits      usecase.EpochAuditRepository
		snapshots   httpinfra.SnapshotStore
	)
	if store.Available() {
		entries = store.LogEntries
		bundles = store.Bundles
		checkpoints = store.Checkpoints
		audits = store.EpochAudits
		snapshots = store.Snapshots
	} else {
		entries = logmem.NewLogEntryStore()
		bundles = logmem.NewBundleStore()
		checkpoints = logmem.NewCheckpointIndex()
		audits = logmem.NewAuditStore()
		snapshots = logmem.NewSnapshotStore()
	}

	blobs, err := blobfs.NewStore(cfg.CheckpointDir)
	if err != nil {
		log.Fatalf("checkpoint store: %v", err)
	}

	signer, err := httpinfra.LoadSigner(cfg)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}
	svc := crypto.NewService()

	sequencer, err := usecase.OpenSequencer(ctx, entries, signer, svc, nil)
	if err != nil {
		log.Fatalf("sequencer: %v", err)
	}
	log.Printf("boot session %s, enclave key %s", sequencer.BootID(), signer.PublicKeyHex())

	verifier, err := nitro.NewVerifier(nil, nil)
	if err != nil {
		log.Fatalf("attestation verifier: %v", err)
	}
	var policy usecase.MeasurementPolicy
	if cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(ctx, cfg.PolicyBundlePath)
		if err != nil {
			log.Fatalf("policy bundle: %v", err)
		}
		policy = engine
	}
	var cache usecase.VerificationCache
	if cfg.RedisAddr != "" {
		redisCache, err := cacheredis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis cache: %v", err)
		}
		cache = redisCache
	} else {
		cache = cachemem.New()
	}
	attestations := usecase.NewAttestationService(verifier, policy, cache, cfg.AttestationCacheTTL(), map[string][]string{
		"gateway":   cfg.AllowedGatewayPCR0,
		"validator": cfg.AllowedValidatorPCR0,
	}, nil)

	builder := usecase.NewCheckpointBuilder(entries, checkpoints, blobs, signer, svc, cfg.CodeIdentity)
	builder.OnSealed = func(ctx context.Context, cp domain.Checkpoint) {
		_, err := sequencer.Append(ctx, usecase.AppendRequest{
			EventType: domain.EventCheckpointSealed,
			Payload: map[string]any{
				"tx_id":       cp.TxID,
				"merkle_root": cp.Header.MerkleRoot,
				"entry_count": cp.Header.EntryCount,
			},
		})
		if err != nil {
			log.Printf("checkpoint event: %v", err)
		}
	}
	go builder.RunPeriodic(ctx, cfg.CheckpointInterval(), sequencer.Watermark)

	auditor := usecase.NewEquivocationAuditor(
		bundles, snapshots, audits, entries, blobs, checkpoints, svc, cfg.AuditWeightTolerance, nil,
	)

	server := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Sequencer:    sequencer,
		Bundles:      usecase.NewBundleService(bundles, sequencer, svc),
		Proofs:       usecase.NewProofService(entries, blobs),
		Inclusion:    usecase.NewInclusionVerifier(svc),
		Chains:       usecase.NewChainVerifier(entries, svc),
		Attestations: attestations,
		Auditor:      auditor,
		Builder:      builder,
		Entries:      entries,
		Checkpoints:  checkpoints,
		Blobs:        blobs,
		Audits:       audits,
		Snapshots:    snapshots,
		OwnEnvelope:  httpinfra.LoadOwnEnvelope(cfg),
	})
	if err := server.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
