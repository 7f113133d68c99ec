package usecase

import (
	"context"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

// LogEntryRepository is the append-only persistence sink for signed log
// entries. Implementations must reject duplicate (boot_id, monotonic_seq)
// pairs and duplicate event hashes.
type LogEntryRepository interface {
	Append(ctx context.Context, entry domain.SignedLogEntry) error
	LatestEntry(ctx context.Context) (*domain.SignedLogEntry, error)
	LastInBoot(ctx context.Context, bootID string) (*domain.SignedLogEntry, error)
	ListByBoot(ctx context.Context, bootID string, fromSeq, toSeq int64) ([]domain.SignedLogEntry, error)
	GetByEventHash(ctx context.Context, eventHash string) (*domain.SignedLogEntry, error)
	// ListForCheckpoint returns uncheckpointed entries of a boot session
	// at or below the watermark, in sequence order.
	ListForCheckpoint(ctx context.Context, bootID string, watermark int64) ([]domain.SignedLogEntry, error)
	MarkCheckpointed(ctx context.Context, bootID string, fromSeq, toSeq int64, txID string) error
}

// CheckpointRepository indexes built checkpoints for lookup; the full blob
// lives in the write-once store.
type CheckpointRepository interface {
	Save(ctx context.Context, cp domain.Checkpoint, bootID string, fromSeq, toSeq int64) error
	GetHeader(ctx context.Context, txID string) (*domain.CheckpointHeader, error)
	LatestTxID(ctx context.Context) (string, error)
}

// CheckpointStore is the write-once blob store: one {header, entries} blob
// per checkpoint, addressed by tx id. Re-putting an identical blob is a
// no-op; putting a different blob under an existing id must fail.
type CheckpointStore interface {
	Put(ctx context.Context, cp domain.Checkpoint) error
	Get(ctx context.Context, txID string) (*domain.Checkpoint, error)
}

type WeightBundleRepository interface {
	Save(ctx context.Context, bundle domain.WeightBundle) error
	Get(ctx context.Context, subnetID, epochID int64, actorID string) (*domain.WeightBundle, error)
	ListByEpoch(ctx context.Context, subnetID, epochID int64) ([]domain.WeightBundle, error)
}

type EpochAuditRepository interface {
	Save(ctx context.Context, result domain.EpochAuditResult) error
	Get(ctx context.Context, subnetID, epochID int64) (*domain.EpochAuditResult, error)
}

// SnapshotRepository is the reference-state source: the independently
// observed aggregate state at a block, read-only for the auditor.
type SnapshotRepository interface {
	GetReference(ctx context.Context, subnetID, block int64, actorID string) (*domain.ChainSnapshot, error)
}

// EntrySigner is the enclave-resident signing capability.
type EntrySigner interface {
	PublicKeyHex() string
	SignHashHex(hashHex string) (string, error)
}

// VerificationCache memoizes successful attestation verifications by
// envelope digest.
type VerificationCache interface {
	Get(ctx context.Context, key string) (*domain.VerificationResult, bool, error)
	Put(ctx context.Context, key string, value domain.VerificationResult, ttl time.Duration) error
}

// MeasurementPolicy decides whether a verified document's code identity is
// acceptable for a role.
type MeasurementPolicy interface {
	Evaluate(ctx context.Context, input MeasurementInput) (MeasurementDecision, error)
}

type MeasurementInput struct {
	PCR0  string `json:"pcr0"`
	Debug bool   `json:"debug"`
	Role  string `json:"role"`
}

type MeasurementDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}
