package usecase

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/merkle"
)

// CheckpointBuilder seals closed ranges of the log into signed Merkle
// checkpoints. Runs serialize on an internal mutex, so a new build never
// starts while the previous one is still committing.
type CheckpointBuilder struct {
	entries     LogEntryRepository
	checkpoints CheckpointRepository
	blobs       CheckpointStore
	signer      EntrySigner
	svc         *crypto.Service

	codeIdentity string

	mu sync.Mutex

	// OnSealed, when set, is called after a checkpoint commits. The server
	// uses it to append a CHECKPOINT_SEALED event to the live log.
	OnSealed func(ctx context.Context, cp domain.Checkpoint)
}

func NewCheckpointBuilder(entries LogEntryRepository, checkpoints CheckpointRepository, blobs CheckpointStore, signer EntrySigner, svc *crypto.Service, codeIdentity string) *CheckpointBuilder {
	return &CheckpointBuilder{
		entries:      entries,
		checkpoints:  checkpoints,
		blobs:        blobs,
		signer:       signer,
		svc:          svc,
		codeIdentity: codeIdentity,
	}
}

// Run seals every uncheckpointed entry of the boot session at or below the
// watermark. It returns nil without error when there is nothing to seal.
//
// The build is deterministic: the tx id is the hash of the signed-over
// header, so re-running over the same closed range reproduces the same
// checkpoint byte for byte and the write-once store absorbs the replay.
func (b *CheckpointBuilder) Run(ctx context.Context, bootID string, watermark int64) (*domain.Checkpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, err := b.entries.ListForCheckpoint(ctx, bootID, watermark)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list entries: %w", err)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	leaves := make([][]byte, 0, len(batch))
	for _, entry := range batch {
		leaf, err := entryLeaf(entry)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: build tree: %w", err)
	}

	header := domain.CheckpointHeader{
		MerkleRoot: hex.EncodeToString(root),
		EntryCount: int64(len(batch)),
		TimeRange: domain.TimeRange{
			From: batch[0].Event.Timestamp,
			To:   batch[len(batch)-1].Event.Timestamp,
		},
		CodeIdentity: b.codeIdentity,
	}
	headerHash, err := b.svc.CheckpointHeaderHash(header)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: hash header: %w", err)
	}
	header.Signature, err = b.signer.SignHashHex(headerHash)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: sign header: %w", err)
	}

	cp := domain.Checkpoint{
		TxID:    headerHash,
		Header:  header,
		Entries: batch,
	}

	if err := b.blobs.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("checkpoint: export blob: %w", err)
	}
	fromSeq := batch[0].Event.MonotonicSeq
	toSeq := batch[len(batch)-1].Event.MonotonicSeq
	if err := b.checkpoints.Save(ctx, cp, bootID, fromSeq, toSeq); err != nil {
		return nil, fmt.Errorf("checkpoint: index: %w", err)
	}
	if err := b.entries.MarkCheckpointed(ctx, bootID, fromSeq, toSeq, cp.TxID); err != nil {
		return nil, fmt.Errorf("checkpoint: mark entries: %w", err)
	}

	if b.OnSealed != nil {
		b.OnSealed(ctx, cp)
	}
	return &cp, nil
}

// RunPeriodic drives Run on a fixed interval until the context is canceled.
// watermark supplies the current boot session and durable high-water mark.
func (b *CheckpointBuilder) RunPeriodic(ctx context.Context, interval time.Duration, watermark func() (string, int64)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bootID, seq := watermark()
			cp, err := b.Run(ctx, bootID, seq)
			if err != nil {
				log.Printf("checkpoint: build failed: %v", err)
				continue
			}
			if cp != nil {
				log.Printf("checkpoint: sealed %s (%d entries)", cp.TxID, cp.Header.EntryCount)
			}
		}
	}
}

func entryLeaf(entry domain.SignedLogEntry) ([]byte, error) {
	eventHash, err := hex.DecodeString(entry.EventHash)
	if err != nil {
		return nil, fmt.Errorf("%w: event hash of seq %d", domain.ErrMalformedInput, entry.Event.MonotonicSeq)
	}
	sig, err := hex.DecodeString(entry.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature of seq %d", domain.ErrMalformedInput, entry.Event.MonotonicSeq)
	}
	return merkle.LeafHash(eventHash, sig), nil
}
