package usecase

import (
	"context"
	"fmt"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

// ChainVerifier replays a boot session's chain from scratch and fails on the
// first inconsistency. It trusts nothing stored: every event hash is
// recomputed from the canonical encoding and every signature re-verified.
type ChainVerifier struct {
	repo LogEntryRepository
	svc  *crypto.Service
}

func NewChainVerifier(repo LogEntryRepository, svc *crypto.Service) *ChainVerifier {
	return &ChainVerifier{repo: repo, svc: svc}
}

// VerifyBoot checks the full chain of one boot session and returns the
// number of verified entries.
func (v *ChainVerifier) VerifyBoot(ctx context.Context, bootID string) (int, error) {
	entries, err := v.repo.ListByBoot(ctx, bootID, 1, 0)
	if err != nil {
		return 0, fmt.Errorf("chain: list entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: boot %s has no entries", domain.ErrNotFound, bootID)
	}
	if err := VerifyEntries(v.svc, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// VerifyEntries checks an already-loaded slice of entries, assumed to be one
// boot session in sequence order starting at 1.
func VerifyEntries(svc *crypto.Service, entries []domain.SignedLogEntry) error {
	prevHash := domain.ZeroEventHash
	for i, entry := range entries {
		ev := entry.Event
		wantSeq := int64(i) + 1
		if ev.MonotonicSeq != wantSeq {
			return fmt.Errorf("%w: entry %d has seq %d, want %d", domain.ErrChainBroken, i, ev.MonotonicSeq, wantSeq)
		}
		if ev.PrevEventHash != prevHash {
			return fmt.Errorf("%w: entry seq %d prev hash does not link", domain.ErrChainBroken, ev.MonotonicSeq)
		}
		computed, err := svc.EventHash(ev)
		if err != nil {
			return fmt.Errorf("chain: hash entry seq %d: %w", ev.MonotonicSeq, err)
		}
		if computed != entry.EventHash {
			return fmt.Errorf("%w: entry seq %d stored hash does not match content", domain.ErrChainBroken, ev.MonotonicSeq)
		}
		if err := crypto.VerifyHashSignature(entry.SignerPubKey, entry.EventHash, entry.Signature); err != nil {
			return fmt.Errorf("entry seq %d: %w", ev.MonotonicSeq, err)
		}
		prevHash = entry.EventHash
	}
	return nil
}
