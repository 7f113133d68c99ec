package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

func SHA256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

func SHA256Bytes(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:]
}

// EventHash computes the content hash of a signed event: hex SHA-256 over
// the canonical encoding of the event structure.
func (s *Service) EventHash(ev domain.Event) (string, error) {
	canonical, err := CanonicalizeAny(eventPayload(ev))
	if err != nil {
		return "", err
	}
	return SHA256Hex(canonical), nil
}

// CanonicalizeEvent exposes the exact signed bytes, for fixtures and
// cross-implementation checks.
func (s *Service) CanonicalizeEvent(ev domain.Event) ([]byte, error) {
	return CanonicalizeAny(eventPayload(ev))
}

func (s *Service) CanonicalizeAny(payload any) ([]byte, error) {
	return CanonicalizeAny(payload)
}

// eventPayload pins the key set of the signed structure. The payload map is
// passed through untouched; its canonical form is decided at encode time.
func eventPayload(ev domain.Event) map[string]any {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return map[string]any{
		"event_type":      string(ev.EventType),
		"timestamp":       ev.Timestamp,
		"boot_id":         ev.BootID,
		"monotonic_seq":   ev.MonotonicSeq,
		"prev_event_hash": ev.PrevEventHash,
		"payload":         payload,
	}
}

// CheckpointHeaderHash hashes a checkpoint header with its signature field
// cleared. The signer signs these 32 bytes; verifiers recompute them.
func (s *Service) CheckpointHeaderHash(h domain.CheckpointHeader) (string, error) {
	h.Signature = ""
	canonical, err := CanonicalizeAny(h)
	if err != nil {
		return "", err
	}
	return SHA256Hex(canonical), nil
}

// BundleWeightsHash is the bundle-integrity hash: it includes the block the
// weights were computed at, and is what the actor signs.
func (s *Service) BundleWeightsHash(subnetID, epochID, block int64, pairs []domain.WeightPair) (string, error) {
	sparse, err := normalizePairs(pairs)
	if err != nil {
		return "", err
	}
	canonical, err := CanonicalizeAny(map[string]any{
		"subnet_id": subnetID,
		"epoch_id":  epochID,
		"block":     block,
		"weights":   pairsToArray(sparse),
	})
	if err != nil {
		return "", err
	}
	return SHA256Hex(canonical), nil
}

// CompareWeightsHash is the chain-comparison hash. On-chain weight state has
// no block metadata, so the block is omitted; both sides of an equivocation
// comparison must use this form.
func (s *Service) CompareWeightsHash(subnetID, epochID int64, pairs []domain.WeightPair) (string, error) {
	sparse, err := normalizePairs(pairs)
	if err != nil {
		return "", err
	}
	canonical, err := CanonicalizeAny(map[string]any{
		"subnet_id": subnetID,
		"epoch_id":  epochID,
		"weights":   pairsToArray(sparse),
	})
	if err != nil {
		return "", err
	}
	return SHA256Hex(canonical), nil
}

// WeightsWithinTolerance compares two sparse weight vectors allowing a small
// per-uid drift. The u16 round trip through floats can move a weight by one,
// and a weight of one can drop to zero and vanish from the sparse form, so
// the comparison runs over the union of uids with missing entries as zero.
// Exact hash equality remains mandatory for primary snapshot comparisons.
func WeightsWithinTolerance(expected, actual []domain.WeightPair, tolerance int64) bool {
	expectedByUID := make(map[int64]int64, len(expected))
	for _, p := range expected {
		expectedByUID[p.UID] = p.Weight
	}
	actualByUID := make(map[int64]int64, len(actual))
	for _, p := range actual {
		actualByUID[p.UID] = p.Weight
	}
	for uid, w := range expectedByUID {
		if diff := w - actualByUID[uid]; diff > tolerance || diff < -tolerance {
			return false
		}
	}
	for uid, w := range actualByUID {
		if _, seen := expectedByUID[uid]; seen {
			continue
		}
		if w > tolerance || w < -tolerance {
			return false
		}
	}
	return true
}

func normalizePairs(pairs []domain.WeightPair) ([]domain.WeightPair, error) {
	sparse := make([]domain.WeightPair, 0, len(pairs))
	for _, p := range pairs {
		if p.Weight == 0 {
			continue
		}
		if p.Weight < 0 || p.Weight > domain.MaxWeight {
			return nil, fmt.Errorf("weight %d for uid %d outside u16 range", p.Weight, p.UID)
		}
		if p.UID < 0 {
			return nil, fmt.Errorf("negative uid %d", p.UID)
		}
		sparse = append(sparse, p)
	}
	sort.Slice(sparse, func(i, j int) bool { return sparse[i].UID < sparse[j].UID })
	for i := 1; i < len(sparse); i++ {
		if sparse[i].UID == sparse[i-1].UID {
			return nil, fmt.Errorf("duplicate uid %d", sparse[i].UID)
		}
	}
	if len(sparse) == 0 {
		return nil, errors.New("no non-zero weights")
	}
	return sparse, nil
}

func pairsToArray(pairs []domain.WeightPair) []any {
	out := make([]any, len(pairs))
	for i, p := range pairs {
		out[i] = []any{p.UID, p.Weight}
	}
	return out
}
