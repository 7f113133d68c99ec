// Package logmem provides in-memory implementations of the persistence
// interfaces, used in tests and when no database is configured.
package logmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

type LogEntryStore struct {
	mu      sync.RWMutex
	entries []domain.SignedLogEntry
	byHash  map[string]int
	bySlot  map[string]int
}

func NewLogEntryStore() *LogEntryStore {
	return &LogEntryStore{
		byHash: make(map[string]int),
		bySlot: make(map[string]int),
	}
}

func slotKey(bootID string, seq int64) string {
	return fmt.Sprintf("%s/%d", bootID, seq)
}

func (s *LogEntryStore) Append(_ context.Context, entry domain.SignedLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := slotKey(entry.Event.BootID, entry.Event.MonotonicSeq)
	if _, exists := s.bySlot[slot]; exists {
		return fmt.Errorf("%w: entry seq %d of boot %s", domain.ErrChainBroken, entry.Event.MonotonicSeq, entry.Event.BootID)
	}
	if _, exists := s.byHash[entry.EventHash]; exists {
		return fmt.Errorf("%w: event hash %s", domain.ErrChainBroken, entry.EventHash)
	}
	s.entries = append(s.entries, entry)
	idx := len(s.entries) - 1
	s.bySlot[slot] = idx
	s.byHash[entry.EventHash] = idx
	return nil
}

func (s *LogEntryStore) LatestEntry(_ context.Context) (*domain.SignedLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, domain.ErrNotFound
	}
	entry := s.entries[len(s.entries)-1]
	return &entry, nil
}

func (s *LogEntryStore) LastInBoot(_ context.Context, bootID string) (*domain.SignedLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.SignedLogEntry
	for i := range s.entries {
		e := s.entries[i]
		if e.Event.BootID != bootID {
			continue
		}
		if found == nil || e.Event.MonotonicSeq > found.Event.MonotonicSeq {
			copied := e
			found = &copied
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

func (s *LogEntryStore) ListByBoot(_ context.Context, bootID string, fromSeq, toSeq int64) ([]domain.SignedLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SignedLogEntry
	for _, e := range s.entries {
		if e.Event.BootID != bootID || e.Event.MonotonicSeq < fromSeq {
			continue
		}
		if toSeq > 0 && e.Event.MonotonicSeq > toSeq {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Event.MonotonicSeq < out[j].Event.MonotonicSeq
	})
	return out, nil
}

func (s *LogEntryStore) GetByEventHash(_ context.Context, eventHash string) (*domain.SignedLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byHash[eventHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	entry := s.entries[idx]
	return &entry, nil
}

func (s *LogEntryStore) ListForCheckpoint(_ context.Context, bootID string, watermark int64) ([]domain.SignedLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SignedLogEntry
	for _, e := range s.entries {
		if e.Event.BootID != bootID || e.Event.MonotonicSeq > watermark {
			continue
		}
		if e.CheckpointTxID != nil && *e.CheckpointTxID != "" {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Event.MonotonicSeq < out[j].Event.MonotonicSeq
	})
	return out, nil
}

func (s *LogEntryStore) MarkCheckpointed(_ context.Context, bootID string, fromSeq, toSeq int64, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		e := &s.entries[i]
		if e.Event.BootID != bootID || e.Event.MonotonicSeq < fromSeq || e.Event.MonotonicSeq > toSeq {
			continue
		}
		if e.CheckpointTxID == nil || *e.CheckpointTxID == "" {
			id := txID
			e.CheckpointTxID = &id
		}
	}
	return nil
}

type BundleStore struct {
	mu      sync.RWMutex
	bundles map[string]domain.WeightBundle
}

func NewBundleStore() *BundleStore {
	return &BundleStore{bundles: make(map[string]domain.WeightBundle)}
}

func bundleKey(subnetID, epochID int64, actorID string) string {
	return fmt.Sprintf("%d/%d/%s", subnetID, epochID, actorID)
}

func (s *BundleStore) Save(_ context.Context, bundle domain.WeightBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bundleKey(bundle.SubnetID, bundle.EpochID, bundle.ActorID)
	if _, exists := s.bundles[key]; exists {
		return fmt.Errorf("%w: bundle %s", domain.ErrAlreadyExists, key)
	}
	s.bundles[key] = bundle
	return nil
}

func (s *BundleStore) Get(_ context.Context, subnetID, epochID int64, actorID string) (*domain.WeightBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bundle, ok := s.bundles[bundleKey(subnetID, epochID, actorID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &bundle, nil
}

func (s *BundleStore) ListByEpoch(_ context.Context, subnetID, epochID int64) ([]domain.WeightBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WeightBundle
	for _, bundle := range s.bundles {
		if bundle.SubnetID == subnetID && bundle.EpochID == epochID {
			out = append(out, bundle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out, nil
}

type CheckpointIndex struct {
	mu      sync.RWMutex
	headers map[string]domain.CheckpointHeader
	order   []string
}

func NewCheckpointIndex() *CheckpointIndex {
	return &CheckpointIndex{headers: make(map[string]domain.CheckpointHeader)}
}

func (s *CheckpointIndex) Save(_ context.Context, cp domain.Checkpoint, _ string, _, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.headers[cp.TxID]; ok {
		if existing == cp.Header {
			return nil
		}
		return fmt.Errorf("%w: checkpoint %s with different contents", domain.ErrAlreadyExists, cp.TxID)
	}
	s.headers[cp.TxID] = cp.Header
	s.order = append(s.order, cp.TxID)
	return nil
}

func (s *CheckpointIndex) GetHeader(_ context.Context, txID string) (*domain.CheckpointHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	header, ok := s.headers[txID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &header, nil
}

func (s *CheckpointIndex) LatestTxID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return "", domain.ErrNotFound
	}
	return s.order[len(s.order)-1], nil
}

type AuditStore struct {
	mu      sync.RWMutex
	results map[string]domain.EpochAuditResult
}

func NewAuditStore() *AuditStore {
	return &AuditStore{results: make(map[string]domain.EpochAuditResult)}
}

func auditKey(subnetID, epochID int64) string {
	return fmt.Sprintf("%d/%d", subnetID, epochID)
}

func (s *AuditStore) Save(_ context.Context, result domain.EpochAuditResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := auditKey(result.SubnetID, result.EpochID)
	if _, exists := s.results[key]; exists {
		return fmt.Errorf("%w: audit %s", domain.ErrAlreadyExists, key)
	}
	s.results[key] = result
	return nil
}

func (s *AuditStore) Get(_ context.Context, subnetID, epochID int64) (*domain.EpochAuditResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[auditKey(subnetID, epochID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &result, nil
}

type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.ChainSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]domain.ChainSnapshot)}
}

func snapshotKey(subnetID, block int64, actorID string) string {
	return fmt.Sprintf("%d/%d/%s", subnetID, block, actorID)
}

func (s *SnapshotStore) Save(_ context.Context, snapshot domain.ChainSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey(snapshot.SubnetID, snapshot.Block, snapshot.ActorID)
	if _, exists := s.snapshots[key]; exists {
		return fmt.Errorf("%w: snapshot %s", domain.ErrAlreadyExists, key)
	}
	s.snapshots[key] = snapshot
	return nil
}

func (s *SnapshotStore) GetReference(_ context.Context, subnetID, block int64, actorID string) (*domain.ChainSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[snapshotKey(subnetID, block, actorID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &snapshot, nil
}
