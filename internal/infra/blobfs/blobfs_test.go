package blobfs

import (
	"context"
	"errors"
	"testing"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

func testCheckpoint(txID string, entryCount int64) domain.Checkpoint {
	return domain.Checkpoint{
		TxID: txID,
		Header: domain.CheckpointHeader{
			MerkleRoot: "aa11",
			EntryCount: entryCount,
			TimeRange:  domain.TimeRange{From: "2026-08-23T10:00:01Z", To: "2026-08-23T10:00:05Z"},
		},
		Entries: []domain.SignedLogEntry{{
			Event: domain.Event{
				EventType:     domain.EventEnclaveRestart,
				Timestamp:     "2026-08-23T10:00:01Z",
				BootID:        "boot-1",
				MonotonicSeq:  1,
				PrevEventHash: domain.ZeroEventHash,
				Payload:       map[string]any{},
			},
			EventHash: "bb22",
		}},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cp := testCheckpoint("tx-1", 1)
	if err := store.Put(ctx, cp); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "tx-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Header.MerkleRoot != cp.Header.MerkleRoot || len(got.Entries) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Entries[0].Event.Payload == nil {
		t.Fatal("payload must decode to an empty map, not nil")
	}
}

func TestPutIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cp := testCheckpoint("tx-1", 1)
	if err := store.Put(ctx, cp); err != nil {
		t.Fatal(err)
	}
	// Identical bytes: the deterministic rebuild case, absorbed silently.
	if err := store.Put(ctx, cp); err != nil {
		t.Fatalf("identical re-put: %v", err)
	}
	// Different bytes under the same id must never win.
	altered := testCheckpoint("tx-1", 2)
	if err := store.Put(ctx, altered); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("conflicting re-put: got %v", err)
	}
	got, err := store.Get(ctx, "tx-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Header.EntryCount != 1 {
		t.Fatal("original blob was overwritten")
	}
}

func TestGetUnknownBlob(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(context.Background(), "tx-unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestRejectsUnsafeBlobIDs(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", "../escape", "a/b", `a\b`, "dotted.name"} {
		if err := store.Put(ctx, testCheckpoint(id, 1)); !errors.Is(err, domain.ErrMalformedInput) {
			t.Errorf("put %q: got %v", id, err)
		}
		if _, err := store.Get(ctx, id); !errors.Is(err, domain.ErrMalformedInput) {
			t.Errorf("get %q: got %v", id, err)
		}
	}
}
