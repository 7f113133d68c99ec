package usecase

import (
	"errors"
	"sync"
	"testing"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

func TestOpenSequencerColdStart(t *testing.T) {
	f := newFixture(t)

	entries, err := f.entries.ListByBoot(f.ctx, f.seq.BootID(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want the restart event only", len(entries))
	}
	first := entries[0]
	if first.Event.EventType != domain.EventEnclaveRestart {
		t.Fatalf("first event type = %s", first.Event.EventType)
	}
	if first.Event.MonotonicSeq != 1 {
		t.Fatalf("first seq = %d", first.Event.MonotonicSeq)
	}
	if first.Event.PrevEventHash != domain.ZeroEventHash {
		t.Fatalf("first prev hash = %s", first.Event.PrevEventHash)
	}
	if first.Event.Payload["resumed_from"] != domain.ZeroEventHash {
		t.Fatalf("cold start resumed_from = %v", first.Event.Payload["resumed_from"])
	}
	if first.Event.Payload["boot_id"] != f.seq.BootID() {
		t.Fatalf("restart boot_id = %v", first.Event.Payload["boot_id"])
	}
	if first.SignerPubKey != f.seq.PublicKeyHex() {
		t.Fatal("restart entry signed under the wrong key")
	}
}

func TestAppendBuildsVerifiableChain(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < 3; i++ {
		f.append(domain.EventWeightSubmission, map[string]any{"n": i})
	}

	n, err := NewChainVerifier(f.entries, f.svc).VerifyBoot(f.ctx, f.seq.BootID())
	if err != nil {
		t.Fatalf("verify boot: %v", err)
	}
	if n != 4 {
		t.Fatalf("verified %d entries, want 4", n)
	}
	if _, seq := f.seq.Watermark(); seq != 4 {
		t.Fatalf("watermark = %d, want 4", seq)
	}
}

func TestRestartResumesFromPreviousTip(t *testing.T) {
	f := newFixture(t)
	tip := f.append(domain.EventWeightSubmission, map[string]any{"n": int64(1)}).EventHash

	second, err := OpenSequencer(f.ctx, f.entries, f.signer, f.svc, f.clock)
	if err != nil {
		t.Fatal(err)
	}
	if second.BootID() == f.seq.BootID() {
		t.Fatal("restart must mint a fresh boot session")
	}

	entries, err := f.entries.ListByBoot(f.ctx, second.BootID(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("new boot has %d entries", len(entries))
	}
	restart := entries[0]
	if restart.Event.Payload["resumed_from"] != tip {
		t.Fatalf("resumed_from = %v, want previous tip %s", restart.Event.Payload["resumed_from"], tip)
	}
	// The new session's own chain still starts from the zero sentinel.
	if restart.Event.PrevEventHash != domain.ZeroEventHash {
		t.Fatalf("new boot prev hash = %s", restart.Event.PrevEventHash)
	}
	if _, err := NewChainVerifier(f.entries, f.svc).VerifyBoot(f.ctx, second.BootID()); err != nil {
		t.Fatalf("new boot chain: %v", err)
	}
}

func TestAppendRejectsEmptyEventType(t *testing.T) {
	f := newFixture(t)
	_, err := f.seq.Append(f.ctx, AppendRequest{Payload: map[string]any{}})
	if !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("got %v, want malformed input", err)
	}
}

func TestCloseRejectsFurtherAppends(t *testing.T) {
	f := newFixture(t)
	f.seq.Close()
	_, err := f.seq.Append(f.ctx, AppendRequest{EventType: domain.EventWeightSubmission})
	if !errors.Is(err, ErrSequencerClosed) {
		t.Fatalf("got %v, want closed", err)
	}
}

func TestConcurrentAppendsStayLinear(t *testing.T) {
	f := newFixture(t)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			if _, err := f.seq.Append(f.ctx, AppendRequest{
				EventType: domain.EventWeightSubmission,
				Payload:   map[string]any{"n": n},
			}); err != nil {
				t.Errorf("append %d: %v", n, err)
			}
		}(int64(i))
	}
	wg.Wait()

	n, err := NewChainVerifier(f.entries, f.svc).VerifyBoot(f.ctx, f.seq.BootID())
	if err != nil {
		t.Fatalf("verify boot: %v", err)
	}
	if n != writers+1 {
		t.Fatalf("verified %d entries, want %d", n, writers+1)
	}
}

func TestVerifyEntriesDetectsTampering(t *testing.T) {
	f := newFixture(t)
	f.append(domain.EventWeightSubmission, map[string]any{"n": int64(1)})
	f.append(domain.EventWeightSubmission, map[string]any{"n": int64(2)})

	entries, err := f.entries.ListByBoot(f.ctx, f.seq.BootID(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Substituted payload: the stored hash no longer matches the content.
	tampered := make([]domain.SignedLogEntry, len(entries))
	copy(tampered, entries)
	ev := tampered[1].Event
	ev.Payload = map[string]any{"n": int64(999)}
	tampered[1].Event = ev
	if err := VerifyEntries(f.svc, tampered); !errors.Is(err, domain.ErrChainBroken) {
		t.Fatalf("payload tamper: got %v", err)
	}

	// Dropped entry: the prev hash of the survivor no longer links.
	dropped := append([]domain.SignedLogEntry{entries[0]}, entries[2:]...)
	if err := VerifyEntries(f.svc, dropped); !errors.Is(err, domain.ErrChainBroken) {
		t.Fatalf("dropped entry: got %v", err)
	}
}
