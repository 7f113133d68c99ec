package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

// ErrSequencerClosed is returned by Append after Close.
var ErrSequencerClosed = errors.New("sequencer: closed")

// Sequencer is the single writer of the append-only log for one boot
// session. All appends serialize through it; there is never more than one
// live Sequencer per process, and a restart mints a fresh boot session
// rather than resuming the old one.
type Sequencer struct {
	repo   LogEntryRepository
	signer EntrySigner
	svc    *crypto.Service
	clock  func() time.Time

	mu       sync.Mutex
	bootID   string
	lastSeq  int64
	lastHash string
	closed   bool
}

// AppendRequest carries one event plus optional index annotations that let
// readers find the entry without replaying the chain.
type AppendRequest struct {
	EventType domain.EventType
	Payload   map[string]any

	SubnetID *int64
	EpochID  *int64
	ActorID  *string
}

// OpenSequencer starts a new boot session. The first entry of every session
// is an ENCLAVE_RESTART event whose payload records the event hash the
// previous session left off at, or the zero sentinel for a cold start. The
// session's own chain always starts from the zero sentinel at sequence 1.
func OpenSequencer(ctx context.Context, repo LogEntryRepository, signer EntrySigner, svc *crypto.Service, clock func() time.Time) (*Sequencer, error) {
	if clock == nil {
		clock = time.Now
	}
	s := &Sequencer{
		repo:     repo,
		signer:   signer,
		svc:      svc,
		clock:    clock,
		bootID:   newBootID(),
		lastSeq:  0,
		lastHash: domain.ZeroEventHash,
	}

	resumedFrom := domain.ZeroEventHash
	prev, err := repo.LatestEntry(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("sequencer: probe previous tip: %w", err)
	}
	if prev != nil {
		resumedFrom = prev.EventHash
	}

	if _, err := s.Append(ctx, AppendRequest{
		EventType: domain.EventEnclaveRestart,
		Payload: map[string]any{
			"boot_id":      s.bootID,
			"resumed_from": resumedFrom,
		},
	}); err != nil {
		return nil, fmt.Errorf("sequencer: restart event: %w", err)
	}
	return s, nil
}

// BootID returns the session identifier.
func (s *Sequencer) BootID() string {
	return s.bootID
}

// PublicKeyHex returns the enclave signing key entries verify under.
func (s *Sequencer) PublicKeyHex() string {
	return s.signer.PublicKeyHex()
}

// Append builds, signs, and durably persists one log entry. The append is
// all-or-nothing: on any failure the in-memory chain state does not advance
// and the entry is not observable.
func (s *Sequencer) Append(ctx context.Context, req AppendRequest) (domain.SignedLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.SignedLogEntry{}, ErrSequencerClosed
	}
	if req.EventType == "" {
		return domain.SignedLogEntry{}, fmt.Errorf("%w: empty event type", domain.ErrMalformedInput)
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	ev := domain.Event{
		EventType:     req.EventType,
		Timestamp:     domain.CanonicalTimestamp(s.clock()),
		BootID:        s.bootID,
		MonotonicSeq:  s.lastSeq + 1,
		PrevEventHash: s.lastHash,
		Payload:       req.Payload,
	}
	eventHash, err := s.svc.EventHash(ev)
	if err != nil {
		return domain.SignedLogEntry{}, fmt.Errorf("sequencer: hash event: %w", err)
	}
	sig, err := s.signer.SignHashHex(eventHash)
	if err != nil {
		return domain.SignedLogEntry{}, fmt.Errorf("sequencer: sign event: %w", err)
	}

	entry := domain.SignedLogEntry{
		Event:        ev,
		EventHash:    eventHash,
		SignerPubKey: s.signer.PublicKeyHex(),
		Signature:    sig,
		SubnetID:     req.SubnetID,
		EpochID:      req.EpochID,
		ActorID:      req.ActorID,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return domain.SignedLogEntry{}, fmt.Errorf("sequencer: persist entry: %w", err)
	}

	s.lastSeq = ev.MonotonicSeq
	s.lastHash = eventHash
	return entry, nil
}

// Watermark reports the boot session and the highest sequence number whose
// entry is durably persisted. Everything at or below it is safe to
// checkpoint.
func (s *Sequencer) Watermark() (string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootID, s.lastSeq
}

// Close stops the sequencer. Subsequent appends fail; the next process boot
// opens a fresh session.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// newBootID mints a random v4 UUID.
func newBootID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("sequencer: rand unavailable")
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	dst := make([]byte, 32)
	hex.Encode(dst, b[:])
	return string(dst[:8]) + "-" + string(dst[8:12]) + "-" + string(dst[12:16]) + "-" + string(dst[16:20]) + "-" + string(dst[20:])
}
