package domain

import "time"

// ZeroEventHash is the prev_event_hash sentinel for the first event of a
// boot session.
const ZeroEventHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CanonicalTimeFormat is the only timestamp layout that may appear inside
// signed bytes: RFC3339 UTC truncated to whole seconds.
const CanonicalTimeFormat = "2006-01-02T15:04:05Z"

type EventType string

const (
	EventEnclaveRestart   EventType = "ENCLAVE_RESTART"
	EventWeightSubmission EventType = "WEIGHT_SUBMISSION"
	EventEpochAudit       EventType = "EPOCH_AUDIT"
	EventCheckpointSealed EventType = "CHECKPOINT_SEALED"
)

// Event is the signed portion of a log entry. Field names are part of the
// wire contract: the canonical encoding of this structure is what gets
// hashed, so they must stay byte-compatible with every deployed verifier.
type Event struct {
	EventType     EventType      `json:"event_type"`
	Timestamp     string         `json:"timestamp"`
	BootID        string         `json:"boot_id"`
	MonotonicSeq  int64          `json:"monotonic_seq"`
	PrevEventHash string         `json:"prev_event_hash"`
	Payload       map[string]any `json:"payload"`
}

// SignedLogEntry is created exactly once by the sequencer at append time and
// immutable thereafter. EventHash is the hex SHA-256 of the canonical
// encoding of Event; Signature is ed25519 over the raw 32 hash bytes.
type SignedLogEntry struct {
	Event        Event  `json:"signed_event"`
	EventHash    string `json:"event_hash"`
	SignerPubKey string `json:"enclave_pubkey"`
	Signature    string `json:"enclave_signature"`

	// Persistence-side annotations; never part of the signed bytes.
	SubnetID       *int64  `json:"subnet_id,omitempty"`
	EpochID        *int64  `json:"epoch_id,omitempty"`
	ActorID        *string `json:"actor_id,omitempty"`
	CheckpointTxID *string `json:"checkpoint_tx_id,omitempty"`
}

// CanonicalTimestamp formats t the way signed events require.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(CanonicalTimeFormat)
}
