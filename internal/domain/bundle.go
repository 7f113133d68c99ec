package domain

import "time"

// MaxWeight is the upper bound of the u16 weight representation.
const MaxWeight = 65535

// WeightBundle is a validator's signed weight submission for one epoch.
// Exactly one bundle may exist per (subnet_id, epoch_id, actor_id).
type WeightBundle struct {
	SubnetID int64   `json:"subnet_id"`
	EpochID  int64   `json:"epoch_id"`
	Block    int64   `json:"block"`
	UIDs     []int64 `json:"uids"`
	Weights  []int64 `json:"weights"`

	WeightsHash    string `json:"weights_hash"`
	ActorID        string `json:"actor_id"`
	ActorPubKey    string `json:"actor_pubkey"`
	ActorSignature string `json:"actor_signature"`

	Attestation string `json:"attestation,omitempty"`
	CodeHash    string `json:"code_hash,omitempty"`

	SnapshotBlock         int64  `json:"snapshot_block"`
	SnapshotReferenceHash string `json:"snapshot_reference_hash"`
	SubmissionEventHash   string `json:"submission_event_hash"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// WeightPair is the sparse (uid, weight) representation used by the
// canonical weight hashes: sorted ascending by uid, zero weights excluded.
type WeightPair struct {
	UID    int64
	Weight int64
}

// Pairs returns the bundle's uids/weights zipped into pairs, in stored order.
func (b WeightBundle) Pairs() []WeightPair {
	pairs := make([]WeightPair, 0, len(b.UIDs))
	for i, uid := range b.UIDs {
		if i >= len(b.Weights) {
			break
		}
		pairs = append(pairs, WeightPair{UID: uid, Weight: b.Weights[i]})
	}
	return pairs
}

type AuditStatus string

const (
	AuditPending              AuditStatus = "PENDING"
	AuditVerified             AuditStatus = "VERIFIED"
	AuditEquivocationDetected AuditStatus = "EQUIVOCATION_DETECTED"
	AuditAuditorMismatch      AuditStatus = "AUDITOR_MISMATCH"
	AuditNoTEEBundle          AuditStatus = "NO_TEE_BUNDLE"
)

// Terminal reports whether the status ends the epoch's audit state machine.
func (s AuditStatus) Terminal() bool {
	switch s {
	case AuditVerified, AuditEquivocationDetected, AuditAuditorMismatch, AuditNoTEEBundle:
		return true
	}
	return false
}

// EpochAuditResult is written once per (subnet_id, epoch_id) and immutable
// afterwards.
type EpochAuditResult struct {
	SubnetID  int64       `json:"subnet_id"`
	EpochID   int64       `json:"epoch_id"`
	Status    AuditStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// ChainSnapshot is the independently observed reference state at a block:
// the aggregate weight state the auditor compares bundles against.
type ChainSnapshot struct {
	SubnetID      int64        `json:"subnet_id"`
	EpochID       int64        `json:"epoch_id"`
	Block         int64        `json:"block"`
	ActorID       string       `json:"actor_id"`
	Pairs         []WeightPair `json:"pairs"`
	ReferenceHash string       `json:"reference_hash"`
	CapturedAt    time.Time    `json:"captured_at,omitempty"`
}
