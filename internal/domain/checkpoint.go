package domain

// CheckpointHeader commits to a closed range of log entries. The header is
// signed over its canonical encoding with the signature field empty; the
// time range is informational only and must never drive ordering.
type CheckpointHeader struct {
	MerkleRoot   string    `json:"merkle_root"`
	EntryCount   int64     `json:"entry_count"`
	TimeRange    TimeRange `json:"time_range"`
	CodeIdentity string    `json:"code_identity"`
	Signature    string    `json:"signature,omitempty"`
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Checkpoint is the exported blob: the signed header plus the covered
// entries in log order. TxID is the opaque write-once store address.
type Checkpoint struct {
	TxID    string           `json:"tx_id"`
	Header  CheckpointHeader `json:"header"`
	Entries []SignedLogEntry `json:"entries"`
}

// ProofNode is one sibling on an inclusion path. Left reports whether the
// sibling sits on the left of the running hash. Explicit indicators are
// required because odd-leaf promotion makes proof shape index-dependent.
type ProofNode struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

type InclusionProof struct {
	EventHash      string      `json:"event_hash"`
	LeafIndex      int64       `json:"leaf_index"`
	TreeSize       int64       `json:"tree_size"`
	Path           []ProofNode `json:"path"`
	CheckpointTxID string      `json:"checkpoint_tx_id,omitempty"`
}
