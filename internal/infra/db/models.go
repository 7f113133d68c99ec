package db

import "time"

type LogEntryModel struct {
	ID             int64  `gorm:"primaryKey"`
	BootID         string `gorm:"type:uuid;uniqueIndex:idx_boot_seq;not null"`
	MonotonicSeq   int64  `gorm:"uniqueIndex:idx_boot_seq;not null"`
	EventType      string `gorm:"index;not null"`
	EventTimestamp string `gorm:"not null"`
	PrevEventHash  string `gorm:"not null"`
	PayloadJSON    []byte `gorm:"type:jsonb;not null"`
	EventHash      string `gorm:"uniqueIndex;not null"`
	SignerPubKey   string `gorm:"not null"`
	Signature      string `gorm:"not null"`

	SubnetID       *int64  `gorm:"index"`
	EpochID        *int64  `gorm:"index"`
	ActorID        *string `gorm:"index"`
	CheckpointTxID *string `gorm:"index"`

	CreatedAt time.Time `gorm:"not null"`
}

func (LogEntryModel) TableName() string { return "log_entries" }

type WeightBundleModel struct {
	ID       int64  `gorm:"primaryKey"`
	SubnetID int64  `gorm:"uniqueIndex:idx_bundle_key;not null"`
	EpochID  int64  `gorm:"uniqueIndex:idx_bundle_key;not null"`
	ActorID  string `gorm:"uniqueIndex:idx_bundle_key;not null"`

	Block       int64  `gorm:"not null"`
	UIDsJSON    []byte `gorm:"type:jsonb;not null"`
	WeightsJSON []byte `gorm:"type:jsonb;not null"`
	WeightsHash string `gorm:"index;not null"`

	ActorPubKey    string `gorm:"not null"`
	ActorSignature string `gorm:"not null"`
	Attestation    string
	CodeHash       string

	SnapshotBlock         int64  `gorm:"not null"`
	SnapshotReferenceHash string `gorm:"not null"`
	SubmissionEventHash   string `gorm:"index;not null"`

	CreatedAt time.Time `gorm:"not null"`
}

func (WeightBundleModel) TableName() string { return "weight_bundles" }

type CheckpointModel struct {
	TxID         string `gorm:"primaryKey"`
	MerkleRoot   string `gorm:"not null"`
	EntryCount   int64  `gorm:"not null"`
	TimeFrom     string `gorm:"not null"`
	TimeTo       string `gorm:"not null"`
	CodeIdentity string `gorm:"not null"`
	Signature    string `gorm:"not null"`

	BootID  string `gorm:"type:uuid;index;not null"`
	FromSeq int64  `gorm:"not null"`
	ToSeq   int64  `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
}

func (CheckpointModel) TableName() string { return "checkpoints" }

type EpochAuditModel struct {
	ID       int64  `gorm:"primaryKey"`
	SubnetID int64  `gorm:"uniqueIndex:idx_epoch_audit;not null"`
	EpochID  int64  `gorm:"uniqueIndex:idx_epoch_audit;not null"`
	Status   string `gorm:"not null"`
	Detail   string

	CreatedAt time.Time `gorm:"not null"`
}

func (EpochAuditModel) TableName() string { return "epoch_audits" }

type ChainSnapshotModel struct {
	ID       int64  `gorm:"primaryKey"`
	SubnetID int64  `gorm:"uniqueIndex:idx_snapshot_key;not null"`
	Block    int64  `gorm:"uniqueIndex:idx_snapshot_key;not null"`
	ActorID  string `gorm:"uniqueIndex:idx_snapshot_key;not null"`
	EpochID  int64  `gorm:"index;not null"`

	PairsJSON     []byte `gorm:"type:jsonb;not null"`
	ReferenceHash string `gorm:"not null"`

	CapturedAt time.Time `gorm:"not null"`
}

func (ChainSnapshotModel) TableName() string { return "chain_snapshots" }
