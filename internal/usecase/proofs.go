package usecase

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/merkle"
)

// ProofService produces inclusion proofs from sealed checkpoints.
type ProofService struct {
	entries LogEntryRepository
	blobs   CheckpointStore
}

func NewProofService(entries LogEntryRepository, blobs CheckpointStore) *ProofService {
	return &ProofService{entries: entries, blobs: blobs}
}

// Prove builds an inclusion proof for the entry with the given event hash.
// The entry must already be covered by a sealed checkpoint.
func (p *ProofService) Prove(ctx context.Context, eventHash string) (*domain.InclusionProof, *domain.CheckpointHeader, error) {
	entry, err := p.entries.GetByEventHash(ctx, eventHash)
	if err != nil {
		return nil, nil, err
	}
	if entry.CheckpointTxID == nil || *entry.CheckpointTxID == "" {
		return nil, nil, fmt.Errorf("%w: entry is not checkpointed yet", domain.ErrNotFound)
	}
	cp, err := p.blobs.Get(ctx, *entry.CheckpointTxID)
	if err != nil {
		return nil, nil, err
	}

	leaves := make([][]byte, 0, len(cp.Entries))
	leafIndex := -1
	for i, e := range cp.Entries {
		leaf, err := entryLeaf(e)
		if err != nil {
			return nil, nil, err
		}
		leaves = append(leaves, leaf)
		if e.EventHash == eventHash {
			leafIndex = i
		}
	}
	if leafIndex < 0 {
		return nil, nil, fmt.Errorf("%w: entry missing from its checkpoint blob", domain.ErrMerkleMismatch)
	}

	steps, err := merkle.InclusionProof(leaves, leafIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("proof: %w", err)
	}
	path := make([]domain.ProofNode, len(steps))
	for i, step := range steps {
		path[i] = domain.ProofNode{Hash: hex.EncodeToString(step.Sibling), Left: step.Left}
	}
	proof := &domain.InclusionProof{
		EventHash:      eventHash,
		LeafIndex:      int64(leafIndex),
		TreeSize:       int64(len(leaves)),
		Path:           path,
		CheckpointTxID: cp.TxID,
	}
	return proof, &cp.Header, nil
}

// InclusionVerifier checks a claimed (entry, proof, checkpoint header)
// triple offline. It recomputes everything from first principles and
// reports the first failing step, so callers can tell a substituted payload
// from a forged tree from a bad checkpoint signature.
type InclusionVerifier struct {
	svc *crypto.Service
}

func NewInclusionVerifier(svc *crypto.Service) *InclusionVerifier {
	return &InclusionVerifier{svc: svc}
}

// Verify checks the entry against the proof and header. attestedPubKeyHex,
// when non-empty, is the enclave key established by attestation; both the
// entry and the checkpoint header must verify under it. It returns a
// human-readable reason on failure and "" on success.
func (v *InclusionVerifier) Verify(entry domain.SignedLogEntry, proof domain.InclusionProof, header domain.CheckpointHeader, attestedPubKeyHex string) (bool, string) {
	computed, err := v.svc.EventHash(entry.Event)
	if err != nil {
		return false, "entry cannot be canonically encoded"
	}
	if computed != entry.EventHash || computed != proof.EventHash {
		return false, "event hash does not match entry content"
	}

	if attestedPubKeyHex != "" && entry.SignerPubKey != attestedPubKeyHex {
		return false, "entry signer does not match attested enclave key"
	}
	if err := crypto.VerifyHashSignature(entry.SignerPubKey, entry.EventHash, entry.Signature); err != nil {
		return false, "entry signature invalid"
	}

	eventHash, err := hex.DecodeString(entry.EventHash)
	if err != nil {
		return false, "event hash is not hex"
	}
	sig, err := hex.DecodeString(entry.Signature)
	if err != nil {
		return false, "signature is not hex"
	}
	root, err := hex.DecodeString(header.MerkleRoot)
	if err != nil {
		return false, "checkpoint root is not hex"
	}
	steps := make([]merkle.ProofStep, len(proof.Path))
	for i, node := range proof.Path {
		sibling, err := hex.DecodeString(node.Hash)
		if err != nil {
			return false, "proof path is not hex"
		}
		steps[i] = merkle.ProofStep{Sibling: sibling, Left: node.Left}
	}
	ok, err := merkle.VerifyInclusionProof(merkle.LeafHash(eventHash, sig), int(proof.LeafIndex), int(proof.TreeSize), steps, root)
	if err != nil {
		return false, "proof is malformed"
	}
	if !ok {
		return false, "proof does not reproduce checkpoint root"
	}
	if proof.TreeSize != header.EntryCount {
		return false, "proof tree size disagrees with checkpoint"
	}

	headerHash, err := v.svc.CheckpointHeaderHash(header)
	if err != nil {
		return false, "checkpoint header cannot be canonically encoded"
	}
	headerKey := attestedPubKeyHex
	if headerKey == "" {
		headerKey = entry.SignerPubKey
	}
	if err := crypto.VerifyHashSignature(headerKey, headerHash, header.Signature); err != nil {
		return false, "checkpoint signature invalid"
	}
	return true, ""
}
