package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

const HashSize = 32

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidSize    = errors.New("invalid tree size")
	ErrMalformedProof = errors.New("malformed inclusion proof")
)

// ProofStep is one sibling on an inclusion path. Left reports whether the
// sibling is the left operand of the parent hash.
type ProofStep struct {
	Sibling []byte
	Left    bool
}

// LeafHash commits to one log entry: SHA-256 over the raw event hash bytes
// concatenated with the raw signature bytes.
func LeafHash(eventHash, signature []byte) []byte {
	hasher := sha256.New()
	hasher.Write(eventHash)
	hasher.Write(signature)
	return hasher.Sum(nil)
}

func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// Root builds the tree bottom-up. Adjacent nodes pair left-to-right; an odd
// trailing node is promoted unchanged to the next level, never duplicated.
// The promotion rule is a wire contract: it decides proof shape, so every
// verifier must apply exactly this rule.
func Root(leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// InclusionProof returns the sibling path for one leaf. Promoted nodes
// contribute no step, so path length varies with the leaf's position.
func InclusionProof(leaves [][]byte, leafIndex int) ([]ProofStep, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}

	path := make([]ProofStep, 0)
	idx := leafIndex
	for len(level) > 1 {
		if promoted(idx, len(level)) {
			idx = len(level) / 2
		} else {
			sibling := idx ^ 1
			path = append(path, ProofStep{
				Sibling: cloneHash(level[sibling]),
				Left:    sibling < idx,
			})
			idx /= 2
		}
		level = nextLevel(level)
	}
	return path, nil
}

// VerifyInclusionProof folds the leaf hash with each sibling in order and
// compares the result to the expected root. The tree size determines where
// promotions happen, so the verifier can also reject paths whose shape or
// side indicators do not match the claimed position.
func VerifyInclusionProof(leafHash []byte, leafIndex, treeSize int, path []ProofStep, expectedRoot []byte) (bool, error) {
	if treeSize <= 0 {
		return false, ErrInvalidSize
	}
	if leafIndex < 0 || leafIndex >= treeSize {
		return false, ErrInvalidIndex
	}
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(expectedRoot); err != nil {
		return false, err
	}
	for _, step := range path {
		if err := validateHash(step.Sibling); err != nil {
			return false, err
		}
	}

	hash := cloneHash(leafHash)
	idx := leafIndex
	size := treeSize
	used := 0
	for size > 1 {
		if promoted(idx, size) {
			idx = size / 2
		} else {
			if used >= len(path) {
				return false, ErrMalformedProof
			}
			step := path[used]
			wantLeft := idx%2 == 1
			if step.Left != wantLeft {
				return false, ErrMalformedProof
			}
			if step.Left {
				hash = NodeHash(step.Sibling, hash)
			} else {
				hash = NodeHash(hash, step.Sibling)
			}
			used++
			idx /= 2
		}
		size = size/2 + size%2
	}
	if used != len(path) {
		return false, ErrMalformedProof
	}
	return bytes.Equal(hash, expectedRoot), nil
}

// promoted reports whether the node at idx is the odd trailing node of a
// level of the given size.
func promoted(idx, size int) bool {
	return size%2 == 1 && idx == size-1
}

func nextLevel(level [][]byte) [][]byte {
	next := make([][]byte, 0, len(level)/2+len(level)%2)
	for i := 0; i+1 < len(level); i += 2 {
		next = append(next, NodeHash(level[i], level[i+1]))
	}
	if len(level)%2 == 1 {
		next = append(next, level[len(level)-1])
	}
	return next
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
