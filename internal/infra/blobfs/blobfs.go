// Package blobfs is a write-once checkpoint blob store on the local
// filesystem. Blobs are JSON files addressed by tx id;
// once a blob exists it can never be replaced by different bytes.
package blobfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("blobfs: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobfs: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Put writes one checkpoint blob. Re-putting identical bytes is a no-op, so
// a deterministic rebuild of a closed range is absorbed silently; different
// bytes under the same id fail.
func (s *Store) Put(_ context.Context, cp domain.Checkpoint) error {
	path, err := s.path(cp.TxID)
	if err != nil {
		return err
	}
	blob, err := encodeBlob(cp)
	if err != nil {
		return err
	}

	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(existing, blob) {
			return nil
		}
		return fmt.Errorf("%w: blob %s with different contents", domain.ErrAlreadyExists, cp.TxID)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("blobfs: read %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("blobfs: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("blobfs: commit %s: %w", path, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, txID string) (*domain.Checkpoint, error) {
	path, err := s.path(txID)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, txID)
	}
	if err != nil {
		return nil, fmt.Errorf("blobfs: read %s: %w", path, err)
	}
	var cp domain.Checkpoint
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	if err := dec.Decode(&cp); err != nil {
		return nil, fmt.Errorf("blobfs: decode %s: %w", txID, err)
	}
	restorePayloads(&cp)
	return &cp, nil
}

func (s *Store) path(txID string) (string, error) {
	if txID == "" || strings.ContainsAny(txID, "/\\.") {
		return "", fmt.Errorf("%w: blob id %q", domain.ErrMalformedInput, txID)
	}
	return filepath.Join(s.dir, txID+".json"), nil
}

func encodeBlob(cp domain.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		return nil, fmt.Errorf("blobfs: encode %s: %w", cp.TxID, err)
	}
	return buf.Bytes(), nil
}

// restorePayloads normalizes decoded payload numbers to json.Number form so
// recomputed event hashes match the originals.
func restorePayloads(cp *domain.Checkpoint) {
	for i := range cp.Entries {
		if cp.Entries[i].Event.Payload == nil {
			cp.Entries[i].Event.Payload = map[string]any{}
		}
	}
}
