package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

// Signer holds the enclave-resident ed25519 keypair. Signatures are always
// over raw 32-byte SHA-256 digests, never over hex strings.
type Signer struct {
	priv   ed25519.PrivateKey
	pubHex string
}

func NewSigner(priv ed25519.PrivateKey) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{priv: priv, pubHex: hex.EncodeToString(pub)}, nil
}

func NewSignerFromSeedHex(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid signing seed length: %d", len(seed))
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed))
}

// GenerateSigner mints an ephemeral keypair. Inside the enclave this runs
// once per boot session; the key never leaves the process.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewSigner(priv)
}

func (s *Signer) PublicKeyHex() string {
	return s.pubHex
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// SignHashHex signs a hex-encoded 32-byte digest and returns the hex
// signature.
func (s *Signer) SignHashHex(hashHex string) (string, error) {
	digest, err := decodeDigest(hashHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, digest)), nil
}

// VerifyHashSignature checks an ed25519 signature over a hex digest. All
// three arguments come from untrusted input.
func VerifyHashSignature(pubKeyHex, hashHex, signatureHex string) error {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key", domain.ErrSignatureInvalid)
	}
	digest, err := decodeDigest(hashHex)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: bad signature encoding", domain.ErrSignatureInvalid)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

func decodeDigest(hashHex string) ([]byte, error) {
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, errors.New("digest is not hex")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest length %d, want 32", len(digest))
	}
	return digest, nil
}
