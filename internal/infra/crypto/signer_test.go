package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

func TestSignAndVerifyHash(t *testing.T) {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	hash := SHA256Hex([]byte("payload"))

	sig, err := signer.SignHashHex(hash)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyHashSignature(signer.PublicKeyHex(), hash, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	hash := SHA256Hex([]byte("payload"))
	sig, err := signer.SignHashHex(hash)
	if err != nil {
		t.Fatal(err)
	}

	otherHash := SHA256Hex([]byte("other payload"))
	if err := VerifyHashSignature(signer.PublicKeyHex(), otherHash, sig); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("tampered hash: got %v", err)
	}

	flipped := flipHexNibble(sig)
	if err := VerifyHashSignature(signer.PublicKeyHex(), hash, flipped); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("tampered signature: got %v", err)
	}

	other, err := GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyHashSignature(other.PublicKeyHex(), hash, sig); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("wrong key: got %v", err)
	}
}

func TestVerifyRejectsMalformedArguments(t *testing.T) {
	signer, err := GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	hash := SHA256Hex([]byte("payload"))
	sig, err := signer.SignHashHex(hash)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct{ pub, hash, sig string }{
		{"zz", hash, sig},
		{signer.PublicKeyHex()[:10], hash, sig},
		{signer.PublicKeyHex(), "abcd", sig},
		{signer.PublicKeyHex(), hash, "not-hex"},
		{signer.PublicKeyHex(), hash, sig[:20]},
	}
	for i, tc := range cases {
		if err := VerifyHashSignature(tc.pub, tc.hash, tc.sig); !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Errorf("case %d: got %v", i, err)
		}
	}
}

func TestSignerFromSeedIsDeterministic(t *testing.T) {
	seed := strings.Repeat("ab", 32)
	a, err := NewSignerFromSeedHex(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewSignerFromSeedHex(seed)
	if err != nil {
		t.Fatal(err)
	}
	if a.PublicKeyHex() != b.PublicKeyHex() {
		t.Fatal("same seed must derive the same key")
	}

	hash := SHA256Hex([]byte("payload"))
	sigA, err := a.SignHashHex(hash)
	if err != nil {
		t.Fatal(err)
	}
	sigB, err := b.SignHashHex(hash)
	if err != nil {
		t.Fatal(err)
	}
	if sigA != sigB {
		t.Fatal("ed25519 signatures must be deterministic")
	}
}

func flipHexNibble(s string) string {
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}
