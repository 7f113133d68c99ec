package nitro

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha512"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

// Verifier validates attestation envelopes against a pinned trusted root.
// It is pure and stateless apart from its configuration; instances are safe
// for concurrent use.
type Verifier struct {
	roots *x509.CertPool
	now   func() time.Time
}

// NewVerifier pins the given DER roots. Passing no roots pins the Amazon
// Nitro Enclaves root.
func NewVerifier(rootsDER [][]byte, now func() time.Time) (*Verifier, error) {
	if len(rootsDER) == 0 {
		rootsDER = [][]byte{AWSNitroRootDER()}
	}
	if now == nil {
		now = time.Now
	}
	pool := x509.NewCertPool()
	for i, der := range rootsDER {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("pinned root %d: %w", i, err)
		}
		pool.AddCert(cert)
	}
	return &Verifier{roots: pool, now: now}, nil
}

// Verify runs the full pipeline on a raw envelope: parse, certificate chain
// to the pinned root, envelope signature, then measurement policy. It
// returns the verified document or a typed failure, and never trusts a
// field before the step that establishes it.
func (v *Verifier) Verify(raw []byte, policy domain.AttestationPolicy) (domain.AttestationDocument, error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return domain.AttestationDocument{}, err
	}

	leaf, err := v.verifyCertChain(env.Doc)
	if err != nil {
		return domain.AttestationDocument{}, err
	}

	if err := verifyEnvelopeSignature(leaf, env); err != nil {
		return domain.AttestationDocument{}, err
	}

	doc := documentFromRaw(env.Doc)
	if policy.RequireProduction && doc.DebugMode {
		return domain.AttestationDocument{}, fmt.Errorf("%w: PCR0 is all zeros", domain.ErrDebugModeRejected)
	}
	return doc, nil
}

func (v *Verifier) verifyCertChain(doc rawDocument) (*x509.Certificate, error) {
	leaf, err := x509.ParseCertificate(doc.Certificate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad leaf certificate: %v", domain.ErrCertChainInvalid, err)
	}
	intermediates := x509.NewCertPool()
	for i, der := range doc.CABundle {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cabundle[%d]: %v", domain.ErrCertChainInvalid, i, err)
		}
		intermediates.AddCert(cert)
	}
	// Roots contains only the pinned certificates, so a successful Verify
	// also proves the chain terminates at a pinned root. Validity windows
	// of every link are checked against the verifier's clock.
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCertChainInvalid, err)
	}
	return leaf, nil
}

func verifyEnvelopeSignature(leaf *x509.Certificate, env *Envelope) error {
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: leaf key is not ECDSA", domain.ErrSignatureInvalid)
	}
	if pub.Curve != elliptic.P384() {
		return fmt.Errorf("%w: leaf key is not P-384", domain.ErrSignatureInvalid)
	}
	// COSE signatures are raw r || s, each coordinate padded to the curve
	// byte length.
	coordLen := 48
	if len(env.Signature) != 2*coordLen {
		return fmt.Errorf("%w: signature length %d", domain.ErrSignatureInvalid, len(env.Signature))
	}
	structure, err := sigStructure(env.Protected, env.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	digest := sha512.Sum384(structure)
	r := new(big.Int).SetBytes(env.Signature[:coordLen])
	s := new(big.Int).SetBytes(env.Signature[coordLen:])
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return fmt.Errorf("%w: envelope signature", domain.ErrSignatureInvalid)
	}
	return nil
}

func documentFromRaw(doc rawDocument) domain.AttestationDocument {
	pcrs := make(map[int]string, len(doc.PCRs))
	for idx, pcr := range doc.PCRs {
		pcrs[int(idx)] = hex.EncodeToString(pcr)
	}
	return domain.AttestationDocument{
		ModuleID:  doc.ModuleID,
		Timestamp: time.UnixMilli(int64(doc.Timestamp)).UTC(),
		Digest:    doc.Digest,
		PCRs:      pcrs,
		PublicKey: doc.PublicKey,
		UserData:  doc.UserData,
		Nonce:     doc.Nonce,
		DebugMode: allZero(doc.PCRs[0]),
	}
}

func allZero(b []byte) bool {
	return len(b) > 0 && bytes.Count(b, []byte{0}) == len(b)
}
