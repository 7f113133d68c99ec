package nitro

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

// Size ceilings for adversarial input. A well-formed attestation envelope is
// a few kilobytes; anything wildly larger is rejected before parsing.
const (
	maxEnvelopeSize  = 1 << 19 // 512 KiB
	maxAuxFieldSize  = 1024    // public_key / user_data / nonce, per the AWS user guide
	maxPCRCount      = 32
	maxPCRSize       = 64
	maxCABundleCerts = 16
	maxCertSize      = 8192
)

// coseSign1Alg is the ECDSA-with-SHA-384 COSE algorithm identifier (ES384),
// the only algorithm the Nitro hypervisor emits.
const coseSign1Alg = -35

var decMode cbor.DecMode

func init() {
	mode, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = mode
}

// coseSign1 is the signed envelope: [protected, unprotected, payload, signature].
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

type protectedHeader struct {
	Alg int64 `cbor:"1,keyasint"`
}

// rawDocument mirrors the attestation document layout from the AWS Nitro
// Enclaves user guide.
type rawDocument struct {
	ModuleID    string        `cbor:"module_id"`
	Digest      string        `cbor:"digest"`
	Timestamp   uint64        `cbor:"timestamp"`
	PCRs        map[uint][]byte `cbor:"pcrs"`
	Certificate []byte        `cbor:"certificate"`
	CABundle    [][]byte      `cbor:"cabundle"`
	PublicKey   []byte        `cbor:"public_key"`
	UserData    []byte        `cbor:"user_data"`
	Nonce       []byte        `cbor:"nonce"`
}

// Envelope is a parsed but not yet verified attestation envelope.
type Envelope struct {
	Protected []byte
	Payload   []byte
	Signature []byte
	Doc       rawDocument
}

// ParseEnvelope decodes the COSE_Sign1 structure and the attestation
// document inside it. All input is adversarial: every failure maps to
// ErrMalformedInput and nothing here may panic on crafted bytes.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty attestation envelope", domain.ErrMalformedInput)
	}
	if len(raw) > maxEnvelopeSize {
		return nil, fmt.Errorf("%w: attestation envelope exceeds %d bytes", domain.ErrMalformedInput, maxEnvelopeSize)
	}

	body := raw
	// The hypervisor emits the envelope untagged, but tag 18 (COSE_Sign1)
	// wrappers show up in the wild; accept both.
	var tagged cbor.RawTag
	if err := decMode.Unmarshal(raw, &tagged); err == nil && tagged.Number == 18 {
		body = tagged.Content
	}

	var cose coseSign1
	if err := decMode.Unmarshal(body, &cose); err != nil {
		return nil, fmt.Errorf("%w: not a COSE_Sign1 structure: %v", domain.ErrMalformedInput, err)
	}
	if len(cose.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty COSE payload", domain.ErrMalformedInput)
	}
	if len(cose.Signature) == 0 {
		return nil, fmt.Errorf("%w: empty COSE signature", domain.ErrMalformedInput)
	}

	var hdr protectedHeader
	if err := decMode.Unmarshal(cose.Protected, &hdr); err != nil {
		return nil, fmt.Errorf("%w: bad protected header: %v", domain.ErrMalformedInput, err)
	}
	if hdr.Alg != coseSign1Alg {
		return nil, fmt.Errorf("%w: unexpected COSE algorithm %d", domain.ErrMalformedInput, hdr.Alg)
	}

	var doc rawDocument
	if err := decMode.Unmarshal(cose.Payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: bad attestation document: %v", domain.ErrMalformedInput, err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	return &Envelope{
		Protected: cose.Protected,
		Payload:   cose.Payload,
		Signature: cose.Signature,
		Doc:       doc,
	}, nil
}

func validateDocument(doc rawDocument) error {
	if doc.ModuleID == "" {
		return fmt.Errorf("%w: missing module_id", domain.ErrMalformedInput)
	}
	if doc.Digest != "SHA384" {
		return fmt.Errorf("%w: unsupported digest %q", domain.ErrMalformedInput, doc.Digest)
	}
	if doc.Timestamp == 0 {
		return fmt.Errorf("%w: missing timestamp", domain.ErrMalformedInput)
	}
	if len(doc.PCRs) == 0 || len(doc.PCRs) > maxPCRCount {
		return fmt.Errorf("%w: %d PCR entries", domain.ErrMalformedInput, len(doc.PCRs))
	}
	for idx, pcr := range doc.PCRs {
		if len(pcr) == 0 || len(pcr) > maxPCRSize {
			return fmt.Errorf("%w: PCR%d has %d bytes", domain.ErrMalformedInput, idx, len(pcr))
		}
	}
	if _, ok := doc.PCRs[0]; !ok {
		return fmt.Errorf("%w: missing PCR0", domain.ErrMalformedInput)
	}
	if len(doc.Certificate) == 0 || len(doc.Certificate) > maxCertSize {
		return fmt.Errorf("%w: leaf certificate has %d bytes", domain.ErrMalformedInput, len(doc.Certificate))
	}
	if len(doc.CABundle) > maxCABundleCerts {
		return fmt.Errorf("%w: cabundle has %d certificates", domain.ErrMalformedInput, len(doc.CABundle))
	}
	for i, cert := range doc.CABundle {
		if len(cert) == 0 || len(cert) > maxCertSize {
			return fmt.Errorf("%w: cabundle[%d] has %d bytes", domain.ErrMalformedInput, i, len(cert))
		}
	}
	for name, field := range map[string][]byte{
		"public_key": doc.PublicKey,
		"user_data":  doc.UserData,
		"nonce":      doc.Nonce,
	} {
		if len(field) > maxAuxFieldSize {
			return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrMalformedInput, name, maxAuxFieldSize)
		}
	}
	return nil
}

// sigStructure builds the COSE Sig_structure the envelope signature covers:
// ["Signature1", protected, external_aad, payload].
func sigStructure(protected, payload []byte) ([]byte, error) {
	return cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
}
