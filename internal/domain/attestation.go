package domain

import "time"

// AttestationDocument is the verified contents of a hardware attestation
// envelope. It only exists after the envelope signature, certificate chain
// and measurement policy have all been checked.
type AttestationDocument struct {
	ModuleID  string         `json:"module_id"`
	Timestamp time.Time      `json:"timestamp"`
	Digest    string         `json:"digest"`
	PCRs      map[int]string `json:"pcrs"`
	PublicKey []byte         `json:"public_key,omitempty"`
	UserData  []byte         `json:"user_data,omitempty"`
	Nonce     []byte         `json:"nonce,omitempty"`
	DebugMode bool           `json:"debug_mode"`
}

// CodeIdentity returns the hex PCR0 measurement, the root of trust for the
// enclave's code. user_data claims are informational until PCR0 is checked.
func (d AttestationDocument) CodeIdentity() string {
	return d.PCRs[0]
}

// AttestationPolicy controls which documents a consumer accepts.
type AttestationPolicy struct {
	// RequireProduction rejects debug-mode documents (all-zero PCR0).
	RequireProduction bool
	// Role selects the measurement allowlist ("gateway" or "validator").
	Role string
	// AllowedPCR0 is the static measurement allowlist, consulted when no
	// policy engine is configured. Empty means any non-debug measurement.
	AllowedPCR0 []string
}

// VerificationResult is the cacheable outcome of a successful envelope
// verification, keyed by the envelope digest.
type VerificationResult struct {
	EnvelopeDigest string              `json:"envelope_digest"`
	Document       AttestationDocument `json:"document"`
	VerifiedAt     time.Time           `json:"verified_at"`
}
