package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/nitro"
)

// AttestationService verifies attestation envelopes and enforces the
// measurement acceptance policy. Successful verifications are cached by
// envelope digest; policy is re-evaluated on cache hits because allowlists
// rotate independently of the envelope.
type AttestationService struct {
	verifier *nitro.Verifier
	policy   MeasurementPolicy
	cache    VerificationCache
	cacheTTL time.Duration

	allowedPCR0 map[string][]string
	clock       func() time.Time
}

func NewAttestationService(verifier *nitro.Verifier, policy MeasurementPolicy, cache VerificationCache, cacheTTL time.Duration, allowedPCR0 map[string][]string, clock func() time.Time) *AttestationService {
	if clock == nil {
		clock = time.Now
	}
	return &AttestationService{
		verifier:    verifier,
		policy:      policy,
		cache:       cache,
		cacheTTL:    cacheTTL,
		allowedPCR0: allowedPCR0,
		clock:       clock,
	}
}

// VerifyEnvelope runs the full verification pipeline on a raw envelope for
// the given role and returns the verified document.
func (s *AttestationService) VerifyEnvelope(ctx context.Context, raw []byte, role string, requireProduction bool) (domain.AttestationDocument, error) {
	digest := crypto.SHA256Hex(raw)

	doc, cached, err := s.lookup(ctx, digest)
	if err != nil || !cached {
		verified, verr := s.verifier.Verify(raw, domain.AttestationPolicy{RequireProduction: requireProduction})
		if verr != nil {
			return domain.AttestationDocument{}, verr
		}
		doc = verified
	}

	if requireProduction && doc.DebugMode {
		return domain.AttestationDocument{}, fmt.Errorf("%w: PCR0 is all zeros", domain.ErrDebugModeRejected)
	}
	if err := s.checkMeasurement(ctx, doc, role); err != nil {
		return domain.AttestationDocument{}, err
	}

	if !cached && s.cache != nil {
		_ = s.cache.Put(ctx, digest, domain.VerificationResult{
			EnvelopeDigest: digest,
			Document:       doc,
			VerifiedAt:     s.clock(),
		}, s.cacheTTL)
	}
	return doc, nil
}

func (s *AttestationService) lookup(ctx context.Context, digest string) (domain.AttestationDocument, bool, error) {
	if s.cache == nil {
		return domain.AttestationDocument{}, false, nil
	}
	result, ok, err := s.cache.Get(ctx, digest)
	if err != nil || !ok {
		return domain.AttestationDocument{}, false, err
	}
	return result.Document, true, nil
}

// checkMeasurement applies the rego engine when configured, otherwise the
// static per-role allowlist. An empty allowlist accepts any non-debug
// measurement, which keeps single-tenant deployments zero-config.
func (s *AttestationService) checkMeasurement(ctx context.Context, doc domain.AttestationDocument, role string) error {
	if s.policy != nil {
		decision, err := s.policy.Evaluate(ctx, MeasurementInput{
			PCR0:  doc.CodeIdentity(),
			Debug: doc.DebugMode,
			Role:  role,
		})
		if err != nil {
			return fmt.Errorf("measurement policy: %w", err)
		}
		if !decision.Allow {
			reason := decision.Reason
			if reason == "" {
				reason = "measurement rejected by policy"
			}
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, reason)
		}
		return nil
	}

	allowed := s.allowedPCR0[role]
	if len(allowed) == 0 {
		return nil
	}
	pcr0 := doc.CodeIdentity()
	for _, candidate := range allowed {
		if candidate == pcr0 {
			return nil
		}
	}
	return fmt.Errorf("%w: PCR0 %s is not an allowed %s measurement", domain.ErrUnauthorized, pcr0, role)
}
