package http

import (
	"fmt"
	"log"
	"os"

	"github.com/nathancole636-ui/my-lead-poet/internal/config"
	"github.com/nathancole636-ui/my-lead-poet/internal/infra/crypto"
)

// LoadSigner builds the enclave signing key. With a configured seed the key
// is stable across restarts; without one an ephemeral key is generated,
// which is the normal mode inside an enclave where the seed never leaves
// the instance.
func LoadSigner(cfg config.Config) (*crypto.Signer, error) {
	if cfg.SigningSeedHex != "" {
		signer, err := crypto.NewSignerFromSeedHex(cfg.SigningSeedHex)
		if err != nil {
			return nil, fmt.Errorf("signer from ENCLAVE_SIGNING_SEED_HEX: %w", err)
		}
		return signer, nil
	}
	signer, err := crypto.GenerateSigner()
	if err != nil {
		return nil, err
	}
	log.Printf("generated ephemeral enclave key %s", signer.PublicKeyHex())
	return signer, nil
}

// LoadOwnEnvelope reads the raw attestation envelope produced at boot.
// Missing configuration is not fatal: the instance simply cannot serve
// /v1/attestation.
func LoadOwnEnvelope(cfg config.Config) []byte {
	if cfg.AttestationPath == "" {
		return nil
	}
	raw, err := os.ReadFile(cfg.AttestationPath)
	if err != nil {
		log.Printf("attestation envelope unavailable: %v", err)
		return nil
	}
	return raw
}
