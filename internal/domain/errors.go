package domain

import "errors"

var (
	// ErrMalformedInput covers unparsable binary or structured input.
	// Verifiers fail closed with this error instead of panicking.
	ErrMalformedInput = errors.New("malformed input")
	// ErrChainBroken is a prev-hash or sequence mismatch inside one boot
	// session. Fatal to the operation that detected it.
	ErrChainBroken       = errors.New("hash chain broken")
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrCertChainInvalid  = errors.New("certificate chain invalid")
	ErrDebugModeRejected = errors.New("debug mode attestation rejected")
	ErrMerkleMismatch    = errors.New("merkle root mismatch")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
)
