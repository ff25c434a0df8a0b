package crypto

import "errors"

// Error kinds returned by attestation verification.
// Callers should match them using errors.Is, since they are usually wrapped with additional context.
var (
	// ErrDigest is returned if the digest primitive fails.
	ErrDigest = errors.New("computing digest")
	// ErrBadSignature is returned for any cryptographic mismatch: nonce, MAC, or signature.
	ErrBadSignature = errors.New("bad signature")
	// ErrKey is returned if a public key or certificate is malformed.
	ErrKey = errors.New("invalid public key")
	// ErrIO is returned if the signed payload can not be encoded.
	ErrIO = errors.New("encoding signed payload")
)
