package envelope

import "errors"

// Sentinel errors. Cryptographic failures are never conflated with
// deserialization failures, per spec.md §4.4.
var (
	ErrKeyGeneration       = errors.New("envelope: key generation failed")
	ErrInvalidPrivateKey   = errors.New("envelope: invalid private key bytes")
	ErrInvalidPublicKey    = errors.New("envelope: invalid public key bytes")
	ErrMalformedEnvelope   = errors.New("envelope: malformed envelope encoding")
	ErrDecryptionFailed    = errors.New("envelope: decryption failed")
	ErrEncryptionFailed    = errors.New("envelope: encryption failed")
	ErrSigningFailed       = errors.New("envelope: signing failed")
	ErrInvalidHashLength   = errors.New("envelope: hash must be 32 bytes")
	ErrMalformedSignature  = errors.New("envelope: malformed signature encoding")
)
