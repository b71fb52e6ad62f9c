// Package envelope implements asymmetric encrypt-to-public-key and
// sign/verify primitives shared by every keypair role in the data model
// (QuorumKey, PersonalKey, SetupKey, EphemeralKey). All roles are backed
// by a single NIST P-256 scalar: the same private scalar drives both
// ECDH (for encrypt/decrypt, grounded on
// original_source/src/qos_p256/src/encrypt.rs) and ECDSA (for sign/verify,
// grounded on plugin/secp256k1/crypto.go's SignMessage/VerifySignature
// discipline, ported from secp256k1/btcec to P-256/ecdsa).
package envelope

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
)

var curve = elliptic.P256()

// PrivateKey is an asymmetric private key usable for both decrypt and sign.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// PublicKey is the public half of a PrivateKey, usable for both encrypt
// and verify.
type PublicKey struct {
	key *ecdsa.PublicKey
}

// GenerateKeypair produces a fresh P-256 keypair using the OS randomness
// source.
func GenerateKeypair() (*PrivateKey, *PublicKey, error) {
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &PrivateKey{key: priv}, &PublicKey{key: &priv.PublicKey}, nil
}

// Public returns the public half of priv.
func (priv *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: &priv.key.PublicKey}
}

// Serialize encodes the private key as its raw 32-byte big-endian scalar.
func (priv *PrivateKey) Serialize() []byte {
	raw := make([]byte, 32)
	priv.key.D.FillBytes(raw)
	return raw
}

// DeserializePrivateKey reconstructs a PrivateKey from a 32-byte scalar,
// recomputing the public point.
func DeserializePrivateKey(raw []byte) (*PrivateKey, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidPrivateKey, len(raw))
	}
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}

	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(raw)

	return &PrivateKey{key: priv}, nil
}

// Serialize encodes the public key as an uncompressed SEC1 point.
func (pub *PublicKey) Serialize() []byte {
	return elliptic.Marshal(curve, pub.key.X, pub.key.Y) //nolint:staticcheck // uncompressed SEC1 wire format is the spec'd encoding
}

// DeserializePublicKey reconstructs a PublicKey from an uncompressed SEC1
// point, rejecting points not on the curve.
func DeserializePublicKey(raw []byte) (*PublicKey, error) {
	x, y := elliptic.Unmarshal(curve, raw) //nolint:staticcheck // paired with Serialize's uncompressed encoding
	if x == nil {
		return nil, fmt.Errorf("%w: not a valid uncompressed P-256 point", ErrInvalidPublicKey)
	}
	return &PublicKey{key: &ecdsa.PublicKey{Curve: curve, X: x, Y: y}}, nil
}

// ecdh adapts the stdlib ecdsa keypair to crypto/ecdh for the Diffie-
// Hellman step used by Encrypt/Decrypt.
func (priv *PrivateKey) ecdh() (*ecdh.PrivateKey, error) {
	k, err := priv.key.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return k, nil
}

func (pub *PublicKey) ecdh() (*ecdh.PublicKey, error) {
	k, err := pub.key.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return k, nil
}

// Equal reports whether two public keys encode the same point.
func (pub *PublicKey) Equal(other *PublicKey) bool {
	if pub == nil || other == nil {
		return pub == other
	}
	return pub.key.Equal(other.key)
}
