package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

const (
	nonceSize = 12
	aesKeyLen = 32
)

// Encrypt produces a self-describing ciphertext envelope decryptable only
// by the holder of receiver's private key. The wire layout (nonce,
// ephemeral sender public key, ciphertext) and the key-derivation
// construction (ECDH shared secret run through a KDF, with the public
// keys and nonce bound in as associated data) mirror
// original_source/src/qos_p256/src/encrypt.rs's Envelope/create_cipher;
// the KDF here is HKDF-SHA512 rather than the original's raw HMAC-SHA512,
// since HKDF is the standard-library-adjacent (golang.org/x/crypto)
// idiom for exactly this shared-secret-to-AEAD-key step.
func Encrypt(receiver *PublicKey, plaintext []byte) ([]byte, error) {
	ephemeralPriv, ephemeralPub, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrEncryptionFailed, err)
	}

	aead, err := deriveAEAD(ephemeralPriv, receiver, ephemeralPub, receiver, nonce)
	if err != nil {
		return nil, err
	}

	aad := associatedData(ephemeralPub, receiver, nonce)
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	w := wire.NewWriter()
	w.WriteBytes(nonce)
	w.WriteBytes(ephemeralPub.Serialize())
	w.WriteBytes(ciphertext)
	return w.Bytes(), nil
}

// Decrypt reverses Encrypt using receiver's private key, failing closed
// on any tampering of the nonce, ephemeral public key, or ciphertext
// (the AEAD tag covers all three via the associated data binding).
func Decrypt(receiver *PrivateKey, envelope []byte) ([]byte, error) {
	r := wire.NewReader(envelope)
	nonce, err := r.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformedEnvelope, err)
	}
	ephemeralPubBytes, err := r.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral public key: %v", ErrMalformedEnvelope, err)
	}
	ciphertext, err := r.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}
	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce length %d", ErrMalformedEnvelope, len(nonce))
	}

	ephemeralPub, err := DeserializePublicKey(ephemeralPubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	aead, err := deriveAEAD(receiver, ephemeralPub, ephemeralPub, receiver.Public(), nonce)
	if err != nil {
		return nil, err
	}

	aad := associatedData(ephemeralPub, receiver.Public(), nonce)
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w", ErrDecryptionFailed)
	}
	return plaintext, nil
}

// deriveAEAD runs the ECDH shared secret between localPriv/remotePub
// through HKDF-SHA512 to obtain a 256-bit AES key, keyed on the pair of
// public keys that identify both ends of the exchange. senderPub and
// receiverPub are always passed in sender-then-receiver order regardless
// of which side is calling, so both ends derive the identical key.
func deriveAEAD(localPriv *PrivateKey, remotePub *PublicKey, senderPub, receiverPub *PublicKey, nonce []byte) (cipher.AEAD, error) {
	localECDH, err := localPriv.ecdh()
	if err != nil {
		return nil, err
	}
	remoteECDH, err := remotePub.ecdh()
	if err != nil {
		return nil, err
	}
	shared, err := localECDH.ECDH(remoteECDH)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", ErrEncryptionFailed, err)
	}

	salt := append(append([]byte{}, senderPub.Serialize()...), receiverPub.Serialize()...)
	kdf := hkdf.New(sha512.New, shared, salt, []byte("qos-enclave-envelope-v1"))

	key := make([]byte, aesKeyLen)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("%w: kdf: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return aead, nil
}

func associatedData(senderPub, receiverPub *PublicKey, nonce []byte) []byte {
	aad := make([]byte, 0, 65+65+len(nonce))
	aad = append(aad, senderPub.Serialize()...)
	aad = append(aad, receiverPub.Serialize()...)
	aad = append(aad, nonce...)
	return aad
}

// Sign produces a DER-encoded ECDSA signature over a caller-supplied
// 32-byte digest (SHA-256 of the message). Grounded on
// plugin/secp256k1/crypto.go's SignMessage, which enforces the same
// fixed-hash-length contract before touching the signing primitive.
func Sign(priv *PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHashLength
	}
	sig, err := ecdsa.SignASN1(rand.Reader, priv.key, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return sig, nil
}

// Verify checks a DER-encoded ECDSA signature against a 32-byte digest,
// mirroring plugin/secp256k1/crypto.go's VerifySignature contract.
func Verify(pub *PublicKey, hash, sig []byte) (bool, error) {
	if len(hash) != 32 {
		return false, ErrInvalidHashLength
	}
	if len(sig) == 0 {
		return false, ErrMalformedSignature
	}
	return ecdsa.VerifyASN1(pub.key, hash, sig), nil
}

// zeroize overwrites a private scalar's backing bytes, following
// plugin/secp256k1/crypto.go's secureZero discipline for key material
// that has finished its useful life in memory.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
