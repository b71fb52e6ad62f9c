// Package attest defines the attestation document shape and its
// syntactic validation rules, plus the Attestor interface the boot,
// genesis, and provision services use to request documents from the
// enclave's hardware root of trust. Validation rules are ported
// verbatim from original_source/qos-client/src/attest/nitro/
// syntactic_validation.rs: this is the one place field-level nitro
// attestation document wire-format quirks leak into otherwise
// platform-agnostic service code.
package attest

import "errors"

// PCR is one platform configuration register entry: an index paired
// with a digest of the enclave image material at that index.
type PCR struct {
	Index  uint16
	Digest []byte
}

// Document is a parsed (not yet cryptographically verified) NSM
// attestation document.
type Document struct {
	ModuleID  string
	Digest    string
	Timestamp uint64
	PCRs      []PCR
	CABundle  [][]byte
	PublicKey []byte
	UserData  []byte
	Nonce     []byte
}

var (
	ErrEmptyModuleID     = errors.New("attest: module_id must not be empty")
	ErrInvalidPCRCount   = errors.New("attest: pcr count must be in [1,32]")
	ErrInvalidPCRIndex   = errors.New("attest: pcr index must be <= 32")
	ErrInvalidPCRLength  = errors.New("attest: pcr digest length must be 32, 48, or 64 bytes")
	ErrEmptyCABundle     = errors.New("attest: cabundle must not be empty")
	ErrInvalidCABundle   = errors.New("attest: cabundle entry length must be in [1,1024] bytes")
	ErrWrongDigest       = errors.New("attest: digest must be SHA384")
	ErrZeroTimestamp     = errors.New("attest: timestamp must be nonzero")
	ErrInvalidPublicKey  = errors.New("attest: public_key length must be in [1,1024] bytes")
	ErrInvalidUserData   = errors.New("attest: user_data length must be <= 512 bytes")
	ErrInvalidNonce      = errors.New("attest: nonce length must be <= 512 bytes")
)

const (
	maxPCRCount    = 32
	maxPCRIndex    = 32
	maxCABundleLen = 1024
	maxAuxFieldLen = 512
	maxPubKeyLen   = 1024
	sha384Digest   = "SHA384"
)

func validPCRDigestLen(n int) bool { return n == 32 || n == 48 || n == 64 }

// Validate applies the syntactic checks syntactic_validation.rs enforces
// before any cryptographic verification of the COSE signature or
// certificate chain is attempted. A document that fails here is
// malformed independent of whether its signature is genuine.
func (d Document) Validate() error {
	if d.ModuleID == "" {
		return ErrEmptyModuleID
	}

	if len(d.PCRs) < 1 || len(d.PCRs) > maxPCRCount {
		return ErrInvalidPCRCount
	}
	for _, pcr := range d.PCRs {
		if pcr.Index > maxPCRIndex {
			return ErrInvalidPCRIndex
		}
		if !validPCRDigestLen(len(pcr.Digest)) {
			return ErrInvalidPCRLength
		}
	}

	if len(d.CABundle) == 0 {
		return ErrEmptyCABundle
	}
	for _, entry := range d.CABundle {
		if len(entry) < 1 || len(entry) > maxCABundleLen {
			return ErrInvalidCABundle
		}
	}

	if d.Digest != sha384Digest {
		return ErrWrongDigest
	}

	if d.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	if d.PublicKey != nil {
		if len(d.PublicKey) < 1 || len(d.PublicKey) > maxPubKeyLen {
			return ErrInvalidPublicKey
		}
	}

	if len(d.UserData) > maxAuxFieldLen {
		return ErrInvalidUserData
	}
	if len(d.Nonce) > maxAuxFieldLen {
		return ErrInvalidNonce
	}

	return nil
}

// Attestor produces an attestation document binding the caller-supplied
// user_data, nonce, and public_key to the enclave's current
// measurements, and can read back an individual PCR value.
type Attestor interface {
	Attest(userData, nonce, publicKey []byte) (Document, error)
	DescribePCR(index int) ([]byte, error)
}
