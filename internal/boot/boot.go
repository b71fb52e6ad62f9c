// Package boot implements the L6 service: validating a ManifestEnvelope
// against its pinned pivot, installing it, minting the ephemeral
// transport keypair, and emitting the attestation document that binds
// the two together. Grounded on spec.md §4.7's fixed validation order
// and original_source/qos-core/src/handles.rs's write-once contract for
// the side effects that follow.
package boot

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

// Service runs the standard boot path exactly once per enclave
// instance; the caller enforces the at-most-once invariant via the
// phase machine.
type Service struct {
	Handles  handles.Handles
	Attestor attest.Attestor
}

// New constructs a boot Service.
func New(h handles.Handles, attestor attest.Attestor) *Service {
	return &Service{Handles: h, Attestor: attestor}
}

// Result carries the ephemeral keypair minted during boot, which the
// provision service needs to decrypt incoming shards.
type Result struct {
	EphemeralPrivate *envelope.PrivateKey
	Attestation      attest.Document
}

// Run validates env against pivot in the exact order spec.md §4.7
// prescribes, and on success mints and persists the ephemeral key,
// installs the manifest envelope and pivot, and requests an attestation
// document binding manifest_hash to the new ephemeral public key.
func (s *Service) Run(env manifest.ManifestEnvelope, pivot []byte) (Result, *wire.ProtocolError) {
	pivotHash := sha256.Sum256(pivot)
	if !bytes.Equal(pivotHash[:], env.Manifest.Pivot.Hash[:]) {
		return Result{}, &wire.ProtocolError{
			Kind:   wire.ErrorManifestValidationFailure,
			Reason: "pivot bytes do not hash to manifest.pivot.hash",
		}
	}

	if err := env.Validate(); err != nil {
		return Result{}, &wire.ProtocolError{
			Kind:   wire.ErrorManifestValidationFailure,
			Reason: err.Error(),
		}
	}

	if err := env.Manifest.Enclave.Validate(); err != nil {
		return Result{}, &wire.ProtocolError{
			Kind:   wire.ErrorManifestValidationFailure,
			Reason: err.Error(),
		}
	}

	ephemeralPriv, ephemeralPub, err := envelope.GenerateKeypair()
	if err != nil {
		return Result{}, &wire.ProtocolError{Kind: wire.ErrorCryptoFailure, Reason: err.Error()}
	}

	// Any put failure past this point is fatal: the disk state is now
	// malformed and the enclave cannot recover, per spec.md §4.7.
	if err := s.Handles.PutEphemeralKey(ephemeralPriv.Serialize()); err != nil {
		return Result{}, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: fmt.Sprintf("put_ephemeral_key: %v", err)}
	}
	if err := s.Handles.PutManifestEnvelope(manifest.EncodeManifestEnvelope(env)); err != nil {
		return Result{}, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: fmt.Sprintf("put_manifest_envelope: %v", err)}
	}
	if err := s.Handles.PutPivot(pivot); err != nil {
		return Result{}, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: fmt.Sprintf("put_pivot: %v", err)}
	}

	manifestHash := env.Manifest.Hash()
	doc, err := s.Attestor.Attest(manifestHash[:], nil, ephemeralPub.Serialize())
	if err != nil {
		return Result{}, &wire.ProtocolError{Kind: wire.ErrorAttestationFailure, Reason: err.Error()}
	}

	return Result{EphemeralPrivate: ephemeralPriv, Attestation: doc}, nil
}
