// Package provision implements the L7 service: accepting quorum-key
// shards under attestation, decrypting them with the ephemeral key
// minted at boot, and reconstructing the quorum key once the
// manifest's threshold is met. Grounded on spec.md §4.8's four-step
// contract and the x-coordinate-distinctness dedup the shamir package
// exposes for exactly this "ignore duplicate shards idempotently" rule.
package provision

import (
	"bytes"
	"fmt"

	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/shamir"
	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

// Service accumulates shards in memory across calls until the
// manifest's threshold is reached. It is owned exclusively by the
// executor's single server thread; see spec.md §5 on the pending-shard
// set never being touched by more than one thread.
type Service struct {
	Handles          handles.Handles
	EphemeralPrivate *envelope.PrivateKey
	Manifest         manifest.Manifest

	shards map[byte][]byte
}

// New constructs a provision Service bound to the manifest and
// ephemeral key installed during boot.
func New(h handles.Handles, ephemeralPriv *envelope.PrivateKey, m manifest.Manifest) *Service {
	return &Service{
		Handles:          h,
		EphemeralPrivate: ephemeralPriv,
		Manifest:         m,
		shards:           make(map[byte][]byte),
	}
}

// PendingCount reports how many distinct shards have been accepted so
// far this instance.
func (s *Service) PendingCount() int {
	return len(s.shards)
}

// Accept decrypts encryptedShare with the ephemeral private key, dedups
// it by Shamir x-coordinate, and attempts reconstruction once the
// manifest's threshold is reached. Reconstructed reports whether the
// quorum key was produced and persisted on this call.
func (s *Service) Accept(encryptedShare []byte) (reconstructed bool, protoErr *wire.ProtocolError) {
	share, err := envelope.Decrypt(s.EphemeralPrivate, encryptedShare)
	if err != nil {
		return false, &wire.ProtocolError{Kind: wire.ErrorInvalidEncryptedShard, Reason: err.Error()}
	}

	x, err := shamir.XCoordinate(share)
	if err != nil {
		return false, &wire.ProtocolError{Kind: wire.ErrorInvalidEncryptedShard, Reason: err.Error()}
	}

	if _, duplicate := s.shards[x]; duplicate {
		return false, nil
	}
	s.shards[x] = share

	if len(s.shards) < int(s.Manifest.QuorumSet.Threshold) {
		return false, nil
	}

	collected := make([][]byte, 0, len(s.shards))
	for _, sh := range s.shards {
		collected = append(collected, sh)
	}

	reconstructedKey, err := shamir.Reconstruct(collected)
	if err != nil {
		s.discardPendingSet()
		return false, &wire.ProtocolError{Kind: wire.ErrorReconstructionMismatch, Reason: err.Error()}
	}

	reconstructedPriv, err := envelope.DeserializePrivateKey(reconstructedKey)
	if err != nil {
		s.discardPendingSet()
		return false, &wire.ProtocolError{Kind: wire.ErrorReconstructionMismatch, Reason: err.Error()}
	}

	if !bytes.Equal(reconstructedPriv.Public().Serialize(), s.Manifest.QuorumKey) {
		s.discardPendingSet()
		return false, &wire.ProtocolError{
			Kind:   wire.ErrorReconstructionMismatch,
			Reason: "reconstructed quorum public key does not match manifest.quorum_key",
		}
	}

	if err := s.Handles.PutQuorumKey(reconstructedKey); err != nil {
		return false, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: fmt.Sprintf("put_quorum_key: %v", err)}
	}

	return true, nil
}

// discardPendingSet drops the in-memory shard set after a reconstruction
// mismatch: per spec.md §4.8, a single bad shard should not brick the
// enclave, so provisioning remains open for a fresh set of shards.
func (s *Service) discardPendingSet() {
	s.shards = make(map[byte][]byte)
}
