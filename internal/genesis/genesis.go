// Package genesis implements the L5 service: producing a quorum key
// with no single party ever possessing it, sharding it under a K-of-N
// threshold, and re-encrypting each share to its member's personal
// key — grounded on
// original_source/qos_client/src/cli/services.rs's generate_setup_key/
// boot_genesis flow and the quorum-key-never-in-plaintext invariant
// spec.md §1 states as the system's whole reason for existing.
package genesis

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/shamir"
)

var ErrAlreadyRun = errors.New("genesis: already run for this enclave instance")

// Service runs genesis exactly once per enclave instance; the caller
// (the executor, gated by the phase machine) is responsible for
// enforcing the at-most-once invariant across process lifetime.
type Service struct {
	Attestor attest.Attestor
}

// New constructs a genesis Service backed by the given attestor.
func New(attestor attest.Attestor) *Service {
	return &Service{Attestor: attestor}
}

// Run executes the five genesis steps in spec.md §4.6 and returns the
// resulting GenesisOutput plus the attestation document binding it.
func (s *Service) Run(set manifest.GenesisSet) (manifest.GenesisOutput, attest.Document, error) {
	if err := set.Validate(); err != nil {
		return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: %w", err)
	}

	quorumPriv, quorumPub, err := envelope.GenerateKeypair()
	if err != nil {
		return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: quorum keypair: %w", err)
	}

	n := len(set.Members)
	quorumPrivBytes := quorumPriv.Serialize()
	shares, err := shamir.Split(quorumPrivBytes, n, int(set.Threshold))
	// quorumPrivBytes is the serialised quorum private scalar; it is
	// zeroed when Run returns, matching plugin/secp256k1/crypto.go's
	// secureZero discipline for key material that has finished its
	// useful life.
	defer zeroize(quorumPrivBytes)
	if err != nil {
		return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: split: %w", err)
	}

	memberOutputs := make([]manifest.MemberOutput, n)
	for i, member := range set.Members {
		setupPub, err := envelope.DeserializePublicKey(member.PubKey)
		if err != nil {
			return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: member %s setup pub key: %w", member.Alias, err)
		}

		personalPriv, personalPub, err := envelope.GenerateKeypair()
		if err != nil {
			return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: member %s personal keypair: %w", member.Alias, err)
		}

		encryptedPersonalKey, err := envelope.Encrypt(setupPub, personalPriv.Serialize())
		if err != nil {
			return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: member %s encrypt personal key: %w", member.Alias, err)
		}

		encryptedShare, err := envelope.Encrypt(personalPub, shares[i])
		if err != nil {
			return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: member %s encrypt share: %w", member.Alias, err)
		}

		memberOutputs[i] = manifest.MemberOutput{
			SetupMember:             member,
			EncryptedPersonalKey:    encryptedPersonalKey,
			PublicPersonalKey:       personalPub.Serialize(),
			EncryptedQuorumKeyShare: encryptedShare,
		}
	}

	out := manifest.GenesisOutput{
		QuorumKey:            quorumPub.Serialize(),
		MemberOutputs:        memberOutputs,
		Threshold:            set.Threshold,
		RecoveryPermutations: recoveryPermutations(n, int(set.Threshold)),
	}

	outputHash := sha256.Sum256(manifest.EncodeGenesisOutput(out))
	doc, err := s.Attestor.Attest(outputHash[:], nil, nil)
	if err != nil {
		return manifest.GenesisOutput{}, attest.Document{}, fmt.Errorf("genesis: attest: %w", err)
	}

	return out, doc, nil
}

// recoveryPermutations enumerates every K-combination of [0,n) as a
// convenience index for test consumers reconstructing against specific
// member subsets, per spec.md §3's optional GenesisOutput field.
func recoveryPermutations(n, k int) [][]int {
	if k <= 0 || k > n {
		return nil
	}
	var out [][]int
	combo := make([]int, k)
	var build func(start, depth int)
	build = func(start, depth int) {
		if depth == k {
			out = append(out, append([]int(nil), combo...))
			return
		}
		for i := start; i < n; i++ {
			combo[depth] = i
			build(i+1, depth+1)
		}
	}
	build(0, 0)
	return out
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
