// Package manifest defines the canonical description of what an enclave
// is authorised to run — the namespace, pivot binary, quorum membership,
// and enclave-image identity it was approved against — along with the
// approval envelope and genesis-time artifacts that travel alongside it.
//
// Canonical serialisation (Canonical/Hash below) follows the
// wire package's deterministic little-endian encoding, the same style
// banhbaoring's types.go uses for its config/metadata structs: a plain
// Go struct with an explicit, hand-written (de)serialisation method
// rather than reflection-based encoding, so the byte layout a signature
// is computed over can never silently drift across a Go version bump.
package manifest

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

// RestartPolicy governs whether the coordinator respawns a pivot that
// has exited.
type RestartPolicy uint8

const (
	RestartNever RestartPolicy = iota
	RestartAlways
)

func (r RestartPolicy) String() string {
	if r == RestartAlways {
		return "Always"
	}
	return "Never"
}

var (
	ErrMalformed       = errors.New("manifest: malformed encoding")
	ErrInvalidQuorum   = errors.New("manifest: invalid quorum set")
	ErrInvalidRestart  = errors.New("manifest: invalid restart policy byte")
	ErrInvalidPCRLen   = errors.New("manifest: pcr length must be 32, 48, or 64 bytes")
	ErrDuplicateMember = errors.New("manifest: duplicate member pub_key")
)

// QuorumMember identifies one human member of a quorum set by alias and
// long-lived personal public key.
type QuorumMember struct {
	Alias  string
	PubKey []byte
}

// SetupMember identifies a prospective member during genesis, before a
// personal keypair exists for them.
type SetupMember struct {
	Alias  string
	PubKey []byte
}

// QuorumSet is the threshold and ordered membership a manifest pins.
// Members are sorted by (alias, pub_key) before hashing so two callers
// who constructed the same logical set in different orders produce the
// same manifest hash.
type QuorumSet struct {
	Threshold uint32
	Members   []QuorumMember
}

// Validate enforces 1 <= threshold <= |members| <= 32 and distinct
// pub_keys, per spec.md §3's QuorumSet invariant.
func (qs QuorumSet) Validate() error {
	n := len(qs.Members)
	if n == 0 || n > 32 {
		return fmt.Errorf("%w: member count %d out of range [1,32]", ErrInvalidQuorum, n)
	}
	if qs.Threshold < 1 || int(qs.Threshold) > n {
		return fmt.Errorf("%w: threshold %d out of range [1,%d]", ErrInvalidQuorum, qs.Threshold, n)
	}
	seen := make(map[string]bool, n)
	for _, m := range qs.Members {
		key := string(m.PubKey)
		if seen[key] {
			return fmt.Errorf("%w: alias %s", ErrDuplicateMember, m.Alias)
		}
		seen[key] = true
	}
	return nil
}

// Sorted returns a copy of the set with members canonically ordered.
func (qs QuorumSet) Sorted() QuorumSet {
	members := append([]QuorumMember(nil), qs.Members...)
	sort.Slice(members, func(i, j int) bool {
		if members[i].Alias != members[j].Alias {
			return members[i].Alias < members[j].Alias
		}
		return string(members[i].PubKey) < string(members[j].PubKey)
	})
	return QuorumSet{Threshold: qs.Threshold, Members: members}
}

// Namespace identifies a manifest lineage; nonce is monotonic per name.
type Namespace struct {
	Name  string
	Nonce uint32
}

// PivotConfig pins the pivot binary's identity and invocation.
type PivotConfig struct {
	Hash    [32]byte
	Restart RestartPolicy
	Args    []string
}

// NitroConfig identifies the enclave image and the certificate chain
// anchoring its attestation documents.
type NitroConfig struct {
	PCR0               []byte
	PCR1               []byte
	PCR2               []byte
	AWSRootCertificate []byte
}

func validPCRLen(n int) bool { return n == 32 || n == 48 || n == 64 }

// Validate checks each PCR's length against the set the Nitro
// attestation format allows.
func (n NitroConfig) Validate() error {
	for _, pcr := range [][]byte{n.PCR0, n.PCR1, n.PCR2} {
		if !validPCRLen(len(pcr)) {
			return ErrInvalidPCRLen
		}
	}
	return nil
}

// Manifest is the sole authority on what may run in an enclave.
type Manifest struct {
	Namespace  Namespace
	Pivot      PivotConfig
	QuorumKey  []byte
	QuorumSet  QuorumSet
	Enclave    NitroConfig
}

// Approval is one member's signature over a manifest's hash.
type Approval struct {
	Signature []byte
	Member    QuorumMember
}

// ManifestEnvelope is a manifest plus the approvals collected for it.
type ManifestEnvelope struct {
	Manifest  Manifest
	Approvals []Approval
}

// Canonical serialises m deterministically: member order is normalised
// before encoding so the hash depends only on set membership.
func (m Manifest) Canonical() []byte {
	w := wire.NewWriter()
	w.WriteString(m.Namespace.Name)
	w.WriteU32(m.Namespace.Nonce)

	w.WriteBytes(m.Pivot.Hash[:])
	w.WriteU8(uint8(m.Pivot.Restart))
	w.WriteU32(uint32(len(m.Pivot.Args)))
	for _, a := range m.Pivot.Args {
		w.WriteString(a)
	}

	w.WriteBytes(m.QuorumKey)

	sorted := m.QuorumSet.Sorted()
	w.WriteU32(sorted.Threshold)
	w.WriteU32(uint32(len(sorted.Members)))
	for _, mem := range sorted.Members {
		w.WriteString(mem.Alias)
		w.WriteBytes(mem.PubKey)
	}

	w.WriteBytes(m.Enclave.PCR0)
	w.WriteBytes(m.Enclave.PCR1)
	w.WriteBytes(m.Enclave.PCR2)
	w.WriteBytes(m.Enclave.AWSRootCertificate)

	return w.Bytes()
}

// Hash returns the 32-byte manifest_hash that approvals sign over.
func (m Manifest) Hash() [32]byte {
	return sha256.Sum256(m.Canonical())
}

// MemberOutput is one member's share of the genesis output: their
// setup-encrypted personal private key, the corresponding personal
// public key, and their personal-key-encrypted Shamir share.
type MemberOutput struct {
	SetupMember              SetupMember
	EncryptedPersonalKey     []byte
	PublicPersonalKey        []byte
	EncryptedQuorumKeyShare  []byte
}

// GenesisOutput is everything a genesis run produces: the quorum
// public key, every member's encrypted material, the threshold, and an
// optional set of pre-computed recovery permutations for convenience.
type GenesisOutput struct {
	QuorumKey            []byte
	MemberOutputs        []MemberOutput
	Threshold            uint32
	RecoveryPermutations [][]int
}

// GenesisSet is the input to a genesis run: the prospective membership
// and threshold.
type GenesisSet struct {
	Members   []SetupMember
	Threshold uint32
}

// Validate enforces the same cardinality/distinctness rules as
// QuorumSet, since a GenesisSet becomes a QuorumSet once genesis mints
// personal keys for each member.
func (gs GenesisSet) Validate() error {
	n := len(gs.Members)
	if n == 0 || n > 32 {
		return fmt.Errorf("%w: member count %d out of range [1,32]", ErrInvalidQuorum, n)
	}
	if gs.Threshold < 1 || int(gs.Threshold) > n {
		return fmt.Errorf("%w: threshold %d out of range [1,%d]", ErrInvalidQuorum, gs.Threshold, n)
	}
	seen := make(map[string]bool, n)
	for _, m := range gs.Members {
		key := string(m.PubKey)
		if seen[key] {
			return fmt.Errorf("%w: alias %s", ErrDuplicateMember, m.Alias)
		}
		seen[key] = true
	}
	return nil
}
