package manifest

import (
	"fmt"

	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

// EncodeManifest serialises m for storage or transport. It is identical
// to Canonical except it preserves member order as given (Canonical
// always normalises order for hashing); round-tripping through
// EncodeManifest/DecodeManifest is therefore order-preserving.
func EncodeManifest(m Manifest) []byte {
	w := wire.NewWriter()
	encodeManifest(w, m)
	return w.Bytes()
}

func encodeManifest(w *wire.Writer, m Manifest) {
	w.WriteString(m.Namespace.Name)
	w.WriteU32(m.Namespace.Nonce)

	w.WriteBytes(m.Pivot.Hash[:])
	w.WriteU8(uint8(m.Pivot.Restart))
	w.WriteU32(uint32(len(m.Pivot.Args)))
	for _, a := range m.Pivot.Args {
		w.WriteString(a)
	}

	w.WriteBytes(m.QuorumKey)

	w.WriteU32(m.QuorumSet.Threshold)
	w.WriteU32(uint32(len(m.QuorumSet.Members)))
	for _, mem := range m.QuorumSet.Members {
		w.WriteString(mem.Alias)
		w.WriteBytes(mem.PubKey)
	}

	w.WriteBytes(m.Enclave.PCR0)
	w.WriteBytes(m.Enclave.PCR1)
	w.WriteBytes(m.Enclave.PCR2)
	w.WriteBytes(m.Enclave.AWSRootCertificate)
}

// DecodeManifest is the inverse of EncodeManifest.
func DecodeManifest(b []byte) (Manifest, error) {
	r := wire.NewReader(b)
	m, err := decodeManifest(r)
	if err != nil {
		return Manifest{}, err
	}
	if err := r.Finish(); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func decodeManifest(r *wire.Reader) (Manifest, error) {
	var m Manifest
	var err error

	if m.Namespace.Name, err = r.ReadString(); err != nil {
		return m, fmt.Errorf("%w: namespace.name: %v", ErrMalformed, err)
	}
	if m.Namespace.Nonce, err = r.ReadU32(); err != nil {
		return m, fmt.Errorf("%w: namespace.nonce: %v", ErrMalformed, err)
	}

	hash, err := r.ReadBytes()
	if err != nil {
		return m, fmt.Errorf("%w: pivot.hash: %v", ErrMalformed, err)
	}
	if len(hash) != 32 {
		return m, fmt.Errorf("%w: pivot.hash length %d", ErrMalformed, len(hash))
	}
	copy(m.Pivot.Hash[:], hash)

	restartByte, err := r.ReadU8()
	if err != nil {
		return m, fmt.Errorf("%w: pivot.restart: %v", ErrMalformed, err)
	}
	if restartByte != uint8(RestartNever) && restartByte != uint8(RestartAlways) {
		return m, ErrInvalidRestart
	}
	m.Pivot.Restart = RestartPolicy(restartByte)

	argCount, err := r.ReadU32()
	if err != nil {
		return m, fmt.Errorf("%w: pivot.args count: %v", ErrMalformed, err)
	}
	m.Pivot.Args = make([]string, argCount)
	for i := range m.Pivot.Args {
		if m.Pivot.Args[i], err = r.ReadString(); err != nil {
			return m, fmt.Errorf("%w: pivot.args[%d]: %v", ErrMalformed, i, err)
		}
	}

	if m.QuorumKey, err = r.ReadBytes(); err != nil {
		return m, fmt.Errorf("%w: quorum_key: %v", ErrMalformed, err)
	}

	if m.QuorumSet.Threshold, err = r.ReadU32(); err != nil {
		return m, fmt.Errorf("%w: quorum_set.threshold: %v", ErrMalformed, err)
	}
	memberCount, err := r.ReadU32()
	if err != nil {
		return m, fmt.Errorf("%w: quorum_set.members count: %v", ErrMalformed, err)
	}
	m.QuorumSet.Members = make([]QuorumMember, memberCount)
	for i := range m.QuorumSet.Members {
		if m.QuorumSet.Members[i].Alias, err = r.ReadString(); err != nil {
			return m, fmt.Errorf("%w: quorum_set.members[%d].alias: %v", ErrMalformed, i, err)
		}
		if m.QuorumSet.Members[i].PubKey, err = r.ReadBytes(); err != nil {
			return m, fmt.Errorf("%w: quorum_set.members[%d].pub_key: %v", ErrMalformed, i, err)
		}
	}

	if m.Enclave.PCR0, err = r.ReadBytes(); err != nil {
		return m, fmt.Errorf("%w: enclave.pcr0: %v", ErrMalformed, err)
	}
	if m.Enclave.PCR1, err = r.ReadBytes(); err != nil {
		return m, fmt.Errorf("%w: enclave.pcr1: %v", ErrMalformed, err)
	}
	if m.Enclave.PCR2, err = r.ReadBytes(); err != nil {
		return m, fmt.Errorf("%w: enclave.pcr2: %v", ErrMalformed, err)
	}
	if m.Enclave.AWSRootCertificate, err = r.ReadBytes(); err != nil {
		return m, fmt.Errorf("%w: enclave.aws_root_certificate: %v", ErrMalformed, err)
	}

	return m, nil
}

// EncodeManifestEnvelope serialises a manifest alongside its approvals.
func EncodeManifestEnvelope(e ManifestEnvelope) []byte {
	w := wire.NewWriter()
	encodeManifest(w, e.Manifest)
	w.WriteU32(uint32(len(e.Approvals)))
	for _, a := range e.Approvals {
		w.WriteBytes(a.Signature)
		w.WriteString(a.Member.Alias)
		w.WriteBytes(a.Member.PubKey)
	}
	return w.Bytes()
}

// DecodeManifestEnvelope is the inverse of EncodeManifestEnvelope.
func DecodeManifestEnvelope(b []byte) (ManifestEnvelope, error) {
	r := wire.NewReader(b)
	m, err := decodeManifest(r)
	if err != nil {
		return ManifestEnvelope{}, err
	}

	count, err := r.ReadU32()
	if err != nil {
		return ManifestEnvelope{}, fmt.Errorf("%w: approvals count: %v", ErrMalformed, err)
	}
	approvals := make([]Approval, count)
	for i := range approvals {
		if approvals[i].Signature, err = r.ReadBytes(); err != nil {
			return ManifestEnvelope{}, fmt.Errorf("%w: approvals[%d].signature: %v", ErrMalformed, i, err)
		}
		if approvals[i].Member.Alias, err = r.ReadString(); err != nil {
			return ManifestEnvelope{}, fmt.Errorf("%w: approvals[%d].member.alias: %v", ErrMalformed, i, err)
		}
		if approvals[i].Member.PubKey, err = r.ReadBytes(); err != nil {
			return ManifestEnvelope{}, fmt.Errorf("%w: approvals[%d].member.pub_key: %v", ErrMalformed, i, err)
		}
	}
	if err := r.Finish(); err != nil {
		return ManifestEnvelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return ManifestEnvelope{Manifest: m, Approvals: approvals}, nil
}

// EncodeGenesisOutput serialises a GenesisOutput for the boot-genesis
// response and for the on-disk output.genesis artifact.
func EncodeGenesisOutput(g GenesisOutput) []byte {
	w := wire.NewWriter()
	w.WriteBytes(g.QuorumKey)
	w.WriteU32(uint32(len(g.MemberOutputs)))
	for _, mo := range g.MemberOutputs {
		w.WriteString(mo.SetupMember.Alias)
		w.WriteBytes(mo.SetupMember.PubKey)
		w.WriteBytes(mo.EncryptedPersonalKey)
		w.WriteBytes(mo.PublicPersonalKey)
		w.WriteBytes(mo.EncryptedQuorumKeyShare)
	}
	w.WriteU32(g.Threshold)
	w.WriteU32(uint32(len(g.RecoveryPermutations)))
	for _, perm := range g.RecoveryPermutations {
		w.WriteU32(uint32(len(perm)))
		for _, idx := range perm {
			w.WriteU32(uint32(idx))
		}
	}
	return w.Bytes()
}

// DecodeGenesisOutput is the inverse of EncodeGenesisOutput.
func DecodeGenesisOutput(b []byte) (GenesisOutput, error) {
	r := wire.NewReader(b)
	var g GenesisOutput
	var err error

	if g.QuorumKey, err = r.ReadBytes(); err != nil {
		return g, fmt.Errorf("%w: quorum_key: %v", ErrMalformed, err)
	}

	moCount, err := r.ReadU32()
	if err != nil {
		return g, fmt.Errorf("%w: member_outputs count: %v", ErrMalformed, err)
	}
	g.MemberOutputs = make([]MemberOutput, moCount)
	for i := range g.MemberOutputs {
		mo := &g.MemberOutputs[i]
		if mo.SetupMember.Alias, err = r.ReadString(); err != nil {
			return g, fmt.Errorf("%w: member_outputs[%d].alias: %v", ErrMalformed, i, err)
		}
		if mo.SetupMember.PubKey, err = r.ReadBytes(); err != nil {
			return g, fmt.Errorf("%w: member_outputs[%d].pub_key: %v", ErrMalformed, i, err)
		}
		if mo.EncryptedPersonalKey, err = r.ReadBytes(); err != nil {
			return g, fmt.Errorf("%w: member_outputs[%d].encrypted_personal_key: %v", ErrMalformed, i, err)
		}
		if mo.PublicPersonalKey, err = r.ReadBytes(); err != nil {
			return g, fmt.Errorf("%w: member_outputs[%d].public_personal_key: %v", ErrMalformed, i, err)
		}
		if mo.EncryptedQuorumKeyShare, err = r.ReadBytes(); err != nil {
			return g, fmt.Errorf("%w: member_outputs[%d].encrypted_quorum_key_share: %v", ErrMalformed, i, err)
		}
	}

	if g.Threshold, err = r.ReadU32(); err != nil {
		return g, fmt.Errorf("%w: threshold: %v", ErrMalformed, err)
	}

	permCount, err := r.ReadU32()
	if err != nil {
		return g, fmt.Errorf("%w: recovery_permutations count: %v", ErrMalformed, err)
	}
	g.RecoveryPermutations = make([][]int, permCount)
	for i := range g.RecoveryPermutations {
		n, err := r.ReadU32()
		if err != nil {
			return g, fmt.Errorf("%w: recovery_permutations[%d] count: %v", ErrMalformed, i, err)
		}
		perm := make([]int, n)
		for j := range perm {
			idx, err := r.ReadU32()
			if err != nil {
				return g, fmt.Errorf("%w: recovery_permutations[%d][%d]: %v", ErrMalformed, i, j, err)
			}
			perm[j] = int(idx)
		}
		g.RecoveryPermutations[i] = perm
	}

	if err := r.Finish(); err != nil {
		return g, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return g, nil
}
