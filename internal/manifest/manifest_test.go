package manifest_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
)

func testManifest(t *testing.T, members []manifest.QuorumMember, threshold uint32) manifest.Manifest {
	t.Helper()
	return manifest.Manifest{
		Namespace: manifest.Namespace{Name: "test-namespace", Nonce: 1},
		Pivot: manifest.PivotConfig{
			Hash:    sha256.Sum256([]byte("pivot binary bytes")),
			Restart: manifest.RestartAlways,
			Args:    []string{"--flag", "value"},
		},
		QuorumKey: []byte("quorum public key bytes"),
		QuorumSet: manifest.QuorumSet{Threshold: threshold, Members: members},
		Enclave: manifest.NitroConfig{
			PCR0:               make([]byte, 32),
			PCR1:               make([]byte, 48),
			PCR2:               make([]byte, 64),
			AWSRootCertificate: []byte("der bytes"),
		},
	}
}

func TestManifestCanonicalRoundTrip(t *testing.T) {
	members := []manifest.QuorumMember{
		{Alias: "user2", PubKey: []byte("pub2")},
		{Alias: "user1", PubKey: []byte("pub1")},
	}
	m := testManifest(t, members, 1)

	encoded := manifest.EncodeManifest(m)
	decoded, err := manifest.DecodeManifest(encoded)
	require.NoError(t, err)
	require.Equal(t, m.Namespace, decoded.Namespace)
	require.Equal(t, m.Pivot, decoded.Pivot)
	require.Equal(t, m.QuorumSet, decoded.QuorumSet)
}

func TestManifestHashStableUnderMemberOrder(t *testing.T) {
	a := []manifest.QuorumMember{
		{Alias: "user1", PubKey: []byte("pub1")},
		{Alias: "user2", PubKey: []byte("pub2")},
	}
	b := []manifest.QuorumMember{
		{Alias: "user2", PubKey: []byte("pub2")},
		{Alias: "user1", PubKey: []byte("pub1")},
	}

	m1 := testManifest(t, a, 1)
	m2 := testManifest(t, b, 1)
	require.Equal(t, m1.Hash(), m2.Hash())
}

func TestManifestEnvelopeValidateSucceedsAtThreshold(t *testing.T) {
	priv1, pub1, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	priv2, pub2, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	members := []manifest.QuorumMember{
		{Alias: "user1", PubKey: pub1.Serialize()},
		{Alias: "user2", PubKey: pub2.Serialize()},
	}
	m := testManifest(t, members, 2)
	hash := m.Hash()

	sig1, err := envelope.Sign(priv1, hash[:])
	require.NoError(t, err)
	sig2, err := envelope.Sign(priv2, hash[:])
	require.NoError(t, err)

	env := manifest.ManifestEnvelope{
		Manifest: m,
		Approvals: []manifest.Approval{
			{Signature: sig1, Member: members[0]},
			{Signature: sig2, Member: members[1]},
		},
	}
	require.NoError(t, env.Validate())
}

func TestManifestEnvelopeValidateFailsBelowThreshold(t *testing.T) {
	priv1, pub1, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	_, pub2, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	members := []manifest.QuorumMember{
		{Alias: "user1", PubKey: pub1.Serialize()},
		{Alias: "user2", PubKey: pub2.Serialize()},
	}
	m := testManifest(t, members, 2)
	hash := m.Hash()

	sig1, err := envelope.Sign(priv1, hash[:])
	require.NoError(t, err)

	env := manifest.ManifestEnvelope{
		Manifest:  m,
		Approvals: []manifest.Approval{{Signature: sig1, Member: members[0]}},
	}
	err = env.Validate()
	require.ErrorIs(t, err, manifest.ErrInsufficientApprovals)
}

func TestManifestEnvelopeValidateRejectsNonMemberApprover(t *testing.T) {
	priv1, pub1, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	_, pub2, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	outsiderPriv, outsiderPub, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	members := []manifest.QuorumMember{
		{Alias: "user1", PubKey: pub1.Serialize()},
		{Alias: "user2", PubKey: pub2.Serialize()},
	}
	m := testManifest(t, members, 1)
	hash := m.Hash()

	sig, err := envelope.Sign(outsiderPriv, hash[:])
	require.NoError(t, err)

	env := manifest.ManifestEnvelope{
		Manifest: m,
		Approvals: []manifest.Approval{
			{Signature: sig, Member: manifest.QuorumMember{Alias: "outsider", PubKey: outsiderPub.Serialize()}},
		},
	}
	err = env.Validate()
	require.ErrorIs(t, err, manifest.ErrApproverNotMember)
}

func TestManifestEnvelopeValidateRejectsDuplicateApprover(t *testing.T) {
	priv1, pub1, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	_, pub2, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	members := []manifest.QuorumMember{
		{Alias: "user1", PubKey: pub1.Serialize()},
		{Alias: "user2", PubKey: pub2.Serialize()},
	}
	m := testManifest(t, members, 2)
	hash := m.Hash()

	sig1, err := envelope.Sign(priv1, hash[:])
	require.NoError(t, err)

	env := manifest.ManifestEnvelope{
		Manifest: m,
		Approvals: []manifest.Approval{
			{Signature: sig1, Member: members[0]},
			{Signature: sig1, Member: members[0]},
		},
	}
	err = env.Validate()
	require.ErrorIs(t, err, manifest.ErrDuplicateApprover)
}

func TestManifestEnvelopeValidateRejectsTamperedSignature(t *testing.T) {
	priv1, pub1, err := envelope.GenerateKeypair()
	require.NoError(t, err)
	_, pub2, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	members := []manifest.QuorumMember{
		{Alias: "user1", PubKey: pub1.Serialize()},
		{Alias: "user2", PubKey: pub2.Serialize()},
	}
	m := testManifest(t, members, 1)
	hash := m.Hash()

	sig1, err := envelope.Sign(priv1, hash[:])
	require.NoError(t, err)
	sig1[0] ^= 0xFF

	env := manifest.ManifestEnvelope{
		Manifest:  m,
		Approvals: []manifest.Approval{{Signature: sig1, Member: members[0]}},
	}
	err = env.Validate()
	require.ErrorIs(t, err, manifest.ErrInvalidApprovalSig)
}

func TestGenesisOutputRoundTrip(t *testing.T) {
	g := manifest.GenesisOutput{
		QuorumKey: []byte("quorum pub"),
		MemberOutputs: []manifest.MemberOutput{
			{
				SetupMember:             manifest.SetupMember{Alias: "user1", PubKey: []byte("setup-pub-1")},
				EncryptedPersonalKey:    []byte("enc-personal-1"),
				PublicPersonalKey:       []byte("personal-pub-1"),
				EncryptedQuorumKeyShare: []byte("enc-share-1"),
			},
		},
		Threshold:            1,
		RecoveryPermutations: [][]int{{0}, {0, 1}},
	}

	encoded := manifest.EncodeGenesisOutput(g)
	decoded, err := manifest.DecodeGenesisOutput(encoded)
	require.NoError(t, err)
	require.Equal(t, g, decoded)
}

func TestQuorumSetValidateBounds(t *testing.T) {
	qs := manifest.QuorumSet{Threshold: 0, Members: []manifest.QuorumMember{{Alias: "a", PubKey: []byte("p")}}}
	require.ErrorIs(t, qs.Validate(), manifest.ErrInvalidQuorum)

	qs = manifest.QuorumSet{Threshold: 2, Members: []manifest.QuorumMember{{Alias: "a", PubKey: []byte("p")}}}
	require.ErrorIs(t, qs.Validate(), manifest.ErrInvalidQuorum)

	qs = manifest.QuorumSet{
		Threshold: 1,
		Members: []manifest.QuorumMember{
			{Alias: "a", PubKey: []byte("same")},
			{Alias: "b", PubKey: []byte("same")},
		},
	}
	require.ErrorIs(t, qs.Validate(), manifest.ErrDuplicateMember)
}
