package executor_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
	"github.com/DRGroveSoftwareLLC/qos/internal/executor"
	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/phase"
	"github.com/DRGroveSoftwareLLC/qos/internal/protocol"
	"github.com/DRGroveSoftwareLLC/qos/internal/shamir"
	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

func newExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	return executor.New(handles.New(t.TempDir()), attest.NewMockAttestor("test-enclave"), nil)
}

func TestGenesisRecoveryEndToEnd(t *testing.T) {
	exec := newExecutor(t)

	aliases := []string{"user1", "user2", "user3"}
	setupPrivs := make([]*envelope.PrivateKey, len(aliases))
	members := make([]manifest.SetupMember, len(aliases))
	for i, alias := range aliases {
		priv, pub, err := envelope.GenerateKeypair()
		require.NoError(t, err)
		setupPrivs[i] = priv
		members[i] = manifest.SetupMember{Alias: alias, PubKey: pub.Serialize()}
	}

	req := protocol.EncodeRequest(protocol.Request{
		Type:       protocol.MsgBootGenesisRequest,
		GenesisSet: manifest.GenesisSet{Members: members, Threshold: 2},
	})
	resp, err := protocol.DecodeResponse(exec.Handle(req))
	require.NoError(t, err)
	require.Equal(t, protocol.MsgBootGenesisResponse, resp.Type)
	require.Equal(t, phase.GenesisBooted, exec.Phase())

	quorumPub, err := envelope.DeserializePublicKey(resp.GenesisOutput.QuorumKey)
	require.NoError(t, err)

	var shares [][]byte
	for i := 0; i < 2; i++ {
		mo := resp.GenesisOutput.MemberOutputs[i]
		personalKeyBytes, err := envelope.Decrypt(setupPrivs[i], mo.EncryptedPersonalKey)
		require.NoError(t, err)
		personalPriv, err := envelope.DeserializePrivateKey(personalKeyBytes)
		require.NoError(t, err)
		share, err := envelope.Decrypt(personalPriv, mo.EncryptedQuorumKeyShare)
		require.NoError(t, err)
		shares = append(shares, share)
	}

	secret, err := shamir.Reconstruct(shares)
	require.NoError(t, err)
	reconstructedPriv, err := envelope.DeserializePrivateKey(secret)
	require.NoError(t, err)
	require.True(t, quorumPub.Equal(reconstructedPriv.Public()))
}

func TestHappyPathBootThenAttestation(t *testing.T) {
	exec := newExecutor(t)
	env, pivot := validEnvelopeForExecutor(t, 2)

	req := protocol.EncodeRequest(protocol.Request{
		Type:             protocol.MsgBootStandardRequest,
		ManifestEnvelope: env.ManifestEnvelope,
		Pivot:            pivot,
	})
	resp, err := protocol.DecodeResponse(exec.Handle(req))
	require.NoError(t, err)
	require.Equal(t, protocol.MsgBootStandardResponse, resp.Type)

	manifestHash := env.Manifest.Hash()
	require.Equal(t, manifestHash[:], resp.Attestation.UserData)
	require.Equal(t, phase.WaitingForQuorumShards, exec.Phase())
}

func TestWrongPivotBytesRejected(t *testing.T) {
	exec := newExecutor(t)
	env, _ := validEnvelopeForExecutor(t, 2)

	req := protocol.EncodeRequest(protocol.Request{
		Type:             protocol.MsgBootStandardRequest,
		ManifestEnvelope: env.ManifestEnvelope,
		Pivot:            []byte("wrong bytes"),
	})
	resp, err := protocol.DecodeResponse(exec.Handle(req))
	require.NoError(t, err)
	require.Equal(t, protocol.MsgProtocolErrorResponse, resp.Type)
	require.Equal(t, wire.ErrorManifestValidationFailure, resp.Error.Kind)
	require.Equal(t, phase.WaitingForBootInstruction, exec.Phase())
}

func TestInsufficientApprovalsRejected(t *testing.T) {
	exec := newExecutor(t)
	env, pivot := validEnvelopeForExecutor(t, 2)
	env.Approvals = env.Approvals[:1]

	req := protocol.EncodeRequest(protocol.Request{
		Type:             protocol.MsgBootStandardRequest,
		ManifestEnvelope: env.ManifestEnvelope,
		Pivot:            pivot,
	})
	resp, err := protocol.DecodeResponse(exec.Handle(req))
	require.NoError(t, err)
	require.Equal(t, protocol.MsgProtocolErrorResponse, resp.Type)
	require.Equal(t, wire.ErrorManifestValidationFailure, resp.Error.Kind)
}

func TestProvisionThresholdReachedTransitionsPhase(t *testing.T) {
	exec := newExecutor(t)
	env, pivot := validEnvelopeForExecutor(t, 2)

	bootReq := protocol.EncodeRequest(protocol.Request{
		Type:             protocol.MsgBootStandardRequest,
		ManifestEnvelope: env.ManifestEnvelope,
		Pivot:            pivot,
	})
	bootResp, err := protocol.DecodeResponse(exec.Handle(bootReq))
	require.NoError(t, err)
	ephemeralPub, err := envelope.DeserializePublicKey(bootResp.Attestation.PublicKey)
	require.NoError(t, err)

	shares, err := shamir.Split(env.quorumPriv.Serialize(), 3, 2)
	require.NoError(t, err)

	enc0, err := envelope.Encrypt(ephemeralPub, shares[0])
	require.NoError(t, err)
	resp1, err := protocol.DecodeResponse(exec.Handle(protocol.EncodeRequest(protocol.Request{Type: protocol.MsgProvisionRequest, Share: enc0})))
	require.NoError(t, err)
	require.False(t, resp1.Reconstructed)
	require.Equal(t, phase.WaitingForQuorumShards, exec.Phase())

	enc1, err := envelope.Encrypt(ephemeralPub, shares[1])
	require.NoError(t, err)
	resp2, err := protocol.DecodeResponse(exec.Handle(protocol.EncodeRequest(protocol.Request{Type: protocol.MsgProvisionRequest, Share: enc1})))
	require.NoError(t, err)
	require.True(t, resp2.Reconstructed)
	require.Equal(t, phase.QuorumKeyProvisioned, exec.Phase())
}

func TestNsmRequestDispatchesToAttestor(t *testing.T) {
	exec := newExecutor(t)

	req := protocol.EncodeRequest(protocol.Request{
		Type:      protocol.MsgNsmRequest,
		UserData:  []byte("user data"),
		PublicKey: []byte("ephemeral pub"),
	})
	resp, err := protocol.DecodeResponse(exec.Handle(req))
	require.NoError(t, err)
	require.Equal(t, protocol.MsgNsmResponse, resp.Type)
	require.Equal(t, []byte("user data"), resp.Attestation.UserData)
	require.Equal(t, []byte("ephemeral pub"), resp.Attestation.PublicKey)
}

func TestPivotRestartPolicyIsPinnedByManifest(t *testing.T) {
	env, _ := validEnvelopeForExecutor(t, 1)
	require.Equal(t, manifest.RestartAlways, env.Manifest.Pivot.Restart)
}

// envelopeWithKey wraps a manifest envelope together with the quorum
// private key it was built around, so provisioning tests can split
// genuine shares against the same key the manifest pins.
type envelopeWithKey struct {
	manifest.ManifestEnvelope
	quorumPriv *envelope.PrivateKey
}

func validEnvelopeForExecutor(t *testing.T, threshold uint32) (envelopeWithKey, []byte) {
	t.Helper()
	pivot := []byte("pivot binary contents")

	aliases := []string{"user1", "user2", "user3"}
	privs := make([]*envelope.PrivateKey, len(aliases))
	members := make([]manifest.QuorumMember, len(aliases))
	for i, alias := range aliases {
		priv, pub, err := envelope.GenerateKeypair()
		require.NoError(t, err)
		privs[i] = priv
		members[i] = manifest.QuorumMember{Alias: alias, PubKey: pub.Serialize()}
	}

	quorumPriv, quorumPub, err := envelope.GenerateKeypair()
	require.NoError(t, err)

	pivotHash := sha256.Sum256(pivot)
	m := manifest.Manifest{
		Namespace: manifest.Namespace{Name: "ns", Nonce: 1},
		Pivot:     manifest.PivotConfig{Hash: pivotHash, Restart: manifest.RestartAlways},
		QuorumKey: quorumPub.Serialize(),
		QuorumSet: manifest.QuorumSet{Threshold: threshold, Members: members},
		Enclave: manifest.NitroConfig{
			PCR0:               make([]byte, 32),
			PCR1:               make([]byte, 48),
			PCR2:               make([]byte, 64),
			AWSRootCertificate: []byte("der"),
		},
	}
	hash := m.Hash()

	approvals := make([]manifest.Approval, len(members))
	for i, priv := range privs {
		sig, err := envelope.Sign(priv, hash[:])
		require.NoError(t, err)
		approvals[i] = manifest.Approval{Signature: sig, Member: members[i]}
	}

	env := envelopeWithKey{
		ManifestEnvelope: manifest.ManifestEnvelope{Manifest: m, Approvals: approvals},
		quorumPriv:       quorumPriv,
	}
	return env, pivot
}
