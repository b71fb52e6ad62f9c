package genesis_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
	"github.com/DRGroveSoftwareLLC/qos/internal/genesis"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/shamir"
)

func TestGenesisAnyThresholdSubsetReconstructsQuorumKey(t *testing.T) {
	aliases := []string{"user1", "user2", "user3"}
	setupPrivs := make([]*envelope.PrivateKey, len(aliases))
	members := make([]manifest.SetupMember, len(aliases))
	for i, alias := range aliases {
		priv, pub, err := envelope.GenerateKeypair()
		require.NoError(t, err)
		setupPrivs[i] = priv
		members[i] = manifest.SetupMember{Alias: alias, PubKey: pub.Serialize()}
	}

	svc := genesis.New(attest.NewMockAttestor("test-enclave"))
	out, doc, err := svc.Run(manifest.GenesisSet{Members: members, Threshold: 2})
	require.NoError(t, err)
	require.Len(t, out.MemberOutputs, 3)
	require.NoError(t, doc.Validate())

	quorumPub, err := envelope.DeserializePublicKey(out.QuorumKey)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		perm := rng.Perm(3)[:2]

		shares := make([][]byte, 0, 2)
		for _, idx := range perm {
			mo := out.MemberOutputs[idx]
			personalKeyBytes, err := envelope.Decrypt(setupPrivs[idx], mo.EncryptedPersonalKey)
			require.NoError(t, err)
			personalPriv, err := envelope.DeserializePrivateKey(personalKeyBytes)
			require.NoError(t, err)

			shareBytes, err := envelope.Decrypt(personalPriv, mo.EncryptedQuorumKeyShare)
			require.NoError(t, err)
			shares = append(shares, shareBytes)
		}

		reconstructed, err := shamir.Reconstruct(shares)
		require.NoError(t, err)

		reconstructedPriv, err := envelope.DeserializePrivateKey(reconstructed)
		require.NoError(t, err)
		require.True(t, quorumPub.Equal(reconstructedPriv.Public()))
	}
}

func TestGenesisRejectsInvalidSet(t *testing.T) {
	svc := genesis.New(attest.NewMockAttestor("test-enclave"))
	_, _, err := svc.Run(manifest.GenesisSet{Members: nil, Threshold: 1})
	require.Error(t, err)
}
