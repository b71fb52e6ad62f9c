//go:build !nitro

package attest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
)

func TestMockAttestorBindsUserDataAndPublicKey(t *testing.T) {
	a := attest.NewMockAttestor("test-enclave")

	doc, err := a.Attest([]byte("manifest hash"), []byte("a nonce"), []byte("ephemeral pub"))
	require.NoError(t, err)
	require.Equal(t, []byte("manifest hash"), doc.UserData)
	require.Equal(t, []byte("a nonce"), doc.Nonce)
	require.Equal(t, []byte("ephemeral pub"), doc.PublicKey)
	require.NoError(t, doc.Validate())
}

func TestMockAttestorDescribePCR(t *testing.T) {
	a := attest.NewMockAttestor("test-enclave")

	val, err := a.DescribePCR(1)
	require.NoError(t, err)
	require.Equal(t, a.PCR1, val)

	_, err = a.DescribePCR(99)
	require.Error(t, err)
}
