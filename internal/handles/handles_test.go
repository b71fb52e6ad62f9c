package handles_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
)

func TestQuorumKeyWriteOnceThenReadable(t *testing.T) {
	h := handles.New(t.TempDir())

	require.False(t, h.QuorumKeyExists())

	require.NoError(t, h.PutQuorumKey([]byte("secret quorum key bytes")))
	require.True(t, h.QuorumKeyExists())

	got, err := h.GetQuorumKey()
	require.NoError(t, err)
	require.Equal(t, []byte("secret quorum key bytes"), got)

	err = h.PutQuorumKey([]byte("overwrite attempt"))
	require.ErrorIs(t, err, handles.ErrHandleAlreadyExists)

	got, err = h.GetQuorumKey()
	require.NoError(t, err)
	require.Equal(t, []byte("secret quorum key bytes"), got)
}

func TestManifestEnvelopeWriteOnce(t *testing.T) {
	h := handles.New(t.TempDir())

	require.False(t, h.ManifestEnvelopeExists())
	require.NoError(t, h.PutManifestEnvelope([]byte("envelope bytes")))
	require.True(t, h.ManifestEnvelopeExists())

	err := h.PutManifestEnvelope([]byte("second write"))
	require.ErrorIs(t, err, handles.ErrHandleAlreadyExists)
}

func TestGetMissingHandleErrors(t *testing.T) {
	h := handles.New(t.TempDir())

	_, err := h.GetQuorumKey()
	require.ErrorIs(t, err, handles.ErrHandleNotFound)
}

func TestPivotWriteOnceAndExecutePermission(t *testing.T) {
	h := handles.New(t.TempDir())

	require.False(t, h.PivotExists())
	require.NoError(t, h.PutPivot([]byte("#!/bin/sh\necho hi\n")))
	require.True(t, h.PivotExists())

	info, err := os.Stat(h.PivotPathFor())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o100), info.Mode().Perm())

	err = h.PutPivot([]byte("replacement"))
	require.ErrorIs(t, err, handles.ErrHandleAlreadyExists)
}

func TestHandlesCreateParentDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested", "deeper")
	h := handles.New(nested)

	require.NoError(t, h.PutEphemeralKey([]byte("ephemeral")))
	got, err := h.GetEphemeralKey()
	require.NoError(t, err)
	require.Equal(t, []byte("ephemeral"), got)
}
