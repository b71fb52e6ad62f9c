package phase_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/phase"
)

func TestInitialPhaseIsWaitingForBootInstruction(t *testing.T) {
	m := phase.New()
	require.Equal(t, phase.WaitingForBootInstruction, m.Current())
}

func TestGenesisBootIsTerminalFromWaitingForBootInstruction(t *testing.T) {
	m := phase.New()
	require.NoError(t, m.ToGenesisBooted())
	require.Equal(t, phase.GenesisBooted, m.Current())

	err := m.ToWaitingForQuorumShards()
	require.Error(t, err)
}

func TestStandardBootThenProvisionFlow(t *testing.T) {
	m := phase.New()
	require.NoError(t, m.ToWaitingForQuorumShards())
	require.Equal(t, phase.WaitingForQuorumShards, m.Current())

	require.NoError(t, m.ToQuorumKeyProvisioned())
	require.Equal(t, phase.QuorumKeyProvisioned, m.Current())

	err := m.ToWaitingForQuorumShards()
	require.Error(t, err)
}

func TestUnrecoverableReachableFromAnyPhase(t *testing.T) {
	m := phase.New()
	m.ToUnrecoverable()
	require.Equal(t, phase.Unrecoverable, m.Current())
}

func TestPermitsChecksMembership(t *testing.T) {
	require.True(t, phase.Permits(phase.WaitingForQuorumShards, phase.WaitingForBootInstruction, phase.WaitingForQuorumShards))
	require.False(t, phase.Permits(phase.QuorumKeyProvisioned, phase.WaitingForBootInstruction, phase.WaitingForQuorumShards))
}
