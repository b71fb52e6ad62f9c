// Package phase implements the enclave's process-wide lifecycle gate.
// It is deliberately not a goroutine-safe type: spec.md §5 is explicit
// that the phase and pending-shard set are touched only by the single
// server thread, never a shared mutex, so Machine carries no locking of
// its own — the executor is its sole owner.
package phase

import "fmt"

// Phase is the enclave's position in its boot lifecycle.
type Phase uint8

const (
	WaitingForBootInstruction Phase = iota
	GenesisBooted
	WaitingForQuorumShards
	QuorumKeyProvisioned
	Unrecoverable
)

func (p Phase) String() string {
	switch p {
	case WaitingForBootInstruction:
		return "WaitingForBootInstruction"
	case GenesisBooted:
		return "GenesisBooted"
	case WaitingForQuorumShards:
		return "WaitingForQuorumShards"
	case QuorumKeyProvisioned:
		return "QuorumKeyProvisioned"
	case Unrecoverable:
		return "Unrecoverable"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Machine holds the current phase. It is not concurrency-safe by
// design; see the package doc comment.
type Machine struct {
	current Phase
}

// New starts a Machine in WaitingForBootInstruction, the enclave's
// initial state on every cold start.
func New() *Machine {
	return &Machine{current: WaitingForBootInstruction}
}

// Current returns the machine's present phase.
func (m *Machine) Current() Phase {
	return m.current
}

// Permits reports whether the given phase is among allowed.
func Permits(current Phase, allowed ...Phase) bool {
	for _, p := range allowed {
		if current == p {
			return true
		}
	}
	return false
}

// ToGenesisBooted transitions WaitingForBootInstruction -> GenesisBooted,
// the terminal state for a genesis-booted enclave.
func (m *Machine) ToGenesisBooted() error {
	if m.current != WaitingForBootInstruction {
		return fmt.Errorf("phase: cannot enter GenesisBooted from %s", m.current)
	}
	m.current = GenesisBooted
	return nil
}

// ToWaitingForQuorumShards transitions WaitingForBootInstruction ->
// WaitingForQuorumShards, entered once a BootStandard request installs
// a valid manifest envelope.
func (m *Machine) ToWaitingForQuorumShards() error {
	if m.current != WaitingForBootInstruction {
		return fmt.Errorf("phase: cannot enter WaitingForQuorumShards from %s", m.current)
	}
	m.current = WaitingForQuorumShards
	return nil
}

// ToQuorumKeyProvisioned transitions WaitingForQuorumShards ->
// QuorumKeyProvisioned, entered once threshold reconstruction succeeds.
func (m *Machine) ToQuorumKeyProvisioned() error {
	if m.current != WaitingForQuorumShards {
		return fmt.Errorf("phase: cannot enter QuorumKeyProvisioned from %s", m.current)
	}
	m.current = QuorumKeyProvisioned
	return nil
}

// ToUnrecoverable forces the distinguished unrecoverable state from any
// phase, entered on any self-inconsistency discovered post-boot (e.g. a
// stored manifest envelope that fails to re-validate).
func (m *Machine) ToUnrecoverable() {
	m.current = Unrecoverable
}
