//go:build nitro

package attest

import "fmt"

// New constructs the Attestor this build supports. The nitro tag
// compiles the mock attestor out entirely, so a nitro binary cannot be
// misconfigured into skipping real hardware attestation.
func New(mode, _ string) (Attestor, error) {
	switch mode {
	case "nitro", "":
		return NewNitroAttestor()
	default:
		return nil, fmt.Errorf("attest: binary built with the nitro tag, cannot use attestor.mode=%q", mode)
	}
}
