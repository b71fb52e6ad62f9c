//go:build !nitro

package attest

import "fmt"

// New constructs the Attestor this build supports. In a !nitro build
// only "mock" is available; requesting "nitro" here means the binary
// was built without the nitro tag.
func New(mode, moduleID string) (Attestor, error) {
	switch mode {
	case "mock", "":
		return NewMockAttestor(moduleID), nil
	case "nitro":
		return nil, fmt.Errorf("attest: binary built without the nitro tag, cannot use attestor.mode=nitro")
	default:
		return nil, fmt.Errorf("attest: unknown attestor mode %q", mode)
	}
}
