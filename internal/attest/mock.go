//go:build !nitro

package attest

import (
	"crypto/sha512"
	"fmt"
)

// MockAttestor satisfies Attestor without a hardware NSM device, for
// tests and local development outside an actual enclave. It reports
// fixed PCR values and a self-signed-in-spirit CA bundle placeholder;
// callers must not treat its documents as cryptographically meaningful.
type MockAttestor struct {
	ModuleID string
	PCR0     []byte
	PCR1     []byte
	PCR2     []byte
	CABundle [][]byte

	// Now returns the timestamp to embed; defaults to a fixed non-zero
	// value if unset so tests stay deterministic without depending on
	// wall-clock time.
	Now func() uint64
}

// NewMockAttestor constructs a MockAttestor with plausible default PCR
// digests and a non-empty placeholder CA bundle, satisfying Validate
// without requiring every test to populate boilerplate fields.
func NewMockAttestor(moduleID string) *MockAttestor {
	return &MockAttestor{
		ModuleID: moduleID,
		PCR0:     fixedDigest("pcr0"),
		PCR1:     fixedDigest("pcr1"),
		PCR2:     fixedDigest("pcr2"),
		CABundle: [][]byte{fixedDigest("mock-ca-cert")},
	}
}

func fixedDigest(label string) []byte {
	sum := sha512.Sum384([]byte(label))
	return sum[:]
}

func (m *MockAttestor) Attest(userData, nonce, publicKey []byte) (Document, error) {
	now := uint64(1)
	if m.Now != nil {
		now = m.Now()
	}

	doc := Document{
		ModuleID:  m.ModuleID,
		Digest:    sha384Digest,
		Timestamp: now,
		PCRs: []PCR{
			{Index: 0, Digest: m.PCR0},
			{Index: 1, Digest: m.PCR1},
			{Index: 2, Digest: m.PCR2},
		},
		CABundle:  m.CABundle,
		PublicKey: publicKey,
		UserData:  userData,
		Nonce:     nonce,
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DescribePCR returns the mock attestor's fixed digest for index in
// {0,1,2}; any other index is out of range for this deterministic
// three-register stand-in.
func (m *MockAttestor) DescribePCR(index int) ([]byte, error) {
	switch index {
	case 0:
		return m.PCR0, nil
	case 1:
		return m.PCR1, nil
	case 2:
		return m.PCR2, nil
	default:
		return nil, fmt.Errorf("attest: mock attestor has no pcr at index %d", index)
	}
}
