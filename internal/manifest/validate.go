package manifest

import (
	"errors"
	"fmt"

	"github.com/DRGroveSoftwareLLC/qos/internal/envelope"
)

// ErrValidationFailed prefixes the message of every ManifestEnvelope
// validation failure. ValidationError.Unwrap yields the specific cause
// (one of the sentinels below, or the QuorumSet validation error), so
// errors.Is matches that cause rather than ErrValidationFailed, while
// the enclave-facing message stays human-readable, mirroring
// banhbaoring/errors.go's KeyError/WrapKeyError pattern.
var ErrValidationFailed = errors.New("manifest: envelope validation failed")

var (
	ErrApproverNotMember     = errors.New("manifest: approver is not a quorum set member")
	ErrInvalidApprovalSig    = errors.New("manifest: approval signature does not verify")
	ErrDuplicateApprover     = errors.New("manifest: duplicate approver")
	ErrInsufficientApprovals = errors.New("manifest: approval count below threshold")
)

// ValidationError pairs a sentinel with the offending alias, if any.
type ValidationError struct {
	Sentinel error
	Alias    string
}

func (e *ValidationError) Error() string {
	if e.Alias != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrValidationFailed, e.Sentinel, e.Alias)
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, e.Sentinel)
}

func (e *ValidationError) Unwrap() error { return e.Sentinel }

// Validate checks a ManifestEnvelope per spec.md §3/§8: every approver
// must be a quorum set member, every signature must verify over the
// manifest hash, approvers must be distinct by pub_key, and the count
// must meet the quorum set's threshold.
func (e ManifestEnvelope) Validate() error {
	if err := e.Manifest.QuorumSet.Validate(); err != nil {
		return &ValidationError{Sentinel: err}
	}

	members := make(map[string]bool, len(e.Manifest.QuorumSet.Members))
	for _, m := range e.Manifest.QuorumSet.Members {
		members[string(m.PubKey)] = true
	}

	hash := e.Manifest.Hash()

	seen := make(map[string]bool, len(e.Approvals))
	for _, a := range e.Approvals {
		key := string(a.Member.PubKey)
		if !members[key] {
			return &ValidationError{Sentinel: ErrApproverNotMember, Alias: a.Member.Alias}
		}
		if seen[key] {
			return &ValidationError{Sentinel: ErrDuplicateApprover, Alias: a.Member.Alias}
		}
		seen[key] = true

		pub, err := envelope.DeserializePublicKey(a.Member.PubKey)
		if err != nil {
			return &ValidationError{Sentinel: ErrInvalidApprovalSig, Alias: a.Member.Alias}
		}
		ok, err := envelope.Verify(pub, hash[:], a.Signature)
		if err != nil || !ok {
			return &ValidationError{Sentinel: ErrInvalidApprovalSig, Alias: a.Member.Alias}
		}
	}

	if uint32(len(seen)) < e.Manifest.QuorumSet.Threshold {
		return &ValidationError{Sentinel: ErrInsufficientApprovals}
	}

	return nil
}
