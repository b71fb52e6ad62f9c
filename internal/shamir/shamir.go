// Package shamir implements K-of-N secret sharing over GF(2^8), adapting
// the OpenBao/Vault unseal-sharding library (github.com/hashicorp/vault/shamir)
// rather than hand-rolling the polynomial arithmetic: the upstream package
// is the same byte-wise Shamir scheme this spec calls for, already vetted
// by years of production use unsealing Vault/OpenBao clusters, and is a
// direct relative of the go-secure-stdlib family already present in the
// plugin's dependency tree.
//
// The spec (spec.md §4.3) requires each share to be |secret|+1 bytes with
// the x-coordinate as the FIRST byte; the upstream library places it LAST.
// Split and Reconstruct rotate the byte on the way in/out so the wire
// format matches the spec exactly while the math stays upstream's.
package shamir

import (
	"errors"
	"fmt"

	vaultshamir "github.com/hashicorp/vault/shamir"
)

// ErrInvalidParams is returned when N or K violate the spec's bounds.
var ErrInvalidParams = errors.New("shamir: invalid n/k parameters")

// ErrEmptyShares is returned when Reconstruct is called with no shares.
var ErrEmptyShares = errors.New("shamir: no shares supplied")

// ErrMalformedShare is returned when a share is shorter than the
// x-coordinate prefix it is required to carry.
var ErrMalformedShare = errors.New("shamir: malformed share")

// Split divides secret into n shares such that any k of them reconstruct
// it exactly. Each returned share is len(secret)+1 bytes, first byte the
// distinct non-zero x-coordinate.
func Split(secret []byte, n, k int) ([][]byte, error) {
	if k < 1 || n < k || n > 255 {
		return nil, fmt.Errorf("%w: n=%d k=%d", ErrInvalidParams, n, k)
	}
	if len(secret) == 0 {
		return nil, errors.New("shamir: secret must not be empty")
	}

	upstream, err := vaultshamir.Split(secret, n, k)
	if err != nil {
		return nil, fmt.Errorf("shamir: split: %w", err)
	}

	shares := make([][]byte, len(upstream))
	for i, s := range upstream {
		shares[i] = xCoordLastToFirst(s)
	}
	return shares, nil
}

// Reconstruct interpolates at x=0 over every share it is given; the
// upstream Combine rejects fewer than two shares and duplicate
// x-coordinates. Callers are responsible for supplying at least K
// distinct shares; two or more but fewer than K yields arbitrary bytes,
// not an error.
func Reconstruct(shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrEmptyShares
	}

	upstream := make([][]byte, len(shares))
	for i, s := range shares {
		if len(s) < 2 {
			return nil, fmt.Errorf("%w: share %d has length %d", ErrMalformedShare, i, len(s))
		}
		upstream[i] = xCoordFirstToLast(s)
	}

	secret, err := vaultshamir.Combine(upstream)
	if err != nil {
		return nil, fmt.Errorf("shamir: reconstruct: %w", err)
	}
	return secret, nil
}

// XCoordinate returns the x-coordinate byte a share was split under.
func XCoordinate(share []byte) (byte, error) {
	if len(share) < 1 {
		return 0, ErrMalformedShare
	}
	return share[0], nil
}

func xCoordLastToFirst(share []byte) []byte {
	out := make([]byte, len(share))
	out[0] = share[len(share)-1]
	copy(out[1:], share[:len(share)-1])
	return out
}

func xCoordFirstToLast(share []byte) []byte {
	out := make([]byte, len(share))
	copy(out, share[1:])
	out[len(out)-1] = share[0]
	return out
}
