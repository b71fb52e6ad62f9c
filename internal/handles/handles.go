// Package handles implements the four write-once, read-many on-disk
// slots the enclave custodies: the ephemeral transport key, the quorum
// key, the manifest envelope, and the pivot binary. Ported directly
// from original_source/qos-core/src/handles.rs's Handles struct — a
// compromised host cannot swap a manifest or key out from under a
// running enclave if the filesystem itself refuses the second write.
package handles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrHandleAlreadyExists = errors.New("handles: slot already written")
	ErrHandleNotFound      = errors.New("handles: slot not found")
	ErrHandleMalformed     = errors.New("handles: slot contents malformed")
)

// keyPerm is the permission bits for key material and the manifest
// envelope; pivotPerm is execute-only, matching handles.rs's
// chmod(0o444)/chmod(0o111) (adapted to Go's 0o400/0o100 read/execute-
// owner-only convention since these files are never group/world
// readable in this deployment model).
const (
	keyPerm   os.FileMode = 0o400
	pivotPerm os.FileMode = 0o100
)

// Handles locates the four persisted slots beneath a root directory.
type Handles struct {
	EphemeralKeyPath     string
	QuorumKeyPath        string
	ManifestEnvelopePath string
	PivotPath            string
}

// New constructs a Handles rooted at dir, using the fixed filenames the
// coordinator and executor both expect to find.
func New(dir string) Handles {
	return Handles{
		EphemeralKeyPath:     filepath.Join(dir, "ephemeral_key.secret"),
		QuorumKeyPath:        filepath.Join(dir, "quorum_key.secret"),
		ManifestEnvelopePath: filepath.Join(dir, "manifest_envelope"),
		PivotPath:            filepath.Join(dir, "pivot"),
	}
}

// PutEphemeralKey writes the ephemeral transport key. Fails if already
// present: the ephemeral key is minted once per boot.
func (h Handles) PutEphemeralKey(data []byte) error {
	return writeAsReadOnly(h.EphemeralKeyPath, data)
}

// GetEphemeralKey reads back the ephemeral transport key.
func (h Handles) GetEphemeralKey() ([]byte, error) {
	return readHandle(h.EphemeralKeyPath)
}

// PutQuorumKey writes the reconstructed quorum key. Fails if already
// present: once provisioned, the quorum key does not change for the
// life of the enclave instance.
func (h Handles) PutQuorumKey(data []byte) error {
	return writeAsReadOnly(h.QuorumKeyPath, data)
}

// GetQuorumKey reads back the quorum key.
func (h Handles) GetQuorumKey() ([]byte, error) {
	return readHandle(h.QuorumKeyPath)
}

// QuorumKeyExists reports whether the quorum key slot has been written.
func (h Handles) QuorumKeyExists() bool {
	return exists(h.QuorumKeyPath)
}

// PutManifestEnvelope installs the approved manifest envelope. Fails if
// already present: a booted enclave runs under exactly one manifest.
func (h Handles) PutManifestEnvelope(data []byte) error {
	return writeAsReadOnly(h.ManifestEnvelopePath, data)
}

// GetManifestEnvelope reads back the installed manifest envelope.
func (h Handles) GetManifestEnvelope() ([]byte, error) {
	return readHandle(h.ManifestEnvelopePath)
}

// ManifestEnvelopeExists reports whether the manifest envelope slot has
// been written.
func (h Handles) ManifestEnvelopeExists() bool {
	return exists(h.ManifestEnvelopePath)
}

// PivotPathFor returns the path the pivot binary is or will be written
// to, for use by the coordinator when it execs the pivot.
func (h Handles) PivotPathFor() string {
	return h.PivotPath
}

// PutPivot writes the pivot binary, execute-only, fails if already
// present.
func (h Handles) PutPivot(data []byte) error {
	if exists(h.PivotPath) {
		return fmt.Errorf("%w: %s", ErrHandleAlreadyExists, h.PivotPath)
	}
	if err := os.MkdirAll(filepath.Dir(h.PivotPath), 0o700); err != nil {
		return fmt.Errorf("handles: create parent dir: %w", err)
	}
	if err := os.WriteFile(h.PivotPath, data, pivotPerm); err != nil {
		return fmt.Errorf("handles: write pivot: %w", err)
	}
	if err := os.Chmod(h.PivotPath, pivotPerm); err != nil {
		return fmt.Errorf("handles: chmod pivot: %w", err)
	}
	return nil
}

// PivotExists reports whether the pivot binary slot has been written.
func (h Handles) PivotExists() bool {
	return exists(h.PivotPath)
}

func writeAsReadOnly(path string, data []byte) error {
	if exists(path) {
		return fmt.Errorf("%w: %s", ErrHandleAlreadyExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("handles: create parent dir: %w", err)
	}
	if err := os.WriteFile(path, data, keyPerm); err != nil {
		return fmt.Errorf("handles: write: %w", err)
	}
	if err := os.Chmod(path, keyPerm); err != nil {
		return fmt.Errorf("handles: chmod: %w", err)
	}
	return nil
}

func readHandle(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, path)
		}
		return nil, fmt.Errorf("handles: read: %w", err)
	}
	return data, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
