package coordinator_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DRGroveSoftwareLLC/qos/internal/coordinator"
	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
)

type blockingServer struct{ stop chan struct{} }

func (s *blockingServer) Serve() error {
	<-s.stop
	return nil
}

func shellPivot(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pivot supervision test assumes a POSIX shell")
	}
	path := t.TempDir() + "/pivot.sh"
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func TestCoordinatorRunsPivotOnceUnderNeverPolicy(t *testing.T) {
	h := handles.New(t.TempDir())

	env := manifest.ManifestEnvelope{
		Manifest: manifest.Manifest{
			Pivot: manifest.PivotConfig{Restart: manifest.RestartNever},
		},
	}
	require.NoError(t, h.PutManifestEnvelope(manifest.EncodeManifestEnvelope(env)))
	require.NoError(t, h.PutQuorumKey([]byte("quorum key bytes")))

	pivotScript := shellPivot(t)
	pivotBytes, err := os.ReadFile(pivotScript)
	require.NoError(t, err)
	require.NoError(t, h.PutPivot(pivotBytes))
	require.NoError(t, os.Chmod(h.PivotPathFor(), 0o755))

	srv := &blockingServer{stop: make(chan struct{})}
	defer close(srv.stop)

	c := coordinator.New(srv, h, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Execute(ctx)
	require.NoError(t, err)
}

func failingPivot(t *testing.T, counterPath string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pivot supervision test assumes a POSIX shell")
	}
	path := t.TempDir() + "/pivot.sh"
	script := fmt.Sprintf("#!/bin/sh\necho run >> %s\nexit 1\n", counterPath)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCoordinatorRestartsPivotUnderAlwaysPolicy(t *testing.T) {
	h := handles.New(t.TempDir())

	env := manifest.ManifestEnvelope{
		Manifest: manifest.Manifest{
			Pivot: manifest.PivotConfig{Restart: manifest.RestartAlways},
		},
	}
	require.NoError(t, h.PutManifestEnvelope(manifest.EncodeManifestEnvelope(env)))
	require.NoError(t, h.PutQuorumKey([]byte("quorum key bytes")))

	counterPath := t.TempDir() + "/runs"
	pivotScript := failingPivot(t, counterPath)
	pivotBytes, err := os.ReadFile(pivotScript)
	require.NoError(t, err)
	require.NoError(t, h.PutPivot(pivotBytes))
	require.NoError(t, os.Chmod(h.PivotPathFor(), 0o755))

	srv := &blockingServer{stop: make(chan struct{})}
	defer close(srv.stop)

	c := coordinator.New(srv, h, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	go func() {
		for time.Since(start) < 3*time.Second {
			data, _ := os.ReadFile(counterPath)
			if bytes.Count(data, []byte("\n")) >= 2 {
				cancel()
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	err = c.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 3*time.Second)

	data, err := os.ReadFile(counterPath)
	require.NoError(t, err)
	require.GreaterOrEqual(t, bytes.Count(data, []byte("\n")), 2)
}
