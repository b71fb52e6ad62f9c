// Package coordinator implements the L10 supervisor: it runs the socket
// server on its own goroutine while the calling goroutine polls, at
// 1 Hz, for the three artifacts (quorum key, manifest envelope, pivot)
// to all be present, then spawns and supervises the pivot binary under
// the manifest's restart policy. Ported from
// original_source/qos-core/src/coordinator.rs's Coordinator::execute.
package coordinator

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/metrics"
)

// PollInterval is the fixed 1 Hz cadence spec.md §4.11 specifies for
// checking artifact presence.
const PollInterval = time.Second

// Server is the subset of transport.Server the coordinator needs to
// run on its own goroutine; kept as an interface so tests can supply a
// fake without standing up a real listener.
type Server interface {
	Serve() error
}

// Coordinator spawns the socket server and then supervises the pivot
// binary once all three boot artifacts are present.
type Coordinator struct {
	Server  Server
	Handles handles.Handles
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New constructs a Coordinator.
func New(server Server, h handles.Handles, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{Server: server, Handles: h, Logger: logger}
}

// WithMetrics attaches a metrics.Metrics instance that the pivot
// supervision loop will report restarts into; nil-safe if never called.
func (c *Coordinator) WithMetrics(m *metrics.Metrics) *Coordinator {
	c.Metrics = m
	return c
}

// Execute runs the server in the background and blocks polling for
// artifact presence until ctx is cancelled or the pivot's supervision
// loop exits (Never policy, single run; Always policy, ctx cancelled).
func (c *Coordinator) Execute(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- c.Server.Serve()
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-serverErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.Handles.QuorumKeyExists() && c.Handles.ManifestEnvelopeExists() && c.Handles.PivotExists() {
				return c.supervisePivot(ctx)
			}
		}
	}
}

func (c *Coordinator) supervisePivot(ctx context.Context) error {
	envBytes, err := c.Handles.GetManifestEnvelope()
	if err != nil {
		return err
	}
	env, err := manifest.DecodeManifestEnvelope(envBytes)
	if err != nil {
		return err
	}

	pivotPath := c.Handles.PivotPathFor()
	args := env.Manifest.Pivot.Args

	for first := true; ; first = false {
		if !first && c.Metrics != nil {
			c.Metrics.PivotRestarts.Inc()
		}

		cmd := exec.CommandContext(ctx, pivotPath, args...)
		c.Logger.Info("spawning pivot", slog.String("path", pivotPath))
		err := cmd.Run()
		c.Logger.Info("pivot exited", slog.Any("error", err))

		if env.Manifest.Pivot.Restart == manifest.RestartNever {
			c.Logger.Info("restart policy is Never, coordinator exiting")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			c.Logger.Info("restart policy is Always, restarting pivot")
		}
	}
}
