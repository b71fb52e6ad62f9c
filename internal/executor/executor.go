// Package executor implements the L9 dispatch layer: it maps each
// protocol message to its permitted phases and handler, consulting the
// phase machine before invoking a service and advancing phase only on
// success. Grounded on
// control-plane/cmd/popsigner-lite/internal/jsonrpc/server.go's
// RegisterMethod dispatch-table pattern, adapted from a name-keyed JSON-
// RPC table to a (MsgType -> permitted phases, handler) table keyed on
// the wire protocol's binary discriminant.
package executor

import (
	"fmt"
	"log/slog"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/boot"
	"github.com/DRGroveSoftwareLLC/qos/internal/genesis"
	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/metrics"
	"github.com/DRGroveSoftwareLLC/qos/internal/phase"
	"github.com/DRGroveSoftwareLLC/qos/internal/protocol"
	"github.com/DRGroveSoftwareLLC/qos/internal/provision"
	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

// Executor owns the phase machine and every service it dispatches to.
// Per spec.md §5, it is touched only by the single server thread that
// calls Handle — it carries no internal locking.
type Executor struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	handles  handles.Handles
	attestor attest.Attestor
	phase    *phase.Machine

	genesisRan bool
	boot       *boot.Service
	provision  *provision.Service
}

// New constructs an Executor in the initial WaitingForBootInstruction
// phase.
func New(h handles.Handles, attestor attest.Attestor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Logger:   logger,
		handles:  h,
		attestor: attestor,
		phase:    phase.New(),
		boot:     boot.New(h, attestor),
	}
}

// WithMetrics attaches a metrics.Metrics instance that Handle and the
// phase-transition helpers will report into; nil-safe if never called.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.Metrics = m
	return e
}

// Phase returns the executor's current phase, for tests and metrics.
func (e *Executor) Phase() phase.Phase {
	return e.phase.Current()
}

// Handle decodes a request frame, dispatches it, and returns a response
// frame. It never panics past this point for protocol-level reasons;
// the transport.Server's own recover is the second line of defence for
// anything this layer fails to anticipate.
func (e *Executor) Handle(requestFrame []byte) []byte {
	req, err := protocol.DecodeRequest(requestFrame)
	if err != nil {
		return protocol.EncodeError(wire.ProtocolError{Kind: wire.ErrorMalformedFrame, Reason: err.Error()})
	}

	if e.Metrics != nil {
		e.Metrics.RequestsTotal.WithLabelValues(fmt.Sprint(req.Type)).Inc()
	}

	if e.phase.Current() == phase.Unrecoverable {
		return protocol.EncodeError(wire.ProtocolError{Kind: wire.ErrorUnrecoverableState})
	}

	allowed, handler := e.route(req.Type)
	if handler == nil {
		return protocol.EncodeError(wire.ProtocolError{
			Kind:   wire.ErrorSerializationError,
			Reason: fmt.Sprintf("unrecognised message type %d", req.Type),
		})
	}
	if !phase.Permits(e.phase.Current(), allowed...) {
		return protocol.EncodeError(wire.ProtocolError{
			Kind:   wire.ErrorInvalidPhase,
			Reason: fmt.Sprintf("message type %d not permitted in phase %s", req.Type, e.phase.Current()),
		})
	}

	resp, protoErr := handler(req)
	if protoErr != nil {
		if protoErr.Kind == wire.ErrorUnrecoverableState {
			e.phase.ToUnrecoverable()
		}
		e.Logger.Warn("request failed", slog.String("error_kind", protoErr.Kind.String()))
		if e.Metrics != nil {
			e.Metrics.ProtocolErrors.WithLabelValues(protoErr.Kind.String()).Inc()
		}
		return protocol.EncodeError(*protoErr)
	}
	if e.Metrics != nil {
		e.Metrics.CurrentPhase.Set(float64(e.phase.Current()))
	}
	return protocol.EncodeResponse(resp)
}

// PanicResponse translates a recovered handler panic into an
// UnrecoverableState protocol error and forces the phase machine into
// Unrecoverable, wired into transport.Server.PanicResponse.
func (e *Executor) PanicResponse(recovered any) []byte {
	e.phase.ToUnrecoverable()
	return protocol.EncodeError(wire.ProtocolError{
		Kind:   wire.ErrorUnrecoverableState,
		Reason: fmt.Sprintf("recovered panic: %v", recovered),
	})
}

type handlerFunc func(protocol.Request) (protocol.Response, *wire.ProtocolError)

func (e *Executor) route(t protocol.MsgType) ([]phase.Phase, handlerFunc) {
	switch t {
	case protocol.MsgNsmRequest:
		return []phase.Phase{
			phase.WaitingForBootInstruction, phase.GenesisBooted,
			phase.WaitingForQuorumShards, phase.QuorumKeyProvisioned,
		}, e.handleNsm
	case protocol.MsgLiveAttestationDocRequest:
		return []phase.Phase{
			phase.WaitingForBootInstruction, phase.GenesisBooted,
			phase.WaitingForQuorumShards, phase.QuorumKeyProvisioned,
		}, e.handleLiveAttestationDoc
	case protocol.MsgBootGenesisRequest:
		return []phase.Phase{phase.WaitingForBootInstruction}, e.handleBootGenesis
	case protocol.MsgBootStandardRequest:
		return []phase.Phase{phase.WaitingForBootInstruction}, e.handleBootStandard
	case protocol.MsgProvisionRequest:
		return []phase.Phase{phase.WaitingForQuorumShards}, e.handleProvision
	default:
		return nil, nil
	}
}

func (e *Executor) handleLiveAttestationDoc(protocol.Request) (protocol.Response, *wire.ProtocolError) {
	doc, err := e.attestor.Attest(nil, nil, nil)
	if err != nil {
		return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorAttestationFailure, Reason: err.Error()}
	}
	return protocol.Response{Type: protocol.MsgLiveAttestationDocResponse, Attestation: doc}, nil
}

func (e *Executor) handleNsm(req protocol.Request) (protocol.Response, *wire.ProtocolError) {
	doc, err := e.attestor.Attest(req.UserData, req.Nonce, req.PublicKey)
	if err != nil {
		return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorAttestationFailure, Reason: err.Error()}
	}
	return protocol.Response{Type: protocol.MsgNsmResponse, Attestation: doc}, nil
}

func (e *Executor) handleBootGenesis(req protocol.Request) (protocol.Response, *wire.ProtocolError) {
	if e.genesisRan {
		return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorInvalidPhase, Reason: "genesis already ran"}
	}

	svc := genesis.New(e.attestor)
	out, doc, err := svc.Run(req.GenesisSet)
	if err != nil {
		return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorCryptoFailure, Reason: err.Error()}
	}
	e.genesisRan = true

	if err := e.phase.ToGenesisBooted(); err != nil {
		e.phase.ToUnrecoverable()
		return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: err.Error()}
	}
	e.recordPhaseTransition()

	return protocol.Response{
		Type:          protocol.MsgBootGenesisResponse,
		Attestation:   doc,
		GenesisOutput: out,
	}, nil
}

func (e *Executor) handleBootStandard(req protocol.Request) (protocol.Response, *wire.ProtocolError) {
	result, protoErr := e.boot.Run(req.ManifestEnvelope, req.Pivot)
	if protoErr != nil {
		return protocol.Response{}, protoErr
	}

	e.provision = provision.New(e.handles, result.EphemeralPrivate, req.ManifestEnvelope.Manifest)

	if err := e.phase.ToWaitingForQuorumShards(); err != nil {
		e.phase.ToUnrecoverable()
		return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: err.Error()}
	}
	e.recordPhaseTransition()

	return protocol.Response{Type: protocol.MsgBootStandardResponse, Attestation: result.Attestation}, nil
}

func (e *Executor) handleProvision(req protocol.Request) (protocol.Response, *wire.ProtocolError) {
	reconstructed, protoErr := e.provision.Accept(req.Share)
	if protoErr != nil {
		return protocol.Response{}, protoErr
	}
	if e.Metrics != nil {
		e.Metrics.ShardsAccepted.Inc()
	}

	if reconstructed {
		if err := e.phase.ToQuorumKeyProvisioned(); err != nil {
			e.phase.ToUnrecoverable()
			return protocol.Response{}, &wire.ProtocolError{Kind: wire.ErrorUnrecoverableState, Reason: err.Error()}
		}
		e.recordPhaseTransition()
	}

	return protocol.Response{Type: protocol.MsgProvisionResponse, Reconstructed: reconstructed}, nil
}

func (e *Executor) recordPhaseTransition() {
	if e.Metrics == nil {
		return
	}
	e.Metrics.PhaseTransitions.WithLabelValues(e.phase.Current().String()).Inc()
}
