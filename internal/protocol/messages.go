// Package protocol encodes and decodes the enclave socket's tagged
// request/response union (spec.md §6), gluing the low-level wire codec
// to the higher-level manifest and attestation document types. It sits
// above internal/wire and internal/manifest so neither of those needs
// to know about the other.
package protocol

import (
	"fmt"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/manifest"
	"github.com/DRGroveSoftwareLLC/qos/internal/wire"
)

// Request is the decoded form of any inbound frame.
type Request struct {
	Type MsgType

	// LiveAttestationDocRequest carries no payload beyond the
	// discriminant.
	UserData  []byte // NsmRequest
	PublicKey []byte // NsmRequest

	Nonce []byte // NsmRequest

	GenesisSet manifest.GenesisSet // BootGenesisRequest

	ManifestEnvelope manifest.ManifestEnvelope // BootStandardRequest
	Pivot            []byte                    // BootStandardRequest

	Share []byte // ProvisionRequest
}

// Response is the decoded form of any outbound frame.
type Response struct {
	Type MsgType

	Attestation attest.Document // NsmResponse / BootGenesisResponse / BootStandardResponse / LiveAttestationDocResponse

	GenesisOutput manifest.GenesisOutput // BootGenesisResponse

	Reconstructed bool // ProvisionResponse

	Error wire.ProtocolError // ProtocolErrorResponse
}

// MsgType re-exports wire.MsgType so callers importing protocol don't
// also need to import wire for the discriminant constants.
type MsgType = wire.MsgType

const (
	MsgNsmRequest                 = wire.MsgNsmRequest
	MsgNsmResponse                = wire.MsgNsmResponse
	MsgBootGenesisRequest         = wire.MsgBootGenesisRequest
	MsgBootGenesisResponse        = wire.MsgBootGenesisResponse
	MsgBootStandardRequest        = wire.MsgBootStandardRequest
	MsgBootStandardResponse       = wire.MsgBootStandardResponse
	MsgProvisionRequest           = wire.MsgProvisionRequest
	MsgProvisionResponse          = wire.MsgProvisionResponse
	MsgLiveAttestationDocRequest  = wire.MsgLiveAttestationDocRequest
	MsgLiveAttestationDocResponse = wire.MsgLiveAttestationDocResponse
	MsgProtocolErrorResponse      = wire.MsgProtocolErrorResponse
)

func encodeDocument(w *wire.Writer, d attest.Document) {
	w.WriteString(d.ModuleID)
	w.WriteString(d.Digest)
	w.WriteU64(d.Timestamp)
	w.WriteU32(uint32(len(d.PCRs)))
	for _, pcr := range d.PCRs {
		w.WriteU32(uint32(pcr.Index))
		w.WriteBytes(pcr.Digest)
	}
	w.WriteU32(uint32(len(d.CABundle)))
	for _, entry := range d.CABundle {
		w.WriteBytes(entry)
	}
	w.WriteOptionalBytes(d.PublicKey)
	w.WriteBytes(d.UserData)
	w.WriteOptionalBytes(d.Nonce)
}

func decodeDocument(r *wire.Reader) (attest.Document, error) {
	var d attest.Document
	var err error

	if d.ModuleID, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Digest, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Timestamp, err = r.ReadU64(); err != nil {
		return d, err
	}

	pcrCount, err := r.ReadU32()
	if err != nil {
		return d, err
	}
	d.PCRs = make([]attest.PCR, pcrCount)
	for i := range d.PCRs {
		idx, err := r.ReadU32()
		if err != nil {
			return d, err
		}
		digest, err := r.ReadBytes()
		if err != nil {
			return d, err
		}
		d.PCRs[i] = attest.PCR{Index: uint16(idx), Digest: digest}
	}

	caCount, err := r.ReadU32()
	if err != nil {
		return d, err
	}
	d.CABundle = make([][]byte, caCount)
	for i := range d.CABundle {
		if d.CABundle[i], err = r.ReadBytes(); err != nil {
			return d, err
		}
	}

	if d.PublicKey, err = r.ReadOptionalBytes(); err != nil {
		return d, err
	}
	if d.UserData, err = r.ReadBytes(); err != nil {
		return d, err
	}
	if d.Nonce, err = r.ReadOptionalBytes(); err != nil {
		return d, err
	}

	return d, nil
}

func encodeGenesisSet(w *wire.Writer, gs manifest.GenesisSet) {
	w.WriteU32(gs.Threshold)
	w.WriteU32(uint32(len(gs.Members)))
	for _, m := range gs.Members {
		w.WriteString(m.Alias)
		w.WriteBytes(m.PubKey)
	}
}

func decodeGenesisSet(r *wire.Reader) (manifest.GenesisSet, error) {
	var gs manifest.GenesisSet
	var err error
	if gs.Threshold, err = r.ReadU32(); err != nil {
		return gs, err
	}
	n, err := r.ReadU32()
	if err != nil {
		return gs, err
	}
	gs.Members = make([]manifest.SetupMember, n)
	for i := range gs.Members {
		if gs.Members[i].Alias, err = r.ReadString(); err != nil {
			return gs, err
		}
		if gs.Members[i].PubKey, err = r.ReadBytes(); err != nil {
			return gs, err
		}
	}
	return gs, nil
}

// EncodeRequest frames req as a tagged-union request payload.
func EncodeRequest(req Request) []byte {
	w := wire.NewWriter()
	w.WriteU8(uint8(req.Type))

	switch req.Type {
	case MsgNsmRequest:
		w.WriteBytes(req.UserData)
		w.WriteOptionalBytes(req.Nonce)
		w.WriteBytes(req.PublicKey)
	case MsgBootGenesisRequest:
		encodeGenesisSet(w, req.GenesisSet)
	case MsgBootStandardRequest:
		w.WriteBytes(manifest.EncodeManifestEnvelope(req.ManifestEnvelope))
		w.WriteBytes(req.Pivot)
	case MsgProvisionRequest:
		w.WriteBytes(req.Share)
	case MsgLiveAttestationDocRequest:
		// no payload
	}

	return w.Bytes()
}

// DecodeRequest parses a tagged-union request payload.
func DecodeRequest(b []byte) (Request, error) {
	r := wire.NewReader(b)
	discriminant, err := r.ReadU8()
	if err != nil {
		return Request{}, fmt.Errorf("protocol: %w", err)
	}
	req := Request{Type: MsgType(discriminant)}

	switch req.Type {
	case MsgNsmRequest:
		if req.UserData, err = r.ReadBytes(); err != nil {
			return req, fmt.Errorf("protocol: user_data: %w", err)
		}
		if req.Nonce, err = r.ReadOptionalBytes(); err != nil {
			return req, fmt.Errorf("protocol: nonce: %w", err)
		}
		if req.PublicKey, err = r.ReadBytes(); err != nil {
			return req, fmt.Errorf("protocol: public_key: %w", err)
		}
	case MsgBootGenesisRequest:
		if req.GenesisSet, err = decodeGenesisSet(r); err != nil {
			return req, fmt.Errorf("protocol: genesis_set: %w", err)
		}
	case MsgBootStandardRequest:
		envBytes, err := r.ReadBytes()
		if err != nil {
			return req, fmt.Errorf("protocol: manifest_envelope: %w", err)
		}
		if req.ManifestEnvelope, err = manifest.DecodeManifestEnvelope(envBytes); err != nil {
			return req, fmt.Errorf("protocol: manifest_envelope: %w", err)
		}
		if req.Pivot, err = r.ReadBytes(); err != nil {
			return req, fmt.Errorf("protocol: pivot: %w", err)
		}
	case MsgProvisionRequest:
		if req.Share, err = r.ReadBytes(); err != nil {
			return req, fmt.Errorf("protocol: share: %w", err)
		}
	case MsgLiveAttestationDocRequest:
		// no payload
	default:
		return req, fmt.Errorf("protocol: unknown request discriminant %d", discriminant)
	}

	if err := r.Finish(); err != nil {
		return req, fmt.Errorf("protocol: %w", err)
	}
	return req, nil
}

// EncodeResponse frames resp as a tagged-union response payload.
func EncodeResponse(resp Response) []byte {
	w := wire.NewWriter()
	w.WriteU8(uint8(resp.Type))

	switch resp.Type {
	case MsgNsmResponse, MsgLiveAttestationDocResponse:
		encodeDocument(w, resp.Attestation)
	case MsgBootGenesisResponse:
		encodeDocument(w, resp.Attestation)
		w.WriteBytes(manifest.EncodeGenesisOutput(resp.GenesisOutput))
	case MsgBootStandardResponse:
		encodeDocument(w, resp.Attestation)
	case MsgProvisionResponse:
		w.WriteBool(resp.Reconstructed)
	case MsgProtocolErrorResponse:
		w.WriteU8(uint8(resp.Error.Kind))
		w.WriteString(resp.Error.Reason)
	}

	return w.Bytes()
}

// DecodeResponse parses a tagged-union response payload.
func DecodeResponse(b []byte) (Response, error) {
	r := wire.NewReader(b)
	discriminant, err := r.ReadU8()
	if err != nil {
		return Response{}, fmt.Errorf("protocol: %w", err)
	}
	resp := Response{Type: MsgType(discriminant)}

	switch resp.Type {
	case MsgNsmResponse, MsgLiveAttestationDocResponse:
		if resp.Attestation, err = decodeDocument(r); err != nil {
			return resp, fmt.Errorf("protocol: attestation: %w", err)
		}
	case MsgBootGenesisResponse:
		if resp.Attestation, err = decodeDocument(r); err != nil {
			return resp, fmt.Errorf("protocol: attestation: %w", err)
		}
		goBytes, err := r.ReadBytes()
		if err != nil {
			return resp, fmt.Errorf("protocol: genesis_output: %w", err)
		}
		if resp.GenesisOutput, err = manifest.DecodeGenesisOutput(goBytes); err != nil {
			return resp, fmt.Errorf("protocol: genesis_output: %w", err)
		}
	case MsgBootStandardResponse:
		if resp.Attestation, err = decodeDocument(r); err != nil {
			return resp, fmt.Errorf("protocol: attestation: %w", err)
		}
	case MsgProvisionResponse:
		if resp.Reconstructed, err = r.ReadBool(); err != nil {
			return resp, fmt.Errorf("protocol: reconstructed: %w", err)
		}
	case MsgProtocolErrorResponse:
		kind, err := r.ReadU8()
		if err != nil {
			return resp, fmt.Errorf("protocol: error.kind: %w", err)
		}
		resp.Error.Kind = wire.ErrorKind(kind)
		if resp.Error.Reason, err = r.ReadString(); err != nil {
			return resp, fmt.Errorf("protocol: error.reason: %w", err)
		}
	default:
		return resp, fmt.Errorf("protocol: unknown response discriminant %d", discriminant)
	}

	if err := r.Finish(); err != nil {
		return resp, fmt.Errorf("protocol: %w", err)
	}
	return resp, nil
}

// EncodeError builds a ProtocolErrorResponse frame directly, for
// handlers that fail before constructing a full Response.
func EncodeError(err wire.ProtocolError) []byte {
	return EncodeResponse(Response{Type: MsgProtocolErrorResponse, Error: err})
}
