//go:build nitro

package attest

import (
	"fmt"

	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
)

// NitroAttestor requests attestation documents from the Nitro Secure
// Module device, via github.com/hf/nsm — the same library the original
// qos-core attestation path wraps (its Rust crate binds the identical
// ioctl interface this package talks to through hf/nsm's CBOR/COSE
// request-response session).
type NitroAttestor struct {
	session *nsm.Session
}

// NewNitroAttestor opens a session against /dev/nsm. Build with -tags
// nitro inside the enclave image only; builds without the tag use the
// mock attestor everywhere else (tests, local development, CI).
func NewNitroAttestor() (*NitroAttestor, error) {
	session, err := nsm.OpenDefaultSession()
	if err != nil {
		return nil, fmt.Errorf("attest: open nsm session: %w", err)
	}
	return &NitroAttestor{session: session}, nil
}

// Close releases the underlying NSM device handle.
func (n *NitroAttestor) Close() error {
	return n.session.Close()
}

func (n *NitroAttestor) Attest(userData, nonce, publicKey []byte) (Document, error) {
	res, err := n.session.Send(&request.Attestation{
		UserData:  userData,
		Nonce:     nonce,
		PublicKey: publicKey,
	})
	if err != nil {
		return Document{}, fmt.Errorf("attest: nsm request: %w", err)
	}
	if res.Attestation == nil || res.Attestation.Document == nil {
		return Document{}, fmt.Errorf("attest: nsm response carried no attestation document")
	}

	raw := res.Attestation.Document
	doc := Document{
		ModuleID:  raw.ModuleID,
		Digest:    string(raw.Digest),
		Timestamp: raw.Timestamp,
		CABundle:  raw.CABundle,
		PublicKey: raw.PublicKey,
		UserData:  raw.UserData,
		Nonce:     raw.Nonce,
	}
	for idx, pcr := range raw.PCRs {
		if pcr == nil {
			continue
		}
		doc.PCRs = append(doc.PCRs, PCR{Index: uint16(idx), Digest: pcr})
	}

	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("attest: nsm document failed syntactic validation: %w", err)
	}
	return doc, nil
}

// DescribePCR reads back a single PCR's current value from the NSM
// device, via the same session the Attest request shares.
func (n *NitroAttestor) DescribePCR(index int) ([]byte, error) {
	res, err := n.session.Send(&request.DescribePCR{Index: uint16(index)})
	if err != nil {
		return nil, fmt.Errorf("attest: nsm describe_pcr request: %w", err)
	}
	if res.DescribePCR == nil {
		return nil, fmt.Errorf("attest: nsm response carried no describe_pcr result")
	}
	return res.DescribePCR.Data, nil
}
