package wire

import "fmt"

// MsgType discriminates the enclave socket's tagged-union request and
// response payloads, per spec.md §6's external-interface table.
type MsgType uint8

const (
	MsgNsmRequest MsgType = iota
	MsgNsmResponse
	MsgBootGenesisRequest
	MsgBootGenesisResponse
	MsgBootStandardRequest
	MsgBootStandardResponse
	MsgProvisionRequest
	MsgProvisionResponse
	MsgLiveAttestationDocRequest
	MsgLiveAttestationDocResponse
	MsgProtocolErrorResponse
)

// ErrorKind enumerates the protocol error variants spec.md §6 lists as
// representative (not exhaustive).
type ErrorKind uint8

const (
	ErrorInvalidPhase ErrorKind = iota
	ErrorMalformedFrame
	ErrorSerializationError
	ErrorAttestationFailure
	ErrorCryptoFailure
	ErrorInvalidEncryptedShard
	ErrorReconstructionMismatch
	ErrorManifestValidationFailure
	ErrorHandleAlreadyExists
	ErrorHandleNotFound
	ErrorUnrecoverableState
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorInvalidPhase:
		return "InvalidPhase"
	case ErrorMalformedFrame:
		return "MalformedFrame"
	case ErrorSerializationError:
		return "SerializationError"
	case ErrorAttestationFailure:
		return "AttestationFailure"
	case ErrorCryptoFailure:
		return "CryptoFailure"
	case ErrorInvalidEncryptedShard:
		return "InvalidEncryptedShard"
	case ErrorReconstructionMismatch:
		return "ReconstructionMismatch"
	case ErrorManifestValidationFailure:
		return "ManifestValidationFailure"
	case ErrorHandleAlreadyExists:
		return "HandleAlreadyExists"
	case ErrorHandleNotFound:
		return "HandleNotFound"
	case ErrorUnrecoverableState:
		return "UnrecoverableState"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// ProtocolError is carried in a ProtocolErrorResponse frame: every
// request that cannot be satisfied produces a response, never a dropped
// connection, per spec.md §4.10.
type ProtocolError struct {
	Kind   ErrorKind
	Reason string
}

func (e ProtocolError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// EncodeProtocolError frames a ProtocolError as a ProtocolErrorResponse
// message.
func EncodeProtocolError(e ProtocolError) []byte {
	w := NewWriter()
	w.WriteU8(uint8(MsgProtocolErrorResponse))
	w.WriteU8(uint8(e.Kind))
	w.WriteString(e.Reason)
	return w.Bytes()
}

// DecodeMsgType peeks the discriminant byte off a message without
// consuming the rest.
func DecodeMsgType(b []byte) (MsgType, error) {
	if len(b) < 1 {
		return 0, ErrTruncated
	}
	return MsgType(b[0]), nil
}
