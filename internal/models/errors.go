package models

// ErrorKind is a stable machine-readable error discriminator. Clients
// branch their recovery logic (retry vs. abort vs. re-authenticate) on the
// kind alone; Message is for humans and may change freely.
type ErrorKind string

const (
	ErrKindAuthFailed         ErrorKind = "AUTH_FAILED"
	ErrKindRoomNotFound       ErrorKind = "ROOM_NOT_FOUND"
	ErrKindPeerNotFound       ErrorKind = "PEER_NOT_FOUND"
	ErrKindTransportFailed    ErrorKind = "TRANSPORT_CREATION_FAILED"
	ErrKindCredentialFailed   ErrorKind = "CREDENTIAL_ISSUANCE_FAILED"
	ErrKindProtocolViolation  ErrorKind = "PROTOCOL_VIOLATION"
	ErrKindBackendUnavailable ErrorKind = "BACKEND_UNAVAILABLE"
)

// ErrorBody is the error payload carried on ERROR messages and error HTTP
// responses.
type ErrorBody struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewError builds an ERROR signaling message.
func NewError(kind ErrorKind, message string) SignalMessage {
	return SignalMessage{
		Type:  SignalTypeError,
		Error: &ErrorBody{Kind: kind, Message: message},
	}
}
