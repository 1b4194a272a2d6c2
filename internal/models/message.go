package models

import "encoding/json"

// SignalType represents the type of a signaling protocol message.
type SignalType string

const (
	// Client -> server
	SignalTypeRoomJoin        SignalType = "ROOM_JOIN"
	SignalTypeCreateTransport SignalType = "CREATE_TRANSPORT"
	SignalTypeCallAction      SignalType = "CALL_ACTION"
	SignalTypeLeave           SignalType = "LEAVE"
	SignalTypePing            SignalType = "PING"

	// Server -> client
	SignalTypeRoomJoinOK       SignalType = "ROOM_JOIN_OK"
	SignalTypeTransportCreated SignalType = "TRANSPORT_CREATED"
	SignalTypePeerJoined       SignalType = "PEER_JOINED"
	SignalTypePeerLeft         SignalType = "PEER_LEFT"
	SignalTypePeerGone         SignalType = "PEER_GONE"
	SignalTypePong             SignalType = "PONG"
	SignalTypeError            SignalType = "ERROR"

	// Relayed verbatim between peers, never interpreted
	SignalTypeOffer        SignalType = "OFFER"
	SignalTypeAnswer       SignalType = "ANSWER"
	SignalTypeICECandidate SignalType = "ICE_CANDIDATE"
)

// CallAction is the normalized call-control vocabulary. Native call
// integrations emit different verbs for the same intent; they are mapped
// onto this set before relay.
type CallAction string

const (
	CallActionIncoming   CallAction = "incoming"
	CallActionAccept     CallAction = "accept"
	CallActionDecline    CallAction = "decline"
	CallActionEnd        CallAction = "end"
	CallActionAnswer     CallAction = "answer"
	CallActionReject     CallAction = "reject"
	CallActionDisconnect CallAction = "disconnect"
)

// NormalizeCallAction maps native call-integration verbs onto the internal
// action vocabulary. Returns false for verbs outside the protocol.
func NormalizeCallAction(raw string) (CallAction, bool) {
	switch CallAction(raw) {
	case CallActionIncoming, CallActionAccept, CallActionDecline,
		CallActionEnd, CallActionAnswer, CallActionReject, CallActionDisconnect:
		return CallAction(raw), true
	}
	// Aliases emitted by OS call-kit style bridges.
	switch raw {
	case "hangup", "hang_up":
		return CallActionEnd, true
	case "pickup", "pick_up":
		return CallActionAccept, true
	}
	return "", false
}

// SignalMessage is the wire envelope for all signaling traffic. Payload is
// kept raw so that relayed messages (offers, answers, ICE candidates) pass
// through byte-for-byte without interpretation.
type SignalMessage struct {
	Type      SignalType      `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Direction string          `json:"direction,omitempty"`
	CallID    string          `json:"callId,omitempty"`
	Action    string          `json:"action,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
}

// RoomJoinOK is the payload of a ROOM_JOIN_OK message. ICEServers entries
// are credential-free by construction (see models.ICEServer).
type RoomJoinOK struct {
	RoomID                string        `json:"roomId"`
	RouterRTPCapabilities RouterRTPCaps `json:"routerRtpCapabilities"`
	ICEServers            []ICEServer   `json:"iceServers"`
	Peers                 []string      `json:"peers"`
}

// RouterRTPCaps mirrors the capability set returned by the media plane.
type RouterRTPCaps struct {
	Codecs []RouterCodec `json:"codecs"`
}

type RouterCodec struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

// ICEServer is a public ICE server entry. It intentionally has no username
// or credential fields: TURN credentials are only obtainable through the
// authenticated credential-issuance endpoint.
type ICEServer struct {
	URLs []string `json:"urls"`
}

// TransportCreated is the payload of a TRANSPORT_CREATED message.
type TransportCreated struct {
	TransportID string `json:"transportId"`
	Direction   string `json:"direction"`
}
