package models

import "time"

// RoomMetadata stores information about a call room. Persisted in Redis by
// the data backend boundary; the in-process registry holds the live state.
type RoomMetadata struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`      // Short, shareable room code (e.g., "ABCD123")
	CreatorID string    `json:"creatorId"` // User ID from JWT who created the room
	CreatedAt time.Time `json:"createdAt"`
	MaxPeers  int       `json:"maxPeers"`
	PeerCount int       `json:"peerCount"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	MaxPeers int `json:"maxPeers" binding:"min=0,max=16"`
}

// CreateRoomResponse is the response for creating a room
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// TurnCredentialsResponse is returned by the authenticated credential
// issuance endpoint. Never logged, never persisted.
type TurnCredentialsResponse struct {
	Username   string    `json:"username"`
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expiresAt"`
	URIs       []string  `json:"uris"`
}
