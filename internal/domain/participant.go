// Package domain contains the call entities, ids and error kinds.
package domain

// ParticipantID is an opaque identifier assigned by the relay.
type ParticipantID string

// Role is the negotiation role of the local side towards one participant.
type Role int

const (
	// RoleOfferer: the local client saw the participant join and sent the offer.
	RoleOfferer Role = iota
	// RoleAnswerer: the participant sent us the first offer.
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unknown"
	}
}

type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// MediaFlags is the audio/video state a participant advertises over signaling.
type MediaFlags struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}
