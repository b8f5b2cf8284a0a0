package core

import (
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack describes a track received from a participant.
type RemoteTrack struct {
	ID       string           `json:"id"`
	StreamID string           `json:"stream_id"`
	Kind     domain.MediaKind `json:"kind"`
}

// PeerConnection is one negotiated link to a remote participant.
// Callbacks may be invoked from any goroutine.
type PeerConnection interface {
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// HasLocalOffer reports an unanswered local offer (have-local-offer).
	HasLocalOffer() bool
	// Rollback discards an unanswered local offer.
	Rollback() error
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddTrack attaches a shared local track.
	AddTrack(webrtc.TrackLocal) error
	// ReplaceTrack swaps t into the sender already carrying its kind.
	// replaced is false when no such sender exists.
	ReplaceTrack(t webrtc.TrackLocal) (replaced bool, err error)
	// AddRecvOnly requests media of kind without sending any.
	AddRecvOnly(kind domain.MediaKind) error

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(RemoteTrack))
	OnStateChange(func(domain.ConnectionState))

	Close() error
}

// PeerFactory creates a PeerConnection for a participant.
type PeerFactory interface {
	NewPeer(pid domain.ParticipantID) (PeerConnection, error)
}
