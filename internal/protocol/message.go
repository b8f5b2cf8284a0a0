// Package protocol defines the signaling messages exchanged with the relay.
//
// Message is a closed sum type: only the types in this file implement it, and
// consumers dispatch with a type switch.
package protocol

import (
	"time"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindUserJoined   Kind = "user_joined"
	KindUserLeft     Kind = "user_left"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice_candidate"
	KindMediaState   Kind = "media_state"
	KindError        Kind = "error"
)

type Message interface {
	Kind() Kind
	sealed()
}

// Addressed is implemented by messages that carry a target participant.
type Addressed interface {
	Message
	To() domain.ParticipantID
}

type UserJoined struct {
	Participant domain.ParticipantID
	JoinedAt    time.Time
}

type UserLeft struct {
	Participant domain.ParticipantID
	LeftAt      time.Time
}

type Offer struct {
	Sender domain.ParticipantID
	Target domain.ParticipantID
	SDP    webrtc.SessionDescription
}

type Answer struct {
	Sender domain.ParticipantID
	Target domain.ParticipantID
	SDP    webrtc.SessionDescription
}

type ICECandidate struct {
	Sender    domain.ParticipantID
	Target    domain.ParticipantID
	Candidate webrtc.ICECandidateInit
}

type MediaState struct {
	Sender domain.ParticipantID
	State  domain.MediaFlags
}

type Error struct {
	Message string
}

func (UserJoined) Kind() Kind   { return KindUserJoined }
func (UserLeft) Kind() Kind     { return KindUserLeft }
func (Offer) Kind() Kind        { return KindOffer }
func (Answer) Kind() Kind       { return KindAnswer }
func (ICECandidate) Kind() Kind { return KindICECandidate }
func (MediaState) Kind() Kind   { return KindMediaState }
func (Error) Kind() Kind        { return KindError }

func (UserJoined) sealed()   {}
func (UserLeft) sealed()     {}
func (Offer) sealed()        {}
func (Answer) sealed()       {}
func (ICECandidate) sealed() {}
func (MediaState) sealed()   {}
func (Error) sealed()        {}

func (m Offer) To() domain.ParticipantID        { return m.Target }
func (m Answer) To() domain.ParticipantID       { return m.Target }
func (m ICECandidate) To() domain.ParticipantID { return m.Target }
