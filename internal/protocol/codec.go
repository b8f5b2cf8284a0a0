package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	ErrUnknownKind = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// envelope is the JSON shape on the wire. Inbound messages carry sender,
// outbound messages carry target.
type envelope struct {
	Type          Kind                       `json:"type"`
	ParticipantID domain.ParticipantID       `json:"participant_id,omitempty"`
	Timestamp     json.RawMessage            `json:"timestamp,omitempty"`
	Sender        domain.ParticipantID       `json:"sender,omitempty"`
	Target        domain.ParticipantID       `json:"target,omitempty"`
	Offer         *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer        *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate     *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	State         *domain.MediaFlags         `json:"state,omitempty"`
	Message       string                     `json:"message,omitempty"`
}

// aliases accepted from older relays.
var kindAliases = map[string]Kind{
	"webrtc_offer":  KindOffer,
	"webrtc_answer": KindAnswer,
}

// Decode parses and validates one inbound frame.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if k, ok := kindAliases[string(env.Type)]; ok {
		env.Type = k
	}

	switch env.Type {
	case KindUserJoined, KindUserLeft:
		if env.ParticipantID == "" {
			return nil, fmt.Errorf("%w: %s without participant_id", ErrMalformed, env.Type)
		}
		at := parseTimestamp(env.Timestamp)
		if env.Type == KindUserJoined {
			return UserJoined{Participant: env.ParticipantID, JoinedAt: at}, nil
		}
		return UserLeft{Participant: env.ParticipantID, LeftAt: at}, nil

	case KindOffer:
		if err := validateDescription(env.Offer, webrtc.SDPTypeOffer); err != nil {
			return nil, err
		}
		return Offer{Sender: env.Sender, Target: env.Target, SDP: *env.Offer}, nil

	case KindAnswer:
		if err := validateDescription(env.Answer, webrtc.SDPTypeAnswer); err != nil {
			return nil, err
		}
		return Answer{Sender: env.Sender, Target: env.Target, SDP: *env.Answer}, nil

	case KindICECandidate:
		if err := validateCandidate(env.Candidate); err != nil {
			return nil, err
		}
		return ICECandidate{Sender: env.Sender, Target: env.Target, Candidate: *env.Candidate}, nil

	case KindMediaState:
		if env.State == nil {
			return nil, fmt.Errorf("%w: media_state without state", ErrMalformed)
		}
		return MediaState{Sender: env.Sender, State: *env.State}, nil

	case KindError:
		return Error{Message: env.Message}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

// Encode renders an outbound message. Sender is never written: the relay
// stamps it.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Type: msg.Kind()}
	switch m := msg.(type) {
	case UserJoined:
		env.ParticipantID = m.Participant
	case UserLeft:
		env.ParticipantID = m.Participant
	case Offer:
		sd := m.SDP
		env.Offer, env.Target = &sd, m.Target
	case Answer:
		sd := m.SDP
		env.Answer, env.Target = &sd, m.Target
	case ICECandidate:
		c := m.Candidate
		env.Candidate, env.Target = &c, m.Target
	case MediaState:
		s := m.State
		env.State = &s
	case Error:
		env.Message = m.Message
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return json.Marshal(env)
}

func validateDescription(desc *webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc == nil || desc.SDP == "" {
		return fmt.Errorf("%w: missing %s description", ErrMalformed, want)
	}
	if desc.Type == webrtc.SDPTypeUnknown {
		desc.Type = want
	}
	if desc.Type != want {
		return fmt.Errorf("%w: description type %s, expected %s", ErrMalformed, desc.Type, want)
	}
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: invalid sdp: %v", ErrMalformed, err)
	}
	return nil
}

func validateCandidate(c *webrtc.ICECandidateInit) error {
	if c == nil {
		return fmt.Errorf("%w: ice_candidate without candidate", ErrMalformed)
	}
	// An empty candidate marks end-of-candidates.
	if c.Candidate == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(c.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("%w: invalid candidate: %v", ErrMalformed, err)
	}
	return nil
}

// parseTimestamp accepts RFC3339 strings and unix seconds; anything else
// yields the zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		return time.Time{}
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	}
	return time.Time{}
}
