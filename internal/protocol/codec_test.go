package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

const testSDP = "v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestDecodeUserJoined(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"user_joined","participant_id":"p2","timestamp":"2025-03-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	joined, ok := msg.(UserJoined)
	if !ok {
		t.Fatalf("expected UserJoined, got %T", msg)
	}
	if joined.Participant != "p2" {
		t.Errorf("expected participant p2, got %s", joined.Participant)
	}
	if joined.JoinedAt.Year() != 2025 {
		t.Errorf("expected timestamp to be parsed, got %v", joined.JoinedAt)
	}
}

func TestDecodeUserLeftNumericTimestamp(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"user_left","participant_id":"p3","timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	left := msg.(UserLeft)
	if left.Participant != "p3" || left.LeftAt.Unix() != 1700000000 {
		t.Errorf("unexpected user_left %+v", left)
	}
}

func TestDecodeJoinWithoutParticipant(t *testing.T) {
	_, err := Decode([]byte(`{"type":"user_joined"}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeOffer(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"type":   "offer",
		"sender": "p2",
		"target": "p1",
		"offer":  map[string]string{"type": "offer", "sdp": testSDP},
	})
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	offer := msg.(Offer)
	if offer.Sender != "p2" || offer.To() != "p1" {
		t.Errorf("unexpected addressing %+v", offer)
	}
	if offer.SDP.Type != webrtc.SDPTypeOffer || offer.SDP.SDP != testSDP {
		t.Errorf("unexpected description %+v", offer.SDP)
	}
}

func TestDecodeLegacyAnswerAlias(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"type":   "webrtc_answer",
		"sender": "p2",
		"answer": map[string]string{"sdp": testSDP},
	})
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	answer, ok := msg.(Answer)
	if !ok {
		t.Fatalf("expected Answer, got %T", msg)
	}
	if answer.SDP.Type != webrtc.SDPTypeAnswer {
		t.Errorf("expected missing type to default to answer, got %s", answer.SDP.Type)
	}
}

func TestDecodeRejectsWrongDescriptionType(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"type":   "answer",
		"sender": "p2",
		"answer": map[string]string{"type": "offer", "sdp": testSDP},
	})
	if _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsGarbageSDP(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"type":  "offer",
		"offer": map[string]string{"type": "offer", "sdp": "hello"},
	})
	if _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeCandidate(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"type":   "ice_candidate",
		"sender": "p2",
		"candidate": map[string]any{
			"candidate":     "candidate:1966762134 1 udp 2122260223 192.168.1.5 54321 typ host generation 0",
			"sdpMid":        "0",
			"sdpMLineIndex": 0,
		},
	})
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := msg.(ICECandidate)
	if c.Sender != "p2" || c.Candidate.SDPMid == nil || *c.Candidate.SDPMid != "0" {
		t.Errorf("unexpected candidate %+v", c)
	}
}

func TestDecodeEndOfCandidates(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"ice_candidate","sender":"p2","candidate":{"candidate":""}}`)); err != nil {
		t.Fatalf("expected end-of-candidates to decode, got %v", err)
	}
}

func TestDecodeInvalidCandidate(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ice_candidate","sender":"p2","candidate":{"candidate":"candidate:nonsense"}}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeMediaStateAndError(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"media_state","sender":"p2","state":{"video":false,"audio":true}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st := msg.(MediaState); st.State != (domain.MediaFlags{Video: false, Audio: true}) {
		t.Errorf("unexpected media state %+v", st)
	}

	msg, err = Decode([]byte(`{"type":"error","message":"room full"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e := msg.(Error); e.Message != "room full" {
		t.Errorf("expected message 'room full', got %q", e.Message)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"chat"}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEncodeOfferCarriesTargetOnly(t *testing.T) {
	data, err := Encode(Offer{
		Sender: "p1",
		Target: "p2",
		SDP:    webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["type"] != "offer" || out["target"] != "p2" {
		t.Errorf("unexpected envelope %v", out)
	}
	if _, ok := out["sender"]; ok {
		t.Errorf("sender must not be written, got %v", out["sender"])
	}
	offer, ok := out["offer"].(map[string]any)
	if !ok || offer["type"] != "offer" || offer["sdp"] != testSDP {
		t.Errorf("unexpected offer payload %v", out["offer"])
	}
}

func TestEncodeMediaState(t *testing.T) {
	data, err := Encode(MediaState{State: domain.MediaFlags{Video: true, Audio: false}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"media_state","state":{"video":true,"audio":false}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
