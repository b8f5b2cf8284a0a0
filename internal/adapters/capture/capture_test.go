package capture

import (
	"errors"
	"io"
	"testing"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type fakeReader struct {
	batches  [][]*rtp.Packet
	released int
	closed   int
}

func (r *fakeReader) Read() ([]*rtp.Packet, func(), error) {
	if len(r.batches) == 0 {
		return nil, nil, io.EOF
	}
	b := r.batches[0]
	r.batches = r.batches[1:]
	return b, func() { r.released++ }, nil
}

func (r *fakeReader) Close() error {
	r.closed++
	return nil
}

type fakeTrack struct{ closed int }

func (t *fakeTrack) Close() error {
	t.closed++
	return nil
}

func TestTrackSourceSplitsBatches(t *testing.T) {
	r := &fakeReader{batches: [][]*rtp.Packet{
		{{Header: rtp.Header{SequenceNumber: 1}}, {Header: rtp.Header{SequenceNumber: 2}}},
		{},
		{{Header: rtp.Header{SequenceNumber: 3}}},
	}}
	s := newTrackSource("cam", domain.KindVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, r, nil)

	for want := uint16(1); want <= 3; want++ {
		p, err := s.ReadRTP()
		if err != nil {
			t.Fatalf("read %d: %v", want, err)
		}
		if p.SequenceNumber != want {
			t.Fatalf("expected seq %d, got %d", want, p.SequenceNumber)
		}
	}
	if _, err := s.ReadRTP(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if r.released != 3 {
		t.Fatalf("expected every batch released, got %d", r.released)
	}
}

func TestTrackSourceCloseOnce(t *testing.T) {
	r := &fakeReader{}
	tr := &fakeTrack{}
	s := newTrackSource("mic", domain.KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, r, tr)
	s.Close()
	s.Close()
	if r.closed != 1 || tr.closed != 1 {
		t.Fatalf("expected single close, got reader=%d track=%d", r.closed, tr.closed)
	}
}

func TestVideoConstraints(t *testing.T) {
	c := domain.ConstraintsFor(domain.LocalMediaState{Quality: domain.Quality480p, VideoDeviceID: "cam-1", AudioDeviceID: "mic-1"})

	var mc mediadevices.MediaTrackConstraints
	videoConstraints(c.Video)(&mc)
	if mc.Width != prop.Int(640) || mc.Height != prop.Int(480) {
		t.Fatalf("expected 640x480, got %v x %v", mc.Width, mc.Height)
	}
	if mc.DeviceID != prop.StringExact("cam-1") {
		t.Fatalf("expected exact device, got %v", mc.DeviceID)
	}
	if mc.FrameRate != (prop.FloatRanged{Ideal: 30, Max: 60}) {
		t.Fatalf("unexpected frame rate %v", mc.FrameRate)
	}

	var ac mediadevices.MediaTrackConstraints
	audioConstraints(c.Audio)(&ac)
	if ac.DeviceID != prop.StringExact("mic-1") {
		t.Fatalf("expected exact mic, got %v", ac.DeviceID)
	}

	var none mediadevices.MediaTrackConstraints
	videoConstraints(domain.VideoConstraints{Width: 1, Height: 1})(&none)
	if none.DeviceID != nil {
		t.Fatal("expected no device constraint without selection")
	}
}

func TestCodecName(t *testing.T) {
	if codecName(webrtc.MimeTypeVP8) != "VP8" || codecName(webrtc.MimeTypeOpus) != "opus" || codecName("raw") != "raw" {
		t.Fatal("unexpected codec names")
	}
}

func TestUnappliedAudioFlags(t *testing.T) {
	c := domain.ConstraintsFor(domain.LocalMediaState{})
	got := unappliedAudio(c.Audio)
	if len(got) != 3 || got[0] != "echo_cancellation" || got[1] != "noise_suppression" || got[2] != "auto_gain_control" {
		t.Fatalf("expected all three processing flags reported, got %v", got)
	}
	if got := unappliedAudio(domain.AudioConstraints{DeviceID: "mic-1"}); len(got) != 0 {
		t.Fatalf("expected nothing reported without processing flags, got %v", got)
	}
}
