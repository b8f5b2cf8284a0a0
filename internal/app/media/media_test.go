package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/core/coretest"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/rtp"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newStream(t *testing.T) (*LocalStream, *coretest.FakeSource, *coretest.FakeSource) {
	t.Helper()
	v := coretest.NewFakeSource("cam", domain.KindVideo)
	a := coretest.NewFakeSource("mic", domain.KindAudio)
	s, err := NewLocalStream(context.Background(), []core.CaptureSource{v, a})
	if err != nil {
		t.Fatalf("expected stream, got %v", err)
	}
	return s, v, a
}

func TestLocalStreamSharesTracks(t *testing.T) {
	s, _, _ := newStream(t)
	defer s.Stop()

	a, b := s.Tracks(), s.Tracks()
	if len(a) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("expected the same track instances for every peer")
		}
		if a[i].StreamID() != s.ID {
			t.Errorf("expected stream id %s, got %s", s.ID, a[i].StreamID())
		}
	}
	if s.Track(domain.KindVideo).Kind() != domain.KindVideo {
		t.Fatal("expected a video track")
	}
}

func TestMutedTrackSkipsPackets(t *testing.T) {
	s, v, _ := newStream(t)
	defer s.Stop()
	vt := s.Track(domain.KindVideo)

	v.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}})
	waitFor(t, "forwarded packet", func() bool { f, _ := vt.Stats(); return f == 1 })

	vt.SetEnabled(false)
	v.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}})
	waitFor(t, "skipped packet", func() bool { _, sk := vt.Stats(); return sk == 1 })

	vt.SetEnabled(true)
	v.Push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 3}})
	waitFor(t, "second forwarded packet", func() bool { f, _ := vt.Stats(); return f == 2 })
}

func TestStopReleasesSources(t *testing.T) {
	s, v, a := newStream(t)
	s.Stop()
	if !v.IsClosed() || !a.IsClosed() {
		t.Fatal("expected both capture sources closed")
	}
	if s.Track(domain.KindAudio).State() != TrackStopped {
		t.Fatal("expected stopped track")
	}
	s.Track(domain.KindAudio).SetEnabled(true)
	if s.Track(domain.KindAudio).Enabled() {
		t.Fatal("expected stopped track to stay stopped")
	}
	s.Stop()
}

func TestControllerToggleRoundTrip(t *testing.T) {
	s, _, _ := newStream(t)
	defer s.Stop()
	c := &Controller{}

	if _, ok := c.Toggle(domain.KindVideo, nil); ok {
		t.Fatal("expected toggle without stream to be a no-op")
	}

	c.Attach(s)
	before := c.Flags()
	if !before.Video || !before.Audio {
		t.Fatalf("expected tracks enabled after acquisition, got %+v", before)
	}
	if on, _ := c.Toggle(domain.KindVideo, nil); on {
		t.Fatal("expected video off")
	}
	if on, _ := c.Toggle(domain.KindVideo, nil); !on {
		t.Fatal("expected video on")
	}
	if c.Flags() != before {
		t.Fatalf("expected %+v after round trip, got %+v", before, c.Flags())
	}

	off := false
	c.Toggle(domain.KindAudio, &off)
	c.Toggle(domain.KindAudio, &off)
	if c.Enabled(domain.KindAudio) {
		t.Fatal("expected explicit state to be applied, not flipped")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want domain.MediaErrorKind
	}{
		{fmt.Errorf("open /dev/video0: %w", os.ErrPermission), domain.MediaPermissionDenied},
		{&os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, domain.MediaPermissionDenied},
		{&os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EBUSY}, domain.MediaDeviceBusy},
		{&os.PathError{Op: "open", Path: "/dev/video9", Err: syscall.ENOENT}, domain.MediaDeviceNotFound},
		{errors.New("failed to find the best driver that fits the constraints"), domain.MediaDeviceNotFound},
		{errors.New("encoder exploded"), domain.MediaUnknown},
	}
	for _, c := range cases {
		got := Classify(c.err)
		if got.Kind != c.want {
			t.Errorf("%v: expected %s, got %s", c.err, c.want, got.Kind)
		}
		if !errors.Is(got, c.err) {
			t.Errorf("%v: expected wrapped cause", c.err)
		}
	}
	if Classify(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	me := &domain.MediaError{Kind: domain.MediaDeviceBusy}
	if Classify(fmt.Errorf("wrap: %w", me)) != me {
		t.Fatal("expected existing MediaError to pass through")
	}
}
