package media

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// LocalStream is the captured local media shared by every participant
// connection. Only the owner of the call stops it.
type LocalStream struct {
	ID     string
	tracks []*LocalTrack
	cancel context.CancelFunc
}

// NewLocalStream wraps the sources and starts forwarding their packets. On
// error every source is closed.
func NewLocalStream(ctx context.Context, sources []core.CaptureSource) (*LocalStream, error) {
	s := &LocalStream{ID: uuid.NewString()}
	for _, src := range sources {
		t, err := NewLocalTrack(src, s.ID)
		if err != nil {
			for _, c := range sources {
				_ = c.Close()
			}
			return nil, fmt.Errorf("local track %s: %w", src.ID(), err)
		}
		s.tracks = append(s.tracks, t)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, t := range s.tracks {
		logger := log.With().
			Str("module", "media").
			Str("stream", s.ID).
			Str("kind", string(t.Kind())).
			Logger()
		go t.pump(pumpCtx, &logger)
	}
	log.Info().Str("module", "media").Str("stream", s.ID).Int("tracks", len(s.tracks)).Msg("local stream started")
	return s, nil
}

// Tracks returns the shared tracks to bind to a new peer connection.
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.Track)
	}
	return out
}

// Track returns the first track of kind, or nil.
func (s *LocalStream) Track(kind domain.MediaKind) *LocalTrack {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// Stop releases every capture device. Safe to call more than once.
func (s *LocalStream) Stop() {
	s.cancel()
	for _, t := range s.tracks {
		t.stop()
	}
	log.Info().Str("module", "media").Str("stream", s.ID).Msg("local stream stopped")
}
