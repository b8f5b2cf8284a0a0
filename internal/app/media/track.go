package media

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type TrackState int32

const (
	TrackLive TrackState = iota
	TrackMuted
	TrackStopped
)

// LocalTrack forwards one capture source into a TrackLocalStaticRTP that is
// bound to every peer connection of the call.
type LocalTrack struct {
	Track *webrtc.TrackLocalStaticRTP

	src   core.CaptureSource
	state atomic.Int32 // Zero by default (TrackLive)

	forwarded atomic.Uint64
	skipped   atomic.Uint64
	done      chan struct{}
}

func NewLocalTrack(src core.CaptureSource, streamID string) (*LocalTrack, error) {
	tr, err := webrtc.NewTrackLocalStaticRTP(src.Codec(), string(src.Kind())+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{Track: tr, src: src, done: make(chan struct{})}, nil
}

func (t *LocalTrack) Kind() domain.MediaKind { return t.src.Kind() }

func (t *LocalTrack) State() TrackState {
	return TrackState(t.state.Load())
}

func (t *LocalTrack) Enabled() bool { return t.State() == TrackLive }

// SetEnabled mutes or unmutes the track. A stopped track stays stopped.
func (t *LocalTrack) SetEnabled(on bool) {
	next := TrackMuted
	if on {
		next = TrackLive
	}
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackStopped {
			return
		}
		if t.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

// Stats returns forwarded and skipped (muted) packet counts.
func (t *LocalTrack) Stats() (forwarded, skipped uint64) {
	return t.forwarded.Load(), t.skipped.Load()
}

// stop releases the capture device and waits for the pump to exit.
func (t *LocalTrack) stop() {
	t.state.Store(int32(TrackStopped))
	_ = t.src.Close()
	<-t.done
}

// pump reads RTP packets from the capture source until it fails or ctx ends.
func (t *LocalTrack) pump(ctx context.Context, logger *zerolog.Logger) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("track ctx done, stopping pump")
			t.state.Store(int32(TrackStopped))
			return
		default:
		}
		pkt, err := t.src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("capture source closed")
			} else {
				logger.Error().Err(err).Msg("capture read RTP error, stopping")
			}
			t.state.Store(int32(TrackStopped))
			return
		}
		t.forward(pkt, logger)
	}
}

func (t *LocalTrack) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	switch t.State() {
	case TrackStopped:
	case TrackMuted:
		t.skipped.Add(1)
	case TrackLive:
		// Errors from individual bindings are not fatal, the next peer
		// may still be receiving.
		if err := t.Track.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logger.Debug().Err(err).Msg("write RTP error")
		}
		t.forwarded.Add(1)
	}
}
