package core

import (
	"context"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// CaptureSource is one captured, already encoded device track.
type CaptureSource interface {
	ID() string
	Kind() domain.MediaKind
	Codec() webrtc.RTPCodecCapability
	// ReadRTP blocks until the next packet; it returns an error once closed.
	ReadRTP() (*rtp.Packet, error)
	// Close releases the underlying hardware capture.
	Close() error
}

// MediaDevices acquires local capture. Errors should be *domain.MediaError.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c domain.Constraints) ([]CaptureSource, error)
}
