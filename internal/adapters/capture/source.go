package capture

import (
	"sync"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type rtpReader interface {
	Read() ([]*rtp.Packet, func(), error)
	Close() error
}

type closer interface {
	Close() error
}

// trackSource turns a mediadevices RTP reader into one packet per ReadRTP.
// ReadRTP is called from a single goroutine.
type trackSource struct {
	id     string
	kind   domain.MediaKind
	codec  webrtc.RTPCodecCapability
	reader rtpReader
	track  closer

	pending   []*rtp.Packet
	closeOnce sync.Once
}

func newTrackSource(id string, kind domain.MediaKind, codec webrtc.RTPCodecCapability, r rtpReader, track closer) *trackSource {
	return &trackSource{id: id, kind: kind, codec: codec, reader: r, track: track}
}

func (s *trackSource) ID() string                       { return s.id }
func (s *trackSource) Kind() domain.MediaKind           { return s.kind }
func (s *trackSource) Codec() webrtc.RTPCodecCapability { return s.codec }

func (s *trackSource) ReadRTP() (*rtp.Packet, error) {
	for len(s.pending) == 0 {
		pkts, release, err := s.reader.Read()
		if err != nil {
			return nil, err
		}
		// Packets are only valid until release.
		for _, p := range pkts {
			if p != nil {
				s.pending = append(s.pending, p.Clone())
			}
		}
		if release != nil {
			release()
		}
	}
	p := s.pending[0]
	s.pending = s.pending[1:]
	return p, nil
}

func (s *trackSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.reader.Close()
		if s.track != nil {
			if terr := s.track.Close(); err == nil {
				err = terr
			}
		}
	})
	return err
}
