package rtc

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WebRTCConnection adapts a pion PeerConnection to core.PeerConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	pid    domain.ParticipantID
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(domain.ConnectionState)
}

func newWebRTCConnection(pc *webrtc.PeerConnection, pid domain.ParticipantID) *WebRTCConnection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{
		pc:     pc,
		pid:    pid,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("module", "webrtc").Str("pid", string(pid)).Logger(),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		state, ok := mapPeerState(s)
		if !ok {
			return
		}
		if s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(state)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering; nothing is sent for it.
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go c.drain(track)
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(core.RemoteTrack{ID: track.ID(), StreamID: track.StreamID(), Kind: kindOf(track.Kind())})
		}
	})

	return c
}

// drain consumes remote RTP so interceptors keep producing reports. There
// is no renderer in this process.
func (c *WebRTCConnection) drain(track *webrtc.TrackRemote) {
	for {
		if c.ctx.Err() != nil {
			return
		}
		if _, _, err := track.ReadRTP(); err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug().Err(err).Str("track_id", track.ID()).Msg("remote track read stopped")
			}
			return
		}
	}
}

// readRTCP keeps the sender's RTCP flowing to the interceptors.
func (c *WebRTCConnection) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *WebRTCConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) HasLocalOffer() bool {
	return c.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer
}

func (c *WebRTCConnection) Rollback() error {
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddTrack attaches a shared local track to the PeerConnection.
func (c *WebRTCConnection) AddTrack(t webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(t)
	if err != nil {
		return err
	}
	go c.readRTCP(sender)
	return nil
}

func (c *WebRTCConnection) ReplaceTrack(t webrtc.TrackLocal) (bool, error) {
	for _, s := range c.pc.GetSenders() {
		cur := s.Track()
		if cur == nil || cur.Kind() != t.Kind() {
			continue
		}
		return true, s.ReplaceTrack(t)
	}
	return false, nil
}

func (c *WebRTCConnection) AddRecvOnly(kind domain.MediaKind) error {
	_, err := c.pc.AddTransceiverFromKind(codecType(kind), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *WebRTCConnection) OnStateChange(fn func(domain.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *WebRTCConnection) Close() error {
	c.cancel()
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
