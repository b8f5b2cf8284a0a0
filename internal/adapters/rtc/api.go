package rtc

import (
	"fmt"
	"strings"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var DefaultSTUN = []string{"stun:stun.l.google.com:19302"}

// ICEServers builds the ICE configuration: every STUN url on its own, and
// TURN with credentials when configured.
func ICEServers(stun []string, turnURLs string, username, credential string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(stun)+1)
	for _, u := range stun {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	for _, entry := range strings.Split(turnURLs, ",") {
		url := strings.TrimSpace(entry)
		if url == "" {
			continue
		}
		server := webrtc.ICEServer{URLs: []string{url}}
		if username != "" {
			server.Username = username
		}
		if credential != "" {
			server.Credential = credential
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{URLs: DefaultSTUN})
	}
	return servers
}

type APIOptions struct {
	UDPPortMin uint16
	UDPPortMax uint16
	// Codecs registers the capture encoders' codecs. Pion's defaults are
	// used when nil.
	Codecs func(*webrtc.MediaEngine)
}

// NewAPI builds a pion API with the default interceptors (NACK, RTCP
// reports, TWCC) and zerolog-backed logging.
func NewAPI(opts APIOptions) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if opts.Codecs != nil {
		opts.Codecs(m)
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{}}
	if opts.UDPPortMin > 0 && opts.UDPPortMax >= opts.UDPPortMin {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortMin, opts.UDPPortMax); err != nil {
			log.Warn().Str("module", "webrtc").Err(err).
				Uint16("min", opts.UDPPortMin).Uint16("max", opts.UDPPortMax).
				Msg("failed setting UDP port range")
		}
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// Factory creates one pion connection per participant.
type Factory struct {
	API    *webrtc.API
	Config webrtc.Configuration
}

func (f *Factory) NewPeer(pid domain.ParticipantID) (core.PeerConnection, error) {
	pc, err := f.API.NewPeerConnection(f.Config)
	if err != nil {
		return nil, err
	}
	return newWebRTCConnection(pc, pid), nil
}
