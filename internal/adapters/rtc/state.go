package rtc

import (
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func mapPeerState(s webrtc.PeerConnectionState) (domain.ConnectionState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return domain.StateNew, true
	case webrtc.PeerConnectionStateConnecting:
		return domain.StateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return domain.StateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.StateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.StateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.StateClosed, true
	default:
		return "", false
	}
}

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func kindOf(t webrtc.RTPCodecType) domain.MediaKind {
	if t == webrtc.RTPCodecTypeAudio {
		return domain.KindAudio
	}
	return domain.KindVideo
}
