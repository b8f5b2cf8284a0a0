package peer

import (
	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
)

// RemoteStream is the media received from one participant.
type RemoteStream struct {
	ID     string
	Tracks []core.RemoteTrack
}

// Participant is the connection to one remote participant. It is owned by
// the Manager and only touched from the call loop.
type Participant struct {
	ID          domain.ParticipantID
	Role        domain.Role
	State       domain.ConnectionState
	Remote      *RemoteStream
	RemoteMedia *domain.MediaFlags
	// Degraded is set when an ICE restart could not be started.
	Degraded bool

	pc core.PeerConnection
}

func (p *Participant) addTrack(rt core.RemoteTrack) {
	if p.Remote == nil || p.Remote.ID != rt.StreamID {
		p.Remote = &RemoteStream{ID: rt.StreamID}
	}
	for i, t := range p.Remote.Tracks {
		if t.ID == rt.ID {
			p.Remote.Tracks[i] = rt
			return
		}
	}
	p.Remote.Tracks = append(p.Remote.Tracks, rt)
}

func (p *Participant) view() app.ParticipantView {
	v := app.ParticipantView{
		ID:       p.ID,
		Role:     p.Role.String(),
		State:    p.State,
		Degraded: p.Degraded,
	}
	if p.Remote != nil {
		v.Remote = &app.StreamView{
			ID:     p.Remote.ID,
			Tracks: append([]core.RemoteTrack(nil), p.Remote.Tracks...),
		}
	}
	if p.RemoteMedia != nil {
		flags := *p.RemoteMedia
		v.Media = &flags
	}
	return v
}
