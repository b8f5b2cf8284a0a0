// Package orch holds the room session: it wires local media, the signaling
// channel and the participant manager together on one call loop.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/app/media"
	"github.com/dkeye/VideoCall/internal/app/peer"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

const DefaultConnectTimeout = 10 * time.Second

type Deps struct {
	Devices  core.MediaDevices
	Peers    core.PeerFactory
	Dialer   core.SignalDialer
	Notifier core.Notifier
	Settings core.Settings
	Policy   app.Policy
	Store    *app.Store
	// LocalID is our participant id when known.
	LocalID        domain.ParticipantID
	ConnectTimeout time.Duration
}

type Orchestrator struct {
	Deps

	loop  *app.Loop
	peers *peer.Manager
	media media.Controller
	sess  *session
	// mediaGen invalidates in-flight acquisitions. Bumped by EndCall and
	// forced reacquisition.
	mediaGen uint64

	// life bounds the capture pumps; it ends with Run.
	life context.Context
	stop context.CancelFunc
}

func New(d Deps) *Orchestrator {
	if d.Policy == nil {
		d.Policy = &app.OncePerCall{}
	}
	if d.Store == nil {
		d.Store = app.NewStore(app.NewRegistry())
	}
	if d.ConnectTimeout <= 0 {
		d.ConnectTimeout = DefaultConnectTimeout
	}
	o := &Orchestrator{Deps: d, loop: app.NewLoop()}
	o.life, o.stop = context.WithCancel(context.Background())
	o.peers = peer.NewManager(peer.Config{
		Local:    d.LocalID,
		Peers:    d.Peers,
		Signal:   o,
		Notify:   d.Notifier,
		Registry: d.Store.Registry,
		Policy:   d.Policy,
		Post:     o.loop.Post,
		Tracks:   o.localTracks,
	})
	o.Store.UpdateLocal(func(v *app.LocalView) { v.Media = o.localState() })
	return o
}

// Run processes the call loop until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	defer o.stop()
	o.loop.Run(ctx)
}

func (o *Orchestrator) HasLocalStream() bool { return o.Store.Local().HasLocalStream }

func (o *Orchestrator) RemoteStreams() map[domain.ParticipantID]app.StreamView {
	return o.Store.Registry.RemoteStreams()
}

func (o *Orchestrator) ConnectionStates() map[domain.ParticipantID]domain.ConnectionState {
	return o.Store.Registry.States()
}

func (o *Orchestrator) IsConnected() bool { return o.Store.Registry.AnyConnected() }

func (o *Orchestrator) IsVideoEnabled() bool { return o.Store.Local().Media.VideoEnabled }

func (o *Orchestrator) IsAudioEnabled() bool { return o.Store.Local().Media.AudioEnabled }

func (o *Orchestrator) Snapshot() app.Snapshot { return o.Store.Snapshot() }

func (o *Orchestrator) Subscribe() (<-chan app.Snapshot, func()) { return o.Store.Subscribe() }

func (o *Orchestrator) localTracks() []webrtc.TrackLocal {
	if s := o.media.Stream(); s != nil {
		return s.Tracks()
	}
	return nil
}

func (o *Orchestrator) localState() domain.LocalMediaState {
	q := domain.Quality(o.Settings.GetString(domain.SettingQuality))
	if _, ok := domain.QualityPresets[q]; !ok {
		q = domain.DefaultQuality
	}
	return domain.LocalMediaState{
		VideoEnabled:  o.media.Enabled(domain.KindVideo),
		AudioEnabled:  o.media.Enabled(domain.KindAudio),
		Mirror:        o.Settings.GetBool(domain.SettingMirror),
		Quality:       q,
		VideoDeviceID: o.Settings.GetString(domain.SettingVideoDevice),
		AudioDeviceID: o.Settings.GetString(domain.SettingAudioDevice),
	}
}

// refreshLocal republishes the local view. Loop only.
func (o *Orchestrator) refreshLocal() {
	state := o.localState()
	has := o.media.Stream() != nil
	o.Store.UpdateLocal(func(v *app.LocalView) {
		v.HasLocalStream = has
		v.Media = state
	})
}
