package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/app/media"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/dkeye/VideoCall/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	errNoCapture       = errors.New("no capture backend")
	errMediaSuperseded = errors.New("media request superseded")
)

// InitializeLocalMedia acquires camera and microphone. Without force an
// existing stream is kept. Failure is reported through the notifier and
// leaves the call without local media. A result that arrives after EndCall
// or a newer forced request is released instead of attached.
func (o *Orchestrator) InitializeLocalMedia(ctx context.Context, force bool) error {
	var (
		done        bool
		started     bool
		gen         uint64
		constraints domain.Constraints
	)
	err := o.loop.Do(ctx, func() error {
		if s := o.media.Stream(); s != nil {
			if !force {
				done = true
				return nil
			}
			o.media.Detach()
			s.Stop()
		}
		if force {
			o.mediaGen++
		}
		gen = o.mediaGen
		started = true
		constraints = domain.ConstraintsFor(o.localState())
		o.Store.UpdateLocal(func(v *app.LocalView) {
			v.HasLocalStream = false
			v.Loading = domain.KeyAccessingMedia
		})
		return nil
	})
	if err != nil {
		// The task may still have run after ctx gave up on it.
		o.loop.Post(func() {
			if started && o.mediaGen == gen {
				o.Store.UpdateLocal(func(v *app.LocalView) { v.Loading = "" })
				o.refreshLocal()
			}
		})
		return err
	}
	if done {
		return nil
	}

	var sources []core.CaptureSource
	if o.Devices == nil {
		err = errNoCapture
	} else {
		sources, err = o.Devices.GetUserMedia(ctx, constraints)
	}

	return o.loop.Do(o.life, func() error {
		if o.mediaGen != gen {
			for _, src := range sources {
				_ = src.Close()
			}
			log.Info().Str("module", "app.orch").Msg("media request superseded, capture released")
			return errMediaSuperseded
		}
		o.Store.UpdateLocal(func(v *app.LocalView) { v.Loading = "" })
		if err != nil {
			return o.mediaFailed(err)
		}
		stream, serr := media.NewLocalStream(o.life, sources)
		if serr != nil {
			return o.mediaFailed(serr)
		}
		if prev := o.media.Stream(); prev != nil {
			// A concurrent acquisition finished first.
			prev.Stop()
		}
		o.media.Attach(stream)
		o.refreshLocal()
		if o.peers.Len() > 0 {
			o.peers.AttachTracks(stream.Tracks())
		}
		log.Info().Str("module", "app.orch").Str("stream", stream.ID).Msg("local media ready")
		return nil
	})
}

func (o *Orchestrator) mediaFailed(err error) error {
	me := media.Classify(err)
	if errors.Is(err, errNoCapture) {
		me = &domain.MediaError{Kind: domain.MediaDeviceNotFound, Err: err}
	}
	log.Error().Str("module", "app.orch").Err(me).Msg("local media unavailable")
	o.Notifier.Notify(me.Kind.NotificationKey(), domain.SeverityError, domain.DurationMediaError)
	o.refreshLocal()
	return me
}

func (o *Orchestrator) ToggleVideo(ctx context.Context) (bool, error) {
	return o.Toggle(ctx, domain.KindVideo, nil)
}

func (o *Orchestrator) ToggleAudio(ctx context.Context) (bool, error) {
	return o.Toggle(ctx, domain.KindAudio, nil)
}

// Toggle flips kind, or sets it to explicit when given. The new state is
// advertised to the room. Without a local track of kind nothing changes and
// ErrNoLocalStream is returned.
func (o *Orchestrator) Toggle(ctx context.Context, kind domain.MediaKind, explicit *bool) (bool, error) {
	var enabled bool
	err := o.loop.Do(ctx, func() error {
		on, ok := o.media.Toggle(kind, explicit)
		if !ok {
			return fmt.Errorf("toggle %s: %w", kind, domain.ErrNoLocalStream)
		}
		enabled = on
		o.Send(protocol.MediaState{State: o.media.Flags()})
		o.Notifier.Notify(toggleKey(kind, on), domain.SeverityInfo, domain.DurationToggle)
		o.refreshLocal()
		return nil
	})
	return enabled, err
}

func toggleKey(kind domain.MediaKind, on bool) string {
	switch {
	case kind == domain.KindVideo && on:
		return domain.KeyCameraOn
	case kind == domain.KindVideo:
		return domain.KeyCameraOff
	case on:
		return domain.KeyMicOn
	default:
		return domain.KeyMicOff
	}
}

func (o *Orchestrator) SelectVideoDevice(ctx context.Context, id string) error {
	return o.setPreference(ctx, domain.SettingVideoDevice, id)
}

func (o *Orchestrator) SelectAudioDevice(ctx context.Context, id string) error {
	return o.setPreference(ctx, domain.SettingAudioDevice, id)
}

func (o *Orchestrator) SetVideoQuality(ctx context.Context, raw string) error {
	q, ok := domain.ParseQuality(raw)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownQuality, raw)
	}
	return o.setPreference(ctx, domain.SettingQuality, string(q))
}

func (o *Orchestrator) SetShouldMirror(ctx context.Context, mirror bool) error {
	return o.setPreference(ctx, domain.SettingMirror, mirror)
}

// setPreference takes effect on the next acquisition.
func (o *Orchestrator) setPreference(ctx context.Context, key string, value any) error {
	return o.loop.Do(ctx, func() error {
		o.Settings.Set(key, value)
		o.refreshLocal()
		return nil
	})
}
