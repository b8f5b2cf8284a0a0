package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/dkeye/VideoCall/internal/protocol"
	"github.com/rs/zerolog/log"
)

var errStaleConnect = errors.New("connect superseded")

// session is one signaling connection. Messages that arrive before the
// connection is attached are held back and replayed in order.
type session struct {
	o    *Orchestrator
	room domain.RoomID
	conn core.SignalConnection

	mu      sync.Mutex
	ready   bool
	pending []func()
}

func (s *session) OnSignal(m protocol.Message) {
	s.enqueue(func() { s.o.peers.Handle(m) })
}

func (s *session) OnClosed(code int, normal bool) {
	s.enqueue(func() { s.o.signalClosed(s, code, normal) })
}

func (s *session) enqueue(fn func()) {
	task := func() {
		if s.o.sess != s {
			return
		}
		fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.pending = append(s.pending, task)
		return
	}
	s.o.loop.Post(task)
}

// activate runs on the loop.
func (s *session) activate() {
	s.mu.Lock()
	s.ready = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// ConnectToRoom leaves the current room, if any, and opens the signaling
// channel for raw. Existing local media is kept.
func (o *Orchestrator) ConnectToRoom(ctx context.Context, raw string) error {
	room, err := domain.ParseRoomID(raw)
	if err != nil {
		return err
	}
	s := &session{o: o, room: room}
	if err := o.loop.Do(ctx, func() error {
		o.leave()
		o.sess = s
		o.Store.UpdateLocal(func(v *app.LocalView) {
			v.Room = room
			v.SignalOpen = false
		})
		return nil
	}); err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	conn, err := o.Dialer.Open(dctx, room, s)
	if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		err = domain.ErrSignalingTimeout
	}
	cancel()

	return o.loop.Do(o.life, func() error {
		if o.sess != s {
			if conn != nil {
				conn.Close()
			}
			return errStaleConnect
		}
		if err != nil {
			o.sess = nil
			o.Store.UpdateLocal(func(v *app.LocalView) { v.Room = "" })
			serr := &domain.SignalingError{Room: room, Err: err}
			log.Error().Str("module", "app.orch").Err(serr).Msg("signaling connect failed")
			o.Notifier.Notify(domain.KeyWSConnectionLost, domain.SeverityError, domain.DurationError)
			return serr
		}
		s.conn = conn
		o.Store.UpdateLocal(func(v *app.LocalView) { v.SignalOpen = true })
		log.Info().Str("module", "app.orch").Str("room", string(room)).Msg("joined room")
		s.activate()
		return nil
	})
}

// EndCall closes every participant and the signaling channel and releases
// the local capture devices.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	return o.loop.Do(ctx, func() error {
		o.leave()
		o.mediaGen++
		if s := o.media.Stream(); s != nil {
			o.media.Detach()
			s.Stop()
		}
		o.Store.UpdateLocal(func(v *app.LocalView) {
			*v = app.LocalView{Media: o.localState()}
		})
		log.Info().Str("module", "app.orch").Msg("call ended")
		return nil
	})
}

// Send implements core.Signaler. Messages are dropped when the channel is
// not open.
func (o *Orchestrator) Send(m protocol.Message) {
	if o.sess == nil || o.sess.conn == nil || !o.sess.conn.IsOpen() {
		log.Debug().Str("module", "app.orch").Str("kind", string(m.Kind())).Msg("signaling closed, message dropped")
		return
	}
	data, err := protocol.Encode(m)
	if err != nil {
		log.Error().Str("module", "app.orch").Err(err).Msg("encode message")
		return
	}
	if err := o.sess.conn.TrySend(core.Frame(data)); err != nil {
		log.Warn().Str("module", "app.orch").Err(err).Str("kind", string(m.Kind())).Msg("message dropped")
	}
}

// leave tears down participants and the channel. Loop only.
func (o *Orchestrator) leave() {
	o.peers.CloseAll()
	s := o.sess
	if s == nil {
		return
	}
	o.sess = nil
	if s.conn != nil {
		s.conn.Close()
	}
	log.Info().Str("module", "app.orch").Str("room", string(s.room)).Msg("left room")
}

func (o *Orchestrator) signalClosed(s *session, code int, normal bool) {
	o.Store.UpdateLocal(func(v *app.LocalView) { v.SignalOpen = false })
	if normal {
		log.Info().Str("module", "app.orch").Str("room", string(s.room)).Msg("signaling closed")
		return
	}
	log.Warn().Str("module", "app.orch").Str("room", string(s.room)).Int("code", code).Msg("signaling connection lost")
	o.Notifier.Notify(domain.KeyWSConnectionLost, domain.SeverityError, domain.DurationError)
}
