// Package peer keeps one negotiated peer connection per remote participant
// and drives it from signaling messages.
package peer

import (
	"sort"

	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/dkeye/VideoCall/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Local is this client's participant id, empty when the relay never
	// told us. Messages targeted at someone else are dropped.
	Local    domain.ParticipantID
	Peers    core.PeerFactory
	Signal   core.Signaler
	Notify   core.Notifier
	Registry *app.Registry
	Policy   app.Policy
	// Post schedules fn on the call loop. Peer callbacks go through it.
	Post func(fn func())
	// Tracks returns the shared local tracks, nil without a local stream.
	Tracks func() []webrtc.TrackLocal
}

// Manager owns the participant collection. All methods must be called from
// the call loop.
type Manager struct {
	cfg          Config
	participants map[domain.ParticipantID]*Participant
	monitor      *Monitor
	logger       zerolog.Logger
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		cfg:          cfg,
		participants: make(map[domain.ParticipantID]*Participant),
		logger:       log.With().Str("module", "app.peer").Logger(),
	}
	m.monitor = &Monitor{Notify: cfg.Notify, Policy: cfg.Policy, Restart: m.restart}
	return m
}

// Handle applies one inbound signaling message.
func (m *Manager) Handle(msg protocol.Message) {
	if a, ok := msg.(protocol.Addressed); ok && m.cfg.Local != "" && a.To() != "" && a.To() != m.cfg.Local {
		m.logger.Debug().Str("kind", string(msg.Kind())).Str("target", string(a.To())).Msg("message for another participant, skipping")
		return
	}

	switch v := msg.(type) {
	case protocol.UserJoined:
		m.onUserJoined(v.Participant)
	case protocol.UserLeft:
		m.onUserLeft(v.Participant)
	case protocol.Offer:
		m.onOffer(v)
	case protocol.Answer:
		m.onAnswer(v)
	case protocol.ICECandidate:
		m.onCandidate(v)
	case protocol.MediaState:
		m.onMediaState(v)
	case protocol.Error:
		m.logger.Warn().Str("message", v.Message).Msg("relay error")
		m.cfg.Notify.Notify(v.Message, domain.SeverityError, domain.DurationError)
	default:
		m.logger.Warn().Str("kind", string(msg.Kind())).Msg("unhandled message")
	}
}

func (m *Manager) onUserJoined(pid domain.ParticipantID) {
	if pid == "" || pid == m.cfg.Local {
		return
	}
	if _, ok := m.participants[pid]; ok {
		m.logger.Debug().Str("pid", string(pid)).Msg("join for known participant, skipping")
		return
	}
	p, err := m.create(pid, domain.RoleOfferer)
	if err != nil {
		m.fail(pid, "create", err)
		return
	}
	m.cfg.Notify.Notify(domain.KeyUserJoined, domain.SeverityInfo, domain.DurationEvent)
	if err := m.offer(p, false); err != nil {
		m.fail(pid, "offer", err)
		// Forget it so a later join can start over.
		m.drop(p)
	}
}

func (m *Manager) onOffer(v protocol.Offer) {
	if v.Sender == "" {
		m.violation(v.Kind(), v.Sender, "offer without sender")
		return
	}
	p, ok := m.participants[v.Sender]
	created := false
	if !ok {
		var err error
		if p, err = m.create(v.Sender, domain.RoleAnswerer); err != nil {
			m.fail(v.Sender, "create", err)
			return
		}
		created = true
	} else if p.pc.HasLocalOffer() {
		// Both sides offered at once, usually two ICE restarts. The
		// offerer role keeps its offer, the answerer role yields.
		if p.Role == domain.RoleOfferer {
			m.logger.Info().Str("pid", string(p.ID)).Msg("offer collision, keeping local offer")
			return
		}
		if err := p.pc.Rollback(); err != nil {
			m.fail(p.ID, "rollback", err)
			return
		}
		m.logger.Info().Str("pid", string(p.ID)).Msg("offer collision, rolled back local offer")
	}

	if err := m.answer(p, v.SDP); err != nil {
		m.fail(p.ID, "answer", err)
		if created {
			m.drop(p)
		}
	}
}

func (m *Manager) onAnswer(v protocol.Answer) {
	p, ok := m.participants[v.Sender]
	if !ok {
		m.violation(v.Kind(), v.Sender, "answer from unknown participant")
		return
	}
	// Answerers only see answers to their own restart or renegotiation offers.
	if p.Role != domain.RoleOfferer && !p.pc.HasLocalOffer() {
		m.violation(v.Kind(), v.Sender, "answer for answerer role")
		return
	}
	if err := p.pc.SetRemoteDescription(v.SDP); err != nil {
		m.fail(p.ID, "set remote answer", err)
		return
	}
	m.logger.Debug().Str("pid", string(p.ID)).Msg("answer applied")
}

func (m *Manager) onCandidate(v protocol.ICECandidate) {
	p, ok := m.participants[v.Sender]
	if !ok {
		m.logger.Debug().Str("pid", string(v.Sender)).Msg("candidate for unknown participant, dropped")
		return
	}
	if err := p.pc.AddICECandidate(v.Candidate); err != nil {
		m.logger.Warn().Err(err).Str("pid", string(p.ID)).Msg("add ice candidate failed")
	}
}

func (m *Manager) onUserLeft(pid domain.ParticipantID) {
	p, ok := m.participants[pid]
	if !ok {
		return
	}
	m.drop(p)
	m.cfg.Notify.Notify(domain.KeyUserLeft, domain.SeverityInfo, domain.DurationEvent)
}

func (m *Manager) onMediaState(v protocol.MediaState) {
	p, ok := m.participants[v.Sender]
	if !ok {
		m.logger.Debug().Str("pid", string(v.Sender)).Msg("media state for unknown participant, dropped")
		return
	}
	flags := v.State
	p.RemoteMedia = &flags
	m.sync(p)
}

func (m *Manager) onTrack(p *Participant, rt core.RemoteTrack) {
	p.addTrack(rt)
	m.sync(p)
	m.logger.Info().Str("pid", string(p.ID)).Str("track", rt.ID).Str("kind", string(rt.Kind)).Msg("remote track")
}

func (m *Manager) onState(p *Participant, next domain.ConnectionState) {
	// Closed is only reached through drop, which already forgot p.
	if next == domain.StateClosed || next == p.State {
		return
	}
	prev := p.State
	p.State = next
	m.monitor.Observe(p, prev, next)
	m.sync(p)
}

// AttachTracks binds new local tracks to every participant, replacing tracks
// of the same kind and renegotiating where a new sender was needed.
func (m *Manager) AttachTracks(tracks []webrtc.TrackLocal) {
	for _, p := range m.participants {
		renegotiate := false
		for _, t := range tracks {
			replaced, err := p.pc.ReplaceTrack(t)
			if err != nil {
				m.logger.Warn().Err(err).Str("pid", string(p.ID)).Msg("replace track failed")
			}
			if replaced {
				continue
			}
			if err := p.pc.AddTrack(t); err != nil {
				m.fail(p.ID, "add track", err)
				continue
			}
			renegotiate = true
		}
		if renegotiate {
			if err := m.offer(p, false); err != nil {
				m.fail(p.ID, "renegotiate", err)
			}
		}
	}
}

// CloseAll tears down every participant.
func (m *Manager) CloseAll() {
	for _, p := range m.participants {
		m.drop(p)
	}
	m.cfg.Registry.Clear()
	m.cfg.Policy.Reset()
}

func (m *Manager) Participant(pid domain.ParticipantID) (*Participant, bool) {
	p, ok := m.participants[pid]
	return p, ok
}

func (m *Manager) Len() int { return len(m.participants) }

func (m *Manager) IDs() []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(m.participants))
	for id := range m.participants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) create(pid domain.ParticipantID, role domain.Role) (*Participant, error) {
	pc, err := m.cfg.Peers.NewPeer(pid)
	if err != nil {
		return nil, err
	}
	p := &Participant{ID: pid, Role: role, State: domain.StateNew, pc: pc}

	var tracks []webrtc.TrackLocal
	if m.cfg.Tracks != nil {
		tracks = m.cfg.Tracks()
	}
	sending := map[domain.MediaKind]bool{}
	for _, t := range tracks {
		if err := pc.AddTrack(t); err != nil {
			_ = pc.Close()
			return nil, err
		}
		sending[kindOf(t)] = true
	}
	if role == domain.RoleOfferer {
		for _, k := range []domain.MediaKind{domain.KindVideo, domain.KindAudio} {
			if sending[k] {
				continue
			}
			if err := pc.AddRecvOnly(k); err != nil {
				_ = pc.Close()
				return nil, err
			}
		}
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.post(p, func() {
			m.cfg.Signal.Send(protocol.ICECandidate{Target: p.ID, Candidate: c})
		})
	})
	pc.OnTrack(func(rt core.RemoteTrack) {
		m.post(p, func() { m.onTrack(p, rt) })
	})
	pc.OnStateChange(func(s domain.ConnectionState) {
		m.post(p, func() { m.onState(p, s) })
	})

	m.participants[pid] = p
	m.sync(p)
	m.logger.Info().Str("pid", string(pid)).Str("role", role.String()).Int("tracks", len(tracks)).Msg("participant created")
	return p, nil
}

// post runs fn on the loop unless p was removed in the meantime.
func (m *Manager) post(p *Participant, fn func()) {
	m.cfg.Post(func() {
		if m.participants[p.ID] != p {
			m.logger.Debug().Str("pid", string(p.ID)).Msg("callback from removed participant, skipping")
			return
		}
		fn()
	})
}

func (m *Manager) offer(p *Participant, iceRestart bool) error {
	sd, err := p.pc.CreateOffer(iceRestart)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return err
	}
	m.cfg.Signal.Send(protocol.Offer{Target: p.ID, SDP: sd})
	m.logger.Debug().Str("pid", string(p.ID)).Bool("ice_restart", iceRestart).Msg("offer sent")
	return nil
}

func (m *Manager) restart(p *Participant) error {
	if err := m.offer(p, true); err != nil {
		return &domain.NegotiationError{Participant: p.ID, Op: "ice restart", Err: err}
	}
	return nil
}

func (m *Manager) answer(p *Participant, remote webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return err
	}
	sd, err := p.pc.CreateAnswer()
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return err
	}
	m.cfg.Signal.Send(protocol.Answer{Target: p.ID, SDP: sd})
	m.logger.Debug().Str("pid", string(p.ID)).Msg("answer sent")
	return nil
}

// drop forgets p before closing it so the synchronous closed callback is
// treated as stale.
func (m *Manager) drop(p *Participant) {
	delete(m.participants, p.ID)
	m.cfg.Registry.Remove(p.ID)
	if err := p.pc.Close(); err != nil {
		m.logger.Warn().Err(err).Str("pid", string(p.ID)).Msg("close peer connection")
	}
	m.logger.Info().Str("pid", string(p.ID)).Msg("participant removed")
}

func (m *Manager) fail(pid domain.ParticipantID, op string, err error) {
	nerr := &domain.NegotiationError{Participant: pid, Op: op, Err: err}
	m.logger.Error().Err(nerr).Str("pid", string(pid)).Msg("negotiation failed")
	m.cfg.Notify.Notify(domain.KeyNegotiationFailed, domain.SeverityError, domain.DurationError)
}

func (m *Manager) violation(kind protocol.Kind, pid domain.ParticipantID, reason string) {
	m.logger.Warn().
		Err(domain.ErrProtocolViolation).
		Str("kind", string(kind)).
		Str("pid", string(pid)).
		Msg(reason)
}

func (m *Manager) sync(p *Participant) {
	m.cfg.Registry.Put(p.view())
}

func kindOf(t webrtc.TrackLocal) domain.MediaKind {
	if t.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.KindAudio
	}
	return domain.KindVideo
}
