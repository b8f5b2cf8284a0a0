package peer

import (
	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Monitor reacts to connection state transitions of participants.
type Monitor struct {
	Notify core.Notifier
	Policy app.Policy
	// Restart sends an ICE restart offer to p.
	Restart func(p *Participant) error
}

// Observe is called once per state transition, after p.State was updated.
func (m *Monitor) Observe(p *Participant, prev, next domain.ConnectionState) {
	logger := log.With().
		Str("module", "app.monitor").
		Str("pid", string(p.ID)).
		Str("from", string(prev)).
		Str("to", string(next)).
		Logger()

	switch next {
	case domain.StateFailed:
		logger.Warn().Msg("connection failed, restarting ICE")
		m.Notify.Notify(domain.KeyCallFailed, domain.SeverityError, domain.DurationError)
		if err := m.Restart(p); err != nil {
			logger.Error().Err(err).Msg("ice restart failed, participant degraded")
			p.Degraded = true
			m.Notify.Notify(domain.KeyConnectionDegraded, domain.SeverityWarning, domain.DurationError)
		}
	case domain.StateConnected:
		p.Degraded = false
		if m.Policy.OnConnected(p.ID) == app.NotifyConnected {
			m.Notify.Notify(domain.KeyCallConnected, domain.SeveritySuccess, domain.DurationEvent)
		}
		logger.Info().Msg("participant connected")
	default:
		logger.Debug().Msg("state change")
	}
}
