package app

import (
	"fmt"

	"github.com/dkeye/VideoCall/internal/domain"
)

type NotifyAction int

const (
	SkipNotify NotifyAction = iota
	NotifyConnected
)

// Policy decides whether reaching connected is announced to the user.
// Implementations are used from the call loop only.
type Policy interface {
	OnConnected(pid domain.ParticipantID) NotifyAction
	// Reset forgets history when the call ends.
	Reset()
}

const (
	PolicyOncePerCall        = "call"
	PolicyOncePerParticipant = "participant"
)

// NewPolicy maps a config value to a Policy.
func NewPolicy(name string) (Policy, error) {
	switch name {
	case "", PolicyOncePerCall:
		return &OncePerCall{}, nil
	case PolicyOncePerParticipant:
		return &OncePerParticipant{}, nil
	default:
		return nil, fmt.Errorf("unknown connected notify policy %q", name)
	}
}

// OncePerCall announces only the first participant to connect.
type OncePerCall struct {
	fired bool
}

func (p *OncePerCall) OnConnected(domain.ParticipantID) NotifyAction {
	if p.fired {
		return SkipNotify
	}
	p.fired = true
	return NotifyConnected
}

func (p *OncePerCall) Reset() { p.fired = false }

// OncePerParticipant announces each participant's first connection.
// Reconnections after an ICE restart stay silent.
type OncePerParticipant struct {
	seen map[domain.ParticipantID]struct{}
}

func (p *OncePerParticipant) OnConnected(pid domain.ParticipantID) NotifyAction {
	if p.seen == nil {
		p.seen = make(map[domain.ParticipantID]struct{})
	}
	if _, ok := p.seen[pid]; ok {
		return SkipNotify
	}
	p.seen[pid] = struct{}{}
	return NotifyConnected
}

func (p *OncePerParticipant) Reset() { p.seen = nil }
