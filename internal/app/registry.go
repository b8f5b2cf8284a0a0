package app

import (
	"sort"
	"sync"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// StreamView is the UI-facing view of a remote media stream.
type StreamView struct {
	ID     string             `json:"id"`
	Tracks []core.RemoteTrack `json:"tracks"`
}

// ParticipantView is a read-only copy of one participant connection.
type ParticipantView struct {
	ID       domain.ParticipantID   `json:"id"`
	Role     string                 `json:"role"`
	State    domain.ConnectionState `json:"state"`
	Remote   *StreamView            `json:"remote_stream,omitempty"`
	Media    *domain.MediaFlags     `json:"media,omitempty"`
	Degraded bool                   `json:"degraded"`
}

// Registry mirrors the participant collection for concurrent readers.
// Only the call loop writes to it.
type Registry struct {
	mu       sync.RWMutex
	views    map[domain.ParticipantID]ParticipantView
	onChange func()
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[domain.ParticipantID]ParticipantView)}
}

func (r *Registry) Put(v ParticipantView) {
	r.mu.Lock()
	_, existed := r.views[v.ID]
	r.views[v.ID] = v
	r.mu.Unlock()
	if !existed {
		log.Info().Str("module", "app.registry").Str("pid", string(v.ID)).Str("role", v.Role).Msg("participant added")
	}
	r.changed()
}

func (r *Registry) Remove(pid domain.ParticipantID) bool {
	r.mu.Lock()
	_, ok := r.views[pid]
	delete(r.views, pid)
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("pid", string(pid)).Msg("participant removed")
		r.changed()
	}
	return ok
}

func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.views)
	r.views = make(map[domain.ParticipantID]ParticipantView)
	r.mu.Unlock()
	if n > 0 {
		log.Info().Str("module", "app.registry").Int("count", n).Msg("participants cleared")
		r.changed()
	}
}

func (r *Registry) Get(pid domain.ParticipantID) (ParticipantView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[pid]
	return v, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Snapshot returns all views ordered by participant id.
func (r *Registry) Snapshot() []ParticipantView {
	r.mu.RLock()
	out := make([]ParticipantView, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) States() map[domain.ParticipantID]domain.ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.ParticipantID]domain.ConnectionState, len(r.views))
	for id, v := range r.views {
		out[id] = v.State
	}
	return out
}

// RemoteStreams maps participants to their remote stream, when one arrived.
func (r *Registry) RemoteStreams() map[domain.ParticipantID]StreamView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.ParticipantID]StreamView)
	for id, v := range r.views {
		if v.Remote != nil {
			out[id] = *v.Remote
		}
	}
	return out
}

// AnyConnected is the aggregate call-connected flag.
func (r *Registry) AnyConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.views {
		if v.State == domain.StateConnected {
			return true
		}
	}
	return false
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}
