package app

import (
	"sync"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// LocalView is the local half of the UI state.
type LocalView struct {
	Room           domain.RoomID          `json:"room,omitempty"`
	SignalOpen     bool                   `json:"signal_open"`
	HasLocalStream bool                   `json:"has_local_stream"`
	Loading        string                 `json:"loading,omitempty"`
	Media          domain.LocalMediaState `json:"media"`
}

// Snapshot is the complete state pushed to UI subscribers.
type Snapshot struct {
	LocalView
	Connected    bool              `json:"connected"`
	Participants []ParticipantView `json:"participants"`
}

// PublishResult reports delivery to subscribers.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Store aggregates local and participant state and fans snapshots out to
// subscribers. A slow subscriber loses intermediate snapshots, never the
// latest one.
type Store struct {
	Registry *Registry

	mu    sync.RWMutex
	local LocalView

	subMu sync.Mutex
	subs  map[uint64]chan Snapshot
	next  uint64
}

func NewStore(reg *Registry) *Store {
	s := &Store{
		Registry: reg,
		subs:     make(map[uint64]chan Snapshot),
	}
	reg.onChange = func() { s.Publish() }
	return s
}

func (s *Store) Local() LocalView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

// UpdateLocal mutates the local view and publishes the result.
func (s *Store) UpdateLocal(fn func(*LocalView)) {
	s.mu.Lock()
	fn(&s.local)
	s.mu.Unlock()
	s.Publish()
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		LocalView:    s.Local(),
		Connected:    s.Registry.AnyConnected(),
		Participants: s.Registry.Snapshot(),
	}
}

// Subscribe returns a channel of snapshots, primed with the current one.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	ch <- s.Snapshot()

	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) Publish() PublishResult {
	snap := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	res := PublishResult{}
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			res.SentTo++
			continue
		default:
		}
		// Full: replace the oldest pending snapshot with the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
		res.Dropped++
	}
	if len(s.subs) > 0 {
		log.Debug().Str("module", "app.store").Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("publish result")
	}
	return res
}
