package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Loop runs posted tasks one at a time on a single goroutine, in post order.
// Post never blocks, so it is safe to call from transport callbacks that fire
// while a task is running.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to finish or for ctx to be done.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	l.Post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return
			}
			l.exec(fn)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.loop").Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}
