package core

import (
	"context"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/dkeye/VideoCall/internal/protocol"
)

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts the relay transport.
// Owned by the adapter; the owner must Close() it.
type SignalConnection interface {
	// TrySend never blocks. It fails with domain.ErrChannelClosed when the
	// channel is not open and domain.ErrBackpressure when the buffer is full.
	TrySend(Frame) error
	IsOpen() bool
	// Close performs a normal (1000) closure.
	Close()
}

// Signaler sends typed messages; sends on a closed channel are dropped.
type Signaler interface {
	Send(protocol.Message)
}

// SignalHandler receives events from an open SignalConnection.
type SignalHandler interface {
	OnSignal(protocol.Message)
	// OnClosed is called once. normal is true for a 1000 closure.
	OnClosed(code int, normal bool)
}

// SignalDialer opens the relay channel for one room. Open returns once the
// channel is ready to send, or fails on error or timeout.
type SignalDialer interface {
	Open(ctx context.Context, room domain.RoomID, h SignalHandler) (SignalConnection, error)
}
