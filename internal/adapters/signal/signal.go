// Package signal is the WebSocket client for the signaling relay.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultReadLimit    = 1 << 20
	defaultWriteTimeout = 5 * time.Second
	defaultPongWait     = 45 * time.Second
	defaultSendBuffer   = 64
)

// Client opens one relay connection per room.
type Client struct {
	// URL is the relay base, ws://host:port or wss://host.
	URL          string
	Dialer       *websocket.Dialer
	ReadLimit    int64
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	PongWait     time.Duration
	SendBuffer   int
}

// RoomURL is <base>/ws/room/<room>/.
func (cl *Client) RoomURL(room domain.RoomID) (string, error) {
	u, err := url.Parse(cl.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/room/" + url.PathEscape(string(room)) + "/"
	return u.String(), nil
}

// Open dials the relay and starts the pumps. It returns once the channel is
// ready to send, or fails when ctx ends first.
func (cl *Client) Open(ctx context.Context, room domain.RoomID, h core.SignalHandler) (core.SignalConnection, error) {
	target, err := cl.RoomURL(room)
	if err != nil {
		return nil, err
	}
	dialer := cl.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrSignalingTimeout
		}
		return nil, err
	}
	log.Info().Str("module", "signal").Str("room", string(room)).Str("url", target).Msg("relay connected")

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &WsSignalConn{
		conn:   ws,
		send:   make(chan core.Frame, cl.sendBuffer()),
		cancel: cancel,
		room:   room,
	}
	go cl.writePump(pumpCtx, c)
	go cl.readPump(pumpCtx, c, h)
	return c, nil
}

func (cl *Client) sendBuffer() int {
	if cl.SendBuffer > 0 {
		return cl.SendBuffer
	}
	return defaultSendBuffer
}

func (cl *Client) writeTimeout() time.Duration {
	if cl.WriteTimeout > 0 {
		return cl.WriteTimeout
	}
	return defaultWriteTimeout
}

func (cl *Client) pongWait() time.Duration {
	if cl.PongWait > 0 {
		return cl.PongWait
	}
	return defaultPongWait
}

// WsSignalConn is one open relay connection.
type WsSignalConn struct {
	conn   *websocket.Conn
	send   chan core.Frame
	cancel context.CancelFunc
	room   domain.RoomID

	mu     sync.RWMutex
	closed bool
	local  bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrChannelClosed
	}
	select {
	case c.send <- f:
	default:
		return domain.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close ends the call side of the connection with a normal close frame.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.local = true
	close(c.send)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Call ended")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("close frame")
	}
	c.cancel()
	_ = c.conn.Close()
}

// markClosed reports whether the close was started locally.
func (c *WsSignalConn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return c.local
}
