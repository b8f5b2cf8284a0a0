package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (cl *Client) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if cl.PingPeriod > 0 {
		t := time.NewTicker(cl.PingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(cl.writeTimeout())); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cl.writeTimeout())); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (cl *Client) readPump(ctx context.Context, c *WsSignalConn, h core.SignalHandler) {
	code, normal := websocket.CloseAbnormalClosure, false
	defer func() {
		if c.markClosed() {
			code, normal = websocket.CloseNormalClosure, true
		}
		c.cancel()
		_ = c.conn.Close()
		log.Info().Str("module", "signal").Str("room", string(c.room)).Int("code", code).Bool("normal", normal).Msg("readPump closing")
		h.OnClosed(code, normal)
	}()

	limit := cl.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.conn.SetReadLimit(limit)
	if cl.PingPeriod > 0 {
		wait := cl.pongWait()
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, normal = ce.Code, ce.Code == websocket.CloseNormalClosure
			} else if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		c.handleFrame(data, h)
	}
}

func (c *WsSignalConn) handleFrame(data []byte, h core.SignalHandler) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Int("bytes", len(data)).Msg("bad frame dropped")
		return
	}
	h.OnSignal(msg)
}
