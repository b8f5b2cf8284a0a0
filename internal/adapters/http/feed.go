package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type feedConfig struct {
	ctx          context.Context
	writeTimeout time.Duration
	pingPeriod   time.Duration
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stateFeed pushes every snapshot to the viewer until either side goes away.
func (h *handlers) stateFeed(c *gin.Context) {
	sid := c.GetString(tokenKey)
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.http").Str("sid", sid).Msg("state feed open")

	snaps, cancel := h.d.Call.Subscribe()
	ctx, stop := context.WithCancel(h.feed.ctx)
	defer func() {
		stop()
		cancel()
		_ = ws.Close()
		log.Info().Str("module", "adapters.http").Str("sid", sid).Msg("state feed closed")
	}()

	go func() {
		defer stop()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.feed.pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				log.Error().Str("module", "adapters.http").Err(err).Msg("snapshot encode")
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(h.feed.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Str("module", "adapters.http").Err(err).Msg("state feed write")
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.feed.writeTimeout)); err != nil {
				return
			}
		}
	}
}
