// Package http is the local control API: REST actions on the call and a
// WebSocket feed of state snapshots.
package http

import (
	"context"
	"time"

	"github.com/dkeye/VideoCall/internal/adapters/capture"
	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/config"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CallControl is the call surface the API drives.
type CallControl interface {
	Snapshot() app.Snapshot
	Subscribe() (<-chan app.Snapshot, func())
	InitializeLocalMedia(ctx context.Context, force bool) error
	ConnectToRoom(ctx context.Context, raw string) error
	Toggle(ctx context.Context, kind domain.MediaKind, explicit *bool) (bool, error)
	EndCall(ctx context.Context) error
	SelectVideoDevice(ctx context.Context, id string) error
	SelectAudioDevice(ctx context.Context, id string) error
	SetVideoQuality(ctx context.Context, raw string) error
	SetShouldMirror(ctx context.Context, mirror bool) error
}

type DeviceLister interface {
	Enumerate() []capture.DeviceInfo
}

type Deps struct {
	Call    CallControl
	Devices DeviceLister
	Notes   *Notifications
	// Limiter guards mutating routes per viewer; nil disables it.
	Limiter *RateLimiter
}

const (
	sessionName = "VideoCallSessions"
	tokenKey    = "client_token"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every viewer a stable id kept in the session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(tokenKey).(string)
		if token == "" {
			token = genClientToken()
			s.Set(tokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Str("module", "adapters.http").Err(err).Msg("session save failed")
			}
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{d: d, feed: feedConfig{ctx: ctx, writeTimeout: 5 * time.Second, pingPeriod: 30 * time.Second}}
	api := r.Group("/api")
	api.GET("/state", h.state)
	api.GET("/notifications", h.notifications)
	api.GET("/media/devices", h.devices)
	api.GET("/ws/state", h.stateFeed)

	act := api.Group("")
	if d.Limiter != nil {
		act.Use(d.Limiter.Middleware())
	}
	act.POST("/media/init", h.initMedia)
	act.POST("/media/video", h.toggle(domain.KindVideo))
	act.POST("/media/audio", h.toggle(domain.KindAudio))
	act.PUT("/media/preferences", h.preferences)
	act.POST("/room/:id", h.connect)
	act.POST("/call/end", h.endCall)

	return r
}
