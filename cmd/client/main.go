package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VideoCall/internal/adapters/capture"
	router "github.com/dkeye/VideoCall/internal/adapters/http"
	"github.com/dkeye/VideoCall/internal/adapters/rtc"
	sig "github.com/dkeye/VideoCall/internal/adapters/signal"
	"github.com/dkeye/VideoCall/internal/app"
	"github.com/dkeye/VideoCall/internal/app/orch"
	"github.com/dkeye/VideoCall/internal/config"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, v, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	policy, err := app.NewPolicy(cfg.Call.ConnectedNotify)
	if err != nil {
		log.Fatal().Err(err).Msg("bad call.connected_notify")
	}

	// Without capture the call still runs receive-only.
	var devices core.MediaDevices
	var lister router.DeviceLister
	apiOpts := rtc.APIOptions{UDPPortMin: cfg.RTC.UDPPortMin, UDPPortMax: cfg.RTC.UDPPortMax}
	capt, err := capture.NewDevices(capture.Options{
		VideoBitRate: cfg.Media.VideoBitRate,
		AudioBitRate: cfg.Media.AudioBitRate,
		MTU:          cfg.Media.MTU,
	})
	if err != nil {
		log.Warn().Err(err).Msg("capture unavailable, joining receive-only")
	} else {
		devices, lister = capt, capt
		apiOpts.Codecs = capt.Populate
	}

	api, err := rtc.NewAPI(apiOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}
	factory := &rtc.Factory{
		API: api,
		Config: webrtc.Configuration{
			ICEServers: rtc.ICEServers(cfg.RTC.ICEServers, strings.Join(cfg.RTC.TURNURLs, ","), cfg.RTC.TURNUsername, cfg.RTC.TURNCredential),
		},
	}

	client := &sig.Client{
		URL:          cfg.Signal.URL,
		Dialer:       &websocket.Dialer{HandshakeTimeout: cfg.Signal.ConnectTimeout},
		ReadLimit:    cfg.Signal.ReadLimit,
		PingPeriod:   cfg.Signal.PingPeriod,
		WriteTimeout: cfg.Signal.WriteTimeout,
	}

	notes := router.NewNotifications(router.EnglishCatalog, 100)
	call := orch.New(orch.Deps{
		Devices:        devices,
		Peers:          factory,
		Dialer:         client,
		Notifier:       notes,
		Settings:       config.NewSettings(v, cfg.Mode != "release"),
		Policy:         policy,
		LocalID:        domain.ParticipantID(cfg.Call.ParticipantID),
		ConnectTimeout: cfg.Signal.ConnectTimeout,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Call:    call,
		Devices: lister,
		Notes:   notes,
		Limiter: router.NewRateLimiter(20, time.Second),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// The call loop outlives gctx so EndCall can still run on it.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		call.Run(runCtx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("VideoCall control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return autostart(gctx, cfg, call, devices != nil)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	<-gctx.Done()
	endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := call.EndCall(endCtx); err != nil {
		log.Warn().Err(err).Msg("end call")
	}
	endCancel()
	stopRun()

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("exited with error")
		os.Exit(1)
	}
	log.Info().Msg("VideoCall exited gracefully")
}

// autostart acquires media and joins the configured room.
func autostart(ctx context.Context, cfg *config.Config, call *orch.Orchestrator, canCapture bool) error {
	if cfg.Call.AutoMedia && canCapture {
		if err := call.InitializeLocalMedia(ctx, false); err != nil {
			log.Warn().Err(err).Msg("local media not started")
		}
	}
	if cfg.Call.Room == "" {
		return nil
	}
	if err := call.ConnectToRoom(ctx, cfg.Call.Room); err != nil {
		log.Error().Err(err).Str("room", cfg.Call.Room).Msg("auto join failed")
	}
	return nil
}
