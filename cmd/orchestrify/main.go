package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/satindergrewal/orchestrify/internal/audio"
	"github.com/satindergrewal/orchestrify/internal/backend"
	"github.com/satindergrewal/orchestrify/internal/config"
	"github.com/satindergrewal/orchestrify/internal/logger"
	"github.com/satindergrewal/orchestrify/internal/session"
	"github.com/satindergrewal/orchestrify/internal/stream"
	"github.com/satindergrewal/orchestrify/internal/submit"
	"github.com/satindergrewal/orchestrify/internal/web"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	healthProbeTimeout    = 5 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "orchestrify@" + releaseVersion,
			Debug:       cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("Sentry not configured (SENTRY_DSN not set)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := backend.NewClient(cfg.APIURL, cfg.RequestTimeout)

	log.Println("orchestrify starting up...")

	// The UI still starts when the service is down; the catalog fetch will
	// surface the failure to the user.
	probeCtx, probeCancel := context.WithTimeout(ctx, healthProbeTimeout)
	if err := client.Health(probeCtx); err != nil {
		logger.Warn("Generation service not reachable", logger.Fields{"url": cfg.APIURL, "error": err.Error()})
	} else {
		logger.Info("Generation service reachable", logger.Fields{"url": cfg.APIURL})
	}
	probeCancel()

	// Audio engine: shared playback clock and synth
	engine := audio.NewEngine(cfg.MasterGain)
	go engine.Run(ctx)

	// Broadcaster: fan-out PCM frames to all listeners
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, engine.Frames())

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.StreamBitrate)
	defer webrtcHandler.Close()

	sess := session.New(client, engine, session.Options{
		Limits:           submit.Limits{MaxBytes: cfg.MaxUploadBytes},
		NotifyTTL:        cfg.NotifyTTL,
		ClearOnRetrigger: cfg.ClearOnRetrigger,
	})
	defer sess.Close()

	go func() {
		if err := sess.Mount(ctx); err != nil {
			logger.Warn("Starting without a model catalog", logger.Fields{"error": err.Error()})
		}
	}()

	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := web.SetupRouter(sess, web.Streams{
		MP3:    stream.NewHTTPHandler(broadcaster, cfg.StreamBitrate),
		WebRTC: webrtcHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutCancel()
		if err := server.Shutdown(shutCtx); err != nil {
			server.Close()
		}
	}()

	logger.Info("orchestrify live", logger.Fields{"addr": addr, "service": cfg.APIURL})
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		sentry.CaptureException(err)
		log.Fatalf("HTTP server error: %v", err)
	}
}
