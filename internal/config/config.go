package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Generation / rendering service
	APIURL         string
	RequestTimeout time.Duration

	// Local UI server
	Port        int
	Environment string
	SentryDSN   string

	// Submission form
	MaxUploadBytes int64 // source file ceiling

	// Notifications
	NotifyTTL time.Duration // auto-dismiss delay

	// Playback
	ClearOnRetrigger bool    // drop pending notes when play is pressed again
	StreamBitrate    int     // Opus bitrate for WebRTC listeners
	MasterGain       float64 // per-voice peak amplitude, 0-1
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		APIURL:         strings.TrimRight(envStr("ORCHESTRIFY_API_URL", "http://localhost:8000"), "/"),
		RequestTimeout: time.Duration(envInt("ORCHESTRIFY_REQUEST_TIMEOUT", 120)) * time.Second,

		Port:        envInt("ORCHESTRIFY_PORT", 3000),
		Environment: envStr("ORCHESTRIFY_ENV", "development"),
		SentryDSN:   envStr("SENTRY_DSN", ""),

		MaxUploadBytes: int64(envInt("ORCHESTRIFY_MAX_UPLOAD_BYTES", 50*1024)),

		NotifyTTL: time.Duration(envInt("ORCHESTRIFY_NOTIFY_TTL", 5)) * time.Second,

		ClearOnRetrigger: envBool("ORCHESTRIFY_CLEAR_ON_RETRIGGER", true),
		StreamBitrate:    envInt("ORCHESTRIFY_STREAM_BITRATE", 128000),
		MasterGain:       envFloat("ORCHESTRIFY_MASTER_GAIN", 0.2),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
