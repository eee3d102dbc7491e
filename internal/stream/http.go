package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/orchestrify/internal/audio"
	"github.com/satindergrewal/orchestrify/internal/logger"
)

// StreamName is announced to players that read ICY headers.
const StreamName = "orchestrify playback"

// HTTPHandler serves the playback audio as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	bitrate     int
}

// NewHTTPHandler creates an HTTP stream handler. bitrate is in bits/s.
func NewHTTPHandler(b *Broadcaster, bitrate int) *HTTPHandler {
	if bitrate <= 0 {
		bitrate = 128000
	}
	return &HTTPHandler{broadcaster: b, bitrate: bitrate}
}

// ffmpegArgs builds the PCM stdin -> MP3 stdout encoder command line.
func ffmpegArgs(bitrate int) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(bitrate/1000) + "k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(h.bitrate)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Error("HTTP stream: stdin pipe", err, nil)
		http.Error(w, "stream unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error("HTTP stream: stdout pipe", err, nil)
		http.Error(w, "stream unavailable", http.StatusInternalServerError)
		return
	}

	if err := cmd.Start(); err != nil {
		logger.Error("HTTP stream: ffmpeg start", err, nil)
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", StreamName)

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	logger.Info("HTTP listener connected", logger.Fields{"listeners": h.broadcaster.ListenerCount()})
	defer logger.Info("HTTP listener disconnected", nil)

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case <-h.broadcaster.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("HTTP stream: ffmpeg read", logger.Fields{"error": err.Error()})
			}
			break
		}
	}

	cancel()
	_ = cmd.Wait()
}
