// Package web serves the local UI, its JSON API, artifact handles and the
// playback audio streams.
package web

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/orchestrify/internal/session"
)

//go:embed index.html
var IndexHTML []byte

// Streams are the optional audio endpoints. Nil handlers are not mounted.
type Streams struct {
	MP3    http.Handler
	WebRTC http.Handler
}

// SetupRouter builds the gin engine for one session.
func SetupRouter(sess *session.Session, streams Streams) *gin.Engine {
	router := gin.New()

	router.Use(RecoverWithSentry())
	router.Use(SentryMiddleware())
	router.Use(RequestTracking())

	h := &Handler{sess: sess}

	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/blob/:id", h.Blob)

	api := router.Group("/api")
	{
		api.GET("/state", h.State)
		api.PUT("/form", h.UpdateForm)
		api.POST("/form/file", h.SelectFile)
		api.DELETE("/form/file", h.ClearFile)
		api.POST("/generate", h.Generate)
		api.POST("/play", h.Play)
		api.POST("/pianoroll", h.PianoRoll)
		api.POST("/notifications/:id/dismiss", h.Dismiss)
	}

	if streams.MP3 != nil {
		router.GET("/stream", gin.WrapH(streams.MP3))
	}
	if streams.WebRTC != nil {
		router.POST("/offer", gin.WrapH(streams.WebRTC))
	}

	return router
}
