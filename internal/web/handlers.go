package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/satindergrewal/orchestrify/internal/artifact"
	"github.com/satindergrewal/orchestrify/internal/logger"
	"github.com/satindergrewal/orchestrify/internal/session"
	"github.com/satindergrewal/orchestrify/internal/submit"
)

// bodySlack is how far past the file ceiling a multipart body may go before
// the request is refused without reading it.
const bodySlack = 1 << 20

// Handler serves the API for one session.
type Handler struct {
	sess *session.Session
}

// StateResponse is returned by every mutating endpoint.
type StateResponse struct {
	Error string           `json:"error,omitempty"`
	Notes int              `json:"notes,omitempty"`
	State session.Snapshot `json:"state"`
}

// FormRequest updates text fields; absent fields are left alone.
type FormRequest struct {
	Density *string `json:"density" binding:"omitempty,max=64"`
	Model   *string `json:"model" binding:"omitempty,max=256"`
}

func (h *Handler) respond(c *gin.Context, status int, err error) {
	resp := StateResponse{State: h.sess.Snapshot()}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(status, resp)
}

// Index serves the embedded single-page UI.
func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", IndexHTML)
}

// Health reports liveness and the catalog state.
func (h *Handler) Health(c *gin.Context) {
	snap := h.sess.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"catalog": snap.CatalogState,
		"models":  len(snap.Models),
	})
}

// State returns the UI snapshot.
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.sess.Snapshot())
}

// UpdateForm edits the density and model fields.
func (h *Handler) UpdateForm(c *gin.Context) {
	var req FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respond(c, http.StatusBadRequest, err)
		return
	}
	form := h.sess.Form()
	if req.Density != nil {
		form.SetDensity(*req.Density)
	}
	if req.Model != nil {
		form.SetModel(*req.Model)
	}
	h.respond(c, http.StatusOK, nil)
}

// SelectFile takes the multipart "file" field as the source file. Oversized
// files are kept with their reported size so the form can show the error.
func (h *Handler) SelectFile(c *gin.Context) {
	limit := h.sess.Form().Limits().MaxBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+bodySlack)

	hdr, err := c.FormFile(submit.FieldFile)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.respond(c, http.StatusRequestEntityTooLarge,
				fmt.Errorf("file size is too large, maximum size is %d kB", limit/1024))
			return
		}
		h.respond(c, http.StatusBadRequest, fmt.Errorf("read file: %w", err))
		return
	}

	f, err := hdr.Open()
	if err != nil {
		h.respond(c, http.StatusBadRequest, fmt.Errorf("open file: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		h.respond(c, http.StatusBadRequest, fmt.Errorf("read file: %w", err))
		return
	}

	h.sess.Form().SetFile(&submit.Upload{Name: hdr.Filename, Size: hdr.Size, Data: data})
	h.respond(c, http.StatusOK, nil)
}

// ClearFile removes the selected file.
func (h *Handler) ClearFile(c *gin.Context) {
	h.sess.Form().SetFile(nil)
	h.respond(c, http.StatusOK, nil)
}

// Generate submits the form. The request runs to completion even if the
// browser goes away, so the form always returns to an interactive state.
func (h *Handler) Generate(c *gin.Context) {
	err := h.sess.Submit(context.WithoutCancel(c.Request.Context()))
	switch {
	case err == nil:
		h.respond(c, http.StatusOK, nil)
	case errors.Is(err, submit.ErrBusy):
		h.respond(c, http.StatusConflict, err)
	case errors.Is(err, submit.ErrInvalid):
		h.respond(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, session.ErrClosed):
		h.respond(c, http.StatusServiceUnavailable, err)
	default:
		h.respond(c, http.StatusBadGateway, err)
	}
}

// Play schedules the current artifact on the shared clock.
func (h *Handler) Play(c *gin.Context) {
	n, err := h.sess.Play()
	if errors.Is(err, session.ErrClosed) {
		h.respond(c, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		h.respond(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, StateResponse{Notes: n, State: h.sess.Snapshot()})
}

// PianoRoll renders the current artifact.
func (h *Handler) PianoRoll(c *gin.Context) {
	_, err := h.sess.Render(context.WithoutCancel(c.Request.Context()))
	switch {
	case err == nil:
		h.respond(c, http.StatusOK, nil)
	case errors.Is(err, session.ErrNoArtifact), errors.Is(err, session.ErrRenderBusy):
		h.respond(c, http.StatusConflict, err)
	case errors.Is(err, session.ErrClosed):
		h.respond(c, http.StatusServiceUnavailable, err)
	default:
		h.respond(c, http.StatusBadGateway, err)
	}
}

// Dismiss closes a notification on click.
func (h *Handler) Dismiss(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.respond(c, http.StatusBadRequest, errors.New("invalid notification id"))
		return
	}
	if !h.sess.Dismiss(id) {
		h.respond(c, http.StatusNotFound, fmt.Errorf("notification %d is not active", id))
		return
	}
	h.respond(c, http.StatusOK, nil)
}

// Blob dereferences an ephemeral handle. Revoked handles are gone for good.
func (h *Handler) Blob(c *gin.Context) {
	res, err := h.sess.Open(artifact.Handle(c.Param("id")))
	if err != nil {
		if !errors.Is(err, artifact.ErrRevoked) {
			logger.Error("Blob lookup failed", err, logger.Fields{"request_id": c.GetString("request_id")})
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}

	c.Header("Cache-Control", "no-store")
	if c.Query("download") == "1" && res.Filename != "" {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	}
	c.Data(http.StatusOK, res.ContentType, res.Data)
}
