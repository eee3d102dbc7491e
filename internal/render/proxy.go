// Package render exchanges a generated artifact for a piano-roll document
// and serves it through a disposable handle.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satindergrewal/orchestrify/internal/artifact"
	"github.com/satindergrewal/orchestrify/internal/backend"
	"github.com/satindergrewal/orchestrify/internal/logger"
	"github.com/satindergrewal/orchestrify/internal/notify"
)

// ErrNoArtifact is returned when there is nothing to render.
var ErrNoArtifact = errors.New("no artifact to render")

const (
	msgRenderFailed = "Failed to fetch pianoroll"
	msgRenderDetail = "Error fetching pianoroll: "
)

// Renderer is the rendering endpoint of the service.
type Renderer interface {
	PianoRoll(ctx context.Context, data []byte) (string, error)
}

// Document is a rendered piano roll.
type Document struct {
	HTML      string
	Handle    artifact.Handle
	Source    artifact.Handle // artifact it was rendered from
	CreatedAt time.Time
}

// Proxy keeps at most one live document.
type Proxy struct {
	svc   Renderer
	reg   *artifact.Registry
	notes notify.Notifier

	mu       sync.Mutex
	current  *Document
	released bool
}

// NewProxy creates a proxy minting document handles in reg.
func NewProxy(svc Renderer, reg *artifact.Registry, notes notify.Notifier) *Proxy {
	return &Proxy{svc: svc, reg: reg, notes: notes}
}

// Render sends a's bytes to the service once. On success the previous
// document handle is revoked and a fresh one minted. On failure the user is
// notified and the previous document stays in place.
func (p *Proxy) Render(ctx context.Context, a *artifact.Artifact) (*Document, error) {
	if a == nil {
		return nil, ErrNoArtifact
	}

	html, err := p.svc.PianoRoll(ctx, a.Bytes())
	if err != nil {
		var se *backend.ServiceError
		if errors.As(err, &se) && se.Detail != "" {
			p.notes.Error(msgRenderDetail + se.Detail)
		} else {
			p.notes.Error(msgRenderFailed)
		}
		logger.Error("Piano roll render failed", err, logger.Fields{"artifact": string(a.Handle)})
		return nil, fmt.Errorf("render: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		logger.Warn("Piano roll arrived after release", logger.Fields{"artifact": string(a.Handle)})
		return nil, artifact.ErrReleased
	}
	if p.current != nil {
		p.reg.Revoke(p.current.Handle)
	}
	doc := &Document{
		HTML:      html,
		Handle:    p.reg.Mint([]byte(html), artifact.ContentTypeHTML, ""),
		Source:    a.Handle,
		CreatedAt: time.Now(),
	}
	p.current = doc

	logger.Info("Piano roll rendered", logger.Fields{"handle": string(doc.Handle), "bytes": len(html)})
	return doc, nil
}

// Current returns the live document, or nil.
func (p *Proxy) Current() *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Release revokes the live document handle. Renders that complete afterwards
// mint nothing. Safe to call more than once.
func (p *Proxy) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	if p.current != nil {
		p.reg.Revoke(p.current.Handle)
		p.current = nil
	}
}
