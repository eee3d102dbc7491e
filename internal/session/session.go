// Package session wires the form, artifact store, playback and render proxy
// together for the single local user.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satindergrewal/orchestrify/internal/artifact"
	"github.com/satindergrewal/orchestrify/internal/catalog"
	"github.com/satindergrewal/orchestrify/internal/logger"
	"github.com/satindergrewal/orchestrify/internal/notify"
	"github.com/satindergrewal/orchestrify/internal/playback"
	"github.com/satindergrewal/orchestrify/internal/render"
	"github.com/satindergrewal/orchestrify/internal/submit"
)

var (
	// ErrNoArtifact is returned by actions that need a generated file.
	ErrNoArtifact = errors.New("no generated file yet")
	// ErrRenderBusy is returned while a piano roll request is outstanding.
	ErrRenderBusy = errors.New("piano roll request already in progress")
	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("session closed")
)

// Service is the remote generation and rendering service.
type Service interface {
	submit.Service
	render.Renderer
}

// Audio is the shared clock and synthesizer used for playback.
type Audio interface {
	playback.Transport
	playback.Synth
}

// Options tunes a Session.
type Options struct {
	Limits           submit.Limits
	NotifyTTL        time.Duration
	ClearOnRetrigger bool
}

// Session owns every component for one user.
type Session struct {
	reg    *artifact.Registry
	store  *artifact.Store
	models *catalog.Catalog
	notes  *notify.Center
	form   *submit.Controller
	player *playback.Scheduler
	proxy  *render.Proxy
	audio  Audio

	mu        sync.Mutex
	rendering bool
	closed    bool
}

// New builds a session. Nothing touches the network until Mount.
func New(svc Service, au Audio, opts Options) *Session {
	reg := artifact.NewRegistry()
	store := artifact.NewStore(reg)
	models := catalog.New()
	notes := notify.NewCenter(opts.NotifyTTL)

	return &Session{
		reg:    reg,
		store:  store,
		models: models,
		notes:  notes,
		form:   submit.NewController(svc, models, store, notes, opts.Limits),
		player: playback.NewScheduler(au, au, opts.ClearOnRetrigger),
		proxy:  render.NewProxy(svc, reg, notes),
		audio:  au,
	}
}

// Mount loads the model catalog. Failures are already notified.
func (s *Session) Mount(ctx context.Context) error {
	return s.form.Mount(ctx)
}

// Form exposes the submission controller for field edits.
func (s *Session) Form() *submit.Controller {
	return s.form
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Submit sends the current form. A request still in flight when the session
// closes publishes nothing.
func (s *Session) Submit(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.form.Submit(ctx)
	if errors.Is(err, artifact.ErrReleased) {
		return ErrClosed
	}
	return err
}

// Play schedules the current artifact and returns the number of notes.
func (s *Session) Play() (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	a := s.store.Current()
	if a == nil {
		return 0, ErrNoArtifact
	}
	return s.player.Schedule(a), nil
}

// Render requests a piano roll for the current artifact. Only one request
// runs at a time.
func (s *Session) Render(ctx context.Context) (*render.Document, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	a := s.store.Current()
	if a == nil {
		return nil, ErrNoArtifact
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.rendering {
		s.mu.Unlock()
		return nil, ErrRenderBusy
	}
	s.rendering = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.rendering = false
		s.mu.Unlock()
	}()
	doc, err := s.proxy.Render(ctx, a)
	if errors.Is(err, artifact.ErrReleased) {
		return nil, ErrClosed
	}
	return doc, err
}

// Open dereferences a live handle.
func (s *Session) Open(h artifact.Handle) (artifact.Resource, error) {
	return s.reg.Open(h)
}

// Dismiss closes a notification.
func (s *Session) Dismiss(id uint64) bool {
	return s.notes.Dismiss(id)
}

// Close stops playback and revokes every handle. The session is unusable
// afterwards and requests still in flight mint nothing. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.audio.Cancel()
	s.proxy.Release()
	s.store.Release()
	s.notes.Close()
	logger.Info("Session closed", logger.Fields{"live_handles": s.reg.Len()})
}
