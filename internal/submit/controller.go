package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satindergrewal/orchestrify/internal/artifact"
	"github.com/satindergrewal/orchestrify/internal/backend"
	"github.com/satindergrewal/orchestrify/internal/catalog"
	"github.com/satindergrewal/orchestrify/internal/logger"
	"github.com/satindergrewal/orchestrify/internal/notify"
)

// State is the submission lifecycle.
type State int

const (
	Idle State = iota
	Validating
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("submission already in progress")
	// ErrInvalid is returned when the draft does not validate. The request
	// was not sent.
	ErrInvalid = errors.New("form is invalid")
)

// Notification texts.
const (
	msgModelsFailed   = "Failed to fetch models list"
	msgGenerateFailed = "Failed to generate midi file"
	msgGenerateDetail = "Error generating file: "
)

// Service is the part of the generation service the controller talks to.
type Service interface {
	Models(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, form backend.GenerateForm) ([]byte, error)
}

// Controller owns the form draft and the submit state machine.
type Controller struct {
	svc    Service
	models *catalog.Catalog
	store  *artifact.Store
	notes  notify.Notifier
	limits Limits

	mu           sync.Mutex
	state        State
	draft        Draft
	touched      map[string]bool
	mounted      bool
	onTransition func(from, to State)
}

// NewController wires a controller. Published artifacts go to store.
func NewController(svc Service, models *catalog.Catalog, store *artifact.Store, notes notify.Notifier, limits Limits) *Controller {
	return &Controller{
		svc:     svc,
		models:  models,
		store:   store,
		notes:   notes,
		limits:  limits,
		touched: make(map[string]bool),
	}
}

// SetTransitionHook registers fn to observe state changes. fn runs with the
// controller locked and must not call back into it.
func (c *Controller) SetTransitionHook(fn func(from, to State)) {
	c.mu.Lock()
	c.onTransition = fn
	c.mu.Unlock()
}

// Mount fetches the model catalog once. A failure is notified and leaves the
// catalog empty; the form stays usable.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = true
	c.mu.Unlock()

	if err := c.models.Load(ctx, c.svc.Models); err != nil {
		logger.Error("Model catalog fetch failed", err, nil)
		c.notes.Error(msgModelsFailed)
		return err
	}
	logger.Info("Model catalog loaded", logger.Fields{"models": len(c.models.Models()), "state": c.models.State().String()})
	return nil
}

// SetDensity updates the density field as typed.
func (c *Controller) SetDensity(v string) {
	c.mu.Lock()
	c.draft.Density = v
	c.touched[FieldDensity] = true
	c.mu.Unlock()
}

// SetModel updates the selected model id.
func (c *Controller) SetModel(id string) {
	c.mu.Lock()
	c.draft.ModelID = id
	c.touched[FieldModel] = true
	c.mu.Unlock()
}

// SetFile replaces the selected file. nil clears it.
func (c *Controller) SetFile(u *Upload) {
	c.mu.Lock()
	c.draft.File = u
	c.touched[FieldFile] = true
	c.mu.Unlock()
}

// Reset empties the form.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.resetDraft()
	c.mu.Unlock()
}

// Draft returns the current form values.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Limits returns the effective file limits.
func (c *Controller) Limits() Limits {
	if c.limits.MaxBytes <= 0 {
		return Limits{MaxBytes: DefaultMaxBytes}
	}
	return c.limits
}

// State returns the submission state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Errors returns the validation messages of fields the user has touched.
func (c *Controller) Errors() FieldErrors {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, errs := Validate(c.draft, c.models, c.limits)
	out := FieldErrors{}
	for k, msg := range errs {
		if c.touched[k] {
			out[k] = msg
		}
	}
	return out
}

// CanSubmit reports whether the submit action is enabled: nothing in flight
// and every field valid.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return false
	}
	_, errs := Validate(c.draft, c.models, c.limits)
	return errs == nil
}

// Submit validates the draft and sends exactly one generation request. It
// never retries. Every terminal branch resets the draft and returns to Idle.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.transition(Validating)
	req, errs := Validate(c.draft, c.models, c.limits)
	if errs != nil {
		for k := range errs {
			c.touched[k] = true
		}
		c.transition(Idle)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalid, errs)
	}
	c.transition(Submitting)
	c.mu.Unlock()

	logger.Info("Submitting generation request", logger.Fields{
		"model":   req.ModelID,
		"density": req.Density,
		"file":    req.FileName,
		"bytes":   len(req.File),
	})
	data, err := c.svc.Generate(ctx, req.Form())

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.transition(Idle)
	defer c.resetDraft()

	if err != nil {
		msg := failureMessage(err)
		logger.Error("Generation failed", err, logger.Fields{"model": req.ModelID})
		c.notes.Error(msg)
		c.transition(Failed)
		return fmt.Errorf("generate: %w", err)
	}

	if c.store.Publish(data, req.FileName) == nil {
		c.transition(Failed)
		return artifact.ErrReleased
	}
	c.transition(Succeeded)
	return nil
}

// failureMessage picks the service detail when there is one.
func failureMessage(err error) string {
	var se *backend.ServiceError
	if errors.As(err, &se) && se.Detail != "" {
		return msgGenerateDetail + se.Detail
	}
	return msgGenerateFailed
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	if c.onTransition != nil && from != to {
		c.onTransition(from, to)
	}
}

func (c *Controller) resetDraft() {
	c.draft = Draft{}
	c.touched = make(map[string]bool)
}
