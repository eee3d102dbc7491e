// Package artifact owns the generated sequence and every ephemeral access
// handle minted for it or derived from it.
package artifact

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PathPrefix is where handles are dereferenced on the local server.
const PathPrefix = "/blob/"

// ErrRevoked is returned when a handle was revoked or never existed.
var ErrRevoked = errors.New("artifact: handle revoked")

// ErrReleased is returned when work finishes after its owner was released.
var ErrReleased = errors.New("artifact: released")

// Handle is an ephemeral, revocable reference to an in-memory resource.
// The zero Handle refers to nothing.
type Handle string

// URI returns the local URL the handle dereferences at.
func (h Handle) URI() string {
	if h == "" {
		return ""
	}
	return PathPrefix + string(h)
}

// ParseURI extracts the handle from a URI produced by Handle.URI.
func ParseURI(uri string) (Handle, bool) {
	id, ok := strings.CutPrefix(uri, PathPrefix)
	if !ok || id == "" {
		return "", false
	}
	return Handle(id), true
}

// Resource is what a live handle dereferences to.
type Resource struct {
	Data        []byte
	ContentType string
	Filename    string // suggested download name, may be empty
}

// Registry maps live handles to their resources.
type Registry struct {
	mu      sync.RWMutex
	entries map[Handle]Resource
}

// NewRegistry creates an empty handle registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Handle]Resource)}
}

// Mint registers data under a fresh handle. The caller must not modify data
// afterwards.
func (r *Registry) Mint(data []byte, contentType, filename string) Handle {
	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.entries[h] = Resource{Data: data, ContentType: contentType, Filename: filename}
	r.mu.Unlock()
	return h
}

// Open dereferences a handle.
func (r *Registry) Open(h Handle) (Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.entries[h]
	if !ok {
		return Resource{}, ErrRevoked
	}
	return res, nil
}

// Revoke releases a handle. Revoking twice, or revoking the zero Handle, is a no-op.
func (r *Registry) Revoke(h Handle) {
	if h == "" {
		return
	}
	r.mu.Lock()
	delete(r.entries, h)
	r.mu.Unlock()
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
