package artifact

import (
	"sync"
	"time"

	"github.com/satindergrewal/orchestrify/internal/logger"
)

const (
	// DownloadName is the fixed suggested filename for downloads.
	DownloadName = "generated.mid"

	ContentTypeMIDI = "audio/midi"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// Artifact is a generated sequence. Its bytes never change after publish.
type Artifact struct {
	data           []byte
	SourceFileName string
	Handle         Handle
	CreatedAt      time.Time
}

// Bytes returns a copy of the artifact data.
func (a *Artifact) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	return len(a.data)
}

// Store holds the current artifact. It is the only writer of artifact handles.
type Store struct {
	reg *Registry

	mu       sync.RWMutex
	current  *Artifact
	released bool
}

// NewStore creates an empty store backed by reg.
func NewStore(reg *Registry) *Store {
	return &Store{reg: reg}
}

// Publish replaces the current artifact. The previous handle is revoked
// before the new one is minted. After Release it mints nothing and returns nil.
func (s *Store) Publish(data []byte, sourceFileName string) *Artifact {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		logger.Warn("Publish after release dropped", logger.Fields{"source": sourceFileName})
		return nil
	}

	if s.current != nil {
		s.reg.Revoke(s.current.Handle)
	}
	a := &Artifact{
		data:           buf,
		SourceFileName: sourceFileName,
		CreatedAt:      time.Now(),
	}
	a.Handle = s.reg.Mint(buf, ContentTypeMIDI, DownloadName)
	s.current = a

	logger.Info("Artifact published", logger.Fields{
		"bytes":  len(buf),
		"source": sourceFileName,
		"handle": string(a.Handle),
	})
	return a
}

// Current returns the current artifact, or nil.
func (s *Store) Current() *Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Release revokes the current handle and forgets the artifact. The store
// stays closed afterwards. Safe to call any number of times.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	if s.current == nil {
		return
	}
	s.reg.Revoke(s.current.Handle)
	s.current = nil
}
