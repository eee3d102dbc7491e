package session

import (
	"github.com/satindergrewal/orchestrify/internal/notify"
	"github.com/satindergrewal/orchestrify/internal/playback"
	"github.com/satindergrewal/orchestrify/internal/submit"
)

// FormView is the form as the UI shows it.
type FormView struct {
	Density  string `json:"density"`
	Model    string `json:"model"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// ArtifactView describes the current generated file.
type ArtifactView struct {
	SourceFileName string `json:"source_file_name"`
	Size           int    `json:"size"`
	URL            string `json:"url"`
	DownloadURL    string `json:"download_url"`
}

// Snapshot is everything the UI needs to draw itself.
type Snapshot struct {
	Form          FormView              `json:"form"`
	Errors        submit.FieldErrors    `json:"errors"`
	State         string                `json:"state"`
	Models        []string              `json:"models"`
	CatalogState  string                `json:"catalog_state"`
	MaxUploadKB   int64                 `json:"max_upload_kb"`
	CanSubmit     bool                  `json:"can_submit"`
	CanPlay       bool                  `json:"can_play"`
	CanRender     bool                  `json:"can_render"`
	Rendering     bool                  `json:"rendering"`
	Artifact      *ArtifactView         `json:"artifact,omitempty"`
	PianoRollURL  string                `json:"pianoroll_url,omitempty"`
	Playback      playback.Status       `json:"playback"`
	Notifications []notify.Notification `json:"notifications"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	d := s.form.Draft()
	snap := Snapshot{
		Form:          FormView{Density: d.Density, Model: d.ModelID},
		Errors:        s.form.Errors(),
		State:         s.form.State().String(),
		Models:        s.models.Models(),
		CatalogState:  s.models.State().String(),
		MaxUploadKB:   s.form.Limits().MaxBytes / 1024,
		CanSubmit:     s.form.CanSubmit(),
		Playback:      s.player.Status(),
		Notifications: s.notes.Active(),
	}
	if d.File != nil {
		snap.Form.FileName = d.File.Name
		snap.Form.FileSize = d.File.Size
	}

	s.mu.Lock()
	snap.Rendering = s.rendering
	s.mu.Unlock()

	if a := s.store.Current(); a != nil {
		snap.CanPlay = true
		snap.CanRender = !snap.Rendering
		snap.Artifact = &ArtifactView{
			SourceFileName: a.SourceFileName,
			Size:           a.Size(),
			URL:            a.Handle.URI(),
			DownloadURL:    a.Handle.URI() + "?download=1",
		}
	}
	if doc := s.proxy.Current(); doc != nil {
		snap.PianoRollURL = doc.Handle.URI()
	}
	return snap
}
