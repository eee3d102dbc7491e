// Package playback turns an artifact into synthesizer triggers on a shared
// audio clock.
package playback

import (
	"sort"
	"sync"

	"github.com/satindergrewal/orchestrify/internal/artifact"
	"github.com/satindergrewal/orchestrify/internal/logger"
	"github.com/satindergrewal/orchestrify/internal/sequence"
)

// Transport is the shared audio clock. Times are absolute seconds on that clock.
type Transport interface {
	// Now returns the current clock time.
	Now() float64
	// ScheduleAt registers fn to run once the clock reaches at.
	ScheduleAt(at float64, fn func(at float64))
	// Cancel drops every pending event and releases sounding voices.
	Cancel()
	// Start starts or resumes the transport. Calling it while running is a no-op.
	Start()
}

// VoiceSpec describes the one note a voice will play.
type VoiceSpec struct {
	Key      uint8
	Pitch    string
	Velocity float64
	Duration float64 // seconds
}

// Voice is a single-use synthesizer voice.
type Voice interface {
	// TriggerAttackRelease starts the note at absolute time at and releases it
	// after the note duration.
	TriggerAttackRelease(at float64)
	// Dispose hands the voice back; the engine frees it once silent.
	Dispose()
}

// Synth creates voices.
type Synth interface {
	NewVoice(spec VoiceSpec) Voice
}

// Trigger is one planned note.
type Trigger struct {
	At    float64
	Track int
	Voice VoiceSpec
}

// Plan computes the triggers for seq relative to the single reference time t0.
// Triggers are ordered by time, then track, then sequence order.
func Plan(seq *sequence.Sequence, t0 float64) []Trigger {
	if seq == nil {
		return nil
	}
	out := make([]Trigger, 0, seq.NoteCount())
	for ti, tr := range seq.Tracks {
		for _, n := range tr.Notes {
			out = append(out, Trigger{
				At:    t0 + n.Start,
				Track: ti,
				Voice: VoiceSpec{
					Key:      n.Key,
					Pitch:    n.PitchName,
					Velocity: n.Velocity,
					Duration: n.Duration,
				},
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// Status is the scheduler state shown to the UI.
type Status struct {
	Plays        int     `json:"plays"`
	LastNotes    int     `json:"last_notes"`
	LastStart    float64 `json:"last_start"`
	LastDuration float64 `json:"last_duration"`
}

// Scheduler schedules artifact playback against a Transport.
type Scheduler struct {
	transport        Transport
	synth            Synth
	clearOnRetrigger bool

	mu     sync.Mutex
	status Status
}

// NewScheduler creates a scheduler. With clearOnRetrigger set, a new Schedule
// call cancels notes still pending from the previous one; otherwise they overlap.
func NewScheduler(t Transport, s Synth, clearOnRetrigger bool) *Scheduler {
	return &Scheduler{
		transport:        t,
		synth:            s,
		clearOnRetrigger: clearOnRetrigger,
	}
}

// Schedule parses a and registers one trigger per note. A nil artifact or an
// unparseable one is a no-op; parse failures are logged only. It returns the
// number of notes scheduled.
func (s *Scheduler) Schedule(a *artifact.Artifact) int {
	if a == nil {
		return 0
	}

	seq, err := sequence.Parse(a.Bytes())
	if err != nil {
		logger.Warn("Playback skipped: artifact did not parse", logger.Fields{
			"handle": string(a.Handle),
			"bytes":  a.Size(),
			"error":  err.Error(),
		})
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clearOnRetrigger {
		s.transport.Cancel()
	}

	t0 := s.transport.Now()
	triggers := Plan(seq, t0)
	for _, tr := range triggers {
		spec := tr.Voice
		s.transport.ScheduleAt(tr.At, func(at float64) {
			v := s.synth.NewVoice(spec)
			v.TriggerAttackRelease(at)
			v.Dispose()
		})
	}
	s.transport.Start()

	s.status.Plays++
	s.status.LastNotes = len(triggers)
	s.status.LastStart = t0
	s.status.LastDuration = seq.Duration()

	logger.Info("Playback scheduled", logger.Fields{
		"notes":  len(triggers),
		"tracks": len(seq.Tracks),
		"t0":     t0,
	})
	return len(triggers)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
