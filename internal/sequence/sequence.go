// Package sequence parses Standard MIDI File artifacts into a time-ordered
// track/note model measured in seconds.
package sequence

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultBPM applies until the first tempo event.
const DefaultBPM = 120.0

// ErrUnsupportedTimeFormat is returned for SMPTE-timed files.
var ErrUnsupportedTimeFormat = errors.New("sequence: unsupported time format")

// Note is one sounding note.
type Note struct {
	Key       uint8   `json:"key"`
	PitchName string  `json:"pitch"`
	Velocity  float64 `json:"velocity"` // 0-1
	Start     float64 `json:"start"`    // seconds from sequence start, >= 0
	Duration  float64 `json:"duration"` // seconds, > 0
}

// Track is an ordered list of notes.
type Track struct {
	Channel uint8  `json:"channel"`
	Notes   []Note `json:"notes"`
}

// Sequence is the parsed musical content of an artifact.
type Sequence struct {
	Tracks []Track `json:"tracks"`
}

// NoteCount returns the total number of notes across tracks.
func (s *Sequence) NoteCount() int {
	n := 0
	for _, t := range s.Tracks {
		n += len(t.Notes)
	}
	return n
}

// Duration returns the end time of the last sounding note.
func (s *Sequence) Duration() float64 {
	var end float64
	for _, t := range s.Tracks {
		for _, n := range t.Notes {
			if e := n.Start + n.Duration; e > end {
				end = e
			}
		}
	}
	return end
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName returns the scientific pitch name of a MIDI key (60 = C4).
func PitchName(key uint8) string {
	return fmt.Sprintf("%s%d", noteNames[key%12], int(key)/12-1)
}

// Parse decodes an SMF file. data is only read.
func Parse(data []byte) (*Sequence, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrUnsupportedTimeFormat
	}

	tempo := buildTempoMap(s.Tracks, float64(uint16(mt)))

	seq := &Sequence{}
	for _, tr := range s.Tracks {
		if t, ok := parseTrack(tr, tempo); ok {
			seq.Tracks = append(seq.Tracks, t)
		}
	}
	return seq, nil
}

type pendingNote struct {
	tick     int64
	velocity uint8
}

type noteKey struct {
	channel uint8
	key     uint8
}

func parseTrack(tr smf.Track, tempo tempoMap) (Track, bool) {
	var (
		abs     int64
		channel uint8
		seen    bool
		open    = make(map[noteKey][]pendingNote)
		notes   []Note
	)

	closeNote := func(k noteKey, p pendingNote, endTick int64) {
		start := tempo.seconds(p.tick)
		dur := tempo.seconds(endTick) - start
		if dur <= 0 {
			return
		}
		notes = append(notes, Note{
			Key:       k.key,
			PitchName: PitchName(k.key),
			Velocity:  float64(p.velocity) / 127,
			Start:     start,
			Duration:  dur,
		})
	}

	for _, ev := range tr {
		abs += int64(ev.Delta)
		msg := midi.Message(ev.Message)

		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ch, key}
			open[k] = append(open[k], pendingNote{tick: abs, velocity: vel})
			if !seen {
				channel, seen = ch, true
			}
		case msg.GetNoteEnd(&ch, &key):
			k := noteKey{ch, key}
			q := open[k]
			if len(q) == 0 {
				continue
			}
			closeNote(k, q[0], abs)
			open[k] = q[1:]
		}
	}

	// notes still held at end of track stop there
	for k, q := range open {
		for _, p := range q {
			closeNote(k, p, abs)
		}
	}

	if len(notes) == 0 {
		return Track{}, false
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		return notes[i].Key < notes[j].Key
	})
	return Track{Channel: channel, Notes: notes}, true
}
