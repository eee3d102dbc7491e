// Package sequencetest builds small in-memory MIDI files for tests.
package sequencetest

import (
	"bytes"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Resolution is the ticks-per-quarter used by Build. At 120 bpm one second
// is 960 ticks.
const Resolution = 480

// NoteSpec places a note in seconds at 120 bpm.
type NoteSpec struct {
	Key      uint8
	Start    float64
	Duration float64
}

type timed struct {
	tick uint32
	off  bool
	msg  midi.Message
}

func toTicks(sec float64) uint32 {
	return uint32(sec*2*Resolution + 0.5)
}

// Build writes a type 1 file: a conductor track at 120 bpm followed by one
// track per argument, on channel = track index.
func Build(tracks ...[]NoteSpec) []byte {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(Resolution)

	var conductor smf.Track
	conductor.Add(0, smf.MetaTempo(120))
	conductor.Close(0)
	if err := s.Add(conductor); err != nil {
		panic(err)
	}

	for i, notes := range tracks {
		ch := uint8(i % 16)
		var events []timed
		for _, n := range notes {
			events = append(events,
				timed{tick: toTicks(n.Start), msg: midi.NoteOn(ch, n.Key, 100)},
				timed{tick: toTicks(n.Start + n.Duration), off: true, msg: midi.NoteOff(ch, n.Key)},
			)
		}
		sort.SliceStable(events, func(a, b int) bool {
			if events[a].tick != events[b].tick {
				return events[a].tick < events[b].tick
			}
			return events[a].off && !events[b].off
		})

		var tr smf.Track
		var last uint32
		for _, ev := range events {
			tr.Add(ev.tick-last, ev.msg)
			last = ev.tick
		}
		tr.Close(0)
		if err := s.Add(tr); err != nil {
			panic(err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
