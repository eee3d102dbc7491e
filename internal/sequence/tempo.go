package sequence

import (
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

type tempoChange struct {
	tick int64
	bpm  float64
}

// tempoMap converts absolute ticks to seconds. changes is sorted and starts at tick 0.
type tempoMap struct {
	resolution float64 // ticks per quarter note
	changes    []tempoChange
}

// buildTempoMap collects tempo events from every track. Type 1 files keep
// them in the first track, but some writers scatter them.
func buildTempoMap(tracks []smf.Track, resolution float64) tempoMap {
	if resolution <= 0 {
		resolution = 960
	}
	var changes []tempoChange
	for _, tr := range tracks {
		var abs int64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				changes = append(changes, tempoChange{tick: abs, bpm: bpm})
			}
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].tick < changes[j].tick })
	if len(changes) == 0 || changes[0].tick > 0 {
		changes = append([]tempoChange{{tick: 0, bpm: DefaultBPM}}, changes...)
	}
	return tempoMap{resolution: resolution, changes: changes}
}

func (m tempoMap) seconds(tick int64) float64 {
	var secs float64
	for i, c := range m.changes {
		if tick <= c.tick {
			break
		}
		end := tick
		if i+1 < len(m.changes) && m.changes[i+1].tick < tick {
			end = m.changes[i+1].tick
		}
		secs += float64(end-c.tick) * 60 / (c.bpm * m.resolution)
	}
	return secs
}
