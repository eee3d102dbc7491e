package audio

import "math"

// KeyFrequency returns the equal-tempered frequency of a MIDI key (A4 = 440 Hz).
func KeyFrequency(key uint8) float64 {
	return 440 * math.Pow(2, (float64(key)-69)/12)
}

// triangle is a unit triangle wave; cycles is the elapsed phase in periods.
func triangle(cycles float64) float64 {
	p := cycles - math.Floor(cycles)
	return 1 - 4*math.Abs(p-0.5)
}

// voice plays exactly one note. Fields other than engine are guarded by engine.mu.
type voice struct {
	engine *Engine
	freq   float64
	amp    float64
	hold   float64 // seconds before release

	start     int64 // first sample
	end       int64 // sample after the release tail
	triggered bool
	disposed  bool
}

// TriggerAttackRelease schedules the note at absolute clock time at. A voice
// only plays once; later calls are ignored.
func (v *voice) TriggerAttackRelease(at float64) {
	e := v.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if v.triggered || v.disposed {
		return
	}
	v.start = int64(math.Round(at * SampleRate))
	v.end = v.start + int64(v.hold*SampleRate) + e.env.Tail()
	v.triggered = true
	e.voices = append(e.voices, v)
}

// Dispose releases the voice; the engine drops it after its tail.
func (v *voice) Dispose() {
	v.engine.mu.Lock()
	v.disposed = true
	v.engine.mu.Unlock()
}

// cut moves the voice into release at clock. Called with engine.mu held.
func (v *voice) cut(clock int64, env Envelope) {
	if clock <= v.start {
		v.end = v.start
		return
	}
	held := float64(clock-v.start) / SampleRate
	if held < v.hold {
		v.hold = held
		v.end = clock + env.Tail()
	}
}

// render adds the voice into bus, which starts at sample frameStart.
func (v *voice) render(bus []float64, frameStart int64, env Envelope, gain float64) {
	if !v.triggered {
		return
	}
	for i := range bus {
		abs := frameStart + int64(i)
		if abs < v.start {
			continue
		}
		if abs >= v.end {
			break
		}
		t := float64(abs-v.start) / SampleRate
		bus[i] += triangle(v.freq*t) * env.Gain(t, v.hold) * v.amp * gain * 32767
	}
}
