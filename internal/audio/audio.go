// Package audio is the shared audio clock: it renders synthesizer voices into
// 20ms PCM frames at real-time rate.
package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Envelope is an ADSR amplitude envelope, times in seconds.
type Envelope struct {
	Attack  float64
	Decay   float64
	Sustain float64 // level, 0-1
	Release float64
}

// DefaultEnvelope is a short plucked-synth shape.
var DefaultEnvelope = Envelope{
	Attack:  0.005,
	Decay:   0.1,
	Sustain: 0.3,
	Release: 1.0,
}

// level is the envelope value t seconds after attack, before release.
func (e Envelope) level(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t < e.Attack {
		return Smoothstep(t / e.Attack)
	}
	t -= e.Attack
	if t < e.Decay {
		return 1 - (1-e.Sustain)*(t/e.Decay)
	}
	return e.Sustain
}

// Gain returns the envelope value t seconds after the note started, for a
// note held for hold seconds.
func (e Envelope) Gain(t, hold float64) float64 {
	if t < hold {
		return e.level(t)
	}
	rel := t - hold
	if rel >= e.Release {
		return 0
	}
	return e.level(hold) * (1 - Smoothstep(rel/e.Release))
}

// Tail returns the release length in samples.
func (e Envelope) Tail() int64 {
	return int64(e.Release * SampleRate)
}
