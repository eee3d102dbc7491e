package audio

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/satindergrewal/orchestrify/internal/playback"
)

type event struct {
	at  float64
	seq uint64
	fn  func(at float64)
}

// eventQueue is a min-heap of events by time, then insertion order.
type eventQueue []event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// Engine is the shared audio clock and synthesizer. The clock is the number
// of samples rendered so far, so it only advances while frames are rendered.
// It implements playback.Transport and playback.Synth.
type Engine struct {
	frameCh chan []int16
	env     Envelope
	gain    float64

	mu      sync.Mutex
	clock   int64 // samples per channel
	running bool
	events  eventQueue
	nextSeq uint64
	gen     uint64 // bumped by Cancel
	voices  []*voice
	bus     []float64
}

// NewEngine creates an engine. gain is the peak amplitude of one voice, 0-1.
func NewEngine(gain float64) *Engine {
	if gain <= 0 || gain > 1 {
		gain = 0.2
	}
	return &Engine{
		frameCh: make(chan []int16, 100),
		env:     DefaultEnvelope,
		gain:    gain,
		bus:     make([]float64, FrameSize),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (e *Engine) Frames() <-chan []int16 {
	return e.frameCh
}

// Now returns the clock in seconds.
func (e *Engine) Now() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.clock) / SampleRate
}

// ScheduleAt registers fn to run when the frame containing at is rendered.
// Events only fire once the transport has been started.
func (e *Engine) ScheduleAt(at float64, fn func(at float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSeq++
	heap.Push(&e.events, event{at: at, seq: e.nextSeq, fn: fn})
}

// Cancel drops pending events and moves every sounding voice into release.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
	e.gen++
	for _, v := range e.voices {
		v.cut(e.clock, e.env)
	}
}

func (e *Engine) generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// Start starts the transport.
func (e *Engine) Start() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
}

// Running reports whether the transport was started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Pending returns the number of events not yet fired.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

// ActiveVoices returns the number of voices still owned by the engine.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// NewVoice creates a single-use voice for one note.
func (e *Engine) NewVoice(spec playback.VoiceSpec) playback.Voice {
	amp := spec.Velocity
	if amp <= 0 || amp > 1 {
		amp = 1
	}
	return &voice{
		engine: e,
		freq:   KeyFrequency(spec.Key),
		amp:    amp,
		hold:   spec.Duration,
	}
}

// RenderFrame fires due events, renders one frame and advances the clock.
func (e *Engine) RenderFrame() []int16 {
	e.mu.Lock()
	frameStart := e.clock
	frameEnd := frameStart + FrameSize
	var due []event
	gen := e.gen
	if e.running {
		limit := float64(frameEnd) / SampleRate
		for len(e.events) > 0 && e.events[0].at < limit {
			due = append(due, heap.Pop(&e.events).(event))
		}
	}
	e.mu.Unlock()

	// callbacks create voices, which takes the lock. A Cancel from a callback
	// or another goroutine drops the rest of the batch.
	for _, ev := range due {
		if e.generation() != gen {
			break
		}
		ev.fn(ev.at)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.bus {
		e.bus[i] = 0
	}
	live := e.voices[:0]
	for _, v := range e.voices {
		v.render(e.bus, frameStart, e.env, e.gain)
		if v.disposed && frameEnd >= v.end {
			continue
		}
		live = append(live, v)
	}
	for i := len(live); i < len(e.voices); i++ {
		e.voices[i] = nil
	}
	e.voices = live

	frame := make([]int16, FrameSamples)
	MixDown(frame, e.bus)
	e.clock = frameEnd
	return frame
}

// Run renders frames at real-time rate until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := e.RenderFrame()
		select {
		case e.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
