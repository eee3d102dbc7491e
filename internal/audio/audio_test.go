package audio

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/satindergrewal/orchestrify/internal/playback"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < f(%v)=%v", x, val, float64(i-1)/100.0, prev)
		}
		prev = val
	}
}

// --- Clip / MixDown ---

func TestClip(t *testing.T) {
	tests := []struct {
		input float64
		want  int16
	}{
		{0, 0},
		{1000.7, 1000},
		{-1000.7, -1000},
		{40000, 32767},
		{-40000, -32768},
	}
	for _, tt := range tests {
		if got := Clip(tt.input); got != tt.want {
			t.Errorf("Clip(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestMixDownDuplicatesChannels(t *testing.T) {
	bus := []float64{100, -200, 50000}
	dst := make([]int16, len(bus)*Channels)
	MixDown(dst, bus)
	want := []int16{100, 100, -200, -200, 32767, 32767}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], want[i])
		}
	}
}

// --- SamplesToBytes ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

// --- Envelope ---

func TestEnvelopeShape(t *testing.T) {
	env := DefaultEnvelope
	hold := 0.5

	if g := env.Gain(0, hold); g != 0 {
		t.Errorf("Gain at start = %v, want 0", g)
	}
	if g := env.Gain(env.Attack, hold); math.Abs(g-1) > 1e-9 {
		t.Errorf("Gain at end of attack = %v, want 1", g)
	}
	if g := env.Gain(0.4, hold); math.Abs(g-env.Sustain) > 1e-9 {
		t.Errorf("Gain while sustained = %v, want %v", g, env.Sustain)
	}
	if g := env.Gain(hold+env.Release, hold); g != 0 {
		t.Errorf("Gain after release = %v, want 0", g)
	}
	mid := env.Gain(hold+env.Release/2, hold)
	if mid <= 0 || mid >= env.Sustain {
		t.Errorf("Gain mid release = %v, want between 0 and %v", mid, env.Sustain)
	}
}

func TestKeyFrequency(t *testing.T) {
	tests := []struct {
		key  uint8
		want float64
	}{
		{69, 440},
		{81, 880},
		{57, 220},
	}
	for _, tt := range tests {
		if got := KeyFrequency(tt.key); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("KeyFrequency(%d) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

// --- Engine ---

func TestEngineClockAdvancesPerFrame(t *testing.T) {
	e := NewEngine(0.2)
	if e.Now() != 0 {
		t.Fatalf("initial Now = %v, want 0", e.Now())
	}
	frame := e.RenderFrame()
	if len(frame) != FrameSamples {
		t.Fatalf("frame length = %d, want %d", len(frame), FrameSamples)
	}
	if got := e.Now(); math.Abs(got-0.02) > 1e-12 {
		t.Errorf("Now after one frame = %v, want 0.02", got)
	}
}

func TestEngineSilentWithoutVoices(t *testing.T) {
	e := NewEngine(0.2)
	for _, s := range e.RenderFrame() {
		if s != 0 {
			t.Fatalf("expected silence, got sample %d", s)
		}
	}
}

func TestEngineEventsWaitForStart(t *testing.T) {
	e := NewEngine(0.2)
	fired := 0
	e.ScheduleAt(0, func(float64) { fired++ })

	e.RenderFrame()
	if fired != 0 {
		t.Fatalf("event fired before Start")
	}
	if e.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", e.Pending())
	}

	e.Start()
	e.RenderFrame()
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", e.Pending())
	}
}

func TestEngineEventsFireInTheirFrame(t *testing.T) {
	e := NewEngine(0.2)
	e.Start()

	var order []float64
	record := func(at float64) { order = append(order, at) }
	e.ScheduleAt(0.05, record)
	e.ScheduleAt(0.01, record)

	e.RenderFrame() // [0, 0.02)
	if len(order) != 1 || order[0] != 0.01 {
		t.Fatalf("after frame 1 fired %v, want [0.01]", order)
	}
	e.RenderFrame() // [0.02, 0.04)
	if len(order) != 1 {
		t.Fatalf("after frame 2 fired %v, want [0.01]", order)
	}
	e.RenderFrame() // [0.04, 0.06)
	if len(order) != 2 || order[1] != 0.05 {
		t.Errorf("after frame 3 fired %v, want [0.01 0.05]", order)
	}
}

func playNote(e *Engine, at, dur float64) {
	e.ScheduleAt(at, func(at float64) {
		v := e.NewVoice(playback.VoiceSpec{Key: 69, Velocity: 1, Duration: dur})
		v.TriggerAttackRelease(at)
		v.Dispose()
	})
}

func TestEngineVoiceSounds(t *testing.T) {
	e := NewEngine(0.5)
	e.Start()
	playNote(e, 0, 0.5)

	frame := e.RenderFrame()
	peak := int16(0)
	for i := 0; i < len(frame); i += Channels {
		if frame[i] != frame[i+1] {
			t.Fatalf("channels differ at %d: %d vs %d", i, frame[i], frame[i+1])
		}
		if frame[i] > peak {
			peak = frame[i]
		}
	}
	if peak == 0 {
		t.Fatal("expected audible output after note start")
	}
	if float64(peak) > 0.5*32767+1 {
		t.Errorf("peak %d exceeds voice gain", peak)
	}
	if e.ActiveVoices() != 1 {
		t.Errorf("ActiveVoices = %d, want 1", e.ActiveVoices())
	}
}

func TestEngineDropsDisposedVoicesAfterTail(t *testing.T) {
	e := NewEngine(0.2)
	e.Start()
	playNote(e, 0, 0.1)

	// 0.1s hold + 1s release = 55 frames
	for i := 0; i < 60; i++ {
		e.RenderFrame()
	}
	if e.ActiveVoices() != 0 {
		t.Errorf("ActiveVoices = %d, want 0", e.ActiveVoices())
	}
	for _, s := range e.RenderFrame() {
		if s != 0 {
			t.Fatalf("expected silence after release, got %d", s)
		}
	}
}

func TestEngineVoiceIsSingleUse(t *testing.T) {
	e := NewEngine(0.2)
	v := e.NewVoice(playback.VoiceSpec{Key: 60, Velocity: 1, Duration: 0.1})
	v.TriggerAttackRelease(0)
	v.TriggerAttackRelease(0.5)
	if e.ActiveVoices() != 1 {
		t.Errorf("ActiveVoices = %d, want 1", e.ActiveVoices())
	}
}

func TestEngineCancel(t *testing.T) {
	e := NewEngine(0.2)
	e.Start()
	playNote(e, 0, 10)
	playNote(e, 5, 1)

	e.RenderFrame()
	e.Cancel()
	if e.Pending() != 0 {
		t.Fatalf("Pending after Cancel = %d, want 0", e.Pending())
	}

	// the sounding voice releases over 1s instead of holding for 10s
	for i := 0; i < 55; i++ {
		e.RenderFrame()
	}
	if e.ActiveVoices() != 0 {
		t.Errorf("ActiveVoices = %d, want 0", e.ActiveVoices())
	}
}

func TestEngineCancelDropsRestOfFrame(t *testing.T) {
	e := NewEngine(0.2)
	e.Start()

	fired := 0
	e.ScheduleAt(0, func(float64) { e.Cancel() })
	e.ScheduleAt(0.001, func(float64) { fired++ })

	e.RenderFrame()
	if fired != 0 {
		t.Errorf("events fired after Cancel = %d, want 0", fired)
	}

	// events scheduled after the Cancel still fire
	e.ScheduleAt(e.Now(), func(float64) { fired++ })
	e.RenderFrame()
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e := NewEngine(0.2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case frame := <-e.Frames():
		if len(frame) != FrameSamples {
			t.Errorf("frame length = %d, want %d", len(frame), FrameSamples)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for range e.Frames() {
	}
}
