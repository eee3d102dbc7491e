package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Clip converts a mixed sample to int16, saturating at the range ends.
func Clip(v float64) int16 {
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}

// MixDown clips a mono float bus into an interleaved stereo frame.
// dst must hold len(bus)*Channels samples.
func MixDown(dst []int16, bus []float64) {
	for i, v := range bus {
		s := Clip(v)
		for c := 0; c < Channels; c++ {
			dst[i*Channels+c] = s
		}
	}
}
