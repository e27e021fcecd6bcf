package wola

import (
	"math"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// noiseSource returns a deterministic white-noise generator on [-amp, amp].
// Simple LCG (Numerical Recipes parameters) keeps sequences stable across Go versions.
func noiseSource(seed uint32, amp float64) func() float64 {
	state := seed
	return func() float64 {
		state = state*1664525 + 1013904223
		return ((float64(state)/float64(0xFFFFFFFF))*2.0 - 1.0) * amp
	}
}

// noiseSignal returns n samples of white noise.
func noiseSignal(n int, seed uint32, amp float64) []fixedpt.Frac24 {
	next := noiseSource(seed, amp)
	x := make([]fixedpt.Frac24, n)
	for i := range x {
		x[i] = fixedpt.RoundSat24(fixedpt.Accum(next()))
	}
	return x
}

// toneSignal returns n samples of a sine at freq Hz sampled at 24 kHz.
func toneSignal(n int, freq, amp float64) []fixedpt.Frac24 {
	x := make([]fixedpt.Frac24, n)
	for i := range x {
		x[i] = fixedpt.RoundSat24(fixedpt.Accum(amp * math.Sin(2*math.Pi*freq*float64(i)/24000)))
	}
	return x
}

// roundTrip pushes x through analysis and synthesis block by block.
func roundTrip(fb *Filterbank, x []fixedpt.Frac24) []fixedpt.Frac24 {
	r := fb.Config().R
	bins := make([]fixedpt.Complex24, fb.Bins())
	y := make([]fixedpt.Frac24, len(x))
	for t := 0; t+r <= len(x); t += r {
		fb.Analyze(x[t:t+r], bins)
		fb.Synthesize(bins, y[t:t+r])
	}
	return y
}
