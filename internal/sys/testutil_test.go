package sys

import (
	"math"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// noiseBlocks returns n blocks of deterministic white noise on [-amp, amp].
// Simple LCG (Numerical Recipes parameters) keeps sequences stable across Go versions.
func noiseBlocks(n int, seed uint32, amp float64) []Block {
	state := seed
	blocks := make([]Block, n)
	for b := range blocks {
		for i := range blocks[b] {
			state = state*1664525 + 1013904223
			v := ((float64(state)/float64(0xFFFFFFFF))*2.0 - 1.0) * amp
			blocks[b][i] = fixedpt.RoundSat24(fixedpt.Accum(v))
		}
	}
	return blocks
}

// toneBlocks returns n blocks of a sine at freq Hz.
func toneBlocks(n int, freq, amp float64) []Block {
	blocks := make([]Block, n)
	for b := range blocks {
		for i := range blocks[b] {
			t := float64(b*BlockSize+i) / config.BasebandRate
			blocks[b][i] = fixedpt.RoundSat24(fixedpt.Accum(amp * math.Sin(2*math.Pi*freq*t)))
		}
	}
	return blocks
}

// passthroughParams disables every adaptive module and zeroes every gain so
// the chain reduces to analysis followed by synthesis.
func passthroughParams() *config.Params {
	p := config.Default()
	p.WDRC.Profile.Enable = false
	p.FBC.Profile.Enable = false
	p.NR.Profile.Enable = false
	p.SYS.Profile.AgcoGain = 0
	p.SYS.Persist.AgcoThresh = 10 // never reached by a Frac24 signal
	return p
}

func flatten(blocks []Block) []fixedpt.Frac24 {
	out := make([]fixedpt.Frac24, 0, len(blocks)*BlockSize)
	for _, b := range blocks {
		out = append(out, b[:]...)
	}
	return out
}
