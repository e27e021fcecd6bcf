// Package fbc implements the subband feedback canceller: a per-bin complex
// FIR model of the acoustic feedback path adapted by normalised LMS, a gain
// ceiling derived from the modelled path, and an optional frequency-shifting
// oscillator that decorrelates the loop.
package fbc

import (
	"math"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Canceller layout and tuning
const (
	NumBins      = config.NumBins
	CoeffsPerBin = 4
	FirstBin     = 5           // no adaptation below this bin
	LastBin      = NumBins - 1 // last adaptive bin
	BinsPerCall  = 9
	MaxGainMuAdj = 4 // cap on the gain-below-target step-size adjustment

	LevelAtkShift = 0
	LevelRelShift = 8
	MuNormBias    = -22 // floor on log2int(BE) in the step size

	ReserveGain    fixedpt.Frac16 = 0.5 // log2 safety margin in the gain ceiling
	InitialCoefMag fixedpt.Frac16 = -23
)

// GainTable is the compressor view the canceller needs at init to derive its
// per-bin target gain.
type GainTable interface {
	NumChannels() int
	ChannelBins(ch int) (start, last int)
	MaxCompressionGain(ch int) fixedpt.Frac16
}

// History gives access to past reverse-path spectra; delay 0 is the newest.
type History interface {
	At(delay int) [NumBins]fixedpt.Complex24
}

// AdaptInputs carries the per-block signals adaptation reads from other modules.
type AdaptInputs struct {
	Error        *[NumBins]fixedpt.Complex24
	Rev          History
	AgcoGainLog2 fixedpt.Frac16
	MicCalLog2   fixedpt.Frac16
	WDRCGainLog2 *[NumBins]fixedpt.Frac16
	NRGainLog2   *[NumBins]fixedpt.Frac16
}

// Canceller holds the coefficient bank and tracker state. Fields are exported
// for the state logger and must not be written outside this package.
type Canceller struct {
	params *config.Params

	StartBin, EndBin int
	TargetGainLog2   [NumBins]fixedpt.Frac16
	IntermLeak       int
	AdaptShift       [NumBins]int
	Coeffs           [NumBins][CoeffsPerBin]fixedpt.Complex24
	CoefMag          [NumBins]fixedpt.Frac16
	FiltSig          [NumBins]fixedpt.Complex24
	GainLimLog2      [NumBins]fixedpt.Frac16

	BEEnergy   [NumBins]fixedpt.Frac48
	ASmoothed  [NumBins]fixedpt.Frac48
	ESmoothed  [NumBins]fixedpt.Frac48
	BESmoothed [NumBins]fixedpt.Frac48

	// Sinusoid[0] is y[n-2], the multiplier; Sinusoid[1] is y[n-1].
	Sinusoid [2]fixedpt.Complex24
}

// New returns a canceller initialised against the compressor's gain table.
// The compressor must already be initialised.
func New(p *config.Params, gains GainTable) *Canceller {
	c := &Canceller{params: p}
	c.Init(gains)
	return c
}

// Init resets the canceller: zero coefficients, cursor on the first adaptive
// bins, unity gain ceiling, and the oscillator at phase zero.
func (c *Canceller) Init(gains GainTable) {
	p := c.params

	bb := fixedpt.Accum(p.SYS.Persist.InpMicGain) + fixedpt.Accum(p.SYS.Profile.AgcoGain)
	for ch := 0; ch < gains.NumChannels(); ch++ {
		target := fixedpt.RoundSat16(bb + fixedpt.Accum(gains.MaxCompressionGain(ch)))
		start, last := gains.ChannelBins(ch)
		for b := start; b <= last; b++ {
			c.TargetGainLog2[b] = target
		}
	}

	c.StartBin = FirstBin
	c.EndBin = min(FirstBin+BinsPerCall-1, LastBin)

	for b := 0; b < NumBins; b++ {
		if b >= FirstBin {
			c.AdaptShift[b] = p.FBC.Profile.ActiveShift
		}
		c.GainLimLog2[b] = 0
		c.CoefMag[b] = InitialCoefMag
		c.Coeffs[b] = [CoeffsPerBin]fixedpt.Complex24{}
	}
	c.FiltSig = [NumBins]fixedpt.Complex24{}
	c.BEEnergy = [NumBins]fixedpt.Frac48{}
	c.ASmoothed = [NumBins]fixedpt.Frac48{}
	c.ESmoothed = [NumBins]fixedpt.Frac48{}
	c.BESmoothed = [NumBins]fixedpt.Frac48{}

	c.IntermLeak = (p.FBC.Persist.LeakFast + p.FBC.Persist.LeakSlow) >> 1

	c.Sinusoid[0] = fixedpt.Complex24{Re: fixedpt.MaxVal24}
	c.Sinusoid[1] = fixedpt.ComplexAccum{
		Re: fixedpt.Accum(p.FBC.Profile.CosInit),
		Im: fixedpt.Accum(p.FBC.Profile.SineInit),
	}.Sat()
}

// Enabled reports the profile enable.
func (c *Canceller) Enabled() bool {
	return bool(c.params.FBC.Profile.Enable)
}

// GainLimitActive reports whether the gain ceiling should clamp forward gains.
func (c *Canceller) GainLimitActive() bool {
	return c.Enabled() && bool(c.params.FBC.Profile.GainLimitEnable)
}

// FreqShiftActive reports whether the configured shift range is usable.
func (c *Canceller) FreqShiftActive() bool {
	pr := &c.params.FBC.Profile
	return pr.FreqShStartBin >= 0 && pr.FreqShStartBin <= pr.FreqShEndBin && pr.FreqShEndBin < NumBins
}

// Spacing returns the block spacing between taps.
func (c *Canceller) Spacing() int {
	return max(c.params.FBC.Persist.CoeffSpacing, 1)
}

// HistoryDepth returns how many past reverse spectra the filter reads.
func (c *Canceller) HistoryDepth() int {
	return (CoeffsPerBin-1)*c.Spacing() + 1
}

// Levels updates the dual-time-constant energy trackers: A from the
// microphone, E from the error and BE from error plus reverse energy.
func (c *Canceller) Levels(mic, errE, rev *[NumBins]fixedpt.Frac48) {
	for b := 0; b < NumBins; b++ {
		c.BEEnergy[b] = fixedpt.RoundSat48(fixedpt.Accum(errE[b]) + fixedpt.Accum(rev[b]))
		c.ASmoothed[b] = fixedpt.DualTCSmooth48(mic[b], c.ASmoothed[b], LevelAtkShift, LevelRelShift)
		c.ESmoothed[b] = fixedpt.DualTCSmooth48(errE[b], c.ESmoothed[b], LevelAtkShift, LevelRelShift)
		c.BESmoothed[b] = fixedpt.DualTCSmooth48(c.BEEnergy[b], c.BESmoothed[b], LevelAtkShift, LevelRelShift)
	}
}

// DoFiltering convolves the reverse-path history with the coefficient bank,
// writing the feedback estimate to FiltSig.
func (c *Canceller) DoFiltering(rev History) {
	var acc [NumBins]fixedpt.ComplexAccum
	spacing := c.Spacing()
	for tap := 0; tap < CoeffsPerBin; tap++ {
		h := rev.At(tap * spacing)
		for b := 0; b < NumBins; b++ {
			acc[b] = acc[b].Add(h[b].Mul(c.Coeffs[b][tap]))
		}
	}
	for b := range acc {
		c.FiltSig[b] = acc[b].Sat()
	}
}

// FilterAdaptation runs one nLMS update over the cursor's bins and advances
// the cursor. When disabled it zeroes the coefficient bank and leaves the gain
// ceiling at unity.
func (c *Canceller) FilterAdaptation(in AdaptInputs) {
	if !c.Enabled() {
		c.GainLimLog2 = [NumBins]fixedpt.Frac16{}
		c.Coeffs = [NumBins][CoeffsPerBin]fixedpt.Complex24{}
		return
	}

	p := c.params
	spacing := c.Spacing()
	var taps [CoeffsPerBin][NumBins]fixedpt.Complex24
	for tap := range taps {
		taps[tap] = in.Rev.At(tap * spacing)
	}

	broadband := fixedpt.Accum(in.AgcoGainLog2) + fixedpt.Accum(in.MicCalLog2)
	fixedGain := broadband + fixedpt.Accum(p.SYS.Persist.OutpRcvrGain) +
		fixedpt.Accum(p.EQ.Profile.BroadbandGain) + fixedpt.Accum(p.SYS.Profile.VCGain)

	for b := c.StartBin; b <= c.EndBin; b++ {
		dyn := fixedpt.RoundSat16(broadband + fixedpt.Accum(in.WDRCGainLog2[b]) + fixedpt.Accum(in.NRGainLog2[b]))
		mu := p.FBC.Profile.ActiveShift + gainMuAdj(c.TargetGainLog2[b], dyn) +
			p.FBC.Persist.MuOffset[b] + max(fixedpt.Log2Int(fixedpt.Accum(c.BESmoothed[b])), MuNormBias)
		c.AdaptShift[b] = mu

		leak := c.leakShift(b)

		e := in.Error[b]
		var sum fixedpt.ComplexAccum
		for tap := 0; tap < CoeffsPerBin; tap++ {
			coef := c.Coeffs[b][tap].Accum()
			upd := taps[tap][b].MulConj(e).Shift(mu)
			next := coef.Add(upd).Sub(coef.Shift(leak)).Sat()
			c.Coeffs[b][tap] = next
			sum = sum.Add(next.Accum())
		}

		c.CoefMag[b] = fixedpt.RoundSat16(fixedpt.Accum(fixedpt.Log2Approx(sum.Energy())) / 2)

		if p.FBC.Profile.GainLimitEnable {
			c.GainLimLog2[b] = fixedpt.RoundSat16(fixedpt.Accum(p.FBC.Profile.GainLimitMax) -
				fixedpt.Accum(c.CoefMag[b]) - fixedGain - fixedpt.Accum(ReserveGain))
		} else {
			c.GainLimLog2[b] = 0
		}
	}

	if c.EndBin >= LastBin {
		c.StartBin = FirstBin
	} else {
		c.StartBin = c.EndBin + 1
	}
	c.EndBin = min(c.StartBin+BinsPerCall-1, LastBin)
}

// gainMuAdj slows adaptation while the dynamic gain sits below target: one
// step per 0.5 log2 (3 dB) of shortfall, capped at MaxGainMuAdj.
func gainMuAdj(target, dyn fixedpt.Frac16) int {
	adj := int(math.Floor(2 * (float64(target) - float64(dyn))))
	return min(max(adj, 0), MaxGainMuAdj)
}

// leakShift picks the leakage from the E/A energy ratio: fast when the error
// is at least 4x the microphone, intermediate at 2x, slow otherwise.
func (c *Canceller) leakShift(b int) int {
	e := fixedpt.Accum(c.ESmoothed[b])
	a := fixedpt.Accum(c.ASmoothed[b])
	switch {
	case e >= 4*a:
		return c.params.FBC.Persist.LeakFast
	case e >= 2*a:
		return c.IntermLeak
	}
	return c.params.FBC.Persist.LeakSlow
}

// DoFreqShift multiplies the configured bins of the synthesis spectrum by the
// oscillator's current sample and advances the resonator
// y[n] = 2·cos(ω)·y[n-1] - y[n-2]. An empty or out-of-range bin range leaves
// both the spectrum and the oscillator untouched.
func (c *Canceller) DoFreqShift(syn *[NumBins]fixedpt.Complex24) {
	if !c.FreqShiftActive() {
		return
	}
	pr := &c.params.FBC.Profile

	osc := c.Sinusoid[0]
	for b := pr.FreqShStartBin; b <= pr.FreqShEndBin; b++ {
		syn[b] = osc.Mul(syn[b]).Sat()
	}

	y1 := c.Sinusoid[1]
	k := 2 * fixedpt.Accum(pr.CosInit)
	next := fixedpt.ComplexAccum{
		Re: k*fixedpt.Accum(y1.Re) - fixedpt.Accum(c.Sinusoid[0].Re),
		Im: k*fixedpt.Accum(y1.Im) - fixedpt.Accum(c.Sinusoid[0].Im),
	}
	c.Sinusoid[0] = y1
	c.Sinusoid[1] = next.Sat()
}
