// Package nr implements per-bin noise reduction: fast and slow noise trackers,
// a speech tracker, and a table-driven SNR-to-gain mapping with smoothing.
// Eight bins are updated per block, so every bin is serviced every four blocks.
package nr

import (
	"math"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Noise reduction constants
const (
	NumBins     = config.NumBins
	BinsPerCall = 8
	TableLen    = 32

	SpeechCoeff     fixedpt.Frac24 = 0.77880072593689 // e^-0.25, speech smoother pole
	InitialEstimate fixedpt.Frac16 = -5.0             // log2, speech and noise at reset

	// SNR range of the table in offset/scaled form, (SNR-LowerLimit)·UpperLimit.
	// TableGain indexes on SNR·8 directly.
	LowerLimit fixedpt.Frac16 = 0.332193 // log2(10^(1/10))
	UpperLimit fixedpt.Frac16 = 7.178408 // 31/(log2(10^(14/10)) - log2(10^(1/10)))

	tableFracBits = 3 // SNR resolution kept when indexing the table
)

// GainCurve is the closed-form normalised gain for a table position i:
// 2^((i-31)/8) - 1, running from about -0.93 at i=0 to 0 at i=31.
func GainCurve(i float64) float64 {
	return math.Exp2((i-(TableLen-1))/(1<<tableFracBits)) - 1
}

// gainTable holds GainCurve sampled at the integer positions.
var gainTable = func() (t [TableLen]fixedpt.Frac16) {
	for i := range t {
		t[i] = fixedpt.RoundSat16(fixedpt.Accum(GainCurve(float64(i))))
	}
	return t
}()

// GainTable returns a copy of the normalised SNR-to-gain table.
func GainTable() [TableLen]fixedpt.Frac16 {
	return gainTable
}

// TableGain maps a log2 SNR to the normalised gain in [-1, 0]: the table index
// is floor(SNR·8), clamped at both ends, with linear interpolation on the
// remaining fraction.
func TableGain(snr fixedpt.Frac16) fixedpt.Frac16 {
	pos := float64(snr) * (1 << tableFracBits)
	idx := math.Floor(pos)
	switch {
	case idx < 0:
		return gainTable[0]
	case idx >= TableLen-1:
		return gainTable[TableLen-1]
	}
	i := int(idx)
	frac := fixedpt.Accum(pos - idx)
	lower, upper := gainTable[i], gainTable[i+1]
	return fixedpt.RoundSat16(fixedpt.Accum(upper-lower)*frac + fixedpt.Accum(lower))
}

// Reducer holds per-bin tracker state. Fields are exported for the state
// logger and must not be written outside this package.
type Reducer struct {
	params *config.NRParams

	StartBin, EndBin int

	NoiseSlowEst [NumBins]fixedpt.Frac16
	NoiseFastEst [NumBins]fixedpt.Frac16
	NoiseEst     [NumBins]fixedpt.Frac16
	SpeechEst    [NumBins]fixedpt.Frac16
	SNREst       [NumBins]fixedpt.Frac16
	BinGainLog2  [NumBins]fixedpt.Frac16
}

// New returns an initialised reducer for p.
func New(p *config.NRParams) *Reducer {
	r := &Reducer{params: p}
	r.Init()
	return r
}

// Init resets the cursor to bins 0..7 and every estimate to InitialEstimate.
func (r *Reducer) Init() {
	r.StartBin = 0
	r.EndBin = BinsPerCall - 1
	for b := 0; b < NumBins; b++ {
		r.NoiseSlowEst[b] = InitialEstimate
		r.NoiseFastEst[b] = InitialEstimate
		r.NoiseEst[b] = InitialEstimate
		r.SpeechEst[b] = InitialEstimate
		r.SNREst[b] = fixedpt.RoundSat16(fixedpt.Accum(r.SpeechEst[b]) - fixedpt.Accum(r.NoiseEst[b]))
		r.BinGainLog2[b] = 0
	}
}

// Enabled reports the profile enable.
func (r *Reducer) Enabled() bool {
	return bool(r.params.Profile.Enable)
}

// Main updates the current eight bins from the block's log2 bin energies and
// advances the cursor. When disabled every bin gain is unity and the cursor
// holds.
func (r *Reducer) Main(binEnergyLog2 *[NumBins]fixedpt.Frac16) {
	if !r.Enabled() {
		r.BinGainLog2 = [NumBins]fixedpt.Frac16{}
		return
	}

	p := r.params
	for b := r.StartBin; b <= r.EndBin; b++ {
		e := fixedpt.Accum(binEnergyLog2[b])

		fast := fixedpt.Accum(r.NoiseFastEst[b])
		r.NoiseFastEst[b] = fixedpt.RoundSat16((e-fast)*fixedpt.Accum(p.Persist.NoiseFastTC) + fast)

		// The slow tracker follows the fast one down and creeps up otherwise
		if r.NoiseFastEst[b] < r.NoiseSlowEst[b] {
			r.NoiseSlowEst[b] = r.NoiseFastEst[b]
		} else {
			r.NoiseSlowEst[b] = fixedpt.RoundSat16(fixedpt.Accum(r.NoiseSlowEst[b]) + fixedpt.Accum(p.Persist.NoiseSlowRise))
		}
		r.NoiseSlowEst[b] = fixedpt.Max16(r.NoiseSlowEst[b], p.Persist.NoiseFloor)

		r.NoiseEst[b] = fixedpt.Min16(r.NoiseFastEst[b], r.NoiseSlowEst[b])

		speech := fixedpt.Accum(r.SpeechEst[b])
		r.SpeechEst[b] = fixedpt.RoundSat16((speech-e)*fixedpt.Accum(SpeechCoeff) + e)

		r.SNREst[b] = fixedpt.RoundSat16(fixedpt.Accum(r.SpeechEst[b]) - fixedpt.Accum(r.NoiseEst[b]))

		target := fixedpt.RoundSat16(fixedpt.Accum(TableGain(r.SNREst[b])) * fixedpt.Accum(p.Profile.MaxReduction[b]))
		diff := fixedpt.RoundSat16(fixedpt.Accum(target) - fixedpt.Accum(r.BinGainLog2[b]))
		r.BinGainLog2[b] = fixedpt.RoundSat16(fixedpt.Accum(fixedpt.MulRound16(p.Persist.GainSmoothTC, diff)) + fixedpt.Accum(r.BinGainLog2[b]))
	}

	r.StartBin = r.EndBin + 1
	if r.StartBin >= NumBins {
		r.StartBin = 0
	}
	r.EndBin = r.StartBin + BinsPerCall - 1
}
