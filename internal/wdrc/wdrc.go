// Package wdrc implements the wide dynamic range compressor: eight channels of
// grouped bins, each tracking a smoothed level and mapping it through a
// five-region gain curve. One channel is updated per block.
package wdrc

import (
	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Compressor layout
const (
	NumChannels = config.NumChannels
	NumRegions  = 5 // expansion, three compression segments, limiting
	NumBins     = config.NumBins

	// InitialLevel is the log2 level and energy every channel starts from.
	InitialLevel fixedpt.Frac16 = -40
	// LimitSlope pins output level at the limiting threshold.
	LimitSlope fixedpt.Frac16 = -1
)

// Region identifies a segment of the gain curve.
type Region int

const (
	RegionExpansion Region = iota
	RegionCompressLow
	RegionCompressMid
	RegionCompressHigh
	RegionLimit
)

func (r Region) String() string {
	switch r {
	case RegionExpansion:
		return "expansion"
	case RegionCompressLow, RegionCompressMid, RegionCompressHigh:
		return "compression"
	case RegionLimit:
		return "limiting"
	}
	return "unknown"
}

var channelSizes = [NumChannels]int{1, 2, 2, 3, 4, 6, 7, 7}

var channelStart = func() (s [NumChannels]int) {
	for ch := 1; ch < NumChannels; ch++ {
		s[ch] = s[ch-1] + channelSizes[ch-1]
	}
	return s
}()

// ChannelBins returns the first and last bin (inclusive) of channel ch.
func ChannelBins(ch int) (start, last int) {
	return channelStart[ch], channelStart[ch] + channelSizes[ch] - 1
}

// ChannelOf returns the channel that owns bin.
func ChannelOf(bin int) int {
	for ch := NumChannels - 1; ch > 0; ch-- {
		if bin >= channelStart[ch] {
			return ch
		}
	}
	return 0
}

// Curve is one channel's breakpoint table. Thresh[4] is the numeric ceiling.
type Curve struct {
	Thresh [NumRegions]fixedpt.Frac16
	Gain   [NumRegions]fixedpt.Frac16
	Slope  [NumRegions]fixedpt.Frac16
}

// NewCurve builds a curve from four ascending thresholds, their gains and the
// expansion slope.
func NewCurve(thresh, gain [config.NumBreakpoints]fixedpt.Frac16, expSlope fixedpt.Frac16) Curve {
	var c Curve
	copy(c.Thresh[:], thresh[:])
	copy(c.Gain[:], gain[:])
	c.Thresh[4] = fixedpt.MaxVal16

	c.Slope[0] = expSlope
	for n := 1; n <= 3; n++ {
		dG := fixedpt.Accum(c.Gain[n]) - fixedpt.Accum(c.Gain[n-1])
		dT := fixedpt.Accum(c.Thresh[n]) - fixedpt.Accum(c.Thresh[n-1])
		if dT <= 0 {
			c.Slope[n] = 0
			continue
		}
		c.Slope[n] = fixedpt.RoundSat16(dG / dT)
	}
	c.Slope[4] = LimitSlope
	c.Gain[4] = fixedpt.RoundSat16(fixedpt.Accum(c.Thresh[3]) - fixedpt.Accum(c.Thresh[4]) + fixedpt.Accum(c.Gain[3]))
	return c
}

// RegionOf returns the first region whose threshold level does not exceed.
func (c *Curve) RegionOf(level fixedpt.Frac16) Region {
	for i := 0; i < NumRegions; i++ {
		if level <= c.Thresh[i] {
			return Region(i)
		}
	}
	return RegionLimit
}

// GainAt maps a log2 level to a log2 gain.
//
// Regions 0..3 anchor on their upper threshold. The limiting line anchors on
// Thresh[3], because level - Thresh[4] would saturate a Frac16.
func (c *Curve) GainAt(level fixedpt.Frac16) fixedpt.Frac16 {
	r := c.RegionOf(level)
	anchorT, anchorG := c.Thresh[r], c.Gain[r]
	if r == RegionLimit {
		anchorT, anchorG = c.Thresh[3], c.Gain[3]
	}
	diff := fixedpt.RoundSat16(fixedpt.Accum(level) - fixedpt.Accum(anchorT))
	return fixedpt.RoundSat16(fixedpt.Accum(fixedpt.MulRound16(c.Slope[r], diff)) + fixedpt.Accum(anchorG))
}

// Compressor holds per-channel state. Fields are exported for the state logger
// and must not be written outside this package.
type Compressor struct {
	params *config.WDRCParams

	CurrentChannel int
	ChanEnergyLog2 [NumChannels]fixedpt.Frac16
	LevelLog2      [NumChannels]fixedpt.Frac16
	ChanGainLog2   [NumChannels]fixedpt.Frac16
	BinGainLog2    [NumBins]fixedpt.Frac16
	Curves         [NumChannels]Curve
}

// New returns an initialised compressor for p.
func New(p *config.WDRCParams) *Compressor {
	c := &Compressor{params: p}
	c.Init()
	return c
}

// Init resets levels and gains and rebuilds the curves from the parameters.
func (c *Compressor) Init() {
	c.CurrentChannel = 0
	for ch := 0; ch < NumChannels; ch++ {
		c.ChanEnergyLog2[ch] = InitialLevel
		c.LevelLog2[ch] = InitialLevel
		c.ChanGainLog2[ch] = 0
		c.Curves[ch] = NewCurve(c.params.Profile.Thresh[ch], c.params.Profile.Gain[ch], c.params.Profile.ExpSlope)
	}
	c.BinGainLog2 = [NumBins]fixedpt.Frac16{}
}

// Enabled reports the profile enable.
func (c *Compressor) Enabled() bool {
	return bool(c.params.Profile.Enable)
}

// NumChannels returns the channel count.
func (c *Compressor) NumChannels() int {
	return NumChannels
}

// ChannelBins returns the inclusive bin range of channel ch.
func (c *Compressor) ChannelBins(ch int) (start, last int) {
	return ChannelBins(ch)
}

// MaxCompressionGain returns the largest configured gain of the three
// compression breakpoints of channel ch.
func (c *Compressor) MaxCompressionGain(ch int) fixedpt.Frac16 {
	g := c.Curves[ch].Gain
	return fixedpt.Max16(fixedpt.Max16(g[1], g[2]), g[3])
}

// CurveGain evaluates channel ch's gain curve at level without touching state.
func (c *Compressor) CurveGain(ch int, level fixedpt.Frac16) fixedpt.Frac16 {
	return c.Curves[ch].GainAt(level)
}

// Main updates the current channel from the block's bin energies and advances
// the cursor. When disabled every bin gain is unity.
func (c *Compressor) Main(binEnergy *[NumBins]fixedpt.Frac48) {
	if !c.Enabled() {
		c.BinGainLog2 = [NumBins]fixedpt.Frac16{}
		return
	}

	ch := c.CurrentChannel
	start, last := ChannelBins(ch)

	var acc fixedpt.Accum
	for b := start; b <= last; b++ {
		acc += fixedpt.Accum(binEnergy[b])
	}
	// Energy log2 halved into the amplitude domain of the thresholds
	energyLog2 := fixedpt.RoundSat16(fixedpt.Accum(fixedpt.Log2Approx(acc)) / 2)
	c.ChanEnergyLog2[ch] = energyLog2

	diff := fixedpt.RoundSat16(fixedpt.Accum(energyLog2) - fixedpt.Accum(c.LevelLog2[ch]))
	tc := c.timeConstant(ch, energyLog2, diff)
	c.LevelLog2[ch] = fixedpt.RoundSat16(fixedpt.Accum(fixedpt.MulRound16(tc, diff)) + fixedpt.Accum(c.LevelLog2[ch]))

	gain := c.Curves[ch].GainAt(c.LevelLog2[ch])
	for b := start; b <= last; b++ {
		c.BinGainLog2[b] = gain
	}
	c.ChanGainLog2[ch] = gain

	c.CurrentChannel++
	if c.CurrentChannel >= NumChannels {
		c.CurrentChannel = 0
	}
}

// timeConstant picks attack or release by the sign of diff and the tier by
// where the input energy sits on the curve. Excursions beyond SupraThresh use
// the supra tier.
func (c *Compressor) timeConstant(ch int, energy, diff fixedpt.Frac16) fixedpt.Frac16 {
	p := &c.params.Persist
	attack := diff > 0

	if fixedpt.Abs16(diff) > p.SupraThresh {
		if attack {
			return p.SupraAtkTC
		}
		return p.SupraRelTC
	}

	curve := &c.Curves[ch]
	switch {
	case energy < curve.Thresh[0]:
		if attack {
			return p.ExpansAtkTC
		}
		return p.ExpansRelTC
	case energy >= curve.Thresh[3]:
		if attack {
			return p.LimitAtkTC
		}
		return p.LimitRelTC
	}
	if attack {
		return p.CompressAtkTC
	}
	return p.CompressRelTC
}
