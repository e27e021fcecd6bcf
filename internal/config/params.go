// Package config holds the parameter groups that drive each processing module,
// their defaults in audiology units, and loading from fitting-tool JSON.
//
// Every group is split into Persist (calibration, rarely changed) and Profile
// (per-listening-situation, swappable) halves. Values are stored in firmware
// units: log2 for gains and levels, single-pole coefficients for time
// constants, integer shift counts for shifts.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/wola"
)

// Dimensions shared by the parameter tables
const (
	NumBins        = wola.NumBins
	NumChannels    = 8 // WDRC channels
	NumBreakpoints = 4 // WDRC configurable thresholds/gains per channel
	NumProfiles    = 4 // profiles "1".."4" in a parameter file
)

// Flag is an enable switch. It decodes from JSON booleans and from the 0/1
// integers written by the fitting tool.
type Flag bool

// UnmarshalJSON accepts true/false or any number (non-zero is true).
func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*f = true
		return nil
	case "false", "null":
		*f = false
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("enable flag must be a boolean or number, got %s", b)
	}
	*f = n != 0
	return nil
}

// SYSPersist holds calibration for the input, output and AGC stages.
type SYSPersist struct {
	InpMicGain     fixedpt.Frac16 `json:"InpMicGain"`     // log2, microphone calibration
	OutpRcvrGain   fixedpt.Frac16 `json:"OutpRcvrGain"`   // log2, receiver calibration
	FilterbankGain fixedpt.Frac16 `json:"FilterbankGain"` // log2, filterbank calibration per bin
	AgcoThresh     fixedpt.Frac16 `json:"AgcoThresh"`     // log2 re full scale, output ceiling
	AgcoAtkTC      fixedpt.Frac16 `json:"AgcoAtkTC"`      // per-sample attack coefficient
	AgcoRelTC      fixedpt.Frac16 `json:"AgcoRelTC"`      // per-sample release coefficient
}

// SYSProfile holds the broadband gains that change with the listening profile.
type SYSProfile struct {
	AgcoGain fixedpt.Frac16 `json:"AgcoGain"` // log2, output AGC gain below threshold
	VCGain   fixedpt.Frac16 `json:"VCGain"`   // log2, volume control
}

// SYSParams is the orchestrator's parameter group.
type SYSParams struct {
	Persist SYSPersist
	Profile SYSProfile
}

// WDRCPersist holds the level-tracker time constants, one pair per region
// tier, plus the supra tier used for large excursions.
type WDRCPersist struct {
	ExpansAtkTC   fixedpt.Frac16 `json:"ExpansAtkTC"`
	ExpansRelTC   fixedpt.Frac16 `json:"ExpansRelTC"`
	CompressAtkTC fixedpt.Frac16 `json:"CompressAtkTC"`
	CompressRelTC fixedpt.Frac16 `json:"CompressRelTC"`
	LimitAtkTC    fixedpt.Frac16 `json:"LimitAtkTC"`
	LimitRelTC    fixedpt.Frac16 `json:"LimitRelTC"`
	SupraAtkTC    fixedpt.Frac16 `json:"SupraAtkTC"`
	SupraRelTC    fixedpt.Frac16 `json:"SupraRelTC"`
	SupraThresh   fixedpt.Frac16 `json:"SupraThresh"` // log2, |level diff| above which the supra tier applies
}

// WDRCProfile holds the per-channel compression curves.
type WDRCProfile struct {
	Enable   Flag                                        `json:"Enable"`
	Gain     [NumChannels][NumBreakpoints]fixedpt.Frac16 `json:"Gain"`   // log2 gain at each threshold
	Thresh   [NumChannels][NumBreakpoints]fixedpt.Frac16 `json:"Thresh"` // log2 level, ascending
	ExpSlope fixedpt.Frac16                              `json:"ExpSlope"`
}

// WDRCParams is the compressor's parameter group.
type WDRCParams struct {
	Persist WDRCPersist
	Profile WDRCProfile
}

// FBCPersist holds the canceller's calibration.
type FBCPersist struct {
	LeakFast     int          `json:"LeakFast"`     // leakage shift when error dominates
	LeakSlow     int          `json:"LeakSlow"`     // leakage shift at rest
	MuOffset     [NumBins]int `json:"MuOffset"`     // per-bin step-size shift offset
	BulkDelay    int          `json:"BulkDelay"`    // samples of output delay before reverse analysis
	CoeffSpacing int          `json:"CoeffSpacing"` // blocks between taps
}

// FBCProfile holds the canceller's per-profile switches.
type FBCProfile struct {
	Enable          Flag           `json:"Enable"`
	ActiveShift     int            `json:"ActiveShift"`
	GainLimitEnable Flag           `json:"GainLimitEnable"`
	GainLimitMax    fixedpt.Frac16 `json:"GainLimitMax"` // log2, allowed loop gain
	FreqShStartBin  int            `json:"FreqShStartBin"`
	FreqShEndBin    int            `json:"FreqShEndBin"` // below FreqShStartBin disables the shift
	CosInit         fixedpt.Frac24 `json:"CosInit"`      // cos(2π·f/SubbandRate)
	SineInit        fixedpt.Frac24 `json:"SineInit"`     // sin(2π·f/SubbandRate)
}

// FBCParams is the feedback canceller's parameter group.
type FBCParams struct {
	Persist FBCPersist
	Profile FBCProfile
}

// EQPersist holds the per-bin calibration curve.
type EQPersist struct {
	BinCal [NumBins]fixedpt.Frac16 `json:"BinCal"`
}

// EQProfile holds the fitted equaliser.
type EQProfile struct {
	Bin           [NumBins]fixedpt.Frac16 `json:"Bin"`
	BroadbandGain fixedpt.Frac16          `json:"BroadbandGain"`
}

// EQParams is the equaliser's parameter group.
type EQParams struct {
	Persist EQPersist
	Profile EQProfile
}

// NRPersist holds the noise-tracker dynamics.
type NRPersist struct {
	NoiseFastTC   fixedpt.Frac16 `json:"NoiseFastTC"`
	NoiseSlowRise fixedpt.Frac16 `json:"NoiseSlowRise"` // log2 added per update while rising
	NoiseFloor    fixedpt.Frac16 `json:"NoiseFloor"`    // log2 lower bound on the slow tracker
	GainSmoothTC  fixedpt.Frac16 `json:"GainSmoothTC"`
}

// NRProfile holds the per-profile reduction depth.
type NRProfile struct {
	Enable       Flag                    `json:"Enable"`
	MaxReduction [NumBins]fixedpt.Frac16 `json:"MaxReduction"` // log2 scale on the normalised gain curve
}

// NRParams is the noise reduction's parameter group.
type NRParams struct {
	Persist NRPersist
	Profile NRProfile
}

// Params is the complete parameter set, read-only while a profile is active.
type Params struct {
	SYS  SYSParams
	WDRC WDRCParams
	FBC  FBCParams
	EQ   EQParams
	NR   NRParams
}

// Default fitting, in audiology units
var (
	defaultThreshDBSPL = [NumBreakpoints]float64{45, 55, 65, 90}
	defaultGainDB      = [NumBreakpoints]float64{20, 16, 12, 6}
)

const (
	defaultFreqShiftHz = 10.0
	defaultBulkDelay   = 32
)

// Default returns a moderate mild-loss fitting with every module enabled and
// the frequency shifter off.
func Default() *Params {
	p := &Params{}

	p.SYS.Persist = SYSPersist{
		AgcoThresh: f16(DBToLog2(-3)),
		AgcoAtkTC:  f16(SampleTC(1)),
		AgcoRelTC:  f16(SampleTC(100)),
	}

	p.WDRC.Persist = WDRCPersist{
		ExpansAtkTC:   f16(WdrcTC(20)),
		ExpansRelTC:   f16(WdrcTC(200)),
		CompressAtkTC: f16(WdrcTC(5)),
		CompressRelTC: f16(WdrcTC(100)),
		LimitAtkTC:    f16(WdrcTC(1)),
		LimitRelTC:    f16(WdrcTC(50)),
		SupraAtkTC:    f16(WdrcTC(1)),
		SupraRelTC:    f16(WdrcTC(20)),
		SupraThresh:   f16(DBToLog2(20)),
	}
	p.WDRC.Profile.Enable = true
	p.WDRC.Profile.ExpSlope = 0.5
	for ch := 0; ch < NumChannels; ch++ {
		for i := 0; i < NumBreakpoints; i++ {
			p.WDRC.Profile.Thresh[ch][i] = f16(InputDBSPLToLog2(defaultThreshDBSPL[i]))
			p.WDRC.Profile.Gain[ch][i] = f16(DBToLog2(defaultGainDB[i]))
		}
	}

	p.FBC.Persist = FBCPersist{
		LeakFast:     6,
		LeakSlow:     12,
		BulkDelay:    defaultBulkDelay,
		CoeffSpacing: 1,
	}
	s, c := math.Sincos(2 * math.Pi * defaultFreqShiftHz / SubbandRate)
	p.FBC.Profile = FBCProfile{
		Enable:          true,
		ActiveShift:     4,
		GainLimitEnable: true,
		GainLimitMax:    0,
		FreqShStartBin:  0,
		FreqShEndBin:    -1,
		CosInit:         fixedpt.RoundSat24(fixedpt.Accum(c)),
		SineInit:        fixedpt.RoundSat24(fixedpt.Accum(s)),
	}

	p.NR.Persist = NRPersist{
		NoiseFastTC:   f16(NrTC(50)),
		NoiseSlowRise: f16(DBPerSecToLog2(3)),
		NoiseFloor:    -40,
		GainSmoothTC:  f16(NrTC(20)),
	}
	p.NR.Profile.Enable = true
	for b := range p.NR.Profile.MaxReduction {
		p.NR.Profile.MaxReduction[b] = 2.0
	}

	return p
}

// Clone returns a deep copy. Params holds only arrays and scalars.
func (p *Params) Clone() *Params {
	c := *p
	return &c
}

// FreqShiftHz reports the oscillator frequency implied by CosInit/SineInit.
func (p *Params) FreqShiftHz() float64 {
	return math.Atan2(float64(p.FBC.Profile.SineInit), float64(p.FBC.Profile.CosInit)) * SubbandRate / (2 * math.Pi)
}

func f16(v float64) fixedpt.Frac16 {
	return fixedpt.RoundSat16(fixedpt.Accum(v))
}
