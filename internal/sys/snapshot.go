package sys

import (
	"github.com/linuxmatters/hearmodel/internal/fbc"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/wdrc"
)

// Snapshot is a copy of the per-block state the diagnostic logger records.
// Writing to it never affects processing.
type Snapshot struct {
	Block int // 1-based index of the block just processed

	State

	WDRCEnabled     bool
	WDRCLevelLog2   [wdrc.NumChannels]fixedpt.Frac16
	WDRCBinGainLog2 [NumBins]fixedpt.Frac16

	FBCEnabled     bool
	FBCCoeffs      [NumBins][fbc.CoeffsPerBin]fixedpt.Complex24
	FBCAdaptShift  [NumBins]int
	FBCGainLimLog2 [NumBins]fixedpt.Frac16
	FBCSinusoid    fixedpt.Complex24

	NREnabled     bool
	NRNoiseEst    [NumBins]fixedpt.Frac16
	NRSpeechEst   [NumBins]fixedpt.Frac16
	NRSNREst      [NumBins]fixedpt.Frac16
	NRBinGainLog2 [NumBins]fixedpt.Frac16
}

// Snapshot fills dst with the state left by the most recent ProcessBlock.
func (s *System) Snapshot(dst *Snapshot) {
	dst.Block = s.blocks
	dst.State = s.state

	dst.WDRCEnabled = s.WDRC.Enabled()
	dst.WDRCLevelLog2 = s.WDRC.LevelLog2
	dst.WDRCBinGainLog2 = s.WDRC.BinGainLog2

	dst.FBCEnabled = s.FBC.Enabled()
	dst.FBCCoeffs = s.FBC.Coeffs
	dst.FBCAdaptShift = s.FBC.AdaptShift
	dst.FBCGainLimLog2 = s.FBC.GainLimLog2
	dst.FBCSinusoid = s.FBC.Sinusoid[0]

	dst.NREnabled = s.NR.Enabled()
	dst.NRNoiseEst = s.NR.NoiseEst
	dst.NRSpeechEst = s.NR.SpeechEst
	dst.NRSNREst = s.NR.SNREst
	dst.NRBinGainLog2 = s.NR.BinGainLog2
}
