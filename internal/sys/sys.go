// Package sys sequences one block of the hearing-aid chain: input
// calibration, forward and reverse analysis, feedback cancellation, noise
// reduction, compression, gain application, synthesis and the output AGC.
//
// A System is single-threaded. Every module's per-block entry point completes
// before the next is invoked, and no call after New can fail.
package sys

import (
	"fmt"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fbc"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/nr"
	"github.com/linuxmatters/hearmodel/internal/ring"
	"github.com/linuxmatters/hearmodel/internal/wdrc"
	"github.com/linuxmatters/hearmodel/internal/wola"
)

// Block geometry
const (
	BlockSize = wola.BlockSize
	NumBins   = wola.NumBins
)

// Output AGC reset state
const (
	InitialAgcoLevel fixedpt.Frac16 = -40.0 // log2 amplitude
	InitialAgcoGain  fixedpt.Frac16 = 0.0
)

// Spectrum is one block of subband values.
type Spectrum = [NumBins]fixedpt.Complex24

// Block is one block of time samples.
type Block = [BlockSize]fixedpt.Frac24

// State is the orchestrator's own per-block working set.
type State struct {
	FwdAnaIn      Block
	FwdAna        Spectrum
	RevAnaIn      Block
	RevAna        Spectrum
	MicEnergy     [NumBins]fixedpt.Frac48
	RevEnergy     [NumBins]fixedpt.Frac48
	Error         Spectrum
	BinEnergy     [NumBins]fixedpt.Frac48
	BinEnergyLog2 [NumBins]fixedpt.Frac16
	FwdGainLog2   [NumBins]fixedpt.Frac16
	FwdSyn        Spectrum
	FwdSynOut     Block
	AgcoLevelLog2 fixedpt.Frac16
	AgcoGainLog2  fixedpt.Frac16
	Out           Block
}

// Option adjusts a System at construction.
type Option func(*options)

type options struct {
	filterbank wola.Config
}

// WithFilterbank replaces the default filterbank layout used by both the
// forward and reverse paths.
func WithFilterbank(cfg wola.Config) Option {
	return func(o *options) {
		o.filterbank = cfg
	}
}

// System owns the filterbanks, the reverse-path history, the output delay line
// and every module's state.
type System struct {
	params *config.Params

	fwd *wola.Filterbank
	rev *wola.Filterbank

	WDRC *wdrc.Compressor
	FBC  *fbc.Canceller
	NR   *nr.Reducer

	revHist   *ring.Ring[Spectrum]
	outDelay  *ring.Ring[fixedpt.Frac24]
	bulkDelay int
	blocks    int

	state State
}

// New builds a System for p. Modules are initialised in the order SYS, WDRC,
// FBC, NR; the canceller reads the compressor's curves at init. p must not be
// modified while the System is in use.
func New(p *config.Params, opts ...Option) (*System, error) {
	o := options{filterbank: wola.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.filterbank.R != BlockSize || o.filterbank.N/2 != NumBins {
		return nil, fmt.Errorf("%w: filterbank must have R=%d and %d bins", wola.ErrInvalidConfig, BlockSize, NumBins)
	}

	fwd, err := wola.New(o.filterbank)
	if err != nil {
		return nil, fmt.Errorf("forward filterbank: %w", err)
	}
	rev, err := wola.New(o.filterbank)
	if err != nil {
		return nil, fmt.Errorf("reverse filterbank: %w", err)
	}

	s := &System{
		params:    p,
		fwd:       fwd,
		rev:       rev,
		bulkDelay: max(p.FBC.Persist.BulkDelay, BlockSize),
	}
	s.outDelay = ring.NewAtLeast[fixedpt.Frac24](s.bulkDelay + BlockSize)

	s.init()
	s.WDRC = wdrc.New(&p.WDRC)
	s.FBC = fbc.New(p, s.WDRC)
	s.NR = nr.New(&p.NR)

	s.revHist = ring.NewAtLeast[Spectrum](s.FBC.HistoryDepth())
	return s, nil
}

func (s *System) init() {
	s.fwd.Reset()
	s.rev.Reset()
	s.outDelay.Reset()
	if s.revHist != nil {
		s.revHist.Reset()
	}
	s.blocks = 0
	s.state = State{
		AgcoLevelLog2: InitialAgcoLevel,
		AgcoGainLog2:  InitialAgcoGain,
	}
}

// Reset returns every module to its initial state.
func (s *System) Reset() {
	s.init()
	s.WDRC.Init()
	s.FBC.Init(s.WDRC)
	s.NR.Init()
}

// Params returns the parameter set the System runs with.
func (s *System) Params() *config.Params {
	return s.params
}

// Blocks returns the number of blocks processed since construction or Reset.
func (s *System) Blocks() int {
	return s.blocks
}

// Delay returns the forward-path latency in samples.
func (s *System) Delay() int {
	return s.fwd.Delay()
}

// ProcessBlock runs one block through the chain and returns the output block.
func (s *System) ProcessBlock(in Block) Block {
	st := &s.state
	p := s.params

	s.applyInputGain(&in)
	s.forwardAnalysis()
	s.reverseAnalysis()

	// Feedback estimate; a disabled canceller contributes nothing
	var filtSig Spectrum
	if s.FBC.Enabled() {
		s.FBC.DoFiltering(s.revHist)
		filtSig = s.FBC.FiltSig
	}
	for b := 0; b < NumBins; b++ {
		st.Error[b] = st.FwdAna[b].Sub(filtSig[b]).Sat()
		st.BinEnergy[b] = st.Error[b].Energy()
		st.BinEnergyLog2[b] = fixedpt.Log2Approx(fixedpt.Accum(st.BinEnergy[b]))
	}

	s.NR.Main(&st.BinEnergyLog2)
	s.WDRC.Main(&st.BinEnergy)
	s.FBC.Levels(&st.MicEnergy, &st.BinEnergy, &st.RevEnergy)
	s.FBC.FilterAdaptation(fbc.AdaptInputs{
		Error:        &st.Error,
		Rev:          s.revHist,
		AgcoGainLog2: st.AgcoGainLog2,
		MicCalLog2:   p.SYS.Persist.InpMicGain,
		WDRCGainLog2: &s.WDRC.BinGainLog2,
		NRGainLog2:   &s.NR.BinGainLog2,
	})

	s.applySubbandGain()

	s.FBC.DoFreqShift(&st.FwdSyn)
	s.fwd.Synthesize(st.FwdSyn[:], st.FwdSynOut[:])

	s.outputAGC()
	for _, x := range st.Out {
		s.outDelay.Push(x)
	}

	s.blocks++
	return st.Out
}

func (s *System) applyInputGain(in *Block) {
	g := s.params.SYS.Persist.InpMicGain
	for i, x := range in {
		s.state.FwdAnaIn[i] = fixedpt.RoundSat24(fixedpt.MultLog2(x, g))
	}
}

func (s *System) forwardAnalysis() {
	st := &s.state
	s.fwd.Analyze(st.FwdAnaIn[:], st.FwdAna[:])
	if s.fwd.Config().Stacking == wola.StackingEven {
		st.FwdAna[0].Im = 0 // drop the packed Nyquist value
	}
	for b := range st.FwdAna {
		st.MicEnergy[b] = st.FwdAna[b].Energy()
	}
}

// reverseAnalysis analyses the output delayed by the bulk delay. The newest
// sample in the delay line is the last one of the previous block.
func (s *System) reverseAnalysis() {
	st := &s.state
	for i := range st.RevAnaIn {
		st.RevAnaIn[i] = s.outDelay.At(s.bulkDelay - 1 - i)
	}
	s.rev.Analyze(st.RevAnaIn[:], st.RevAna[:])
	if s.rev.Config().Stacking == wola.StackingEven {
		st.RevAna[0].Im = 0
	}
	s.revHist.Push(st.RevAna)
	for b := range st.RevAna {
		st.RevEnergy[b] = st.RevAna[b].Energy()
	}
}

// applySubbandGain combines the per-bin log2 gains, clamps the adaptive bins
// to the canceller's ceiling and applies the result to the error spectrum.
func (s *System) applySubbandGain() {
	st := &s.state
	p := s.params

	broadband := fixedpt.Accum(p.EQ.Profile.BroadbandGain) + fixedpt.Accum(p.SYS.Profile.VCGain) +
		fixedpt.Accum(p.SYS.Persist.FilterbankGain)
	limit := s.FBC.GainLimitActive()

	for b := 0; b < NumBins; b++ {
		g := fixedpt.RoundSat16(broadband +
			fixedpt.Accum(p.EQ.Persist.BinCal[b]) + fixedpt.Accum(p.EQ.Profile.Bin[b]) +
			fixedpt.Accum(s.WDRC.BinGainLog2[b]) + fixedpt.Accum(s.NR.BinGainLog2[b]))
		if limit && b >= fbc.FirstBin && b <= fbc.LastBin {
			g = fixedpt.Min16(g, s.FBC.GainLimLog2[b])
		}
		st.FwdGainLog2[b] = g
		st.FwdSyn[b] = fixedpt.Complex24{
			Re: fixedpt.RoundSat24(fixedpt.MultLog2(st.Error[b].Re, g)),
			Im: fixedpt.RoundSat24(fixedpt.MultLog2(st.Error[b].Im, g)),
		}
	}
}

// outputAGC tracks the output level per sample with separate attack and
// release coefficients and caps the output at the configured threshold.
func (s *System) outputAGC() {
	st := &s.state
	p := s.params

	for i, x := range st.FwdSynOut {
		level := fixedpt.Log2Approx(fixedpt.Accum(fixedpt.Abs24(x)))
		diff := fixedpt.RoundSat16(fixedpt.Accum(level) - fixedpt.Accum(st.AgcoLevelLog2))
		tc := p.SYS.Persist.AgcoRelTC
		if diff > 0 {
			tc = p.SYS.Persist.AgcoAtkTC
		}
		st.AgcoLevelLog2 = fixedpt.RoundSat16(fixedpt.Accum(fixedpt.MulRound16(tc, diff)) + fixedpt.Accum(st.AgcoLevelLog2))

		if fixedpt.Accum(st.AgcoLevelLog2)+fixedpt.Accum(p.SYS.Profile.AgcoGain) > fixedpt.Accum(p.SYS.Persist.AgcoThresh) {
			st.AgcoGainLog2 = fixedpt.RoundSat16(fixedpt.Accum(p.SYS.Persist.AgcoThresh) - fixedpt.Accum(st.AgcoLevelLog2))
		} else {
			st.AgcoGainLog2 = p.SYS.Profile.AgcoGain
		}

		g := fixedpt.RoundSat16(fixedpt.Accum(st.AgcoGainLog2) + fixedpt.Accum(p.SYS.Persist.OutpRcvrGain))
		st.Out[i] = fixedpt.RoundSat24(fixedpt.MultLog2(x, g))
	}
}
