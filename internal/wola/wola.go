// Package wola implements the weighted overlap-add filterbank that moves audio
// between 8-sample time blocks and 32 complex subbands.
//
// Analysis windows an LA-sample history, time-folds it to N samples, applies a
// block-dependent circular shift and takes an N-point DIT FFT. Synthesis runs
// the inverse: an N-point DIF inverse FFT, the matching unshift, replication
// across LS/N blocks, windowing and overlap-add.
package wola

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Filterbank dimensions for the hearing-aid chain
const (
	FFTSize   = 64                  // N - transform length
	BlockSize = 8                   // R - decimation, samples per block
	NumBins   = FFTSize / 2         // subbands kept after packing
	Oversamp  = FFTSize / BlockSize // OS - blocks per circular-shift period

	AnaPostscale = 1.0 / 32 // 2^-5 - analysis block-floating-point scale
	SynPrescale  = 32.0     // 2^5 - synthesis scale, undoes AnaPostscale
)

// ErrInvalidConfig is returned by New and DefaultWindows for unusable dimensions.
var ErrInvalidConfig = errors.New("invalid filterbank configuration")

// Stacking selects where subband centres fall.
type Stacking int

const (
	// StackingEven centres bin b on b·fs/N. Bin 0 carries DC in its real part
	// and the Nyquist value in its imaginary part.
	StackingEven Stacking = iota
	// StackingOdd centres bin b on (b+1/2)·fs/N.
	StackingOdd
)

func (s Stacking) String() string {
	if s == StackingOdd {
		return "odd"
	}
	return "even"
}

// Config describes one filterbank. Nil windows select DefaultWindows.
type Config struct {
	N        int // FFT size, power of two
	R        int // block size, divides N
	LA       int // analysis history length, multiple of N
	LS       int // synthesis accumulator length, multiple of N
	Stacking Stacking

	AnalysisWindow  []float64 // length LA
	SynthesisWindow []float64 // length LS
}

// DefaultConfig returns the system filterbank: N=64, R=8, LA=LS=64, even stacking.
func DefaultConfig() Config {
	return Config{
		N:        FFTSize,
		R:        BlockSize,
		LA:       FFTSize,
		LS:       FFTSize,
		Stacking: StackingEven,
	}
}

// phase tracks the block-dependent circular shift and, for odd stacking, the
// sign that flips each time the shift wraps.
type phase struct {
	shift int
	sign  float64
}

func (p *phase) advance(r, n int) {
	p.shift += r
	if p.shift >= n {
		p.shift -= n
		p.sign = -p.sign
	}
}

// Filterbank holds the analysis history and synthesis accumulator of one
// signal path. Analysis and synthesis keep separate shift counters so a
// filterbank used only for analysis stays aligned.
type Filterbank struct {
	cfg  Config
	plan *fftPlan
	mask int

	hist []float64 // LA samples, oldest first
	acc  []float64 // LS overlap-add accumulator, oldest first
	fold []float64 // N
	work []complex128

	// Half-bin rotations e^{-jπm/N} for m in [0, 2N)
	rot []complex128

	ana phase
	syn phase
}

// New validates cfg and returns a zeroed filterbank.
func New(cfg Config) (*Filterbank, error) {
	log2N, ok := log2Exact(cfg.N)
	if !ok {
		return nil, fmt.Errorf("%w: N=%d is not a power of two", ErrInvalidConfig, cfg.N)
	}
	if cfg.R <= 0 || cfg.N%cfg.R != 0 {
		return nil, fmt.Errorf("%w: R=%d must divide N=%d", ErrInvalidConfig, cfg.R, cfg.N)
	}
	if cfg.LA <= 0 || cfg.LA%cfg.N != 0 {
		return nil, fmt.Errorf("%w: LA=%d must be a positive multiple of N=%d", ErrInvalidConfig, cfg.LA, cfg.N)
	}
	if cfg.LS <= 0 || cfg.LS%cfg.N != 0 {
		return nil, fmt.Errorf("%w: LS=%d must be a positive multiple of N=%d", ErrInvalidConfig, cfg.LS, cfg.N)
	}
	if cfg.Stacking != StackingEven && cfg.Stacking != StackingOdd {
		return nil, fmt.Errorf("%w: unknown stacking %d", ErrInvalidConfig, cfg.Stacking)
	}

	if cfg.AnalysisWindow == nil || cfg.SynthesisWindow == nil {
		ana, syn, err := DefaultWindows(cfg.N, cfg.R, cfg.LA, cfg.LS)
		if err != nil {
			return nil, err
		}
		if cfg.AnalysisWindow == nil {
			cfg.AnalysisWindow = ana
		}
		if cfg.SynthesisWindow == nil {
			cfg.SynthesisWindow = syn
		}
	}
	if len(cfg.AnalysisWindow) != cfg.LA {
		return nil, fmt.Errorf("%w: analysis window has %d samples, want LA=%d", ErrInvalidConfig, len(cfg.AnalysisWindow), cfg.LA)
	}
	if len(cfg.SynthesisWindow) != cfg.LS {
		return nil, fmt.Errorf("%w: synthesis window has %d samples, want LS=%d", ErrInvalidConfig, len(cfg.SynthesisWindow), cfg.LS)
	}

	fb := &Filterbank{
		cfg:  cfg,
		plan: newPlan(log2N),
		mask: cfg.N - 1,
		hist: make([]float64, cfg.LA),
		acc:  make([]float64, cfg.LS),
		fold: make([]float64, cfg.N),
		work: make([]complex128, cfg.N),
		rot:  make([]complex128, 2*cfg.N),
	}
	for m := range fb.rot {
		fb.rot[m] = cmplx.Rect(1, -math.Pi*float64(m)/float64(cfg.N))
	}
	fb.Reset()
	return fb, nil
}

// Reset clears all history and restarts the shift counters.
func (fb *Filterbank) Reset() {
	clear(fb.hist)
	clear(fb.acc)
	fb.ana = phase{sign: 1}
	fb.syn = phase{sign: 1}
}

// Config returns the filterbank's configuration, windows included.
func (fb *Filterbank) Config() Config {
	return fb.cfg
}

// Bins returns the number of packed subbands, N/2.
func (fb *Filterbank) Bins() int {
	return fb.cfg.N / 2
}

// Delay returns the analysis-to-synthesis latency in samples for the default windows.
func (fb *Filterbank) Delay() int {
	return fb.cfg.LS - fb.cfg.R
}

// Analyze consumes R new samples and writes N/2 subband values to out.
func (fb *Filterbank) Analyze(in []fixedpt.Frac24, out []fixedpt.Complex24) {
	n, r, la := fb.cfg.N, fb.cfg.R, fb.cfg.LA

	copy(fb.hist, fb.hist[r:])
	for i := 0; i < r; i++ {
		fb.hist[la-r+i] = float64(in[i])
	}

	// Window and time-fold
	clear(fb.fold)
	win := fb.cfg.AnalysisWindow
	for i, x := range fb.hist {
		fb.fold[i&fb.mask] += x * win[i]
	}

	// Circular shift merged with bit-reversed addressing
	s := fb.ana.shift
	for k := 0; k < n; k++ {
		v := complex(fb.fold[k], 0)
		if fb.cfg.Stacking == StackingOdd {
			v *= fb.rot[s+k] * complex(fb.ana.sign, 0)
		}
		fb.work[fb.plan.bitrev[(s+k)&fb.mask]] = v
	}

	fb.plan.dit(fb.work, false)

	for b := 0; b < n/2; b++ {
		out[b] = fixedpt.FromComplex128(fb.work[b] * AnaPostscale)
	}
	if fb.cfg.Stacking == StackingEven {
		nyq := fixedpt.RoundSat24(fixedpt.Accum(real(fb.work[n/2]) * AnaPostscale))
		out[0].Im = nyq
	}

	fb.ana.advance(r, n)
}

// Synthesize consumes N/2 subband values and writes R output samples.
func (fb *Filterbank) Synthesize(in []fixedpt.Complex24, out []fixedpt.Frac24) {
	n, r, ls := fb.cfg.N, fb.cfg.R, fb.cfg.LS

	// Unpack to a full conjugate-symmetric spectrum
	if fb.cfg.Stacking == StackingEven {
		fb.work[0] = complex(float64(in[0].Re), 0)
		fb.work[n/2] = complex(float64(in[0].Im), 0)
		for b := 1; b < n/2; b++ {
			c := in[b].Complex128()
			fb.work[b] = c
			fb.work[n-b] = cmplx.Conj(c)
		}
	} else {
		for b := 0; b < n/2; b++ {
			c := in[b].Complex128()
			fb.work[b] = c
			fb.work[n-1-b] = cmplx.Conj(c)
		}
	}

	fb.plan.dif(fb.work, true, true)

	// Undo the circular shift; output of the DIF is bit-reversed
	s := fb.syn.shift
	for k := 0; k < n; k++ {
		v := fb.work[fb.plan.bitrev[(s+k)&fb.mask]]
		if fb.cfg.Stacking == StackingOdd {
			v *= cmplx.Conj(fb.rot[s+k]) * complex(fb.syn.sign, 0)
		}
		fb.fold[k] = float64(fixedpt.RoundSat24(fixedpt.Accum(real(v) * SynPrescale)))
	}

	// Replicate, window, overlap-add
	win := fb.cfg.SynthesisWindow
	for i := 0; i < ls; i++ {
		fb.acc[i] += fb.fold[i&fb.mask] * win[i]
	}

	for i := 0; i < r; i++ {
		out[i] = fixedpt.RoundSat24(fixedpt.Accum(fb.acc[i]))
	}
	copy(fb.acc, fb.acc[r:])
	clear(fb.acc[ls-r:])

	fb.syn.advance(r, n)
}

func log2Exact(n int) (int, bool) {
	if n < 2 || n&(n-1) != 0 {
		return 0, false
	}
	l := 0
	for 1<<l < n {
		l++
	}
	return l, true
}
