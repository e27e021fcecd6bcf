package wola

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

func TestBitReverseTable(t *testing.T) {
	got := BitReverseTable(3)
	want := []int{0, 4, 2, 6, 1, 5, 3, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BitReverseTable(3) = %v, want %v", got, want)
		}
	}

	// Involution for the filterbank size
	table := BitReverseTable(6)
	for i, r := range table {
		if table[r] != i {
			t.Errorf("bitrev(bitrev(%d)) = %d", i, table[r])
		}
	}
}

func complexNoise(n int, seed uint32) []complex128 {
	next := noiseSource(seed, 1)
	x := make([]complex128, n)
	for i := range x {
		x[i] = complex(next(), next())
	}
	return x
}

func TestFFTDITMatchesReference(t *testing.T) {
	const log2N = 6
	n := 1 << log2N
	x := complexNoise(n, 7)
	ref := fourier.NewCmplxFFT(n).Coefficients(nil, x)

	bitrev := BitReverseTable(log2N)
	buf := make([]complex128, n)
	for i := range x {
		buf[bitrev[i]] = x[i]
	}
	FFTDIT(buf, log2N, false)

	for k := range ref {
		if cmplx.Abs(buf[k]-ref[k]) > 1e-9 {
			t.Errorf("DIT bin %d = %v, want %v", k, buf[k], ref[k])
		}
	}
}

func TestFFTDIFInverseMatchesReference(t *testing.T) {
	const log2N = 6
	n := 1 << log2N
	x := complexNoise(n, 99)

	// Unscaled inverse DFT via conj(DFT(conj(x)))
	conjX := make([]complex128, n)
	for i := range x {
		conjX[i] = cmplx.Conj(x[i])
	}
	ref := fourier.NewCmplxFFT(n).Coefficients(nil, conjX)
	for i := range ref {
		ref[i] = cmplx.Conj(ref[i]) / complex(float64(n), 0)
	}

	buf := append([]complex128(nil), x...)
	FFTDIF(buf, log2N, true, true)

	bitrev := BitReverseTable(log2N)
	for k := range ref {
		got := buf[bitrev[k]]
		if cmplx.Abs(got-ref[k]) > 1e-12 {
			t.Errorf("scaled inverse DIF sample %d = %v, want %v", k, got, ref[k])
		}
	}
}

func TestFFTDITDIFRoundTrip(t *testing.T) {
	const log2N = 5
	n := 1 << log2N
	x := complexNoise(n, 3)

	// DIF forward leaves bit-reversed order, which DIT inverse consumes
	buf := append([]complex128(nil), x...)
	FFTDIF(buf, log2N, false, false)
	FFTDIT(buf, log2N, true)

	for i := range x {
		got := buf[i] / complex(float64(n), 0)
		if cmplx.Abs(got-x[i]) > 1e-12 {
			t.Errorf("sample %d = %v, want %v", i, got, x[i])
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"n_not_power_of_two", Config{N: 48, R: 8, LA: 48, LS: 48}},
		{"r_does_not_divide_n", Config{N: 64, R: 7, LA: 64, LS: 64}},
		{"la_not_multiple", Config{N: 64, R: 8, LA: 100, LS: 64}},
		{"ls_zero", Config{N: 64, R: 8, LA: 64, LS: 0}},
		{"la_less_than_ls_default_windows", Config{N: 64, R: 8, LA: 64, LS: 128}},
		{"short_analysis_window", Config{N: 64, R: 8, LA: 64, LS: 64,
			AnalysisWindow: make([]float64, 32), SynthesisWindow: make([]float64, 64)}},
		{"bad_stacking", Config{N: 64, R: 8, LA: 64, LS: 64, Stacking: Stacking(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New(%+v) error = %v, want ErrInvalidConfig", tt.cfg, err)
			}
		})
	}
}

func TestDefaultWindowsUnityOverlap(t *testing.T) {
	ana, syn, err := DefaultWindows(FFTSize, BlockSize, FFTSize, FFTSize)
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < BlockSize; n++ {
		sum := 0.0
		for p := n; p < FFTSize; p += BlockSize {
			sum += ana[p] * syn[p]
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("overlap sum at phase %d = %v, want 1", n, sum)
		}
	}
	for i, w := range ana {
		if w > float64(fixedpt.MaxVal24) || w < 0 {
			t.Errorf("window sample %d = %v out of range", i, w)
		}
	}
}

func TestZeroRoundTrip(t *testing.T) {
	for _, stacking := range []Stacking{StackingEven, StackingOdd} {
		t.Run(stacking.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Stacking = stacking
			fb, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}

			in := make([]fixedpt.Frac24, BlockSize)
			bins := make([]fixedpt.Complex24, NumBins)
			out := make([]fixedpt.Frac24, BlockSize)
			for blk := 0; blk < 50; blk++ {
				fb.Analyze(in, bins)
				for b, c := range bins {
					if c != (fixedpt.Complex24{}) {
						t.Fatalf("block %d bin %d = %v, want 0", blk, b, c)
					}
				}
				fb.Synthesize(bins, out)
				for i, y := range out {
					if y != 0 {
						t.Fatalf("block %d sample %d = %v, want 0", blk, i, y)
					}
				}
			}
		})
	}
}

func TestPerfectReconstruction(t *testing.T) {
	tests := []struct {
		name     string
		stacking Stacking
		la, ls   int
	}{
		{"even", StackingEven, 64, 64},
		{"odd", StackingOdd, 64, 64},
		{"even_long_analysis", StackingEven, 128, 64},
		{"odd_long_both", StackingOdd, 128, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Stacking = tt.stacking
			cfg.LA, cfg.LS = tt.la, tt.ls
			fb, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}

			x := noiseSignal(BlockSize*400, 12345, 0.5)
			y := roundTrip(fb, x)

			delay := fb.Delay()
			if delay != tt.ls-BlockSize {
				t.Fatalf("Delay() = %d, want %d", delay, tt.ls-BlockSize)
			}
			maxErr := 0.0
			for i := delay; i < len(x); i++ {
				e := math.Abs(float64(y[i]) - float64(x[i-delay]))
				maxErr = math.Max(maxErr, e)
			}
			if maxErr > 1e-9 {
				t.Errorf("max reconstruction error = %g, want < 1e-9", maxErr)
			}
		})
	}
}

// Analysis with LA=N equals a postscaled DFT of the windowed history,
// rotated by the block's circular shift.
func TestAnalysisMatchesReferenceDFT(t *testing.T) {
	fb, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	win := fb.Config().AnalysisWindow

	x := noiseSignal(BlockSize*20, 42, 0.9)
	hist := make([]float64, FFTSize)
	bins := make([]fixedpt.Complex24, NumBins)
	fft := fourier.NewFFT(FFTSize)
	seq := make([]float64, FFTSize)

	for blk := 0; blk*BlockSize < len(x); blk++ {
		copy(hist, hist[BlockSize:])
		for i := 0; i < BlockSize; i++ {
			hist[FFTSize-BlockSize+i] = float64(x[blk*BlockSize+i])
		}
		shift := (blk * BlockSize) % FFTSize
		for k := range hist {
			seq[(shift+k)%FFTSize] = hist[k] * win[k]
		}
		ref := fft.Coefficients(nil, seq)

		fb.Analyze(x[blk*BlockSize:(blk+1)*BlockSize], bins)

		if d := math.Abs(float64(bins[0].Re) - real(ref[0])*AnaPostscale); d > 1e-9 {
			t.Errorf("block %d DC differs by %g", blk, d)
		}
		if d := math.Abs(float64(bins[0].Im) - real(ref[FFTSize/2])*AnaPostscale); d > 1e-9 {
			t.Errorf("block %d Nyquist differs by %g", blk, d)
		}
		for b := 1; b < NumBins; b++ {
			want := ref[b] * AnaPostscale
			if d := cmplx.Abs(bins[b].Complex128() - want); d > 1e-9 {
				t.Errorf("block %d bin %d = %v, want %v", blk, b, bins[b], want)
			}
		}
	}
}

func TestOddStackingToneLandsInBin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stacking = StackingOdd
	fb, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Centre of odd-stacked bin 5
	freq := 5.5 * 24000.0 / FFTSize
	x := toneSignal(BlockSize*64, freq, 0.5)
	bins := make([]fixedpt.Complex24, NumBins)
	for blk := 0; blk < 64; blk++ {
		fb.Analyze(x[blk*BlockSize:(blk+1)*BlockSize], bins)
	}

	peak := 0
	for b := range bins {
		if bins[b].Energy() > bins[peak].Energy() {
			peak = b
		}
	}
	if peak != 5 {
		t.Errorf("peak bin = %d, want 5", peak)
	}
}

func TestAnalysisSaturatesNothingAtFullScale(t *testing.T) {
	fb, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	in := make([]fixedpt.Frac24, BlockSize)
	for i := range in {
		in[i] = fixedpt.MaxVal24
	}
	bins := make([]fixedpt.Complex24, NumBins)
	for blk := 0; blk < Oversamp*2; blk++ {
		fb.Analyze(in, bins)
	}
	if bins[0].Re >= fixedpt.MaxVal24 {
		t.Errorf("DC bin saturated at full-scale input: %v", bins[0].Re)
	}
}
