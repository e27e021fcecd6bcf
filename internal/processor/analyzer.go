package processor

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/logging"
	"github.com/linuxmatters/hearmodel/internal/mains"
)

// Spectral analysis frame
const (
	AnalysisFrame  = 512  // samples per FFT frame, ~21 ms at 24 kHz
	RolloffPercent = 0.85 // energy fraction for spectral rolloff
	fullScaleLevel = 0.999
)

// Analyzer accumulates whole-file level and long-term spectrum statistics
// one sample slice at a time. Frames are non-overlapping and Hann-windowed;
// a trailing partial frame is ignored by the spectrum but counted in level.
type Analyzer struct {
	sampleRate float64

	peak      float64
	sumSq     float64
	samples   int64
	fullScale int

	fft    *fourier.FFT
	frame  []float64
	filled int
	coeffs []complex128
	power  []float64 // summed power per FFT bin
	frames int

	hum *mains.HumMeter
}

// NewAnalyzer returns an Analyzer for signals at sampleRate. Hum is measured
// at mainsHz, or at the local mains frequency when mainsHz is zero.
func NewAnalyzer(sampleRate, mainsHz int) *Analyzer {
	return &Analyzer{
		hum:        mains.NewHumMeter(mainsHz, sampleRate),
		sampleRate: float64(sampleRate),
		fft:        fourier.NewFFT(AnalysisFrame),
		frame:      make([]float64, AnalysisFrame),
		power:      make([]float64, AnalysisFrame/2+1),
	}
}

// Add accumulates samples.
func (a *Analyzer) Add(samples []fixedpt.Frac24) {
	a.hum.Add(samples)
	for _, s := range samples {
		v := float64(s)
		abs := math.Abs(v)
		a.peak = math.Max(a.peak, abs)
		a.sumSq += v * v
		a.samples++
		if abs >= fullScaleLevel {
			a.fullScale++
		}

		a.frame[a.filled] = v
		a.filled++
		if a.filled == AnalysisFrame {
			a.accumulateFrame()
			a.filled = 0
		}
	}
}

func (a *Analyzer) accumulateFrame() {
	window.Hann(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)
	for i, c := range a.coeffs {
		re, im := real(c), imag(c)
		a.power[i] += re*re + im*im
	}
	a.frames++
}

// Level returns the RMS level in dBFS of everything added so far.
func (a *Analyzer) Level() float64 {
	if a.samples == 0 || a.sumSq == 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(a.sumSq/float64(a.samples))
}

// Stats returns the summary. Spectral fields are NaN until one full frame
// has been seen, and for digital silence.
func (a *Analyzer) Stats() logging.SignalStats {
	stats := logging.SignalStats{
		Peak:      a.peak,
		RMSDB:     a.Level(),
		Centroid:  math.NaN(),
		Rolloff:   math.NaN(),
		Flatness:  math.NaN(),
		FullScale: a.fullScale,
		MainsHz:   a.hum.Hz(),
		HumDB:     a.hum.RatioDB(),
	}
	if a.frames == 0 {
		return stats
	}

	// DC is excluded from every spectral measure
	var total, weighted, logSum float64
	for i := 1; i < len(a.power); i++ {
		p := a.power[i]
		total += p
		weighted += p * a.binHz(i)
		logSum += math.Log(p + 1e-30)
	}
	if total == 0 {
		return stats
	}
	n := float64(len(a.power) - 1)

	stats.Centroid = weighted / total
	stats.Flatness = math.Exp(logSum/n) / (total / n)

	target := RolloffPercent * total
	var cum float64
	for i := 1; i < len(a.power); i++ {
		cum += a.power[i]
		if cum >= target {
			stats.Rolloff = a.binHz(i)
			break
		}
	}
	return stats
}

func (a *Analyzer) binHz(i int) float64 {
	return a.fft.Freq(i) * a.sampleRate
}
