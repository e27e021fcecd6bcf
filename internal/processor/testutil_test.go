package processor

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/hearmodel/internal/audio"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// TestAudioOptions configures the synthetic audio to generate
type TestAudioOptions struct {
	DurationSecs float64 // Total duration in seconds
	Samples      int     // Exact length; overrides DurationSecs when set
	ToneFreq     float64 // Sine wave frequency in Hz (0 = no tone)
	ToneLevel    float64 // Tone level in dBFS (e.g., -23.0)
	NoiseLevel   float64 // White noise level in dBFS (0 = no noise, -60 = quiet noise)
	SilenceGap   struct {
		Start    float64 // Start time of silence gap in seconds
		Duration float64 // Duration of silence gap in seconds
	}
}

// generateSamples renders the synthetic signal at the model rate.
func generateSamples(opts TestAudioOptions) []fixedpt.Frac24 {
	rate := float64(audio.SampleRate)
	if opts.DurationSecs == 0 {
		opts.DurationSecs = 1.0
	}
	totalSamples := opts.Samples
	if totalSamples == 0 {
		totalSamples = int(opts.DurationSecs * rate)
	}

	toneAmp := 0.0
	if opts.ToneFreq > 0 && opts.ToneLevel < 0 {
		toneAmp = math.Pow(10.0, opts.ToneLevel/20.0)
	}
	noiseAmp := 0.0
	if opts.NoiseLevel < 0 {
		noiseAmp = math.Pow(10.0, opts.NoiseLevel/20.0)
	}

	silenceStart := int(opts.SilenceGap.Start * rate)
	silenceEnd := int((opts.SilenceGap.Start + opts.SilenceGap.Duration) * rate)

	// Simple LCG for deterministic noise
	rngState := uint32(12345)
	nextRandom := func() float64 {
		rngState = rngState*1664525 + 1013904223
		return (float64(rngState)/float64(0xFFFFFFFF))*2.0 - 1.0
	}

	samples := make([]fixedpt.Frac24, totalSamples)
	for i := range samples {
		if i >= silenceStart && i < silenceEnd && opts.SilenceGap.Duration > 0 {
			continue
		}

		var sample float64
		if toneAmp > 0 {
			sample += toneAmp * math.Sin(2.0*math.Pi*opts.ToneFreq*float64(i)/rate)
		}
		if noiseAmp > 0 {
			sample += noiseAmp * nextRandom()
		}
		// Quantise to what a 24-bit file holds
		samples[i] = audio.ToFrac24(audio.FromFrac24(fixedpt.RoundSat24(fixedpt.Accum(sample))))
	}
	return samples
}

// generateTestAudio writes a synthetic 24-bit mono WAV at 24 kHz into a
// per-test directory and returns its path.
func generateTestAudio(t *testing.T, opts TestAudioOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stimulus.wav")
	if err := audio.WriteFile(path, generateSamples(opts)); err != nil {
		t.Fatalf("failed to write WAV file: %v", err)
	}
	return path
}
