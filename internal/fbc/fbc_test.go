package fbc

import (
	"math"
	"testing"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/wdrc"
)

// constHistory returns the same spectrum at every delay.
type constHistory [NumBins]fixedpt.Complex24

func (h *constHistory) At(int) [NumBins]fixedpt.Complex24 { return *h }

// sliceHistory returns a different spectrum per delay, zero beyond its length.
type sliceHistory [][NumBins]fixedpt.Complex24

func (h sliceHistory) At(delay int) [NumBins]fixedpt.Complex24 {
	if delay < len(h) {
		return h[delay]
	}
	return [NumBins]fixedpt.Complex24{}
}

func newCanceller(p *config.Params) *Canceller {
	return New(p, wdrc.New(&p.WDRC))
}

func fill(v fixedpt.Complex24) (a [NumBins]fixedpt.Complex24) {
	for b := range a {
		a[b] = v
	}
	return a
}

func fill48(v fixedpt.Frac48) (a [NumBins]fixedpt.Frac48) {
	for b := range a {
		a[b] = v
	}
	return a
}

func zeroInputs(rev History) AdaptInputs {
	var errSig [NumBins]fixedpt.Complex24
	var wdrcGain, nrGain [NumBins]fixedpt.Frac16
	return AdaptInputs{Error: &errSig, Rev: rev, WDRCGainLog2: &wdrcGain, NRGainLog2: &nrGain}
}

func TestInitState(t *testing.T) {
	p := config.Default()
	c := newCanceller(p)

	if c.StartBin != FirstBin || c.EndBin != FirstBin+BinsPerCall-1 {
		t.Errorf("cursor = [%d, %d], want [%d, %d]", c.StartBin, c.EndBin, FirstBin, FirstBin+BinsPerCall-1)
	}
	if want := (p.FBC.Persist.LeakFast + p.FBC.Persist.LeakSlow) >> 1; c.IntermLeak != want {
		t.Errorf("IntermLeak = %d, want %d", c.IntermLeak, want)
	}
	if c.Sinusoid[0] != (fixedpt.Complex24{Re: fixedpt.MaxVal24}) {
		t.Errorf("Sinusoid[0] = %v, want (max, 0)", c.Sinusoid[0])
	}
	for b := 0; b < NumBins; b++ {
		if c.CoefMag[b] != InitialCoefMag {
			t.Errorf("CoefMag[%d] = %v, want %v", b, c.CoefMag[b], InitialCoefMag)
		}
		wantShift := 0
		if b >= FirstBin {
			wantShift = p.FBC.Profile.ActiveShift
		}
		if c.AdaptShift[b] != wantShift {
			t.Errorf("AdaptShift[%d] = %d, want %d", b, c.AdaptShift[b], wantShift)
		}
	}

	// Target gain is the broadband gain plus the channel's maximum compression gain
	comp := wdrc.New(&p.WDRC)
	for b := 0; b < NumBins; b++ {
		want := comp.MaxCompressionGain(wdrc.ChannelOf(b))
		if c.TargetGainLog2[b] != want {
			t.Errorf("TargetGainLog2[%d] = %v, want %v", b, c.TargetGainLog2[b], want)
		}
	}
}

func TestInitTargetIncludesBroadbandGain(t *testing.T) {
	tests := []struct {
		name       string
		micGain    fixedpt.Frac16
		agcoGain   fixedpt.Frac16
		saturating bool
	}{
		{"positive_gains", 1.5, 0.75, false},
		{"mixed_sign", 2, -3.25, false},
		{"saturates", 100, 60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			p.SYS.Persist.InpMicGain = tt.micGain
			p.SYS.Profile.AgcoGain = tt.agcoGain
			comp := wdrc.New(&p.WDRC)
			c := New(p, comp)

			for b := 0; b < NumBins; b++ {
				maxComp := comp.MaxCompressionGain(wdrc.ChannelOf(b))
				want := fixedpt.RoundSat16(fixedpt.Accum(tt.micGain) + fixedpt.Accum(tt.agcoGain) + fixedpt.Accum(maxComp))
				if tt.saturating {
					want = fixedpt.MaxVal16
				}
				if c.TargetGainLog2[b] != want {
					t.Errorf("TargetGainLog2[%d] = %v, want %v", b, c.TargetGainLog2[b], want)
				}
			}
		})
	}
}

func TestAdaptationCursorFairness(t *testing.T) {
	p := config.Default()
	c := newCanceller(p)
	var rev constHistory

	visits := make([]int, NumBins)
	calls := (LastBin - FirstBin + BinsPerCall) / BinsPerCall
	for i := 0; i < calls; i++ {
		for b := c.StartBin; b <= c.EndBin; b++ {
			visits[b]++
		}
		c.FilterAdaptation(zeroInputs(&rev))
	}

	for b, n := range visits {
		want := 1
		if b < FirstBin {
			want = 0
		}
		if n != want {
			t.Errorf("bin %d visited %d times in %d calls, want %d", b, n, calls, want)
		}
	}
	if c.StartBin != FirstBin || c.EndBin != FirstBin+BinsPerCall-1 {
		t.Errorf("cursor after %d calls = [%d, %d], want the initial range", calls, c.StartBin, c.EndBin)
	}
}

func TestDisabledClearsCoefficients(t *testing.T) {
	p := config.Default()
	c := newCanceller(p)
	for b := range c.Coeffs {
		c.Coeffs[b][0] = fixedpt.C24(0.1, -0.1)
		c.GainLimLog2[b] = -3
	}
	start, end := c.StartBin, c.EndBin

	p.FBC.Profile.Enable = false
	var rev constHistory
	c.FilterAdaptation(zeroInputs(&rev))

	for b := 0; b < NumBins; b++ {
		if c.GainLimLog2[b] != 0 {
			t.Errorf("GainLimLog2[%d] = %v with FBC disabled, want 0", b, c.GainLimLog2[b])
		}
		for tap, v := range c.Coeffs[b] {
			if v != (fixedpt.Complex24{}) {
				t.Errorf("Coeffs[%d][%d] = %v with FBC disabled, want 0", b, tap, v)
			}
		}
	}
	if c.StartBin != start || c.EndBin != end {
		t.Errorf("cursor moved while disabled")
	}
	if c.GainLimitActive() {
		t.Error("GainLimitActive() = true with FBC disabled")
	}
}

func TestDoFilteringConvolvesHistory(t *testing.T) {
	p := config.Default()
	p.FBC.Persist.CoeffSpacing = 2
	c := newCanceller(p)

	hist := make(sliceHistory, c.HistoryDepth())
	for d := range hist {
		hist[d] = fill(fixedpt.C24(0.01*float64(d+1), -0.02*float64(d)))
	}

	const bin = 9
	c.Coeffs[bin] = [CoeffsPerBin]fixedpt.Complex24{
		fixedpt.C24(0.5, 0),
		fixedpt.C24(0, 0.25),
		fixedpt.C24(-0.125, 0.125),
		fixedpt.C24(0.0625, -0.5),
	}
	c.DoFiltering(hist)

	var want complex128
	for tap := 0; tap < CoeffsPerBin; tap++ {
		want += hist[tap*2][bin].Complex128() * c.Coeffs[bin][tap].Complex128()
	}
	got := c.FiltSig[bin].Complex128()
	if math.Abs(real(got-want)) > 1e-12 || math.Abs(imag(got-want)) > 1e-12 {
		t.Errorf("FiltSig[%d] = %v, want %v", bin, got, want)
	}
	for b := 0; b < NumBins; b++ {
		if b != bin && c.FiltSig[b] != (fixedpt.Complex24{}) {
			t.Errorf("FiltSig[%d] = %v, want 0 for an all-zero bank", b, c.FiltSig[b])
		}
	}
}

func TestAdaptationStep(t *testing.T) {
	p := config.Default()
	c := newCanceller(p)

	b := fixedpt.C24(0.01, 0.02)
	e := fixedpt.C24(0.02, -0.01)
	rev := constHistory(fill(b))
	errSig := fill(e)

	mic := fill48(0.001)
	errE := fill48(e.Energy())
	revE := fill48(b.Energy())
	c.Levels(&mic, &errE, &revE)

	in := zeroInputs(&rev)
	in.Error = &errSig
	c.FilterAdaptation(in)

	// BE = 0.001 → log2int -10; target ≈ 2.66 above dyn → adj 4
	const bin = FirstBin
	wantMu := p.FBC.Profile.ActiveShift + MaxGainMuAdj + p.FBC.Persist.MuOffset[bin] - 10
	if c.AdaptShift[bin] != wantMu {
		t.Fatalf("AdaptShift = %d, want %d", c.AdaptShift[bin], wantMu)
	}

	// B·conj(E) = 0.0005j, scaled by 2^-mu from zero coefficients
	wantCoef := complex(0, 0.0005*math.Exp2(float64(-wantMu)))
	for tap := 0; tap < CoeffsPerBin; tap++ {
		got := c.Coeffs[bin][tap].Complex128()
		if math.Abs(real(got-wantCoef)) > 1e-12 || math.Abs(imag(got-wantCoef)) > 1e-12 {
			t.Errorf("Coeffs[%d][%d] = %v, want %v", bin, tap, got, wantCoef)
		}
	}

	sum := 4 * imag(wantCoef)
	wantMag := math.Log2(sum*sum) / 2
	if d := math.Abs(float64(c.CoefMag[bin]) - wantMag); d > 1e-9 {
		t.Errorf("CoefMag = %v, want %v", c.CoefMag[bin], wantMag)
	}

	wantLim := float64(p.FBC.Profile.GainLimitMax) - wantMag - float64(p.SYS.Persist.OutpRcvrGain) -
		float64(p.EQ.Profile.BroadbandGain) - float64(p.SYS.Profile.VCGain) - float64(ReserveGain)
	if d := math.Abs(float64(c.GainLimLog2[bin]) - wantLim); d > 1e-9 {
		t.Errorf("GainLimLog2 = %v, want %v", c.GainLimLog2[bin], wantLim)
	}

	// Bins outside the cursor keep their initial state
	if c.Coeffs[FirstBin+BinsPerCall][0] != (fixedpt.Complex24{}) {
		t.Error("bin beyond the cursor adapted")
	}
}

func TestAdaptationStepNormFloor(t *testing.T) {
	tests := []struct {
		name     string
		be       fixedpt.Frac48
		wantNorm int
	}{
		{"tiny_energy_floored", 1e-9, MuNormBias},
		{"zero_energy_floored", 0, MuNormBias},
		{"at_floor", fixedpt.Frac48(math.Exp2(MuNormBias)), MuNormBias},
		{"above_floor", 1e-3, -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			c := newCanceller(p)
			c.BESmoothed = fill48(tt.be)

			rev := constHistory(fill(fixedpt.C24(1e-4, 0)))
			errSig := fill(fixedpt.C24(0, 1e-4))
			in := zeroInputs(&rev)
			in.Error = &errSig
			c.FilterAdaptation(in)

			for b := FirstBin; b < FirstBin+BinsPerCall; b++ {
				adj := gainMuAdj(c.TargetGainLog2[b], 0)
				wantMu := p.FBC.Profile.ActiveShift + adj + p.FBC.Persist.MuOffset[b] + tt.wantNorm
				if c.AdaptShift[b] != wantMu {
					t.Errorf("AdaptShift[%d] = %d, want %d", b, c.AdaptShift[b], wantMu)
				}

				// B·conj(E) = -1e-8j, scaled by 2^-mu from zero coefficients
				want := -1e-8 * math.Exp2(float64(-wantMu))
				if got := c.Coeffs[b][0].Complex128(); math.Abs(real(got)) > 1e-15 || math.Abs(imag(got)-want) > 1e-12 {
					t.Errorf("Coeffs[%d][0] = %v, want %vj", b, got, want)
				}
			}
		})
	}
}

func TestLeakageWithoutError(t *testing.T) {
	tests := []struct {
		name     string
		mic, err fixedpt.Frac48
		leak     func(p *config.Params, c *Canceller) int
	}{
		{"error_dominates_fast", 0.001, 0.004, func(p *config.Params, _ *Canceller) int { return p.FBC.Persist.LeakFast }},
		{"error_double_interm", 0.001, 0.002, func(_ *config.Params, c *Canceller) int { return c.IntermLeak }},
		{"quiet_error_slow", 0.001, 0.0005, func(p *config.Params, _ *Canceller) int { return p.FBC.Persist.LeakSlow }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			c := newCanceller(p)
			const bin = 8
			start := fixedpt.C24(0.5, -0.25)
			c.Coeffs[bin][2] = start

			mic, errE, revE := fill48(tt.mic), fill48(tt.err), fill48(0)
			c.Levels(&mic, &errE, &revE)

			var rev constHistory
			c.FilterAdaptation(zeroInputs(&rev))

			k := 1 - math.Exp2(-float64(tt.leak(p, c)))
			want := complex(0.5*k, -0.25*k)
			if got := c.Coeffs[bin][2].Complex128(); got != want {
				t.Errorf("leaked coefficient = %v, want %v", got, want)
			}
		})
	}
}

func TestGainLimitDisabledLeavesUnity(t *testing.T) {
	p := config.Default()
	p.FBC.Profile.GainLimitEnable = false
	c := newCanceller(p)

	rev := constHistory(fill(fixedpt.C24(0.1, 0.1)))
	in := zeroInputs(&rev)
	errSig := fill(fixedpt.C24(0.1, -0.1))
	in.Error = &errSig
	for i := 0; i < 3; i++ {
		c.FilterAdaptation(in)
	}
	for b, g := range c.GainLimLog2 {
		if g != 0 {
			t.Errorf("GainLimLog2[%d] = %v with gain limiting off, want 0", b, g)
		}
	}
	if c.GainLimitActive() {
		t.Error("GainLimitActive() = true with gain limiting off")
	}
}

func TestGainMuAdj(t *testing.T) {
	tests := []struct {
		target, dyn fixedpt.Frac16
		want        int
	}{
		{0, 0, 0},
		{0, 1, 0},
		{1, 0, 2},
		{1.2, 0, 2},
		{0.5, 0.25, 0},
		{10, 0, MaxGainMuAdj},
	}
	for _, tt := range tests {
		if got := gainMuAdj(tt.target, tt.dyn); got != tt.want {
			t.Errorf("gainMuAdj(%v, %v) = %d, want %d", tt.target, tt.dyn, got, tt.want)
		}
	}
}

func TestFreqShiftOscillator(t *testing.T) {
	p := config.Default()
	p.FBC.Profile.FreqShStartBin = 4
	p.FBC.Profile.FreqShEndBin = 10
	c := newCanceller(p)

	omega := 2 * math.Pi * 10.0 / config.SubbandRate
	one := fixedpt.C24(0.5, 0)
	for n := 0; n < 300; n++ {
		syn := fill(one)
		c.DoFreqShift(&syn)

		want := 0.5 * complex(math.Cos(omega*float64(n)), math.Sin(omega*float64(n)))
		got := syn[7].Complex128()
		if math.Abs(real(got-want)) > 1e-4 || math.Abs(imag(got-want)) > 1e-4 {
			t.Fatalf("block %d: shifted bin = %v, want %v", n, got, want)
		}
		if syn[3] != one || syn[11] != one {
			t.Fatalf("block %d: bins outside the shift range changed", n)
		}
	}
}

func TestFreqShiftInactiveRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
	}{
		{"default_empty", 0, -1},
		{"negative_start", -1, 4},
		{"end_past_last_bin", 3, NumBins},
		{"reversed", 9, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			p.FBC.Profile.FreqShStartBin = tt.start
			p.FBC.Profile.FreqShEndBin = tt.end
			c := newCanceller(p)
			before := c.Sinusoid

			syn := fill(fixedpt.C24(0.25, -0.25))
			orig := syn
			c.DoFreqShift(&syn)

			if syn != orig {
				t.Error("spectrum changed with an inactive shift range")
			}
			if c.Sinusoid != before {
				t.Error("oscillator advanced with an inactive shift range")
			}
		})
	}
}

func TestFreqShiftIndependentOfEnable(t *testing.T) {
	p := config.Default()
	p.FBC.Profile.Enable = false
	p.FBC.Profile.FreqShStartBin = 0
	p.FBC.Profile.FreqShEndBin = NumBins - 1
	c := newCanceller(p)

	syn := fill(fixedpt.C24(0.25, 0))
	c.DoFreqShift(&syn)
	c.DoFreqShift(&syn)
	if syn[0] == fixedpt.C24(0.25, 0) {
		t.Error("frequency shift skipped while the canceller is disabled")
	}
}
