// Package feedback emulates the acoustic path from receiver back to
// microphone so the canceller has something to cancel. Two FIR responses are
// cross-faded at a configured time to model a sudden change in the path.
package feedback

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/ring"
)

// Simulation constants
const (
	Taps           = 128 // FIR length, power of two
	TransitionSecs = 0.1 // FIR1 to FIR2 cross-fade duration

	transitionSamples = TransitionSecs * config.BasebandRate
)

// ErrMalformed is returned when a FIR file is short or holds a non-number.
var ErrMalformed = errors.New("malformed feedback FIR file")

// FIRSpec is the content of a feedback simulation file.
type FIRSpec struct {
	StartSecs float64 // cross-fade start time
	FIR1      [Taps]float64
	FIR2      [Taps]float64
}

// LoadFIRFile reads whitespace-separated numbers: the start time in seconds,
// then FIR1's taps, then FIR2's taps.
func LoadFIRFile(path string) (*FIRSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)

	vals := make([]float64, 0, 1+2*Taps)
	for len(vals) < cap(vals) && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %w", ErrMalformed, len(vals), err)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback file: %w", err)
	}
	if len(vals) < cap(vals) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrMalformed, len(vals), cap(vals))
	}

	spec := &FIRSpec{StartSecs: vals[0]}
	copy(spec.FIR1[:], vals[1:1+Taps])
	copy(spec.FIR2[:], vals[1+Taps:])
	return spec, nil
}

// Path is a running feedback simulation.
type Path struct {
	spec            FIRSpec
	out             *ring.Ring[float64]
	sample          int64
	transitionStart int64
	transitionEnd   int64
}

// New returns a path for spec. A nil spec gives zero responses and a
// cross-fade that is never reached.
func New(spec *FIRSpec) *Path {
	p := &Path{out: ring.NewAtLeast[float64](Taps)}
	if spec == nil {
		p.transitionStart = math.MaxInt64
		p.transitionEnd = math.MaxInt64
		return p
	}
	p.spec = *spec
	p.transitionStart = int64(spec.StartSecs * config.BasebandRate)
	p.transitionEnd = p.transitionStart + int64(transitionSamples)
	return p
}

// Active reports whether the path has non-zero taps.
func (p *Path) Active() bool {
	return p.spec.FIR1 != [Taps]float64{} || p.spec.FIR2 != [Taps]float64{}
}

// Apply adds the feedback of prevOut (the output block emitted before in) to
// in, sample by sample, saturating to the Frac24 range.
func (p *Path) Apply(in, prevOut []fixedpt.Frac24) {
	for i := range in {
		p.out.Push(float64(prevOut[i]))

		var f1, f2 float64
		for tap := 0; tap < Taps; tap++ {
			y := p.out.At(tap)
			f1 += p.spec.FIR1[tap] * y
			f2 += p.spec.FIR2[tap] * y
		}

		s1 := p.weight()
		fb := f1*s1 + f2*(1-s1)
		in[i] = fixedpt.RoundSat24(fixedpt.Accum(float64(in[i]) + fb))

		p.sample++
	}
}

// weight returns FIR1's share: 1 before the transition, a linear ramp down
// across it and 0 after.
func (p *Path) weight() float64 {
	switch {
	case p.sample < p.transitionStart:
		return 1
	case p.sample < p.transitionEnd:
		return math.Max(0, 1-float64(p.sample-p.transitionStart)/transitionSamples)
	}
	return 0
}
