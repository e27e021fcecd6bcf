package wola

import (
	"fmt"
	"math"
)

// DefaultWindows returns the analysis and synthesis windows used when a
// Config leaves them nil.
//
// Both are a periodic square-root Hann of length n scaled so that their product,
// summed over hops of r, is exactly one. That cancels the AnaPostscale and
// SynPrescale pair and the 1/N carried by the scaled inverse transform. For the
// system's 8x oversampling the scale is 1/2. The analysis window sits at
// [la-ls, la-ls+n) of its la-length buffer and the synthesis window at [0, n)
// of its ls-length buffer, giving a round-trip delay of ls-r samples.
func DefaultWindows(n, r, la, ls int) (ana, syn []float64, err error) {
	if la < ls {
		return nil, nil, fmt.Errorf("%w: default windows need LA >= LS (LA=%d, LS=%d)", ErrInvalidConfig, la, ls)
	}
	if n <= 0 || la%n != 0 || ls%n != 0 {
		return nil, nil, fmt.Errorf("%w: LA=%d and LS=%d must be multiples of N=%d", ErrInvalidConfig, la, ls, n)
	}
	if r <= 0 || n%r != 0 || r > n/2 {
		return nil, nil, fmt.Errorf("%w: default windows need R dividing N with R <= N/2 (N=%d, R=%d)", ErrInvalidConfig, n, r)
	}

	// Periodic Hann sums to n/(2r) over hops of r
	scale := math.Sqrt(2 * float64(r) / float64(n))

	ana = make([]float64, la)
	syn = make([]float64, ls)
	off := la - ls
	for i := 0; i < n; i++ {
		hann := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
		w := scale * math.Sqrt(hann)
		ana[off+i] = w
		syn[i] = w
	}
	return ana, syn, nil
}
