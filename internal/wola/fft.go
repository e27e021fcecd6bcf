package wola

import "math"

// fftPlan holds the bit-reversal table and twiddles for one transform size.
type fftPlan struct {
	n      int
	log2n  int
	bitrev []int
	tw     []complex128 // forward twiddles W^q = cos(2πq/N) - j·sin(2πq/N), q < N/2
}

func newPlan(log2N int) *fftPlan {
	n := 1 << log2N
	p := &fftPlan{
		n:      n,
		log2n:  log2N,
		bitrev: BitReverseTable(log2N),
		tw:     make([]complex128, n/2),
	}
	for q := range p.tw {
		s, c := math.Sincos(2 * math.Pi * float64(q) / float64(n))
		p.tw[q] = complex(c, -s)
	}
	return p
}

func (p *fftPlan) twiddle(q int, inverse bool) complex128 {
	w := p.tw[q]
	if inverse {
		return complex(real(w), -imag(w))
	}
	return w
}

// BitReverseTable returns the index permutation for a 2^log2N point transform.
func BitReverseTable(log2N int) []int {
	n := 1 << log2N
	table := make([]int, n)
	for i := range table {
		r := 0
		for b := 0; b < log2N; b++ {
			if i&(1<<b) != 0 {
				r |= 1 << (log2N - 1 - b)
			}
		}
		table[i] = r
	}
	return table
}

// FFTDIT runs an in-place radix-2 decimation-in-time transform.
// Input is in bit-reversed order, output in natural order.
func FFTDIT(buf []complex128, log2N int, inverse bool) {
	newPlan(log2N).dit(buf, inverse)
}

// FFTDIF runs an in-place radix-2 decimation-in-frequency transform.
// Input is in natural order, output in bit-reversed order. With scaleStages
// every butterfly stage halves its outputs, so the transform carries 1/N.
func FFTDIF(buf []complex128, log2N int, inverse, scaleStages bool) {
	newPlan(log2N).dif(buf, inverse, scaleStages)
}

// Butterflies run at accumulator precision; callers saturate afterwards.
func (p *fftPlan) dit(buf []complex128, inverse bool) {
	n := p.n
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := p.twiddle(k*step, inverse)
				a := buf[start+k]
				b := buf[start+k+half] * w
				buf[start+k] = a + b
				buf[start+k+half] = a - b
			}
		}
	}
}

func (p *fftPlan) dif(buf []complex128, inverse, scaleStages bool) {
	n := p.n
	scale := complex(1, 0)
	if scaleStages {
		scale = complex(0.5, 0)
	}
	for size := n; size >= 2; size >>= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := p.twiddle(k*step, inverse)
				a := buf[start+k]
				b := buf[start+k+half]
				buf[start+k] = (a + b) * scale
				buf[start+k+half] = (a - b) * w * scale
			}
		}
	}
}
