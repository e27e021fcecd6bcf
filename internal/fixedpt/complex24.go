package fixedpt

import "fmt"

// Complex24 is a pair of Frac24 values. All subband spectra use it.
type Complex24 struct {
	Re Frac24
	Im Frac24
}

// ComplexAccum is a complex product or sum held at accumulator precision.
type ComplexAccum struct {
	Re Accum
	Im Accum
}

// C24 builds a Complex24 from two values, saturating each part.
func C24(re, im float64) Complex24 {
	return Complex24{RoundSat24(Accum(re)), RoundSat24(Accum(im))}
}

// Add returns a + b without saturation.
func (a Complex24) Add(b Complex24) ComplexAccum {
	return ComplexAccum{Accum(a.Re) + Accum(b.Re), Accum(a.Im) + Accum(b.Im)}
}

// Sub returns a - b without saturation.
func (a Complex24) Sub(b Complex24) ComplexAccum {
	return ComplexAccum{Accum(a.Re) - Accum(b.Re), Accum(a.Im) - Accum(b.Im)}
}

// Mul returns a * b at accumulator precision.
func (a Complex24) Mul(b Complex24) ComplexAccum {
	return ComplexAccum{
		Re: Accum(a.Re)*Accum(b.Re) - Accum(a.Im)*Accum(b.Im),
		Im: Accum(a.Re)*Accum(b.Im) + Accum(b.Re)*Accum(a.Im),
	}
}

// MulConj returns a * conj(b) at accumulator precision. Unlike a.Mul(b.Conj())
// it never saturates the conjugate.
func (a Complex24) MulConj(b Complex24) ComplexAccum {
	return ComplexAccum{
		Re: Accum(a.Re)*Accum(b.Re) + Accum(a.Im)*Accum(b.Im),
		Im: Accum(a.Im)*Accum(b.Re) - Accum(a.Re)*Accum(b.Im),
	}
}

// Energy returns |a|^2 at accumulator precision.
func (a ComplexAccum) Energy() Accum {
	return a.Re*a.Re + a.Im*a.Im
}

// Conj returns the complex conjugate. The imaginary part saturates at MaxVal24
// when negating MinVal24.
func (a Complex24) Conj() Complex24 {
	return Complex24{a.Re, RoundSat24(-Accum(a.Im))}
}

// Energy returns |a|^2 saturated into a Frac48.
func (a Complex24) Energy() Frac48 {
	return RoundSat48(Accum(a.Re)*Accum(a.Re) + Accum(a.Im)*Accum(a.Im))
}

// Accum widens a to accumulator precision.
func (a Complex24) Accum() ComplexAccum {
	return ComplexAccum{Accum(a.Re), Accum(a.Im)}
}

// Complex128 returns a as a native complex value.
func (a Complex24) Complex128() complex128 {
	return complex(float64(a.Re), float64(a.Im))
}

// String formats a in the "re+imj" layout used by the state logs.
func (a Complex24) String() string {
	return fmt.Sprintf("%2.12e+%2.12ej", float64(a.Re), float64(a.Im))
}

// Add returns a + b.
func (a ComplexAccum) Add(b ComplexAccum) ComplexAccum {
	return ComplexAccum{a.Re + b.Re, a.Im + b.Im}
}

// Sub returns a - b.
func (a ComplexAccum) Sub(b ComplexAccum) ComplexAccum {
	return ComplexAccum{a.Re - b.Re, a.Im - b.Im}
}

// Shift applies ShiftSigned to both parts.
func (a ComplexAccum) Shift(n int) ComplexAccum {
	return ComplexAccum{ShiftSigned(a.Re, n), ShiftSigned(a.Im, n)}
}

// Sat rounds and saturates both parts into a Complex24.
func (a ComplexAccum) Sat() Complex24 {
	return Complex24{RoundSat24(a.Re), RoundSat24(a.Im)}
}

// FromComplex128 saturates a native complex value into a Complex24.
func FromComplex128(c complex128) Complex24 {
	return Complex24{RoundSat24(Accum(real(c))), RoundSat24(Accum(imag(c)))}
}
