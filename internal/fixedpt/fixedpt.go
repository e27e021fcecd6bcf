// Package fixedpt provides the saturating arithmetic primitives used by every
// module of the hearing-aid model.
//
// Values are stored as float64 but each container type carries the range of the
// hardware register it stands in for. Results are moved into a container only
// through the RoundSat functions, so no container ever holds an out-of-range value.
// Replacing this package with true integer arithmetic leaves every call site intact.
package fixedpt

import "math"

// Frac16 is an S1I7F16 value: 7 integer bits, 16 fractional bits.
// Used for log2-domain levels and gains.
type Frac16 float64

// Frac24 is an S1I0F23 value on [-1.0, 1.0).
// Used for audio samples, spectra and filter coefficients.
type Frac24 float64

// Frac48 is an S1I0F47 double-precision fraction on [-1.0, 1.0).
// Used for energies.
type Frac48 float64

// Accum is the unconstrained accumulator used inside multiply/accumulate chains.
type Accum float64

// Container limits
const (
	MaxVal16 Frac16 = 127.9999847412109375 // 0x7F.FFFF
	MinVal16 Frac16 = -128.0               // 0x80.0000

	MaxVal24 Frac24 = 0.99999988079071044921875 // 0x7FFFFF
	MinVal24 Frac24 = -1.0                      // 0x800000

	MaxVal48 Frac48 = 1.0 - 1.0/(1<<47) // 0x7FFF_FFFF_FFFF
	MinVal48 Frac48 = -1.0
)

// Log2Sentinel is returned by the log2 helpers for non-positive input.
const Log2Sentinel = -47

// RoundSat16 saturates an accumulator into a Frac16.
func RoundSat16(a Accum) Frac16 {
	switch {
	case a > Accum(MaxVal16):
		return MaxVal16
	case a < Accum(MinVal16):
		return MinVal16
	}
	return Frac16(a)
}

// RoundSat24 saturates an accumulator into a Frac24.
func RoundSat24(a Accum) Frac24 {
	switch {
	case a > Accum(MaxVal24):
		return MaxVal24
	case a < Accum(MinVal24):
		return MinVal24
	}
	return Frac24(a)
}

// RoundSat48 saturates an accumulator into a Frac48.
func RoundSat48(a Accum) Frac48 {
	switch {
	case a > Accum(MaxVal48):
		return MaxVal48
	case a < Accum(MinVal48):
		return MinVal48
	}
	return Frac48(a)
}

// ShiftLeft returns a * 2^n.
func ShiftLeft(a Accum, n int) Accum {
	return a * Accum(math.Ldexp(1, n))
}

// ShiftRight returns a * 2^-n.
func ShiftRight(a Accum, n int) Accum {
	return a * Accum(math.Ldexp(1, -n))
}

// ShiftSigned shifts right for positive n and left for negative n.
func ShiftSigned(a Accum, n int) Accum {
	return ShiftRight(a, n)
}

// MulRound16 multiplies two Frac16 values and rounds the aligned product back
// into a Frac16.
func MulRound16(a, b Frac16) Frac16 {
	return RoundSat16(Accum(a) * Accum(b))
}

// Log2Approx returns log2(a) saturated to Frac16, or Log2Sentinel when a <= 0.
func Log2Approx(a Accum) Frac16 {
	if a <= 0 {
		return Log2Sentinel
	}
	return RoundSat16(Accum(math.Log2(float64(a))))
}

// Log2Int returns floor(log2(a)), or Log2Sentinel when a <= 0.
// Used for step-size normalisation where only the exponent matters.
func Log2Int(a Accum) int {
	if a <= 0 {
		return Log2Sentinel
	}
	_, exp := math.Frexp(float64(a))
	return exp - 1
}

// MultLog2 applies a log2-domain gain to a sample: a * 2^g.
func MultLog2(a Frac24, g Frac16) Accum {
	return Accum(a) * Accum(math.Exp2(float64(g)))
}

// DualTCSmooth48 is a single-pole smoother with separate attack and release shifts:
// s + (x - s) * 2^-tc where tc is atk when x rises above s.
func DualTCSmooth48(x, s Frac48, atk, rel int) Frac48 {
	diff := Accum(x) - Accum(s)
	tc := rel
	if diff > 0 {
		tc = atk
	}
	return RoundSat48(Accum(s) + ShiftRight(diff, tc))
}

// Max16 returns the larger of two Frac16 values.
func Max16(a, b Frac16) Frac16 {
	if a > b {
		return a
	}
	return b
}

// Min16 returns the smaller of two Frac16 values.
func Min16(a, b Frac16) Frac16 {
	if a < b {
		return a
	}
	return b
}

// Abs16 returns |a| saturated; |MinVal16| clips to MaxVal16.
func Abs16(a Frac16) Frac16 {
	if a < 0 {
		return RoundSat16(-Accum(a))
	}
	return a
}

// Abs24 returns |a| saturated; |MinVal24| clips to MaxVal24.
func Abs24(a Frac24) Frac24 {
	if a < 0 {
		return RoundSat24(-Accum(a))
	}
	return a
}
