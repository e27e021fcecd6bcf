package fixedpt

import (
	"math"
	"testing"
)

func TestRoundSat24(t *testing.T) {
	tests := []struct {
		name string
		in   Accum
		want Frac24
	}{
		{"zero", 0, 0},
		{"in_range", 0.5, 0.5},
		{"negative_in_range", -0.25, -0.25},
		{"exact_min", -1.0, MinVal24},
		{"above_max", 2.0, MaxVal24},
		{"just_above_max", 1.0, MaxVal24},
		{"below_min", -5.0, MinVal24},
		{"huge", 1e30, MaxVal24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundSat24(tt.in)
			if got != tt.want {
				t.Errorf("RoundSat24(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundSat16(t *testing.T) {
	tests := []struct {
		name string
		in   Accum
		want Frac16
	}{
		{"zero", 0, 0},
		{"in_range", -40.0, -40.0},
		{"above_max", 200.0, MaxVal16},
		{"below_min", -129.0, MinVal16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundSat16(tt.in)
			if got != tt.want {
				t.Errorf("RoundSat16(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundSat48(t *testing.T) {
	if got := RoundSat48(3.0); got != MaxVal48 {
		t.Errorf("RoundSat48(3.0) = %v, want %v", got, MaxVal48)
	}
	if got := RoundSat48(-3.0); got != MinVal48 {
		t.Errorf("RoundSat48(-3.0) = %v, want %v", got, MinVal48)
	}
	if got := RoundSat48(0.125); got != 0.125 {
		t.Errorf("RoundSat48(0.125) = %v, want 0.125", got)
	}
}

func TestShifts(t *testing.T) {
	if got := ShiftLeft(0.25, 2); got != 1.0 {
		t.Errorf("ShiftLeft(0.25, 2) = %v, want 1", got)
	}
	if got := ShiftRight(1.0, 3); got != 0.125 {
		t.Errorf("ShiftRight(1, 3) = %v, want 0.125", got)
	}
	if got := ShiftSigned(1.0, -4); got != 16.0 {
		t.Errorf("ShiftSigned(1, -4) = %v, want 16", got)
	}
	if got := ShiftSigned(1.0, 4); got != 0.0625 {
		t.Errorf("ShiftSigned(1, 4) = %v, want 0.0625", got)
	}
}

func TestLog2Approx(t *testing.T) {
	tests := []struct {
		name string
		in   Accum
		want Frac16
	}{
		{"one", 1.0, 0},
		{"quarter", 0.25, -2},
		{"zero_is_sentinel", 0, Log2Sentinel},
		{"negative_is_sentinel", -0.5, Log2Sentinel},
		{"tiny_saturates", 1e-300, MinVal16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Log2Approx(tt.in)
			if got != tt.want {
				t.Errorf("Log2Approx(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLog2Int(t *testing.T) {
	tests := []struct {
		in   Accum
		want int
	}{
		{1.0, 0},
		{1.5, 0},
		{2.0, 1},
		{0.75, -1},
		{0.5, -1},
		{0.49, -2},
		{1.0 / 1024, -10},
		{0, Log2Sentinel},
		{-1, Log2Sentinel},
	}

	for _, tt := range tests {
		got := Log2Int(tt.in)
		if got != tt.want {
			t.Errorf("Log2Int(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMulRound16(t *testing.T) {
	if got := MulRound16(0.5, -4); got != -2 {
		t.Errorf("MulRound16(0.5, -4) = %v, want -2", got)
	}
	if got := MulRound16(100, 100); got != MaxVal16 {
		t.Errorf("MulRound16(100, 100) = %v, want %v", got, MaxVal16)
	}
}

func TestMultLog2(t *testing.T) {
	if got := MultLog2(0.25, 1); got != 0.5 {
		t.Errorf("MultLog2(0.25, 1) = %v, want 0.5", got)
	}
	if got := MultLog2(0.5, -1); got != 0.25 {
		t.Errorf("MultLog2(0.5, -1) = %v, want 0.25", got)
	}
	if got := MultLog2(0.5, 0); got != 0.5 {
		t.Errorf("MultLog2(0.5, 0) = %v, want 0.5", got)
	}
}

func TestDualTCSmooth48(t *testing.T) {
	// Attack shift 0 jumps straight to the input
	if got := DualTCSmooth48(0.5, 0.25, 0, 8); got != 0.5 {
		t.Errorf("attack: got %v, want 0.5", got)
	}
	// Release moves 1/256 of the way down
	got := DualTCSmooth48(0, 0.5, 0, 8)
	want := Frac48(0.5 - 0.5/256)
	if got != want {
		t.Errorf("release: got %v, want %v", got, want)
	}
}

func TestAbs24(t *testing.T) {
	if got := Abs24(MinVal24); got != MaxVal24 {
		t.Errorf("Abs24(MinVal24) = %v, want %v", got, MaxVal24)
	}
	if got := Abs24(-0.25); got != 0.25 {
		t.Errorf("Abs24(-0.25) = %v, want 0.25", got)
	}
}

func TestComplex24Arithmetic(t *testing.T) {
	a := C24(0.5, 0.25)
	b := C24(-0.25, 0.5)

	sum := a.Add(b).Sat()
	if sum != C24(0.25, 0.75) {
		t.Errorf("Add = %v, want (0.25, 0.75)", sum)
	}

	diff := a.Sub(b).Sat()
	if diff != C24(0.75, -0.25) {
		t.Errorf("Sub = %v, want (0.75, -0.25)", diff)
	}

	// (0.5 + 0.25j)(-0.25 + 0.5j) = -0.125 - 0.125 + j(0.25 - 0.0625)
	prod := a.Mul(b).Sat()
	if prod != C24(-0.25, 0.1875) {
		t.Errorf("Mul = %v, want (-0.25, 0.1875)", prod)
	}

	if got := a.MulConj(b); got != (ComplexAccum{0, -0.3125}) {
		t.Errorf("MulConj = %v, want (0, -0.3125)", got)
	}
	if got := a.Accum().Energy(); got != 0.3125 {
		t.Errorf("ComplexAccum.Energy = %v, want 0.3125", got)
	}

	if got := a.Conj(); got != C24(0.5, -0.25) {
		t.Errorf("Conj = %v, want (0.5, -0.25)", got)
	}

	if got := a.Energy(); got != 0.3125 {
		t.Errorf("Energy = %v, want 0.3125", got)
	}
}

func TestComplex24Saturation(t *testing.T) {
	a := C24(0.9, -0.9)
	sum := a.Add(a).Sat()
	if sum.Re != MaxVal24 || sum.Im != MinVal24 {
		t.Errorf("saturated sum = %v, want (%v, %v)", sum, MaxVal24, MinVal24)
	}

	c := Complex24{Re: MinVal24, Im: MinVal24}
	if got := c.Conj().Im; got != MaxVal24 {
		t.Errorf("Conj of MinVal24 imag = %v, want %v", got, MaxVal24)
	}

	if got := C24(math.Inf(1), math.Inf(-1)); got.Re != MaxVal24 || got.Im != MinVal24 {
		t.Errorf("C24(+Inf, -Inf) = %v", got)
	}
}

func TestComplex24String(t *testing.T) {
	got := C24(0.5, -0.25).String()
	want := "5.000000000000e-01+-2.500000000000e-01j"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
