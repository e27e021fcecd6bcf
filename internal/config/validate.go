package config

import (
	"fmt"
	"reflect"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/wola"
)

// Limits applied by Validate
const (
	MaxShift      = 23             // a 24-bit coefficient shifted further is zero
	MinBulkDelay  = wola.BlockSize // samples; the reverse path reads only completed output blocks
	MaxBulkDelay  = 1024           // samples
	MaxSpacing    = 16             // blocks between FBC taps
	MaxReduction  = 8.0            // log2
	minThreshStep = 1.0 / 65536
)

// Validate clamps out-of-range values in place and returns a description of
// each change. An empty result means the parameters were already usable.
func (p *Params) Validate() []string {
	var fixes []string
	fix := func(format string, args ...any) {
		fixes = append(fixes, fmt.Sprintf(format, args...))
	}

	clampInt := func(name string, v *int, lo, hi int) {
		if *v < lo {
			fix("%s %d raised to %d", name, *v, lo)
			*v = lo
		} else if *v > hi {
			fix("%s %d lowered to %d", name, *v, hi)
			*v = hi
		}
	}
	clampTC := func(name string, v *fixedpt.Frac16) {
		if *v < 0 {
			fix("%s %v raised to 0", name, *v)
			*v = 0
		} else if *v > 1 {
			fix("%s %v lowered to 1", name, *v)
			*v = 1
		}
	}

	saturateFields(reflect.ValueOf(p).Elem(), "", fix)

	// SYS
	clampTC("SYS.AgcoAtkTC", &p.SYS.Persist.AgcoAtkTC)
	clampTC("SYS.AgcoRelTC", &p.SYS.Persist.AgcoRelTC)

	// WDRC
	w := &p.WDRC.Persist
	for _, tc := range []struct {
		name string
		v    *fixedpt.Frac16
	}{
		{"WDRC.ExpansAtkTC", &w.ExpansAtkTC},
		{"WDRC.ExpansRelTC", &w.ExpansRelTC},
		{"WDRC.CompressAtkTC", &w.CompressAtkTC},
		{"WDRC.CompressRelTC", &w.CompressRelTC},
		{"WDRC.LimitAtkTC", &w.LimitAtkTC},
		{"WDRC.LimitRelTC", &w.LimitRelTC},
		{"WDRC.SupraAtkTC", &w.SupraAtkTC},
		{"WDRC.SupraRelTC", &w.SupraRelTC},
	} {
		clampTC(tc.name, tc.v)
	}
	if w.SupraThresh <= 0 {
		fix("WDRC.SupraThresh %v disables the supra tier", w.SupraThresh)
		w.SupraThresh = fixedpt.MaxVal16
	}
	for ch := range p.WDRC.Profile.Thresh {
		t := &p.WDRC.Profile.Thresh[ch]
		for i := 1; i < NumBreakpoints; i++ {
			if t[i] <= t[i-1] {
				raised := fixedpt.RoundSat16(fixedpt.Accum(t[i-1]) + minThreshStep)
				fix("WDRC.Thresh[%d][%d] %v raised to %v to keep thresholds ascending", ch, i, t[i], raised)
				t[i] = raised
			}
		}
	}

	// FBC
	f := &p.FBC
	clampInt("FBC.LeakFast", &f.Persist.LeakFast, 0, MaxShift)
	clampInt("FBC.LeakSlow", &f.Persist.LeakSlow, 0, MaxShift)
	clampInt("FBC.BulkDelay", &f.Persist.BulkDelay, MinBulkDelay, MaxBulkDelay)
	clampInt("FBC.CoeffSpacing", &f.Persist.CoeffSpacing, 1, MaxSpacing)
	clampInt("FBC.ActiveShift", &f.Profile.ActiveShift, -MaxShift, MaxShift)
	for b := range f.Persist.MuOffset {
		clampInt(fmt.Sprintf("FBC.MuOffset[%d]", b), &f.Persist.MuOffset[b], -MaxShift, MaxShift)
	}
	if sh := f.Profile; sh.FreqShEndBin >= sh.FreqShStartBin && (sh.FreqShStartBin < 0 || sh.FreqShEndBin >= NumBins) {
		fix("FBC frequency shift bins [%d, %d] outside [0, %d); shift disabled", sh.FreqShStartBin, sh.FreqShEndBin, NumBins)
		f.Profile.FreqShStartBin, f.Profile.FreqShEndBin = 0, -1
	}

	// NR
	n := &p.NR
	clampTC("NR.NoiseFastTC", &n.Persist.NoiseFastTC)
	clampTC("NR.GainSmoothTC", &n.Persist.GainSmoothTC)
	if n.Persist.NoiseSlowRise < 0 {
		fix("NR.NoiseSlowRise %v raised to 0", n.Persist.NoiseSlowRise)
		n.Persist.NoiseSlowRise = 0
	}
	for b := range n.Profile.MaxReduction {
		r := &n.Profile.MaxReduction[b]
		if *r < 0 {
			fix("NR.MaxReduction[%d] %v raised to 0", b, *r)
			*r = 0
		} else if *r > MaxReduction {
			fix("NR.MaxReduction[%d] %v lowered to %v", b, *r, MaxReduction)
			*r = MaxReduction
		}
	}

	return fixes
}

var (
	frac16Type = reflect.TypeFor[fixedpt.Frac16]()
	frac24Type = reflect.TypeFor[fixedpt.Frac24]()
	frac48Type = reflect.TypeFor[fixedpt.Frac48]()
)

// saturateFields walks v and saturates every fixed-point container field
// into its type's range, reporting each value it changes. JSON decoding
// writes the raw number, so a parameter file can hold anything.
func saturateFields(v reflect.Value, path string, fix func(string, ...any)) {
	switch v.Kind() {
	case reflect.Struct:
		for i := range v.NumField() {
			name := v.Type().Field(i).Name
			if path != "" {
				name = path + "." + name
			}
			saturateFields(v.Field(i), name, fix)
		}
	case reflect.Array:
		for i := range v.Len() {
			saturateFields(v.Index(i), fmt.Sprintf("%s[%d]", path, i), fix)
		}
	case reflect.Float64:
		x := fixedpt.Accum(v.Float())
		var sat float64
		switch v.Type() {
		case frac16Type:
			sat = float64(fixedpt.RoundSat16(x))
		case frac24Type:
			sat = float64(fixedpt.RoundSat24(x))
		case frac48Type:
			sat = float64(fixedpt.RoundSat48(x))
		default:
			return
		}
		if sat != float64(x) {
			fix("%s %v saturated to %v", path, float64(x), sat)
			v.SetFloat(sat)
		}
	}
}
