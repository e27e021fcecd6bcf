package config

import "math"

// Rates and references used to turn audiology units into firmware values
const (
	BasebandRate   = 24000.0          // Hz
	SubbandRate    = BasebandRate / 8 // Hz - one block per 8 samples
	WDRCUpdateRate = SubbandRate / 8  // Hz - one channel per block, 8 channels
	NRUpdateRate   = SubbandRate / 4  // Hz - 8 bins per block, 32 bins

	InputFullScaleDBSPL  = 110.0 // dB SPL reaching digital full scale at the mic
	OutputFullScaleDBSPL = 115.0 // dB SPL produced by digital full scale at the receiver
)

// DB20PerLog2 is 20·log10(2), the dB size of one log2 step in amplitude.
var DB20PerLog2 = 20 * math.Log10(2)

// DBToLog2 converts an amplitude gain in dB to log2.
func DBToLog2(db float64) float64 {
	return db / DB20PerLog2
}

// Log2ToDB converts a log2 amplitude gain to dB.
func Log2ToDB(l float64) float64 {
	return l * DB20PerLog2
}

// InputDBSPLToLog2 converts an acoustic input level to log2 relative to full scale.
func InputDBSPLToLog2(db float64) float64 {
	return (db - InputFullScaleDBSPL) / DB20PerLog2
}

// OutputDBSPLToLog2 converts an acoustic output level to log2 relative to full scale.
func OutputDBSPLToLog2(db float64) float64 {
	return (db - OutputFullScaleDBSPL) / DB20PerLog2
}

// WdrcTC converts a time constant in milliseconds to a single-pole
// coefficient at the WDRC channel update rate.
func WdrcTC(ms float64) float64 {
	return poleCoeff(ms, WDRCUpdateRate)
}

// NrTC converts a time constant in milliseconds to a single-pole
// coefficient at the NR per-bin update rate.
func NrTC(ms float64) float64 {
	return poleCoeff(ms, NRUpdateRate)
}

// SampleTC converts a time constant in milliseconds to a single-pole
// coefficient at the baseband sample rate (output AGC).
func SampleTC(ms float64) float64 {
	return poleCoeff(ms, BasebandRate)
}

// DBPerSecToLog2 converts a rise rate in dB/s into log2 per NR update.
func DBPerSecToLog2(dbps float64) float64 {
	return dbps / (NRUpdateRate * DB20PerLog2)
}

func poleCoeff(ms, rate float64) float64 {
	if ms <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(ms/1000*rate))
}
