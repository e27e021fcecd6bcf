// Package mains measures mains hum in a stimulus. The hum frequency comes
// from the system timezone unless the caller names one.
package mains

import (
	"math"
	"strings"
	"sync"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Harmonics is the number of hum components measured: the fundamental and
// its first overtones.
const Harmonics = 3

// HumMeter accumulates the power at a mains frequency and its harmonics
// relative to the total signal power.
//
// Frames are a tenth of a second long, so both 50 Hz and 60 Hz and their
// harmonics complete a whole number of cycles and land on a DFT bin.
type HumMeter struct {
	hz       int
	frameLen int
	coeffs   [Harmonics]float64 // Goertzel 2cos(w) per harmonic

	s1, s2 [Harmonics]float64
	filled int

	humPower   float64 // sum over frames of the frame's mean-square hum
	totalSumSq float64
	frames     int
	samples    int64
}

// NewHumMeter returns a meter for hz mains at sampleRate. A hz of zero
// selects Frequency().
func NewHumMeter(hz, sampleRate int) *HumMeter {
	if hz <= 0 {
		hz = Frequency()
	}
	m := &HumMeter{hz: hz, frameLen: sampleRate / 10}
	for h := range Harmonics {
		w := 2 * math.Pi * float64(hz*(h+1)) / float64(sampleRate)
		m.coeffs[h] = 2 * math.Cos(w)
	}
	return m
}

// Hz returns the measured mains frequency.
func (m *HumMeter) Hz() int { return m.hz }

// Add accumulates samples. A trailing partial frame only counts towards the
// total power once it completes.
func (m *HumMeter) Add(samples []fixedpt.Frac24) {
	for _, s := range samples {
		v := float64(s)
		m.totalSumSq += v * v
		m.samples++
		for h := range Harmonics {
			s0 := v + m.coeffs[h]*m.s1[h] - m.s2[h]
			m.s2[h] = m.s1[h]
			m.s1[h] = s0
		}
		m.filled++
		if m.filled == m.frameLen {
			m.endFrame()
		}
	}
}

func (m *HumMeter) endFrame() {
	n := float64(m.frameLen)
	for h := range Harmonics {
		// |X(k)|^2 from the Goertzel state, scaled to the mean-square of
		// the matching sinusoid
		mag2 := m.s1[h]*m.s1[h] + m.s2[h]*m.s2[h] - m.coeffs[h]*m.s1[h]*m.s2[h]
		m.humPower += 2 * mag2 / (n * n)
		m.s1[h], m.s2[h] = 0, 0
	}
	m.filled = 0
	m.frames++
}

// RatioDB returns the hum power relative to the total power in dB. It is
// NaN before the first complete frame and for digital silence.
func (m *HumMeter) RatioDB() float64 {
	if m.frames == 0 || m.totalSumSq == 0 {
		return math.NaN()
	}
	counted := float64(m.frames * m.frameLen)
	total := m.totalSumSq * counted / float64(m.samples)
	hum := m.humPower * float64(m.frameLen)
	if hum <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(hum/total)
}

// Frequency returns the local mains frequency in Hz (50 or 60), 50 when the
// timezone cannot be resolved. Detection runs once per process.
func Frequency() int {
	return localFrequency()
}

var localFrequency = sync.OnceValue(func() int {
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return 50
	}
	return FrequencyForTimezone(timezone)
})

// FrequencyForTimezone returns the mains frequency for an IANA timezone.
func FrequencyForTimezone(timezone string) int {
	// UTC and GMT have no country
	if timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return 50
	}

	tzMap, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return 50
	}

	country, err := tzMap.GetCountry(timezone)
	if err != nil {
		return 50
	}

	return frequencyForCountry(country)
}

// frequencyForCountry returns 60 for the countries listed in hz60Countries
// and 50 everywhere else. Japan is split by region and reported as 50.
func frequencyForCountry(country string) int {
	if country == "Japan" {
		return 50
	}

	if hz60Countries[country] {
		return 60
	}
	return 50
}

// hz60Countries lists countries using 60Hz mains power.
// All other countries use 50Hz.
// Source: https://en.wikipedia.org/wiki/Mains_electricity_by_country
var hz60Countries = map[string]bool{
	// North America
	"United States": true,
	"Canada":        true,
	"Mexico":        true,

	// Central America
	"Belize":      true,
	"Costa Rica":  true,
	"El Salvador": true,
	"Guatemala":   true,
	"Honduras":    true,
	"Nicaragua":   true,
	"Panama":      true,

	// Caribbean
	"Bahamas":             true,
	"Barbados":            true,
	"Cayman Islands":      true,
	"Cuba":                true,
	"Dominican Republic":  true,
	"Haiti":               true,
	"Jamaica":             true,
	"Puerto Rico":         true,
	"Trinidad and Tobago": true,
	"U.S. Virgin Islands": true,

	// South America, partial
	"Brazil":    true, // Note: Brazil has both 50Hz and 60Hz regions; 60Hz predominant
	"Colombia":  true,
	"Ecuador":   true,
	"Guyana":    true,
	"Peru":      true,
	"Suriname":  true,
	"Venezuela": true,

	// Asia (partial)
	"South Korea":  true,
	"Taiwan":       true,
	"Philippines":  true,
	"Saudi Arabia": true,

	// Pacific
	"Guam":             true,
	"American Samoa":   true,
	"Marshall Islands": true,
	"Micronesia":       true,
	"Palau":            true,
}
