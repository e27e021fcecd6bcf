package logging

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ============================================================================
// Spectral Characteristic Interpretation Functions
// ============================================================================
// These describe the long-term spectrum of a whole file. The baseband is
// 0-12 kHz, so the ranges sit lower than broadcast conventions.

// interpretCentroid describes spectral "brightness" based on centre of gravity.
//
// Reference values for speech at 24 kHz:
// - Voiced speech: 500-2500 Hz
// - Unvoiced consonants: 3000-6000 Hz
//
// Compression and high-frequency EQ raise the output centroid.
func interpretCentroid(hz float64) string {
	switch {
	case hz < 500:
		return "very dark, bass-heavy"
	case hz < 1500:
		return "warm, full-bodied"
	case hz < 2500:
		return "balanced, natural voice"
	case hz < 4000:
		return "present, forward"
	default:
		return "bright, high-frequency emphasis"
	}
}

// interpretFlatness describes tonality vs noisiness (Wiener entropy).
// Ratio of geometric mean to arithmetic mean. 0=pure tone, 1=white noise.
func interpretFlatness(flatness float64) string {
	switch {
	case flatness < 0.1:
		return "highly tonal, possible howl"
	case flatness < 0.25:
		return "tonal with some noise, clean voiced"
	case flatness < 0.4:
		return "mixed tonal and noise"
	case flatness < 0.6:
		return "noisy"
	default:
		return "noise-like, approaching white"
	}
}

// interpretRolloff describes effective bandwidth via 85% energy threshold.
func interpretRolloff(hz float64) string {
	switch {
	case hz < 2000:
		return "narrowband, muffled"
	case hz < 4000:
		return "telephone-like bandwidth"
	case hz < 7000:
		return "wideband speech"
	default:
		return "full baseband"
	}
}

// interpretHum describes mains hum in the stimulus, as power at the mains
// frequency and its harmonics relative to the whole signal.
func interpretHum(db float64) string {
	switch {
	case math.IsNaN(db):
		return ""
	case db < -40:
		return "clean"
	case db < -20:
		return "audible hum"
	default:
		return "hum dominated"
	}
}

// interpretGainCeiling describes how hard the feedback canceller is capping
// the subband gain.
func interpretGainCeiling(minDB float64) string {
	switch {
	case minDB >= 0:
		return "no restriction"
	case minDB > -6:
		return "mild restriction"
	case minDB > -12:
		return "feedback limited"
	default:
		return "strongly feedback limited"
	}
}

// =============================================================================
// Report Section Formatting Helpers
// =============================================================================

// writeSection writes a section header with title and dashed underline.
// The underline length matches the title length.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// SignalStats summarises one side of the processing chain.
type SignalStats struct {
	Peak      float64 // linear, 0.0-1.0
	RMSDB     float64 // dBFS
	Centroid  float64 // Hz
	Rolloff   float64 // Hz, 85% energy
	Flatness  float64 // 0-1
	FullScale int     // samples at full scale
	MainsHz   int
	HumDB     float64 // mains hum power relative to the total
}

// ReportData contains all the information needed to generate a run report
type ReportData struct {
	InputPath    string
	OutputPath   string
	ResultsDir   string
	ParamsPath   string // empty for built-in defaults
	FBSimPath    string // empty when no feedback path is simulated
	Profile      int
	StartTime    time.Time
	EndTime      time.Time
	SampleRate   int
	DurationSecs float64
	Blocks       int
	DelaySamples int

	Input  SignalStats
	Output SignalStats

	WDRCEnabled      bool
	FBCEnabled       bool
	GainLimitEnabled bool
	NREnabled        bool
	FeedbackActive   bool

	// Final-block state, all log2 amplitude
	AGCGainLog2      float64
	AGCNominalLog2   float64 // gain below threshold
	WDRCLevelLog2    []float64
	WDRCBinGainLog2  []float64
	NRBinGainLog2    []float64
	GainLimitMinLog2 float64 // over the adaptive bins
	GainLimitMaxLog2 float64
	FBCCoefMagLog2   float64

	StateFiles []string
	Warnings   []string
}

// ReportPath returns the report file name for an output file:
// speech-processed.wav → speech-processed.log
func ReportPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".log"
}

// GenerateReport writes a run report alongside the output file.
//
// Report structure:
// 1. Header - file info and timestamp
// 2. Processing Summary - timing and configuration
// 3. Signal Measurements - Input/Output table
// 4. Module State - final compressor, canceller and noise reduction state
// 5. Fitting Tips - prioritised advice
// 6. Diagnostics - warnings and state files
func GenerateReport(data ReportData) error {
	logPath := ReportPath(data.OutputPath)

	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	WriteReport(f, data)
	return nil
}

// WriteReport renders the report to w.
func WriteReport(w io.Writer, data ReportData) {
	writeReportHeader(w, data)
	writeProcessingSummary(w, data)
	writeSignalTable(w, data)
	writeCompressorState(w, data)
	writeCancellerState(w, data)
	writeNoiseReductionState(w, data)
	writeFittingTips(w, data)
	writeDiagnostics(w, data)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

func enabledString(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "Hearmodel Run Report")
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "File: %s\n", filepath.Base(data.InputPath))
	fmt.Fprintf(w, "Output: %s\n", filepath.Base(data.OutputPath))
	fmt.Fprintf(w, "Processed: %s\n", data.EndTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(time.Duration(data.DurationSecs*float64(time.Second))))
	fmt.Fprintln(w, "")
}

// writeProcessingSummary outputs timing and the active configuration.
func writeProcessingSummary(w io.Writer, data ReportData) {
	writeSection(w, "Processing Summary")

	params := data.ParamsPath
	if params == "" {
		params = "built-in defaults"
	}
	fmt.Fprintf(w, "Parameters:      %s (profile %d)\n", params, data.Profile)
	fmt.Fprintf(w, "Sample rate:     %d Hz\n", data.SampleRate)
	fmt.Fprintf(w, "Blocks:          %d\n", data.Blocks)
	fmt.Fprintf(w, "Latency:         %d samples (%.2f ms)\n", data.DelaySamples,
		1000*float64(data.DelaySamples)/float64(max(data.SampleRate, 1)))

	fmt.Fprintf(w, "Compressor:      %s\n", enabledString(data.WDRCEnabled))
	fmt.Fprintf(w, "Canceller:       %s", enabledString(data.FBCEnabled))
	if data.FBCEnabled {
		fmt.Fprintf(w, " (gain limit %s)", enabledString(data.GainLimitEnabled))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Noise reduction: %s\n", enabledString(data.NREnabled))
	if data.FeedbackActive {
		fmt.Fprintf(w, "Feedback path:   simulated (%s)\n", filepath.Base(data.FBSimPath))
	} else {
		fmt.Fprintln(w, "Feedback path:   none")
	}

	totalTime := data.EndTime.Sub(data.StartTime)
	fmt.Fprintf(w, "Total:           %s", formatDuration(totalTime))
	if data.DurationSecs > 0 && totalTime > 0 {
		audioDuration := time.Duration(data.DurationSecs * float64(time.Second))
		rtf := float64(audioDuration) / float64(totalTime)
		fmt.Fprintf(w, " (%.0fx real-time)", rtf)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "")
}

// writeSignalTable outputs the Input → Output comparison.
func writeSignalTable(w io.Writer, data ReportData) {
	writeSection(w, "Signal Measurements")

	in, out := data.Input, data.Output
	table := NewMetricTable()
	table.AddRow("Sample Peak",
		[]string{formatMetricPeak(in.Peak, 1), formatMetricPeak(out.Peak, 1)}, "dBFS", "")
	table.AddRow("RMS Level",
		[]string{formatMetricDB(in.RMSDB, 1), formatMetricDB(out.RMSDB, 1)}, "dBFS", "")
	table.AddRow("Gain",
		[]string{"", formatMetricSigned(out.RMSDB-in.RMSDB, 1)}, "dB", "")
	table.AddMetricRow("Spectral Centroid", []float64{in.Centroid, out.Centroid}, 0, "Hz",
		interpretCentroid(out.Centroid))
	table.AddMetricRow("Spectral Rolloff", []float64{in.Rolloff, out.Rolloff}, 0, "Hz",
		interpretRolloff(out.Rolloff))
	table.AddMetricRow("Spectral Flatness", []float64{in.Flatness, out.Flatness}, 3, "",
		interpretFlatness(out.Flatness))
	table.AddMetricRow(fmt.Sprintf("Mains Hum (%d Hz)", in.MainsHz), []float64{in.HumDB, out.HumDB}, 1, "dB",
		interpretHum(in.HumDB))
	table.AddRow("Full-scale Samples",
		[]string{fmt.Sprint(in.FullScale), fmt.Sprint(out.FullScale)}, "", "")

	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

func writeCompressorState(w io.Writer, data ReportData) {
	writeSection(w, "Compressor")
	if !data.WDRCEnabled {
		fmt.Fprintln(w, "Status: DISABLED")
		fmt.Fprintln(w, "")
		return
	}

	if len(data.WDRCLevelLog2) > 0 {
		headers := make([]string, len(data.WDRCLevelLog2))
		levels := make([]float64, len(data.WDRCLevelLog2))
		for ch, l := range data.WDRCLevelLog2 {
			headers[ch] = fmt.Sprintf("Ch%d", ch)
			levels[ch] = log2ToDB(l)
		}
		table := NewMetricTable(headers...)
		table.AddMetricRow("Level", levels, 1, "dB", "")
		fmt.Fprint(w, table.String())
	}
	if len(data.WDRCBinGainLog2) > 0 {
		lo, hi := spanDB(data.WDRCBinGainLog2)
		fmt.Fprintf(w, "Bin gain range: %s to %s dB\n", formatMetricSigned(lo, 1), formatMetricSigned(hi, 1))
	}
	fmt.Fprintf(w, "Output AGC gain: %s dB (nominal %s dB)\n",
		formatMetricSigned(log2ToDB(data.AGCGainLog2), 1), formatMetricSigned(log2ToDB(data.AGCNominalLog2), 1))
	fmt.Fprintln(w, "")
}

func writeCancellerState(w io.Writer, data ReportData) {
	writeSection(w, "Feedback Canceller")
	if !data.FBCEnabled {
		fmt.Fprintln(w, "Status: DISABLED")
		fmt.Fprintln(w, "")
		return
	}

	fmt.Fprintf(w, "Coefficient magnitude: %s dB\n", formatMetricDB(log2ToDB(data.FBCCoefMagLog2), 1))
	if data.GainLimitEnabled {
		lo, hi := log2ToDB(data.GainLimitMinLog2), log2ToDB(data.GainLimitMaxLog2)
		fmt.Fprintf(w, "Gain ceiling:          %s to %s dB (%s)\n",
			formatMetricSigned(lo, 1), formatMetricSigned(hi, 1), interpretGainCeiling(lo))
	} else {
		fmt.Fprintln(w, "Gain ceiling:          not applied")
	}
	fmt.Fprintln(w, "")
}

func writeNoiseReductionState(w io.Writer, data ReportData) {
	writeSection(w, "Noise Reduction")
	if !data.NREnabled {
		fmt.Fprintln(w, "Status: DISABLED")
		fmt.Fprintln(w, "")
		return
	}
	if len(data.NRBinGainLog2) > 0 {
		lo, hi := spanDB(data.NRBinGainLog2)
		fmt.Fprintf(w, "Bin attenuation range: %s to %s dB\n", formatMetricSigned(lo, 1), formatMetricSigned(hi, 1))
	}
	fmt.Fprintln(w, "")
}

func writeFittingTips(w io.Writer, data ReportData) {
	tips := GenerateFittingTips(&data)
	if len(tips) == 0 {
		return
	}
	writeSection(w, "Fitting Tips")
	for i, tip := range tips {
		fmt.Fprintf(w, "%d. %s\n", i+1, wrapText(tip.Message, 72, "   "))
	}
	fmt.Fprintln(w, "")
}

func writeDiagnostics(w io.Writer, data ReportData) {
	if len(data.Warnings) == 0 && len(data.StateFiles) == 0 {
		return
	}
	writeSection(w, "Diagnostics")
	for _, warning := range data.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning)
	}
	if len(data.StateFiles) > 0 {
		fmt.Fprintf(w, "State files (%s):\n", data.ResultsDir)
		for _, path := range data.StateFiles {
			fmt.Fprintf(w, "  %s\n", filepath.Base(path))
		}
	}
}

// spanDB returns the minimum and maximum of log2 values, in dB.
func spanDB(log2 []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range log2 {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return log2ToDB(lo), log2ToDB(hi)
}
