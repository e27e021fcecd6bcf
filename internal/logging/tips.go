package logging

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FittingTip is a single piece of actionable advice derived from a run.
type FittingTip struct {
	Priority int    // Higher = more important (1-10)
	Message  string // Human-readable advice (1-2 sentences)
	RuleID   string // Identifier for testing/logging (e.g., "output_clipping")
}

// MaxFittingTips is the maximum number of tips to return.
const MaxFittingTips = 4

// GenerateFittingTips inspects a run and returns prioritised suggestions
// for the stimulus or the parameter set.
func GenerateFittingTips(data *ReportData) []FittingTip {
	if data == nil {
		return nil
	}

	var tips []FittingTip
	fired := make(map[string]bool)

	rules := []func(*ReportData) *FittingTip{
		tipInputClipping,
		tipInputTooQuiet,
		tipOutputClipping,
		tipFeedbackUncancelled,
		tipGainCeiling,
		tipHowl,
		tipAGCLimiting,
		tipMainsHum,
	}

	for _, rule := range rules {
		if tip := rule(data); tip != nil {
			tips = append(tips, *tip)
			fired[tip.RuleID] = true
		}
	}

	tips = applyTipExclusions(tips, fired)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})

	if len(tips) > MaxFittingTips {
		tips = tips[:MaxFittingTips]
	}
	return tips
}

// applyTipExclusions drops tips already implied by a more specific one.
func applyTipExclusions(tips []FittingTip, fired map[string]bool) []FittingTip {
	var result []FittingTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "output_clipping":
			if fired["input_clipping"] {
				continue
			}
		case "gain_ceiling":
			if fired["howl"] {
				continue
			}
		}
		result = append(result, tip)
	}
	return result
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	words := strings.Fields(text)
	var lines []string
	currentLine := ""

	for _, word := range words {
		if currentLine == "" {
			currentLine = word
		} else if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return strings.Join(lines, "\n"+indent)
}

// fullScale is the linear peak treated as clipped.
const fullScale = 0.999

func tipInputClipping(d *ReportData) *FittingTip {
	if d.Input.Peak < fullScale {
		return nil
	}
	return &FittingTip{
		Priority: 10,
		RuleID:   "input_clipping",
		Message:  "The stimulus reaches full scale - reduce its level so the input calibration has headroom.",
	}
}

func tipInputTooQuiet(d *ReportData) *FittingTip {
	if math.IsNaN(d.Input.RMSDB) || math.IsInf(d.Input.RMSDB, -1) || d.Input.RMSDB >= -60 {
		return nil
	}
	return &FittingTip{
		Priority: 6,
		RuleID:   "input_too_quiet",
		Message: fmt.Sprintf("The stimulus RMS is %.0f dBFS, close to the noise floor - raise it by about %.0f dB.",
			d.Input.RMSDB, -30-d.Input.RMSDB),
	}
}

func tipOutputClipping(d *ReportData) *FittingTip {
	if d.Output.FullScale == 0 {
		return nil
	}
	return &FittingTip{
		Priority: 9,
		RuleID:   "output_clipping",
		Message: fmt.Sprintf("%d output samples saturated - lower the AGC threshold or the receiver gain.",
			d.Output.FullScale),
	}
}

func tipFeedbackUncancelled(d *ReportData) *FittingTip {
	if d.FBSimPath == "" || d.FBCEnabled {
		return nil
	}
	return &FittingTip{
		Priority: 8,
		RuleID:   "feedback_uncancelled",
		Message:  "A feedback path was given but the canceller is disabled, so no feedback was simulated - enable FBC to model a fitted device.",
	}
}

func tipGainCeiling(d *ReportData) *FittingTip {
	if !d.FBCEnabled || !d.GainLimitEnabled {
		return nil
	}
	minDB := log2ToDB(d.GainLimitMinLog2)
	if minDB > -12 {
		return nil
	}
	return &FittingTip{
		Priority: 5,
		RuleID:   "gain_ceiling",
		Message: fmt.Sprintf("The feedback gain ceiling is cutting up to %.0f dB - the prescribed gain is near the stable limit.",
			-minDB),
	}
}

// tipHowl fires on a strongly tonal, loud output while feedback is present.
func tipHowl(d *ReportData) *FittingTip {
	if !d.FeedbackActive || d.Output.Flatness >= 0.05 || d.Output.RMSDB < -20 {
		return nil
	}
	return &FittingTip{
		Priority: 9,
		RuleID:   "howl",
		Message:  "The output is tonal and loud with feedback present - the loop is likely howling.",
	}
}

func tipAGCLimiting(d *ReportData) *FittingTip {
	db := log2ToDB(d.AGCGainLog2 - d.AGCNominalLog2)
	if db > -6 {
		return nil
	}
	return &FittingTip{
		Priority: 4,
		RuleID:   "agc_limiting",
		Message:  fmt.Sprintf("The output AGC ended %.0f dB below nominal - the compressor output is running hot.", -db),
	}
}

// tipMainsHum fires when mains hum makes up a sizeable share of the stimulus.
// The compressor lifts quiet low-frequency content, so hum that is masked in
// the recording can become obvious in the output.
func tipMainsHum(d *ReportData) *FittingTip {
	if math.IsNaN(d.Input.HumDB) || d.Input.HumDB < -20 {
		return nil
	}
	return &FittingTip{
		Priority: 5,
		RuleID:   "mains_hum",
		Message: fmt.Sprintf("%d Hz mains hum is %.0f dB below the stimulus level - re-record or filter it before fitting.",
			d.Input.MainsHz, -d.Input.HumDB),
	}
}
