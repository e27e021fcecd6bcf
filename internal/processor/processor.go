// Package processor runs a stimulus file through the hearing-aid model:
// read the WAV, optionally add simulated acoustic feedback, process block by
// block, write the output WAV and the per-block state files.
package processor

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/hearmodel/internal/audio"
	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fbc"
	"github.com/linuxmatters/hearmodel/internal/feedback"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/logging"
	"github.com/linuxmatters/hearmodel/internal/sys"
)

// progressInterval is the number of blocks between progress callbacks,
// 0.1 s of audio.
const progressInterval = 300

// Options selects the files and parameter profile for one run.
type Options struct {
	OutputPath string // empty: <input>-processed.wav next to the input
	ResultsDir string // empty: no per-block state files
	FBSimPath  string // empty: no simulated feedback path
	ParamsPath string // empty: built-in defaults
	Profile    int    // 1..config.NumProfiles
	MainsHz    int    // hum measurement frequency; 0 detects it from the timezone
}

// Progress is a periodic update from a running simulation.
type Progress struct {
	Fraction    float64 // 0.0-1.0
	Block       int
	OutputLevel float64 // dBFS of the most recent block
	AGCGainDB   float64
	GainLimitDB float64 // lowest FBC gain ceiling over the adaptive bins, 0 when inactive
}

// ProgressFunc receives Progress updates; it runs on the processing goroutine.
type ProgressFunc func(Progress)

// Result describes a completed run.
type Result struct {
	InputPath      string
	OutputPath     string
	Options        Options
	Params         *config.Params
	Warnings       []string // parameter fixes and fallbacks
	StartTime      time.Time
	EndTime        time.Time
	Blocks         int
	DelaySamples   int
	DurationSecs   float64
	FeedbackActive bool
	Input          logging.SignalStats
	Output         logging.SignalStats
	Final          sys.Snapshot
	CoefMagLog2    float64 // largest FBC coefficient magnitude over the adaptive bins
	StateFiles     []string
}

// LoadParams resolves a parameter file and profile to validated parameters.
// A missing file falls back to the defaults with a warning; a malformed file
// is an error.
func LoadParams(path string, profile int) (*config.Params, []string, error) {
	var warnings []string

	p, err := config.Load(path, profile)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return nil, nil, err
		}
		warnings = append(warnings, fmt.Sprintf("%v; using defaults", err))
		logrus.WithFields(logrus.Fields{"function": "LoadParams", "path": path}).Warn("parameter file not found, using defaults")
	}

	for _, fix := range p.Validate() {
		warnings = append(warnings, "parameter "+fix)
		logrus.WithFields(logrus.Fields{"function": "LoadParams"}).Warn(fix)
	}
	return p, warnings, nil
}

// loadFeedback reads the feedback simulation file. Failures fall back to no
// feedback with a warning.
func loadFeedback(path string) (*feedback.FIRSpec, string) {
	if path == "" {
		return nil, ""
	}
	spec, err := feedback.LoadFIRFile(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "loadFeedback", "path": path}).WithError(err).Warn("feedback simulation disabled")
		return nil, fmt.Sprintf("feedback simulation disabled: %v", err)
	}
	return spec, ""
}

// ProcessAudio runs inputPath through the model.
//
// The feedback path sees the previous block's output, so the simulated loop
// closes with a one-block delay on top of the FIR's own delay. It is only
// applied when the profile enables FBC. The final partial block is
// zero-padded for processing and truncated on output.
func ProcessAudio(inputPath string, opts Options, progressCallback ProgressFunc) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{"function": "ProcessAudio", "input": inputPath})

	if opts.Profile == 0 {
		opts.Profile = 1
	}
	if opts.OutputPath == "" {
		opts.OutputPath = generateOutputPath(inputPath)
	}

	result := &Result{
		InputPath:  inputPath,
		OutputPath: opts.OutputPath,
		Options:    opts,
		StartTime:  time.Now(),
	}

	params, warnings, err := LoadParams(opts.ParamsPath, opts.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	result.Params = params
	result.Warnings = warnings

	spec, warning := loadFeedback(opts.FBSimPath)
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	// The feedback path is only simulated alongside an enabled canceller
	if spec != nil && !params.FBC.Profile.Enable {
		log.WithField("path", opts.FBSimPath).Warn("feedback simulation ignored, FBC disabled")
		result.Warnings = append(result.Warnings, "feedback simulation ignored: FBC is disabled in this profile")
		spec = nil
	}
	fbPath := feedback.New(spec)
	result.FeedbackActive = fbPath.Active()

	system, err := sys.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build system: %w", err)
	}
	result.DelaySamples = system.Delay()

	reader, metadata, err := audio.OpenReader(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer reader.Close()
	result.DurationSecs = metadata.Duration

	writer, err := audio.CreateWriter(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer writer.Close()

	var stateLog *logging.StateLogger
	if opts.ResultsDir != "" {
		stateLog, err = logging.NewStateLogger(opts.ResultsDir, params)
		if err != nil {
			return nil, err
		}
		defer stateLog.Close()
		result.StateFiles = stateLog.Files()
	}

	log.WithFields(logrus.Fields{
		"samples":  metadata.Samples,
		"profile":  opts.Profile,
		"feedback": result.FeedbackActive,
		"wdrc":     bool(params.WDRC.Profile.Enable),
		"fbc":      bool(params.FBC.Profile.Enable),
		"nr":       bool(params.NR.Profile.Enable),
	}).Info("processing started")

	inStats := NewAnalyzer(audio.SampleRate, opts.MainsHz)
	outStats := NewAnalyzer(audio.SampleRate, opts.MainsHz)
	totalBlocks := (metadata.Samples + sys.BlockSize - 1) / sys.BlockSize

	var (
		buf  = make([]fixedpt.Frac24, sys.BlockSize)
		in   sys.Block
		prev sys.Block
		snap sys.Snapshot
	)
	for {
		n, err := reader.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}

		in = sys.Block{}
		copy(in[:], buf[:n])
		inStats.Add(in[:n])

		fbPath.Apply(in[:], prev[:])
		out := system.ProcessBlock(in)
		prev = out

		if err := writer.Write(out[:n]); err != nil {
			return nil, fmt.Errorf("failed to write output: %w", err)
		}
		outStats.Add(out[:n])

		system.Snapshot(&snap)
		if stateLog != nil {
			if err := stateLog.Log(&snap); err != nil {
				return nil, err
			}
		}

		if progressCallback != nil && snap.Block%progressInterval == 0 {
			progressCallback(progressUpdate(system, &snap, out[:n], totalBlocks))
		}
	}

	if progressCallback != nil {
		final := progressUpdate(system, &snap, prev[:], totalBlocks)
		final.Fraction = 1
		progressCallback(final)
	}

	if stateLog != nil {
		if err := stateLog.Close(); err != nil {
			return nil, fmt.Errorf("failed to close state files: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise output file: %w", err)
	}

	result.Blocks = system.Blocks()
	result.Input = inStats.Stats()
	result.Output = outStats.Stats()
	result.Final = snap
	result.CoefMagLog2 = maxAdaptive(system.FBC.CoefMag[:])
	result.EndTime = time.Now()

	log.WithFields(logrus.Fields{
		"blocks":  result.Blocks,
		"elapsed": result.EndTime.Sub(result.StartTime).String(),
	}).Info("processing finished")

	return result, nil
}

func progressUpdate(system *sys.System, snap *sys.Snapshot, out []fixedpt.Frac24, totalBlocks int) Progress {
	p := Progress{
		Block:       snap.Block,
		OutputLevel: blockLevel(out),
		AGCGainDB:   config.Log2ToDB(float64(snap.AgcoGainLog2)),
	}
	if totalBlocks > 0 {
		p.Fraction = math.Min(float64(snap.Block)/float64(totalBlocks), 1)
	}
	if system.FBC.GainLimitActive() {
		p.GainLimitDB = config.Log2ToDB(minAdaptive(snap.FBCGainLimLog2[:]))
	}
	return p
}

// blockLevel returns the RMS level of samples in dBFS.
func blockLevel(samples []fixedpt.Frac24) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	if sumSq == 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(sumSq/float64(len(samples)))
}

func minAdaptive(v []fixedpt.Frac16) float64 {
	m := math.Inf(1)
	for b := fbc.FirstBin; b <= fbc.LastBin; b++ {
		m = math.Min(m, float64(v[b]))
	}
	return m
}

func maxAdaptive(v []fixedpt.Frac16) float64 {
	m := math.Inf(-1)
	for b := fbc.FirstBin; b <= fbc.LastBin; b++ {
		m = math.Max(m, float64(v[b]))
	}
	return m
}

// generateOutputPath derives the output name: input.wav → input-processed.wav
func generateOutputPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	filename := filepath.Base(inputPath)
	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)

	return filepath.Join(dir, nameWithoutExt+"-processed.wav")
}

// ReportData converts a result into the run report's input.
func (r *Result) ReportData() logging.ReportData {
	p := r.Params
	data := logging.ReportData{
		InputPath:        r.InputPath,
		OutputPath:       r.OutputPath,
		ResultsDir:       r.Options.ResultsDir,
		ParamsPath:       r.Options.ParamsPath,
		FBSimPath:        r.Options.FBSimPath,
		Profile:          r.Options.Profile,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		SampleRate:       audio.SampleRate,
		DurationSecs:     r.DurationSecs,
		Blocks:           r.Blocks,
		DelaySamples:     r.DelaySamples,
		Input:            r.Input,
		Output:           r.Output,
		WDRCEnabled:      r.Final.WDRCEnabled,
		FBCEnabled:       r.Final.FBCEnabled,
		GainLimitEnabled: bool(p.FBC.Profile.GainLimitEnable),
		NREnabled:        r.Final.NREnabled,
		FeedbackActive:   r.FeedbackActive,
		AGCGainLog2:      float64(r.Final.AgcoGainLog2),
		AGCNominalLog2:   float64(p.SYS.Profile.AgcoGain),
		FBCCoefMagLog2:   r.CoefMagLog2,
		StateFiles:       r.StateFiles,
		Warnings:         r.Warnings,
	}
	data.WDRCLevelLog2 = toFloats(r.Final.WDRCLevelLog2[:])
	data.WDRCBinGainLog2 = toFloats(r.Final.WDRCBinGainLog2[:])
	data.NRBinGainLog2 = toFloats(r.Final.NRBinGainLog2[:])
	data.GainLimitMinLog2 = minAdaptive(r.Final.FBCGainLimLog2[:])
	data.GainLimitMaxLog2 = maxAdaptive(r.Final.FBCGainLimLog2[:])
	return data
}

func toFloats(v []fixedpt.Frac16) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
