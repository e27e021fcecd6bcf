package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/hearmodel/internal/cli"
	"github.com/linuxmatters/hearmodel/internal/logging"
	"github.com/linuxmatters/hearmodel/internal/processor"
	"github.com/linuxmatters/hearmodel/internal/ui"
)

var (
	version = "0.0.1"
)

const debugLogName = "hearmodel-debug.log"

// CLI defines the command-line interface
type CLI struct {
	Version bool     `short:"v" help:"Show version information"`
	Plain   bool     `help:"Print plain progress lines instead of the interactive UI"`
	Debug   bool     `help:"Write a debug log to ${debuglog}"`
	Params  string   `short:"p" type:"path" placeholder:"file" group:"sim" help:"JSON parameter file (defaults when omitted)"`
	Profile int      `default:"1" group:"sim" help:"Parameter profile to load (1-4)"`
	FBSim   string   `short:"f" name:"fbsim" type:"path" placeholder:"file" group:"sim" help:"Feedback path FIR file (start time and two 128-tap FIRs)"`
	Mains   int      `placeholder:"hz" default:"0" group:"sim" help:"Mains frequency for hum measurement, 0 detects it from the timezone"`
	Output  string   `short:"o" type:"path" placeholder:"file" group:"out" help:"Output WAV path (single input only)"`
	Results string   `short:"r" type:"path" placeholder:"dir" group:"out" help:"Write per-block state CSV files to this directory"`
	Report  bool     `group:"out" help:"Save a run report next to each output file"`
	Files   []string `arg:"" name:"files" help:"24 kHz mono WAV stimulus files" type:"existingfile" optional:""`
}

// fileOutcome is what a single processed file reports back to the front end.
type fileOutcome struct {
	index  int
	result *processor.Result
	err    error
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("hearmodel"),
		kong.Description("Hearing aid DSP reference model"),
		kong.UsageOnError(),
		kong.ExplicitGroups(cli.Groups()),
		kong.Vars{
			"version":  version,
			"debuglog": debugLogName,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	if len(cliArgs.Files) == 0 {
		cli.PrintError("No input files specified")
		ctx.PrintUsage(false)
		os.Exit(1)
	}
	if cliArgs.Output != "" && len(cliArgs.Files) > 1 {
		cli.PrintError("--output can only be used with a single input file")
		os.Exit(1)
	}

	if cliArgs.Mains != 0 && cliArgs.Mains != 50 && cliArgs.Mains != 60 {
		cli.PrintError(fmt.Sprintf("--mains must be 0, 50 or 60, got %d", cliArgs.Mains))
		os.Exit(1)
	}

	closeLog := setupLogging(cliArgs.Debug, cliArgs.Plain)
	defer closeLog()

	if cliArgs.Plain {
		if failed := runPlain(cliArgs); failed > 0 {
			closeLog()
			os.Exit(1)
		}
		return
	}

	model := ui.NewModel(cliArgs.Files)
	p := tea.NewProgram(model, tea.WithAltScreen())

	// The model reads its channel one message at a time; processing blocks
	// when the UI falls more than the channel's buffer behind.
	progress := model.ProgressChan
	go func() {
		runAll(cliArgs, func(i int, path string) {
			progress <- ui.FileStartMsg{FileIndex: i, FileName: path}
		}, func(pr processor.Progress) {
			progress <- ui.ProgressMsg{
				Progress:    pr.Fraction,
				Block:       pr.Block,
				Level:       pr.OutputLevel,
				AGCGainDB:   pr.AGCGainDB,
				GainLimitDB: pr.GainLimitDB,
			}
		}, func(o fileOutcome) {
			msg := ui.FileCompleteMsg{FileIndex: o.index, Error: o.err}
			if o.result != nil {
				msg.InputLevel = o.result.Input.RMSDB
				msg.OutputLevel = o.result.Output.RMSDB
				msg.Blocks = o.result.Blocks
				msg.Warnings = len(o.result.Warnings)
				msg.OutputPath = o.result.OutputPath
			}
			progress <- msg
		})
		progress <- ui.AllCompleteMsg{}
	}()

	final, err := p.Run()
	if err != nil {
		cli.PrintError(fmt.Sprintf("UI error: %v", err))
		os.Exit(1)
	}
	if m, ok := final.(ui.Model); ok && m.FailedFiles > 0 {
		closeLog()
		os.Exit(1)
	}
}

// setupLogging routes logrus to the debug log when requested. Without it,
// plain mode shows warnings on stderr and the interactive UI stays silent.
func setupLogging(debug, plain bool) func() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})

	if debug {
		f, err := os.Create(debugLogName)
		if err != nil {
			cli.PrintError(fmt.Sprintf("failed to create %s: %v", debugLogName, err))
			logrus.SetOutput(io.Discard)
			return func() {}
		}
		logrus.SetOutput(f)
		logrus.SetLevel(logrus.DebugLevel)
		return func() { _ = f.Close() }
	}

	if plain {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.ErrorLevel)
	} else {
		logrus.SetOutput(io.Discard)
	}
	return func() {}
}

// runAll processes every input file in order, reporting through the
// supplied callbacks. A failed file does not stop the rest.
func runAll(cliArgs *CLI, onStart func(int, string), onProgress processor.ProgressFunc, onDone func(fileOutcome)) {
	for i, inputPath := range cliArgs.Files {
		log := logrus.WithFields(logrus.Fields{"function": "runAll", "index": i, "file": inputPath})
		log.Debug("file start")
		onStart(i, inputPath)

		opts := processor.Options{
			OutputPath: cliArgs.Output,
			ResultsDir: cliArgs.Results,
			FBSimPath:  cliArgs.FBSim,
			ParamsPath: cliArgs.Params,
			Profile:    cliArgs.Profile,
			MainsHz:    cliArgs.Mains,
		}
		result, err := processor.ProcessAudio(inputPath, opts, onProgress)
		if err != nil {
			log.WithError(err).Error("processing failed")
			onDone(fileOutcome{index: i, err: err})
			continue
		}

		if cliArgs.Report {
			if err := logging.GenerateReport(result.ReportData()); err != nil {
				log.WithError(err).Error("failed to write report")
				result.Warnings = append(result.Warnings, fmt.Sprintf("report not written: %v", err))
			}
		}

		log.WithField("blocks", result.Blocks).Debug("file complete")
		onDone(fileOutcome{index: i, result: result})
	}
}

// runPlain is the non-interactive front end. It returns the number of
// files that failed.
func runPlain(cliArgs *CLI) int {
	failed := 0
	lastTenth := -1

	runAll(cliArgs, func(i int, path string) {
		lastTenth = -1
		fmt.Printf("%s [%d/%d] %s\n", cli.TitleStyle.Render("▶"), i+1, len(cliArgs.Files), path)
	}, func(pr processor.Progress) {
		tenth := int(pr.Fraction * 10)
		if tenth == lastTenth {
			return
		}
		lastTenth = tenth
		fmt.Printf("  %3.0f%%  block %-8d out %s  agc %+.1f dB\n",
			pr.Fraction*100, pr.Block, formatLevel(pr.OutputLevel), pr.AGCGainDB)
	}, func(o fileOutcome) {
		if o.err != nil {
			failed++
			cli.PrintError(o.err.Error())
			return
		}
		r := o.result
		for _, w := range r.Warnings {
			cli.PrintWarning(w)
		}
		cli.PrintKeyValue(os.Stdout, "Output", r.OutputPath)
		cli.PrintKeyValue(os.Stdout, "Blocks", r.Blocks)
		cli.PrintKeyValue(os.Stdout, "Levels", fmt.Sprintf("%s in, %s out",
			formatLevel(r.Input.RMSDB), formatLevel(r.Output.RMSDB)))
		if cliArgs.Report {
			cli.PrintKeyValue(os.Stdout, "Report", logging.ReportPath(r.OutputPath))
		}
		fmt.Println()
	})

	return failed
}

func formatLevel(db float64) string {
	if math.IsInf(db, -1) || math.IsNaN(db) {
		return "silence"
	}
	return fmt.Sprintf("%.1f dBFS", db)
}
