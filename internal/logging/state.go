package logging

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fbc"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
	"github.com/linuxmatters/hearmodel/internal/sys"
)

// State log file names, one row per block
const (
	FileSysError        = "SYS_Error.csv"
	FileSysFwdGainLog2  = "SYS_FwdGainLog2.csv"
	FileSysAgcoGainLog2 = "SYS_AgcoGainLog2.csv"

	FileWDRCLevelLog2   = "WDRC_LevelLog2.csv"
	FileWDRCBinGainLog2 = "WDRC_BinGainLog2.csv"

	FileFBCCoeffs     = "FBC_Coeffs.csv"
	FileFBCAdaptShift = "FBC_AdaptShift.csv"
	FileFBCSinusoid   = "FBC_Sinusoid.csv"

	FileNRNoiseEst    = "NR_NoiseEst.csv"
	FileNRSpeechEst   = "NR_SpeechEst.csv"
	FileNRSnrEst      = "NR_SnrEst.csv"
	FileNRBinGainLog2 = "NR_BinGainLog2.csv"
)

// csvFile is one buffered state file.
type csvFile struct {
	name string
	f    *os.File
	w    *bufio.Writer
}

// StateLogger records per-block internal state as CSV rows. SYS files are
// always written; a module's files are written only when the module is
// enabled in the parameters the logger was created with. Logging reads a
// Snapshot and never touches the System.
type StateLogger struct {
	dir    string
	files  map[string]*csvFile
	order  []string
	line   []byte
	coeffs []fixedpt.Complex24
}

// NewStateLogger creates dir if needed and opens the state files for p's
// enabled modules.
func NewStateLogger(dir string, p *config.Params) (*StateLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	names := []string{FileSysError, FileSysFwdGainLog2, FileSysAgcoGainLog2}
	if p.WDRC.Profile.Enable {
		names = append(names, FileWDRCLevelLog2, FileWDRCBinGainLog2)
	}
	if p.FBC.Profile.Enable {
		names = append(names, FileFBCCoeffs, FileFBCAdaptShift, FileFBCSinusoid)
	}
	if p.NR.Profile.Enable {
		names = append(names, FileNRNoiseEst, FileNRSpeechEst, FileNRSnrEst, FileNRBinGainLog2)
	}

	l := &StateLogger{
		dir:    dir,
		files:  make(map[string]*csvFile, len(names)),
		coeffs: make([]fixedpt.Complex24, 0, sys.NumBins*fbc.CoeffsPerBin),
	}
	for _, name := range names {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to create state file %s: %w", name, err)
		}
		l.files[name] = &csvFile{name: name, f: f, w: bufio.NewWriter(f)}
		l.order = append(l.order, name)
	}
	return l, nil
}

// Files returns the paths of the open state files.
func (l *StateLogger) Files() []string {
	paths := make([]string, len(l.order))
	for i, name := range l.order {
		paths[i] = filepath.Join(l.dir, name)
	}
	return paths
}

// Log appends one row per open file from s.
func (l *StateLogger) Log(s *sys.Snapshot) error {
	if err := l.writeComplex(FileSysError, s.Error[:]); err != nil {
		return err
	}
	if err := l.writeReal(FileSysFwdGainLog2, s.FwdGainLog2[:]); err != nil {
		return err
	}
	if err := l.writeReal(FileSysAgcoGainLog2, []fixedpt.Frac16{s.AgcoGainLog2}); err != nil {
		return err
	}

	if err := l.writeReal(FileWDRCLevelLog2, s.WDRCLevelLog2[:]); err != nil {
		return err
	}
	if err := l.writeReal(FileWDRCBinGainLog2, s.WDRCBinGainLog2[:]); err != nil {
		return err
	}

	// Coefficients flattened bin-major: bin 0 taps 0..3, bin 1 taps 0..3, ...
	l.coeffs = l.coeffs[:0]
	if _, ok := l.files[FileFBCCoeffs]; ok {
		for b := range s.FBCCoeffs {
			l.coeffs = append(l.coeffs, s.FBCCoeffs[b][:]...)
		}
	}
	if err := l.writeComplex(FileFBCCoeffs, l.coeffs); err != nil {
		return err
	}
	if err := l.writeInt(FileFBCAdaptShift, s.FBCAdaptShift[:]); err != nil {
		return err
	}
	if err := l.writeComplex(FileFBCSinusoid, []fixedpt.Complex24{s.FBCSinusoid}); err != nil {
		return err
	}

	if err := l.writeReal(FileNRNoiseEst, s.NRNoiseEst[:]); err != nil {
		return err
	}
	if err := l.writeReal(FileNRSpeechEst, s.NRSpeechEst[:]); err != nil {
		return err
	}
	if err := l.writeReal(FileNRSnrEst, s.NRSNREst[:]); err != nil {
		return err
	}
	return l.writeReal(FileNRBinGainLog2, s.NRBinGainLog2[:])
}

func (l *StateLogger) writeReal(name string, vals []fixedpt.Frac16) error {
	return l.writeRow(name, len(vals), func(b []byte, i int) []byte {
		return appendReal(b, float64(vals[i]))
	})
}

func (l *StateLogger) writeComplex(name string, vals []fixedpt.Complex24) error {
	return l.writeRow(name, len(vals), func(b []byte, i int) []byte {
		return appendComplex(b, vals[i])
	})
}

func (l *StateLogger) writeInt(name string, vals []int) error {
	return l.writeRow(name, len(vals), func(b []byte, i int) []byte {
		return strconv.AppendInt(b, int64(vals[i]), 10)
	})
}

// writeRow formats n comma-space separated values. Files that were not
// opened are skipped.
func (l *StateLogger) writeRow(name string, n int, appendVal func([]byte, int) []byte) error {
	cf, ok := l.files[name]
	if !ok {
		return nil
	}
	l.line = l.line[:0]
	for i := 0; i < n; i++ {
		if i > 0 {
			l.line = append(l.line, ", "...)
		}
		l.line = appendVal(l.line, i)
	}
	l.line = append(l.line, '\n')
	if _, err := cf.w.Write(l.line); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// appendReal matches C's "%2.12e".
func appendReal(b []byte, v float64) []byte {
	return strconv.AppendFloat(b, v, 'e', 12, 64)
}

// appendComplex writes "re+imj"; a negative imaginary part yields "+-".
func appendComplex(b []byte, c fixedpt.Complex24) []byte {
	b = appendReal(b, float64(c.Re))
	b = append(b, '+')
	b = appendReal(b, float64(c.Im))
	return append(b, 'j')
}

// Close flushes and closes every file, returning the first error.
func (l *StateLogger) Close() error {
	var errs []error
	for _, name := range l.order {
		cf := l.files[name]
		if err := cf.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush %s: %w", name, err))
		}
		if err := cf.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", name, err))
		}
	}
	l.files = map[string]*csvFile{}
	l.order = nil
	return errors.Join(errs...)
}
