// Package audio provides WAV file I/O for the model using go-audio. The model
// runs on 24-bit mono PCM at 24 kHz; samples cross this package as Frac24.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/linuxmatters/hearmodel/internal/config"
	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Required stream format
const (
	SampleRate = int(config.BasebandRate)
	BitDepth   = 24
	Channels   = 1

	pcmFormat  = 1 // WAVE_FORMAT_PCM
	fullScale  = 1 << (BitDepth - 1)
	readChunks = 4096 // samples decoded per PCMBuffer call
)

var (
	// ErrUnsupportedFormat is returned for anything other than 24-bit mono PCM at 24 kHz.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidFile is returned when the file is not a readable WAV.
	ErrInvalidFile = errors.New("invalid WAV file")
)

// Metadata describes an opened WAV file.
type Metadata struct {
	Duration   float64 // seconds
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    int
}

// Reader streams samples from a WAV file.
type Reader struct {
	file *os.File
	dec  *wav.Decoder
	buf  *goaudio.IntBuffer
	pos  int // next unread index in buf.Data
	n    int // valid samples in buf.Data
	eof  bool
}

// OpenReader opens a WAV file for reading and checks its format.
func OpenReader(filename string) (*Reader, *Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidFile, filename)
	}

	meta := &Metadata{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if meta.SampleRate != SampleRate || meta.Channels != Channels || meta.BitDepth != BitDepth {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is %d-bit, %d Hz, %d channel(s); want %d-bit, %d Hz mono",
			ErrUnsupportedFormat, filename, meta.BitDepth, meta.SampleRate, meta.Channels, BitDepth, SampleRate)
	}

	if d, err := dec.Duration(); err == nil {
		meta.Duration = d.Seconds()
		meta.Samples = int(math.Round(meta.Duration * float64(SampleRate)))
	}

	r := &Reader{
		file: f,
		dec:  dec,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
			Data:   make([]int, readChunks),
		},
	}
	return r, meta, nil
}

// Read fills dst with the next samples and returns how many were read. It
// returns io.EOF once the file is exhausted and no samples were read.
func (r *Reader) Read(dst []fixedpt.Frac24) (int, error) {
	filled := 0
	for filled < len(dst) {
		if r.pos >= r.n {
			if r.eof {
				break
			}
			if err := r.fill(); err != nil {
				return filled, err
			}
			continue
		}
		dst[filled] = ToFrac24(r.buf.Data[r.pos])
		r.pos++
		filled++
	}
	if filled == 0 && len(dst) > 0 {
		return 0, io.EOF
	}
	return filled, nil
}

func (r *Reader) fill() error {
	r.buf.Data = r.buf.Data[:cap(r.buf.Data)]
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode PCM: %w", err)
	}
	r.pos, r.n = 0, n
	if n == 0 || err != nil {
		r.eof = true
	}
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ToFrac24 converts a 24-bit PCM integer to a fraction, saturating values
// outside the 24-bit range.
func ToFrac24(v int) fixedpt.Frac24 {
	return fixedpt.RoundSat24(fixedpt.Accum(v) / fullScale)
}

// FromFrac24 converts a fraction to a 24-bit PCM integer, rounding to nearest.
func FromFrac24(x fixedpt.Frac24) int {
	v := int(math.Round(float64(x) * fullScale))
	return min(max(v, -fullScale), fullScale-1)
}
