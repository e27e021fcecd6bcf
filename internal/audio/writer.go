package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/linuxmatters/hearmodel/internal/fixedpt"
)

// Writer encodes 24-bit mono PCM at 24 kHz.
type Writer struct {
	file    *os.File
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	written int
}

// CreateWriter creates (or truncates) filename for writing.
func CreateWriter(filename string) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &Writer{
		file: f,
		enc:  wav.NewEncoder(f, SampleRate, BitDepth, Channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
			SourceBitDepth: BitDepth,
		},
	}, nil
}

// Write encodes samples.
func (w *Writer) Write(samples []fixedpt.Frac24) error {
	w.buf.Data = w.buf.Data[:0]
	for _, x := range samples {
		w.buf.Data = append(w.buf.Data, FromFrac24(x))
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	w.written += len(samples)
	return nil
}

// Samples returns how many samples have been written.
func (w *Writer) Samples() int {
	return w.written
}

// Close finalises the WAV header and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	w.file = nil
	if encErr != nil {
		return fmt.Errorf("failed to finalise WAV: %w", encErr)
	}
	return fileErr
}

// WriteFile writes samples to a new WAV file in one call.
func WriteFile(filename string, samples []fixedpt.Frac24) error {
	w, err := CreateWriter(filename)
	if err != nil {
		return err
	}
	if err := w.Write(samples); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadFile reads every sample of a WAV file.
func ReadFile(filename string) ([]fixedpt.Frac24, *Metadata, error) {
	r, meta, err := OpenReader(filename)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var out []fixedpt.Frac24
	chunk := make([]fixedpt.Frac24, readChunks)
	for {
		n, err := r.Read(chunk)
		out = append(out, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return out, meta, nil
}
