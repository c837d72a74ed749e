// Package wavsink holds the WAV writer shared between the real-time capture
// callback and the control goroutine.
//
// The writer lives in a mutex-guarded slot. The callback appends while the
// slot is full; the control goroutine takes the writer out exactly once and
// finalizes it. Appends that arrive after the take see an empty slot and
// return without writing.
package wavsink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrCreateFailed = errors.New("failed to create wav writer")
	ErrWriteFailed  = errors.New("failed to write wav data")
)

// Encoding is the WAV format tag
type Encoding int

const (
	PCM   Encoding = 1
	Float Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case PCM:
		return "int"
	case Float:
		return "float"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Spec describes the header of the output file
type Spec struct {
	Channels      int      `json:"channels" yaml:"channels"`
	SampleRate    int      `json:"sample_rate" yaml:"sample_rate"`
	BitsPerSample int      `json:"bits_per_sample" yaml:"bits_per_sample"`
	Encoding      Encoding `json:"encoding" yaml:"encoding"`
}

func (s Spec) Validate() error {
	if s.Channels <= 0 || s.Channels > 0xFFFF {
		return fmt.Errorf("invalid channel count: %d", s.Channels)
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", s.SampleRate)
	}
	switch s.Encoding {
	case PCM:
		switch s.BitsPerSample {
		case 8, 16, 32:
		default:
			return fmt.Errorf("invalid bits per sample for int encoding: %d", s.BitsPerSample)
		}
	case Float:
		if s.BitsPerSample != 32 {
			return fmt.Errorf("invalid bits per sample for float encoding: %d", s.BitsPerSample)
		}
	default:
		return fmt.Errorf("invalid encoding: %d", int(s.Encoding))
	}
	return nil
}

// Observer is notified from the append path. Implementations must not block.
type Observer interface {
	SamplesWritten(n int)
	AppendAfterFinalize()
}

// writer owns the open file. go-audio emits the header; sample data is
// packed into scratch and written directly, so a steady stream of equally
// sized buffers does not allocate.
type writer struct {
	file    *os.File
	header  int64 // bytes before the first sample
	data    int64 // sample bytes written so far
	width   int
	scratch []byte
}

// Sink is the take-once WAV writer
type Sink struct {
	path string
	spec Spec
	obs  Observer

	mu sync.Mutex
	w  *writer

	written atomic.Int64
}

// Create opens path and writes a provisional header so that the file is
// structurally valid from the start. The size fields are placeholders until
// Finalize patches them.
func Create(path string, spec Spec, obs Observer) (*Sink, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	header, err := writeHeader(f, spec)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: writing header: %w", ErrCreateFailed, err)
	}

	w := &writer{
		file:   f,
		header: header,
		width:  spec.BitsPerSample / 8,
	}
	return &Sink{path: path, spec: spec, obs: obs, w: w}, nil
}

// writeHeader has the encoder emit the RIFF, fmt and data chunk headers
// through an empty write and returns their length
func writeHeader(f *os.File, spec Spec) (int64, error) {
	enc := wav.NewEncoder(f, spec.SampleRate, spec.BitsPerSample, spec.Channels, int(spec.Encoding))
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: spec.Channels, SampleRate: spec.SampleRate},
		SourceBitDepth: spec.BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return 0, err
	}
	return f.Seek(0, io.SeekCurrent)
}

// Append writes interleaved samples already converted to the file
// representation. The buffer must hold whole frames. It is a no-op once the
// sink has been finalized.
func (s *Sink) Append(samples []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		if s.obs != nil {
			s.obs.AppendAfterFinalize()
		}
		return nil
	}
	if len(samples) == 0 {
		return nil
	}
	if len(samples)%s.spec.Channels != 0 {
		return fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames",
			ErrWriteFailed, len(samples), s.spec.Channels)
	}

	buf := s.w.pack(samples)
	if _, err := s.w.file.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.w.data += int64(len(buf))

	s.written.Add(int64(len(samples)))
	if s.obs != nil {
		s.obs.SamplesWritten(len(samples))
	}
	return nil
}

// pack encodes samples little-endian at the sink's width into scratch
func (w *writer) pack(samples []int) []byte {
	n := len(samples) * w.width
	if cap(w.scratch) < n {
		w.scratch = make([]byte, n)
	}
	buf := w.scratch[:n]

	le := binary.LittleEndian
	switch w.width {
	case 1:
		for i, v := range samples {
			buf[i] = byte(v)
		}
	case 2:
		for i, v := range samples {
			le.PutUint16(buf[i*2:], uint16(int16(v)))
		}
	case 4:
		for i, v := range samples {
			le.PutUint32(buf[i*4:], uint32(int32(v)))
		}
	}
	return buf
}

// Finalize takes the writer out of the slot, patches the header sizes, syncs
// and closes the file. Calls after the first are no-ops.
func (s *Sink) Finalize() error {
	s.mu.Lock()
	w := s.w
	s.w = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}

	patchErr := w.patchSizes()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	if patchErr != nil {
		return fmt.Errorf("%w: finalizing header: %w", ErrWriteFailed, patchErr)
	}
	if syncErr != nil {
		return fmt.Errorf("%w: syncing file: %w", ErrWriteFailed, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing file: %w", ErrWriteFailed, closeErr)
	}
	return nil
}

// patchSizes pads an odd data chunk and rewrites the RIFF and data sizes.
// The data size field is the last four bytes of the header.
func (w *writer) patchSizes() error {
	riff := w.header - 8 + w.data
	if w.data%2 == 1 {
		if _, err := w.file.Write([]byte{0}); err != nil {
			return err
		}
		riff++
	}

	var field [4]byte
	binary.LittleEndian.PutUint32(field[:], uint32(riff))
	if _, err := w.file.WriteAt(field[:], 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(field[:], uint32(w.data))
	if _, err := w.file.WriteAt(field[:], w.header-4); err != nil {
		return err
	}
	return nil
}

// Discard finalizes the sink and removes the file
func (s *Sink) Discard() error {
	err := s.Finalize()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}
	return err
}

func (s *Sink) Path() string { return s.path }

func (s *Sink) Spec() Spec { return s.spec }

func (s *Sink) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w == nil
}

// SamplesWritten counts samples across all channels
func (s *Sink) SamplesWritten() int64 {
	return s.written.Load()
}
