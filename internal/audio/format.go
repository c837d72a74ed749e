package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/audiort/internal/wavsink"
)

// Direction tells whether a device captures or renders audio
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "input" or "output" (case-insensitive)
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "in", "":
		return Input, nil
	case "output", "out":
		return Output, nil
	default:
		return Input, fmt.Errorf("direction must be 'input' or 'output', got: %s", s)
	}
}

// SampleFormat is the sample encoding reported by a device.
// Only F32, S32, S16 and S8 can be recorded; the remaining tags exist so that
// a device reporting them can be described and rejected explicitly.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatF32
	FormatS32
	FormatS16
	FormatS8
	FormatU8
	FormatS24
)

func (f SampleFormat) String() string {
	switch f {
	case FormatF32:
		return "f32"
	case FormatS32:
		return "s32"
	case FormatS16:
		return "s16"
	case FormatS8:
		return "s8"
	case FormatU8:
		return "u8"
	case FormatS24:
		return "s24"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the width of one sample, 0 for unknown formats
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatF32, FormatS32:
		return 4
	case FormatS24:
		return 3
	case FormatS16:
		return 2
	case FormatS8, FormatU8:
		return 1
	default:
		return 0
	}
}

func (f SampleFormat) BitsPerSample() int {
	return f.BytesPerSample() * 8
}

func (f SampleFormat) IsFloat() bool {
	return f == FormatF32
}

// Supported reports whether the codec dispatch has a write path for f
func (f SampleFormat) Supported() bool {
	switch f {
	case FormatF32, FormatS32, FormatS16, FormatS8:
		return true
	}
	return false
}

// StreamConfig is the negotiated stream configuration. The same value seeds
// the WAV header and the hardware callback.
type StreamConfig struct {
	Channels   int          `json:"channels" yaml:"channels"`
	SampleRate int          `json:"sample_rate" yaml:"sample_rate"`
	Format     SampleFormat `json:"-" yaml:"-"`
}

func (c StreamConfig) BitDepth() int {
	return c.Format.BitsPerSample()
}

// FrameBytes is the size of one interleaved frame
func (c StreamConfig) FrameBytes() int {
	return c.Channels * c.Format.BytesPerSample()
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%d ch, %d Hz, %s", c.Channels, c.SampleRate, c.Format)
}

// Validate checks that the config is complete. It does not check that the
// format is supported; that is the codec dispatch's job.
func (c StreamConfig) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrConfigUnavailable, c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrConfigUnavailable, c.SampleRate)
	}
	if c.Format == FormatUnknown {
		return fmt.Errorf("%w: unknown sample format", ErrConfigUnavailable)
	}
	return nil
}

// WavSpec converts the config into the header of the output file
func (c StreamConfig) WavSpec() wavsink.Spec {
	encoding := wavsink.PCM
	if c.Format.IsFloat() {
		encoding = wavsink.Float
	}
	return wavsink.Spec{
		Channels:      c.Channels,
		SampleRate:    c.SampleRate,
		BitsPerSample: c.BitDepth(),
		Encoding:      encoding,
	}
}
