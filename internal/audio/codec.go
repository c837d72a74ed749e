package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync/atomic"
)

// Sample is the closed set of hardware sample types that can be recorded
type Sample interface {
	float32 | int32 | int16 | int8
}

// SampleSink receives interleaved samples already converted to the file
// representation. wavsink.Sink satisfies it.
type SampleSink interface {
	Append(samples []int) error
}

// CaptureHandler consumes hardware buffers on the real-time thread.
// Backends that deliver raw bytes call HandleBytes; backends with typed
// callbacks register the function returned by TypedCallback.
type CaptureHandler interface {
	Format() SampleFormat
	HandleBytes(raw []byte)
	TypedCallback() any
}

// RenderHandler fills hardware buffers for an output stream. Underflow is
// filled with silence.
type RenderHandler interface {
	Format() SampleFormat
	FillBytes(out []byte)
	TypedCallback() any
}

// codec describes one hardware sample type: its width, how to move it
// in and out of little-endian bytes and its value in the WAV file.
type codec[T Sample] struct {
	format SampleFormat
	width  int
	get    func(b []byte) T
	put    func(b []byte, v T)
	toFile func(v T) int
}

var le = binary.LittleEndian

var (
	f32Codec = codec[float32]{
		format: FormatF32,
		width:  4,
		get:    func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) },
		put:    func(b []byte, v float32) { le.PutUint32(b, math.Float32bits(v)) },
		// IEEE bits go through the int32 write path untouched
		toFile: func(v float32) int { return int(int32(math.Float32bits(v))) },
	}
	s32Codec = codec[int32]{
		format: FormatS32,
		width:  4,
		get:    func(b []byte) int32 { return int32(le.Uint32(b)) },
		put:    func(b []byte, v int32) { le.PutUint32(b, uint32(v)) },
		toFile: func(v int32) int { return int(v) },
	}
	s16Codec = codec[int16]{
		format: FormatS16,
		width:  2,
		get:    func(b []byte) int16 { return int16(le.Uint16(b)) },
		put:    func(b []byte, v int16) { le.PutUint16(b, uint16(v)) },
		toFile: func(v int16) int { return int(v) },
	}
	s8Codec = codec[int8]{
		format: FormatS8,
		width:  1,
		get:    func(b []byte) int8 { return int8(b[0]) },
		put:    func(b []byte, v int8) { b[0] = byte(v) },
		// 8-bit WAV is unsigned with a 128 midpoint
		toFile: func(v int8) int { return int(v) + 128 },
	}
)

// FileSample converts one hardware sample to the value stored in the file
func FileSample[T Sample](v T) int {
	switch x := any(v).(type) {
	case float32:
		return f32Codec.toFile(x)
	case int32:
		return s32Codec.toFile(x)
	case int16:
		return s16Codec.toFile(x)
	case int8:
		return s8Codec.toFile(x)
	}
	panic("unreachable")
}

// capture converts each buffer and appends it to the sink
type capture[T Sample] struct {
	codec[T]
	sink    SampleSink
	fail    func(error)
	failed  atomic.Bool
	scratch []int
}

func (c *capture[T]) Format() SampleFormat { return c.format }

func (c *capture[T]) TypedCallback() any { return c.Process }

// Process handles one typed hardware buffer
func (c *capture[T]) Process(in []T) {
	if c.failed.Load() || len(in) == 0 {
		return
	}
	buf := c.grow(len(in))
	for i, v := range in {
		buf[i] = c.toFile(v)
	}
	c.push(buf)
}

func (c *capture[T]) HandleBytes(raw []byte) {
	if c.failed.Load() {
		return
	}
	n := len(raw) / c.width
	if n == 0 {
		return
	}
	buf := c.grow(n)
	for i := range buf {
		buf[i] = c.toFile(c.get(raw[i*c.width:]))
	}
	c.push(buf)
}

func (c *capture[T]) grow(n int) []int {
	if cap(c.scratch) < n {
		c.scratch = make([]int, n)
	}
	return c.scratch[:n]
}

func (c *capture[T]) push(buf []int) {
	if err := c.sink.Append(buf); err != nil {
		c.failed.Store(true)
		c.fail(err)
	}
}

// relay forwards device-native bytes to a writer, for monitoring paths
// that play the captured audio back without touching a file.
type relay[T Sample] struct {
	codec[T]
	w       io.Writer
	fail    func(error)
	failed  atomic.Bool
	scratch []byte
}

func (r *relay[T]) Format() SampleFormat { return r.format }

func (r *relay[T]) TypedCallback() any { return r.Process }

func (r *relay[T]) Process(in []T) {
	if r.failed.Load() || len(in) == 0 {
		return
	}
	n := len(in) * r.width
	if cap(r.scratch) < n {
		r.scratch = make([]byte, n)
	}
	buf := r.scratch[:n]
	for i, v := range in {
		r.put(buf[i*r.width:], v)
	}
	r.HandleBytes(buf)
}

func (r *relay[T]) HandleBytes(raw []byte) {
	if r.failed.Load() || len(raw) == 0 {
		return
	}
	if _, err := r.w.Write(raw); err != nil {
		r.failed.Store(true)
		r.fail(err)
	}
}

// render reads device-native bytes and pads underflow with silence
type render[T Sample] struct {
	codec[T]
	r       io.Reader
	scratch []byte
}

func (r *render[T]) Format() SampleFormat { return r.format }

func (r *render[T]) TypedCallback() any { return r.Fill }

func (r *render[T]) Fill(out []T) {
	n := len(out) * r.width
	if cap(r.scratch) < n {
		r.scratch = make([]byte, n)
	}
	buf := r.scratch[:n]
	r.FillBytes(buf)
	for i := range out {
		out[i] = r.get(buf[i*r.width:])
	}
}

func (r *render[T]) FillBytes(out []byte) {
	filled := 0
	for filled < len(out) {
		n, err := r.r.Read(out[filled:])
		filled += n
		if err != nil || n == 0 {
			break
		}
	}
	clear(out[filled:])
}

func unsupported(format SampleFormat) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// NewCaptureHandler selects the write path for format. Formats outside the
// recordable set are rejected; there is no fallback encoding.
func NewCaptureHandler(format SampleFormat, sink SampleSink, fail func(error)) (CaptureHandler, error) {
	switch format {
	case FormatF32:
		return &capture[float32]{codec: f32Codec, sink: sink, fail: fail}, nil
	case FormatS32:
		return &capture[int32]{codec: s32Codec, sink: sink, fail: fail}, nil
	case FormatS16:
		return &capture[int16]{codec: s16Codec, sink: sink, fail: fail}, nil
	case FormatS8:
		return &capture[int8]{codec: s8Codec, sink: sink, fail: fail}, nil
	default:
		return nil, unsupported(format)
	}
}

// NewRelayHandler is NewCaptureHandler for raw byte destinations
func NewRelayHandler(format SampleFormat, w io.Writer, fail func(error)) (CaptureHandler, error) {
	switch format {
	case FormatF32:
		return &relay[float32]{codec: f32Codec, w: w, fail: fail}, nil
	case FormatS32:
		return &relay[int32]{codec: s32Codec, w: w, fail: fail}, nil
	case FormatS16:
		return &relay[int16]{codec: s16Codec, w: w, fail: fail}, nil
	case FormatS8:
		return &relay[int8]{codec: s8Codec, w: w, fail: fail}, nil
	default:
		return nil, unsupported(format)
	}
}

func NewRenderHandler(format SampleFormat, r io.Reader) (RenderHandler, error) {
	switch format {
	case FormatF32:
		return &render[float32]{codec: f32Codec, r: r}, nil
	case FormatS32:
		return &render[int32]{codec: s32Codec, r: r}, nil
	case FormatS16:
		return &render[int16]{codec: s16Codec, r: r}, nil
	case FormatS8:
		return &render[int8]{codec: s8Codec, r: r}, nil
	default:
		return nil, unsupported(format)
	}
}

// CodecInfo describes the write path selected for a format
type CodecInfo struct {
	Format        SampleFormat `json:"format" yaml:"format"`
	Width         int          `json:"width" yaml:"width"`
	BitsPerSample int          `json:"bits_per_sample" yaml:"bits_per_sample"`
	Float         bool         `json:"float" yaml:"float"`
	Signed        bool         `json:"signed" yaml:"signed"`
}

func CodecFor(format SampleFormat) (CodecInfo, error) {
	var width int
	switch format {
	case FormatF32:
		width = f32Codec.width
	case FormatS32:
		width = s32Codec.width
	case FormatS16:
		width = s16Codec.width
	case FormatS8:
		width = s8Codec.width
	default:
		return CodecInfo{}, unsupported(format)
	}
	return CodecInfo{
		Format:        format,
		Width:         width,
		BitsPerSample: width * 8,
		Float:         format.IsFloat(),
		Signed:        true,
	}, nil
}
