package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/audiort/internal/audio"
	"github.com/audiolibrelab/audiort/internal/audio/audiotest"
	"github.com/audiolibrelab/audiort/internal/wavsink"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveInput(t *testing.T, cfg audio.StreamConfig) (*audiotest.Backend, *audio.Device) {
	t.Helper()
	b := audiotest.NewBackend(audiotest.Input("Test Mic", cfg))
	dev, err := audio.Resolve(b, audio.Input)
	require.NoError(t, err)
	return b, dev
}

type failingSink struct{ err error }

func (f failingSink) Append([]int) error { return f.err }

func TestRecordInt16EndToEnd(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	path := filepath.Join(t.TempDir(), "out.wav")

	sink, err := wavsink.Create(path, dev.Config().WavSpec(), nil)
	require.NoError(t, err)

	stream := audio.NewStream(dev)
	require.NoError(t, stream.Build(sink))
	assert.Equal(t, audio.StateArmed, stream.State())
	require.NoError(t, stream.Play())
	assert.Equal(t, audio.StatePlaying, stream.State())

	hw := b.Streams()[0]
	assert.True(t, hw.Started())
	hw.Feed(audiotest.Bytes([]int16{1, -1, 2, -2}))
	hw.Feed(audiotest.Bytes([]int16{3, -3, 4, -4}))
	hw.Feed(audiotest.Bytes([]int16{5, -5, 6, -6}))

	require.NoError(t, sink.Finalize())
	require.NoError(t, stream.Stop())
	assert.Equal(t, audio.StateStopped, stream.State())
	assert.True(t, hw.Stopped())
	assert.True(t, hw.Closed())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint32(44100), dec.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, uint16(wavsink.PCM), dec.WavAudioFormat)
	assert.Equal(t, []int{1, -1, 2, -2, 3, -3, 4, -4, 5, -5, 6, -6}, buf.Data)
}

func TestRecordRoundTripAllFormats(t *testing.T) {
	tests := []struct {
		name   string
		format audio.SampleFormat
		raw    []byte
		decode func(data []byte) any
		want   any
	}{
		{
			name:   "f32",
			format: audio.FormatF32,
			raw:    audiotest.Bytes([]float32{0, 0.5, -0.5, 1, -1, 1e-7}),
			decode: func(data []byte) any {
				out := make([]float32, len(data)/4)
				for i := range out {
					out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
				}
				return out
			},
			want: []float32{0, 0.5, -0.5, 1, -1, 1e-7},
		},
		{
			name:   "s32",
			format: audio.FormatS32,
			raw:    audiotest.Bytes([]int32{math.MinInt32, -7, 0, 7, math.MaxInt32, 1 << 24}),
			decode: func(data []byte) any {
				out := make([]int32, len(data)/4)
				for i := range out {
					out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
				}
				return out
			},
			want: []int32{math.MinInt32, -7, 0, 7, math.MaxInt32, 1 << 24},
		},
		{
			name:   "s16",
			format: audio.FormatS16,
			raw:    audiotest.Bytes([]int16{math.MinInt16, -7, 0, 7, math.MaxInt16, 256}),
			decode: func(data []byte) any {
				out := make([]int16, len(data)/2)
				for i := range out {
					out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
				}
				return out
			},
			want: []int16{math.MinInt16, -7, 0, 7, math.MaxInt16, 256},
		},
		{
			name:   "s8",
			format: audio.FormatS8,
			raw:    audiotest.Bytes([]int8{math.MinInt8, -7, 0, 7, math.MaxInt8, 1}),
			decode: func(data []byte) any {
				out := make([]int8, len(data))
				for i, u := range data {
					out[i] = int8(int(u) - 128)
				}
				return out
			},
			want: []int8{math.MinInt8, -7, 0, 7, math.MaxInt8, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := audio.StreamConfig{Channels: 2, SampleRate: 48000, Format: tt.format}
			b, dev := resolveInput(t, cfg)
			path := filepath.Join(t.TempDir(), tt.name+".wav")

			sink, err := wavsink.Create(path, dev.Config().WavSpec(), nil)
			require.NoError(t, err)
			stream := audio.NewStream(dev)
			require.NoError(t, stream.Build(sink))
			require.NoError(t, stream.Play())

			b.Streams()[0].Feed(tt.raw)
			require.NoError(t, sink.Finalize())
			require.NoError(t, stream.Stop())

			file, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Greater(t, len(file), 44)

			wantTag := uint16(1)
			if tt.format.IsFloat() {
				wantTag = 3
			}
			assert.Equal(t, wantTag, binary.LittleEndian.Uint16(file[20:22]))
			assert.Equal(t, uint16(tt.format.BitsPerSample()), binary.LittleEndian.Uint16(file[34:36]))
			assert.Equal(t, uint32(len(tt.raw)), binary.LittleEndian.Uint32(file[40:44]))
			assert.Equal(t, tt.want, tt.decode(file[44:]))
		})
	}
}

func TestRecordTypedCallbackPath(t *testing.T) {
	cfg := audio.StreamConfig{Channels: 1, SampleRate: 16000, Format: audio.FormatF32}
	b, dev := resolveInput(t, cfg)
	path := filepath.Join(t.TempDir(), "typed.wav")

	sink, err := wavsink.Create(path, dev.Config().WavSpec(), nil)
	require.NoError(t, err)
	stream := audio.NewStream(dev)
	require.NoError(t, stream.Build(sink))
	require.NoError(t, stream.Play())

	hw := b.Streams()[0]
	assert.False(t, audiotest.FeedSamples(hw, []int16{1}), "s16 callback on an f32 stream")
	assert.True(t, audiotest.FeedSamples(hw, []float32{0.25, -0.25}))
	require.NoError(t, sink.Finalize())

	assert.Equal(t, int64(2), sink.SamplesWritten())
}

func TestPlayBeforeBuildIsNoop(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	stream := audio.NewStream(dev)

	assert.NotPanics(t, func() {
		assert.NoError(t, stream.Play())
	})
	assert.Equal(t, audio.StateIdle, stream.State())
	assert.Empty(t, b.Streams())
}

func TestBuildTwiceFails(t *testing.T) {
	_, dev := resolveInput(t, stereo16)
	stream := audio.NewStream(dev)

	require.NoError(t, stream.Build(failingSink{}))
	assert.Error(t, stream.Build(failingSink{}))
	assert.Equal(t, audio.StateArmed, stream.State())
}

func TestBuildUnsupportedFormat(t *testing.T) {
	b, dev := resolveInput(t, audio.StreamConfig{Channels: 2, SampleRate: 44100, Format: audio.FormatS24})
	stream := audio.NewStream(dev)

	err := stream.Build(failingSink{})
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.Equal(t, audio.StateIdle, stream.State())
	assert.Empty(t, b.Streams(), "no hardware stream for an unsupported format")
}

func TestBuildBackendRejects(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	b.OpenErr = errors.New("device busy")

	err := audio.NewStream(dev).Build(failingSink{})
	assert.ErrorIs(t, err, audio.ErrStreamCreationFailed)
	assert.ErrorContains(t, err, "device busy")
}

func TestBuildRejectsInvalidOverride(t *testing.T) {
	_, dev := resolveInput(t, stereo16)
	dev.UseConfig(audio.StreamConfig{Channels: 0, SampleRate: 44100, Format: audio.FormatS16})

	err := audio.NewStream(dev).Build(failingSink{})
	assert.ErrorIs(t, err, audio.ErrStreamCreationFailed)
	assert.ErrorIs(t, err, audio.ErrConfigUnavailable)
}

func TestPlayFailure(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	b.StartErr = errors.New("driver refused")

	stream := audio.NewStream(dev)
	require.NoError(t, stream.Build(failingSink{}))
	assert.ErrorIs(t, stream.Play(), audio.ErrPlayFailed)
	assert.Equal(t, audio.StateArmed, stream.State())
}

func TestStopIsIdempotent(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	stream := audio.NewStream(dev)
	require.NoError(t, stream.Build(failingSink{}))

	require.NoError(t, stream.Stop())
	require.NoError(t, stream.Stop())
	assert.Equal(t, audio.StateStopped, stream.State())

	hw := b.Streams()[0]
	assert.False(t, hw.Stopped(), "never started, so never stopped")
	assert.True(t, hw.Closed())

	// Stopped is terminal
	assert.NoError(t, stream.Play())
	assert.False(t, hw.Started())
}

func TestFatalDeliveredOnce(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	stream := audio.NewStream(dev)
	require.NoError(t, stream.Build(failingSink{}))
	require.NoError(t, stream.Play())

	hw := b.Streams()[0]
	hw.Fail(audio.ErrDeviceStopped)
	hw.Fail(errors.New("second"))

	select {
	case err := <-stream.Fatal():
		assert.ErrorIs(t, err, audio.ErrDeviceStopped)
	default:
		t.Fatal("expected a fatal error")
	}

	select {
	case err := <-stream.Fatal():
		t.Fatalf("unexpected second fatal error: %v", err)
	default:
	}
}

func TestWriteFailureIsFatal(t *testing.T) {
	b, dev := resolveInput(t, stereo16)
	writeErr := errors.New("file handle died")

	stream := audio.NewStream(dev)
	require.NoError(t, stream.Build(failingSink{err: writeErr}))
	require.NoError(t, stream.Play())

	b.Streams()[0].Feed(audiotest.Bytes([]int16{1, 2, 3, 4}))

	select {
	case err := <-stream.Fatal():
		assert.ErrorIs(t, err, writeErr)
	default:
		t.Fatal("write failure was not reported")
	}
}

func TestAsInputOnOutputDevice(t *testing.T) {
	b := audiotest.NewBackend(audiotest.Output("Speakers", stereo16))
	dev, err := audio.Resolve(b, audio.Output)
	require.NoError(t, err)

	stream := audio.NewStream(dev)
	assert.Equal(t, audio.Output, stream.Kind())
	assert.ErrorIs(t, stream.Build(failingSink{}), audio.ErrStreamCreationFailed)

	stream = audio.NewStream(dev).AsInput()
	assert.Equal(t, audio.Input, stream.Kind())
	require.NoError(t, stream.Build(failingSink{}))

	req := b.Streams()[0].Request()
	assert.Equal(t, audio.Input, req.Kind)
	assert.Equal(t, audio.Output, req.Device.Direction)
	assert.NotNil(t, req.Capture)
	assert.Nil(t, req.Render)
}

func TestBuildRender(t *testing.T) {
	b := audiotest.NewBackend(audiotest.Output("Speakers", stereo16))
	dev, err := audio.Resolve(b, audio.Output)
	require.NoError(t, err)

	src := bytes.NewReader(audiotest.Bytes([]int16{100, -100}))
	stream := audio.NewStream(dev)
	require.NoError(t, stream.BuildRender(src))
	require.NoError(t, stream.Play())

	got := b.Streams()[0].Pull(8)
	assert.Equal(t, append(audiotest.Bytes([]int16{100, -100}), 0, 0, 0, 0), got)

	// Render registration cannot capture
	assert.Error(t, audio.NewStream(dev).AsOutput().Build(failingSink{}))
}
