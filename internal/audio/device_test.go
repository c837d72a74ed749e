package audio_test

import (
	"testing"

	"github.com/audiolibrelab/audiort/internal/audio"
	"github.com/audiolibrelab/audiort/internal/audio/audiotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo16 = audio.StreamConfig{Channels: 2, SampleRate: 44100, Format: audio.FormatS16}

func TestResolveDefaultDevice(t *testing.T) {
	b := audiotest.NewBackend(
		audio.DeviceInfo{Name: "USB Mic", Direction: audio.Input, Native: stereo16},
		audiotest.Input("Built-in Mic", stereo16),
		audiotest.Output("Speakers", stereo16),
	)

	dev, err := audio.Resolve(b, audio.Input)
	require.NoError(t, err)

	name, err := dev.Name()
	require.NoError(t, err)
	assert.Equal(t, "Built-in Mic", name)
	assert.Equal(t, audio.Input, dev.Direction())
	assert.Equal(t, stereo16, dev.NativeConfig())
	assert.Equal(t, stereo16, dev.Config())
}

func TestResolveNoDevice(t *testing.T) {
	b := audiotest.NewBackend(audiotest.Output("Speakers", stereo16))

	_, err := audio.Resolve(b, audio.Input)
	assert.ErrorIs(t, err, audio.ErrNoDeviceAvailable)
}

func TestResolveIncompleteConfig(t *testing.T) {
	b := audiotest.NewBackend(audiotest.Input("Broken", audio.StreamConfig{Format: audio.FormatS16}))

	_, err := audio.Resolve(b, audio.Input)
	assert.ErrorIs(t, err, audio.ErrConfigUnavailable)
}

func TestDeviceWithoutName(t *testing.T) {
	b := audiotest.NewBackend(audiotest.Input("", stereo16))

	dev, err := audio.Resolve(b, audio.Input)
	require.NoError(t, err)

	_, err = dev.Name()
	assert.ErrorIs(t, err, audio.ErrNameUnavailable)
}

func TestResolveNamed(t *testing.T) {
	b := audiotest.NewBackend(
		audiotest.Input("Built-in Mic", stereo16),
		audio.DeviceInfo{Name: "Scarlett 2i2 USB", Direction: audio.Input, Native: stereo16},
		audio.DeviceInfo{Name: "Scarlett", Direction: audio.Input, Native: stereo16},
	)

	tests := []struct {
		query string
		want  string
	}{
		{"", "Built-in Mic"},
		{"default", "Built-in Mic"},
		{"Scarlett", "Scarlett"},
		{"2i2", "Scarlett 2i2 USB"},
		{"built-in", "Built-in Mic"},
	}

	for _, tt := range tests {
		dev, err := audio.ResolveNamed(b, audio.Input, tt.query)
		require.NoError(t, err, tt.query)
		name, _ := dev.Name()
		assert.Equal(t, tt.want, name, tt.query)
	}

	_, err := audio.ResolveNamed(b, audio.Input, "nonexistent")
	assert.ErrorIs(t, err, audio.ErrNoDeviceAvailable)
}

func TestUseConfigOverridesStreamConfig(t *testing.T) {
	b := audiotest.NewBackend(audiotest.Output("Speakers", audio.StreamConfig{Channels: 2, SampleRate: 48000, Format: audio.FormatF32}))

	dev, err := audio.Resolve(b, audio.Output)
	require.NoError(t, err)

	dev.UseConfig(stereo16)
	assert.Equal(t, stereo16, dev.Config())
	assert.Equal(t, audio.FormatF32, dev.NativeConfig().Format)
}
