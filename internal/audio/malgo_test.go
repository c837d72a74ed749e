package audio

import (
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
)

func TestNativeConfig(t *testing.T) {
	tests := []struct {
		name    string
		formats []malgo.DataFormat
		want    StreamConfig
	}{
		{
			name: "first entry fully specified",
			formats: []malgo.DataFormat{
				{Format: malgo.FormatS16, Channels: 2, SampleRate: 44100},
				{Format: malgo.FormatF32, Channels: 1, SampleRate: 48000},
			},
			want: StreamConfig{Channels: 2, SampleRate: 44100, Format: FormatS16},
		},
		{
			name: "wildcard entry skipped",
			formats: []malgo.DataFormat{
				{Format: malgo.FormatF32, Channels: 0, SampleRate: 0},
				{Format: malgo.FormatS32, Channels: 2, SampleRate: 96000},
			},
			want: StreamConfig{Channels: 2, SampleRate: 96000, Format: FormatS32},
		},
		{
			name: "unknown format skipped",
			formats: []malgo.DataFormat{
				{Format: malgo.FormatUnknown, Channels: 2, SampleRate: 48000},
				{Format: malgo.FormatS16, Channels: 1, SampleRate: 16000},
			},
			want: StreamConfig{Channels: 1, SampleRate: 16000, Format: FormatS16},
		},
		{
			name: "only wildcards fills defaults",
			formats: []malgo.DataFormat{
				{Format: malgo.FormatS16, Channels: 0, SampleRate: 0},
			},
			want: StreamConfig{Channels: 2, SampleRate: 48000, Format: FormatS16},
		},
		{
			name: "fully wildcard entry",
			formats: []malgo.DataFormat{
				{Format: malgo.FormatUnknown, Channels: 1, SampleRate: 0},
			},
			want: StreamConfig{Channels: 1, SampleRate: 48000, Format: FormatF32},
		},
		{
			name: "no formats",
			want: StreamConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nativeConfig(tt.formats)
			assert.Equal(t, tt.want, got)
			if len(tt.formats) > 0 {
				assert.NoError(t, got.Validate())
			}
		})
	}
}
