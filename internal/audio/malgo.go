package audio

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoBackend implements the Backend interface on top of miniaudio
type MalgoBackend struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

// NewMalgoBackend initializes a miniaudio context. Its log output is
// forwarded at debug level.
func NewMalgoBackend(logger *slog.Logger) (*MalgoBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &MalgoBackend{ctx: ctx, logger: logger}, nil
}

func (b *MalgoBackend) Type() BackendType {
	return BackendTypeMalgo
}

func (b *MalgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func (b *MalgoBackend) Devices(dir Direction) ([]DeviceInfo, error) {
	kind := malgoDeviceType(dir)
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", dir, err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, b.describe(kind, dir, infos[i]))
	}
	return devices, nil
}

// DefaultDevice picks the device miniaudio flags as default, or the first
// one when none is flagged
func (b *MalgoBackend) DefaultDevice(dir Direction) (DeviceInfo, error) {
	kind := malgoDeviceType(dir)
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %w", ErrNoDeviceAvailable, err)
	}
	if len(infos) == 0 {
		return DeviceInfo{}, fmt.Errorf("%w: no %s devices", ErrNoDeviceAvailable, dir)
	}

	for i := range infos {
		if infos[i].IsDefault == 1 {
			return b.describe(kind, dir, infos[i]), nil
		}
	}
	return b.describe(kind, dir, infos[0]), nil
}

// describe queries the device's native data formats and picks the native
// configuration from them. A device that reports none is returned with an
// empty config and fails resolution.
func (b *MalgoBackend) describe(kind malgo.DeviceType, dir Direction, info malgo.DeviceInfo) DeviceInfo {
	d := DeviceInfo{
		Name:      info.Name(),
		Direction: dir,
		IsDefault: info.IsDefault == 1,
		Ref:       info,
	}

	full, err := b.ctx.DeviceInfo(kind, info.ID, malgo.Shared)
	if err != nil {
		b.logger.Debug("failed to query device formats", "device", d.Name, "error", err)
		return d
	}
	if len(full.Formats) == 0 {
		b.logger.Debug("device reported no native formats", "device", d.Name)
		return d
	}

	d.Native = nativeConfig(full.Formats)
	return d
}

// Defaults miniaudio substitutes for a zero channel count, rate or format
const (
	malgoDefaultChannels   = 2
	malgoDefaultSampleRate = 48000
)

// nativeConfig prefers the first fully specified format. Backends may report
// wildcard entries with a zero field meaning "any"; when nothing better is
// listed, the zero fields of the first entry take miniaudio's defaults.
func nativeConfig(formats []malgo.DataFormat) StreamConfig {
	for _, f := range formats {
		if f.Channels > 0 && f.SampleRate > 0 && f.Format != malgo.FormatUnknown {
			return StreamConfig{
				Channels:   int(f.Channels),
				SampleRate: int(f.SampleRate),
				Format:     fromMalgoFormat(f.Format),
			}
		}
	}
	if len(formats) == 0 {
		return StreamConfig{}
	}

	f := formats[0]
	cfg := StreamConfig{
		Channels:   int(f.Channels),
		SampleRate: int(f.SampleRate),
		Format:     fromMalgoFormat(f.Format),
	}
	if cfg.Channels == 0 {
		cfg.Channels = malgoDefaultChannels
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = malgoDefaultSampleRate
	}
	if f.Format == malgo.FormatUnknown {
		cfg.Format = FormatF32
	}
	return cfg
}

func (b *MalgoBackend) Open(req StreamRequest) (HardwareStream, error) {
	info, ok := req.Device.Ref.(malgo.DeviceInfo)
	if !ok {
		return nil, fmt.Errorf("%w: device %q does not belong to the malgo backend", ErrStreamCreationFailed, req.Device.Name)
	}
	format, ok := toMalgoFormat(req.Config.Format)
	if !ok {
		return nil, fmt.Errorf("%w: miniaudio has no %s sample format", ErrStreamCreationFailed, req.Config.Format)
	}

	var cfg malgo.DeviceConfig
	switch {
	case req.Kind == Input && req.Device.Direction == Input:
		cfg = malgo.DefaultDeviceConfig(malgo.Capture)
		cfg.Capture.DeviceID = info.ID.Pointer()
		cfg.Capture.Format = format
		cfg.Capture.Channels = uint32(req.Config.Channels)
	case req.Kind == Input && req.Device.Direction == Output:
		// Loopback takes the playback device's ID in the capture slot
		if runtime.GOOS != "windows" {
			return nil, fmt.Errorf("%w: capturing output device %q needs WASAPI loopback", ErrStreamCreationFailed, req.Device.Name)
		}
		cfg = malgo.DefaultDeviceConfig(malgo.Loopback)
		cfg.Capture.DeviceID = info.ID.Pointer()
		cfg.Capture.Format = format
		cfg.Capture.Channels = uint32(req.Config.Channels)
	case req.Kind == Output && req.Device.Direction == Output:
		cfg = malgo.DefaultDeviceConfig(malgo.Playback)
		cfg.Playback.DeviceID = info.ID.Pointer()
		cfg.Playback.Format = format
		cfg.Playback.Channels = uint32(req.Config.Channels)
	default:
		return nil, fmt.Errorf("%w: cannot render to input device %q", ErrStreamCreationFailed, req.Device.Name)
	}
	cfg.SampleRate = uint32(req.Config.SampleRate)
	cfg.Alsa.NoMMap = 1

	st := &malgoStream{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frames uint32) {
			if req.Capture != nil {
				req.Capture.HandleBytes(in)
				return
			}
			req.Render.FillBytes(out)
		},
		Stop: func() {
			if st.stopping.Load() {
				return
			}
			b.logger.Debug("device stopped by backend", "device", req.Device.Name)
			if req.OnError != nil {
				req.OnError(fmt.Errorf("%w: %s", ErrDeviceStopped, req.Device.Name))
			}
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreationFailed, err)
	}
	st.dev = dev

	b.logger.Debug("malgo stream opened",
		"device", req.Device.Name,
		"kind", req.Kind.String(),
		"config", req.Config.String())
	return st, nil
}

type malgoStream struct {
	dev      *malgo.Device
	stopping atomic.Bool
}

func (s *malgoStream) Start() error {
	s.stopping.Store(false)
	return s.dev.Start()
}

func (s *malgoStream) Stop() error {
	s.stopping.Store(true)
	return s.dev.Stop()
}

func (s *malgoStream) Close() error {
	s.stopping.Store(true)
	s.dev.Uninit()
	return nil
}

func malgoDeviceType(dir Direction) malgo.DeviceType {
	if dir == Output {
		return malgo.Playback
	}
	return malgo.Capture
}

func fromMalgoFormat(f malgo.FormatType) SampleFormat {
	switch f {
	case malgo.FormatF32:
		return FormatF32
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatU8:
		return FormatU8
	default:
		return FormatUnknown
	}
}

// toMalgoFormat has no S8 mapping: miniaudio only knows unsigned 8-bit
func toMalgoFormat(f SampleFormat) (malgo.FormatType, bool) {
	switch f {
	case FormatF32:
		return malgo.FormatF32, true
	case FormatS32:
		return malgo.FormatS32, true
	case FormatS16:
		return malgo.FormatS16, true
	default:
		return malgo.FormatUnknown, false
	}
}
