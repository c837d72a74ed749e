package audio

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements the Backend interface on top of PortAudio.
// PortAudio hands typed buffers to the callback, so streams register the
// handler's TypedCallback instead of the byte path.
type PortAudioBackend struct {
	logger *slog.Logger
}

func NewPortAudioBackend(logger *slog.Logger) (*PortAudioBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioBackend{logger: logger}, nil
}

func (b *PortAudioBackend) Type() BackendType {
	return BackendTypePortAudio
}

func (b *PortAudioBackend) Close() error {
	return portaudio.Terminate()
}

func (b *PortAudioBackend) Devices(dir Direction) ([]DeviceInfo, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", dir, err)
	}

	def, _ := b.defaultFor(dir)
	var devices []DeviceInfo
	for _, d := range all {
		if maxChannels(d, dir) == 0 {
			continue
		}
		devices = append(devices, describePortAudio(d, dir, d == def))
	}
	return devices, nil
}

func (b *PortAudioBackend) DefaultDevice(dir Direction) (DeviceInfo, error) {
	d, err := b.defaultFor(dir)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %w", ErrNoDeviceAvailable, err)
	}
	if d == nil {
		return DeviceInfo{}, fmt.Errorf("%w: no default %s device", ErrNoDeviceAvailable, dir)
	}
	return describePortAudio(d, dir, true), nil
}

func (b *PortAudioBackend) defaultFor(dir Direction) (*portaudio.DeviceInfo, error) {
	if dir == Output {
		return portaudio.DefaultOutputDevice()
	}
	return portaudio.DefaultInputDevice()
}

// describePortAudio reports up to two channels at the default rate. PortAudio
// converts to float32 for every host API, so that is the native format.
func describePortAudio(d *portaudio.DeviceInfo, dir Direction, isDefault bool) DeviceInfo {
	channels := min(maxChannels(d, dir), 2)
	return DeviceInfo{
		Name:      d.Name,
		Direction: dir,
		IsDefault: isDefault,
		Native: StreamConfig{
			Channels:   channels,
			SampleRate: int(d.DefaultSampleRate),
			Format:     FormatF32,
		},
		Ref: d,
	}
}

func maxChannels(d *portaudio.DeviceInfo, dir Direction) int {
	if dir == Output {
		return d.MaxOutputChannels
	}
	return d.MaxInputChannels
}

func (b *PortAudioBackend) Open(req StreamRequest) (HardwareStream, error) {
	d, ok := req.Device.Ref.(*portaudio.DeviceInfo)
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: device %q does not belong to the portaudio backend", ErrStreamCreationFailed, req.Device.Name)
	}
	if req.Kind != req.Device.Direction {
		return nil, fmt.Errorf("%w: portaudio cannot open %s device %q as %s", ErrStreamCreationFailed, req.Device.Direction, req.Device.Name, req.Kind)
	}

	var (
		params   portaudio.StreamParameters
		callback any
	)
	if req.Kind == Input {
		params = portaudio.LowLatencyParameters(d, nil)
		params.Input.Channels = req.Config.Channels
		callback = req.Capture.TypedCallback()
	} else {
		params = portaudio.LowLatencyParameters(nil, d)
		params.Output.Channels = req.Config.Channels
		callback = req.Render.TypedCallback()
	}
	params.SampleRate = float64(req.Config.SampleRate)

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreationFailed, err)
	}

	b.logger.Debug("portaudio stream opened",
		"device", req.Device.Name,
		"kind", req.Kind.String(),
		"config", req.Config.String())
	return stream, nil
}
