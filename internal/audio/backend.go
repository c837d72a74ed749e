package audio

import (
	"fmt"
	"log/slog"
	"strings"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMalgo     BackendType = "malgo"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// DeviceInfo is what a backend reports about one physical device
type DeviceInfo struct {
	Name      string       `json:"name"`
	Direction Direction    `json:"direction"`
	Native    StreamConfig `json:"native"`
	IsDefault bool         `json:"is_default"`

	// Ref is the backend's own handle for the device
	Ref any `json:"-"`
}

// StreamRequest asks a backend to open a hardware stream. Exactly one of
// Capture and Render is set, matching Kind.
type StreamRequest struct {
	Device  DeviceInfo
	Kind    Direction
	Config  StreamConfig
	Capture CaptureHandler
	Render  RenderHandler

	// OnError is called from a backend thread when the device stops without
	// being asked to
	OnError func(error)
}

// HardwareStream is an opened, not yet started stream
type HardwareStream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend defines the interface for audio backend implementations
type Backend interface {
	// Default device for a direction, ErrNoDeviceAvailable if there is none
	DefaultDevice(dir Direction) (DeviceInfo, error)

	// All devices for a direction
	Devices(dir Direction) ([]DeviceInfo, error)

	// Open a stream; rejection is reported as ErrStreamCreationFailed
	Open(req StreamRequest) (HardwareStream, error)

	// Get the backend type
	Type() BackendType

	// Release the backend context
	Close() error
}

// NewBackend creates the backend selected by name. An empty name or "auto"
// picks the first available backend.
func NewBackend(name string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backendType, err := determineBackend(name)
	if err != nil {
		return nil, err
	}

	switch backendType {
	case BackendTypePortAudio:
		return newPortAudio(logger)
	case BackendTypeMalgo:
		return newMalgo(logger)
	default:
		// Auto: malgo covers every platform miniaudio supports
		b, err := newMalgo(logger)
		if err == nil {
			return b, nil
		}
		logger.Debug("malgo backend unavailable, trying portaudio", "error", err)
		return newPortAudio(logger)
	}
}

func newMalgo(logger *slog.Logger) (Backend, error) {
	b, err := NewMalgoBackend(logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newPortAudio(logger *slog.Logger) (Backend, error) {
	b, err := NewPortAudioBackend(logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// determineBackend determines which backend to use based on configuration
func determineBackend(name string) (BackendType, error) {
	switch BackendType(strings.ToLower(strings.TrimSpace(name))) {
	case "", BackendTypeAuto:
		return BackendTypeAuto, nil
	case BackendTypeMalgo, "miniaudio":
		return BackendTypeMalgo, nil
	case BackendTypePortAudio:
		return BackendTypePortAudio, nil
	default:
		return "", fmt.Errorf("unknown audio backend: %s (available: %v)", name, GetAvailableBackends())
	}
}

// GetAvailableBackends returns list of backends compiled into this binary
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeMalgo, BackendTypePortAudio}
}
