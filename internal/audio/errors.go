package audio

import "errors"

// Setup errors are returned before any real-time work begins.
var (
	ErrNoDeviceAvailable    = errors.New("no default audio device available")
	ErrConfigUnavailable    = errors.New("device configuration unavailable")
	ErrNameUnavailable      = errors.New("device name unavailable")
	ErrUnsupportedFormat    = errors.New("unsupported sample format")
	ErrStreamCreationFailed = errors.New("stream creation failed")
	ErrPlayFailed           = errors.New("failed to start stream")
)

// ErrDeviceStopped is delivered through Stream.Fatal when the backend stops
// the device without being asked to (disconnect, driver fault).
var ErrDeviceStopped = errors.New("audio device stopped unexpectedly")
