package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// State is the life-cycle position of a Stream
type State int

const (
	StateIdle State = iota
	StateArmed
	StatePlaying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stream owns one hardware stream on a device.
//
//	Idle --Build--> Armed --Play--> Playing --Stop--> Stopped
//
// The registration kind decides which callback variant is handed to the
// backend. It defaults to the device direction; AsInput on an output device
// registers a capture callback on it (loopback capture of the render mix).
type Stream struct {
	dev *Device

	mu    sync.Mutex
	kind  Direction
	state State
	hw    HardwareStream

	fatal     chan error
	fatalOnce sync.Once
}

func NewStream(dev *Device) *Stream {
	return &Stream{
		dev:   dev,
		kind:  dev.Direction(),
		fatal: make(chan error, 1),
	}
}

// AsInput registers the capture callback variant on Build
func (s *Stream) AsInput() *Stream {
	s.mu.Lock()
	s.kind = Input
	s.mu.Unlock()
	return s
}

// AsOutput registers the render callback variant on BuildRender
func (s *Stream) AsOutput() *Stream {
	s.mu.Lock()
	s.kind = Output
	s.mu.Unlock()
	return s
}

// Build opens a capture stream whose callback converts each buffer and
// appends it to sink.
func (s *Stream) Build(sink SampleSink) error {
	return s.build(Input, func(cfg StreamConfig) (StreamRequest, error) {
		h, err := NewCaptureHandler(cfg.Format, sink, s.reportFatal)
		return StreamRequest{Capture: h}, err
	})
}

// BuildRelay opens a capture stream that forwards device-native bytes to w
func (s *Stream) BuildRelay(w io.Writer) error {
	return s.build(Input, func(cfg StreamConfig) (StreamRequest, error) {
		h, err := NewRelayHandler(cfg.Format, w, s.reportFatal)
		return StreamRequest{Capture: h}, err
	})
}

// BuildRender opens a render stream that plays device-native bytes read
// from src
func (s *Stream) BuildRender(src io.Reader) error {
	return s.build(Output, func(cfg StreamConfig) (StreamRequest, error) {
		h, err := NewRenderHandler(cfg.Format, src)
		return StreamRequest{Render: h}, err
	})
}

func (s *Stream) build(kind Direction, handler func(StreamConfig) (StreamRequest, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("stream already %s", s.state)
	}
	if s.kind != kind {
		return fmt.Errorf("%w: stream registered as %s", ErrStreamCreationFailed, s.kind)
	}

	cfg := s.dev.Config()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamCreationFailed, err)
	}

	req, err := handler(cfg)
	if err != nil {
		return err
	}
	req.Device = s.dev.Info()
	req.Kind = kind
	req.Config = cfg
	req.OnError = s.reportFatal

	hw, err := s.dev.backend.Open(req)
	if err != nil {
		if errors.Is(err, ErrStreamCreationFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStreamCreationFailed, err)
	}

	s.hw = hw
	s.state = StateArmed
	return nil
}

// Play starts the hardware callback. It is a no-op before Build.
func (s *Stream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateArmed || s.hw == nil {
		return nil
	}
	if err := s.hw.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrPlayFailed, err)
	}
	s.state = StatePlaying
	return nil
}

// Stop halts and releases the hardware stream. Stopped is terminal.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return nil
	}
	prev := s.state
	s.state = StateStopped
	if s.hw == nil {
		return nil
	}

	var stopErr error
	if prev == StatePlaying {
		stopErr = s.hw.Stop()
	}
	closeErr := s.hw.Close()
	s.hw = nil
	return errors.Join(stopErr, closeErr)
}

// Fatal delivers the first runtime failure: a write error in the callback or
// the device stopping underneath the stream. At most one error is sent.
func (s *Stream) Fatal() <-chan error {
	return s.fatal
}

func (s *Stream) reportFatal(err error) {
	s.fatalOnce.Do(func() {
		s.fatal <- err
	})
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Kind() Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

func (s *Stream) Config() StreamConfig { return s.dev.Config() }

func (s *Stream) Device() *Device { return s.dev }
