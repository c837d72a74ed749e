// Package audiotest provides an in-memory audio backend. Devices report
// whatever native configuration the test gives them and streams are driven
// by the test instead of a driver thread.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/audiolibrelab/audiort/internal/audio"
)

const BackendTypeFake audio.BackendType = "fake"

// Backend is a scripted audio.Backend
type Backend struct {
	mu      sync.Mutex
	devices []audio.DeviceInfo
	streams []*Stream
	closed  bool

	// OpenErr, when set, is returned by every Open call
	OpenErr error
	// StartErr, when set, is returned by every stream's Start
	StartErr error
}

func NewBackend(devices ...audio.DeviceInfo) *Backend {
	return &Backend{devices: devices}
}

// Input describes a default capture device
func Input(name string, cfg audio.StreamConfig) audio.DeviceInfo {
	return audio.DeviceInfo{Name: name, Direction: audio.Input, Native: cfg, IsDefault: true}
}

// Output describes a default render device
func Output(name string, cfg audio.StreamConfig) audio.DeviceInfo {
	return audio.DeviceInfo{Name: name, Direction: audio.Output, Native: cfg, IsDefault: true}
}

func (b *Backend) AddDevice(info audio.DeviceInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, info)
}

func (b *Backend) Type() audio.BackendType { return BackendTypeFake }

func (b *Backend) Devices(dir audio.Direction) ([]audio.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []audio.DeviceInfo
	for _, d := range b.devices {
		if d.Direction == dir {
			out = append(out, d)
		}
	}
	return out, nil
}

func (b *Backend) DefaultDevice(dir audio.Direction) (audio.DeviceInfo, error) {
	devices, _ := b.Devices(dir)
	if len(devices) == 0 {
		return audio.DeviceInfo{}, fmt.Errorf("%w: no %s devices", audio.ErrNoDeviceAvailable, dir)
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	return devices[0], nil
}

func (b *Backend) Open(req audio.StreamRequest) (audio.HardwareStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := &Stream{req: req, startErr: b.StartErr}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Streams returns every stream opened so far, oldest first
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Stream(nil), b.streams...)
}

// Stream is a fake hardware stream. Feed and Pull stand in for the driver
// invoking the registered callback.
type Stream struct {
	req      audio.StreamRequest
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
	closed  bool
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Stream) Request() audio.StreamRequest { return s.req }

func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Feed delivers one raw capture buffer through the byte path
func (s *Stream) Feed(raw []byte) {
	s.req.Capture.HandleBytes(raw)
}

// Pull asks the render callback for n bytes
func (s *Stream) Pull(n int) []byte {
	out := make([]byte, n)
	s.req.Render.FillBytes(out)
	return out
}

// Fail reports an asynchronous device error, as a driver would on disconnect
func (s *Stream) Fail(err error) {
	if s.req.OnError != nil {
		s.req.OnError(err)
	}
}

// FeedSamples delivers one buffer through the typed callback path. It
// returns false when the stream's callback does not take []T.
func FeedSamples[T audio.Sample](s *Stream, samples []T) bool {
	cb, ok := s.req.Capture.TypedCallback().(func([]T))
	if !ok {
		return false
	}
	cb(samples)
	return true
}

// Bytes encodes samples the way a little-endian driver delivers them
func Bytes[T audio.Sample](samples []T) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, samples); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
