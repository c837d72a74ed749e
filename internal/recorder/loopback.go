package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/audiolibrelab/audiort/internal/audio"
	"github.com/audiolibrelab/audiort/internal/delay"
	"github.com/audiolibrelab/audiort/internal/metrics"
)

// Seconds of audio the loopback queue holds before capture starts dropping
const loopbackQueueSeconds = 1

// LoopbackOptions configures a Loopback session
type LoopbackOptions struct {
	Backend    audio.Backend
	Direction  audio.Direction
	DeviceName string

	Delay *uint
	Quiet bool
	Out   io.Writer

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Loopback plays a capture device back through the default output device.
// Captured bytes travel through a ring buffer in the device's native
// format; the output device is driven with the source configuration.
type Loopback struct {
	opts   LoopbackOptions
	logger *slog.Logger

	mutex   sync.Mutex
	status  Status
	ring    *ringbuffer.RingBuffer
	queue   *frameQueue
	capture *audio.Stream
	render  *audio.Stream
}

func NewLoopback(opts LoopbackOptions) *Loopback {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Loopback{opts: opts, logger: logger, status: StatusStandby}
}

// Prepare resolves both devices and builds both streams
func (l *Loopback) Prepare() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.status != StatusStandby {
		return fmt.Errorf("can only prepare from standby state, current: %s", l.status)
	}
	if l.opts.Backend == nil {
		return fmt.Errorf("no audio backend configured")
	}

	src, err := audio.ResolveNamed(l.opts.Backend, l.opts.Direction, l.opts.DeviceName)
	if err != nil {
		l.status = StatusError
		return err
	}
	if name, err := src.Name(); err == nil {
		l.logger.Info("Listening to "+name, "direction", src.Direction(), "config", src.Config().String())
	}

	cfg := src.Config()
	frame := cfg.FrameBytes()
	if frame == 0 {
		l.status = StatusError
		return fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, cfg.Format)
	}

	l.ring = ringbuffer.New(loopbackQueueSeconds * cfg.SampleRate * frame)
	l.queue = &frameQueue{ring: l.ring, frame: frame, metrics: l.opts.Metrics}

	capture := audio.NewStream(src).AsInput()
	if err := capture.BuildRelay(l.queue); err != nil {
		l.status = StatusError
		return err
	}

	sink, err := audio.Resolve(l.opts.Backend, audio.Output)
	if err != nil {
		capture.Stop()
		l.status = StatusError
		return err
	}
	sink.UseConfig(cfg)

	render := audio.NewStream(sink).AsOutput()
	if err := render.BuildRender(l.ring); err != nil {
		capture.Stop()
		l.status = StatusError
		return err
	}

	l.capture = capture
	l.render = render
	l.status = StatusReady
	return nil
}

// Run counts down, plays both streams and blocks until stop, ctx or a
// fatal error from either stream
func (l *Loopback) Run(ctx context.Context, stop <-chan struct{}) error {
	l.mutex.Lock()
	if l.status != StatusReady {
		status := l.status
		l.mutex.Unlock()
		return fmt.Errorf("can only run from ready state, current: %s", status)
	}
	capture, render := l.capture, l.render
	l.mutex.Unlock()

	defer l.Stop()

	gate := delay.Gate{Out: l.opts.Out, Quiet: l.opts.Quiet}
	if err := gate.Wait(ctx, l.opts.Delay); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if err := render.Play(); err != nil {
		return err
	}
	if err := capture.Play(); err != nil {
		return err
	}

	l.mutex.Lock()
	l.status = StatusRecording
	l.mutex.Unlock()

	select {
	case <-stop:
	case <-ctx.Done():
	case err := <-capture.Fatal():
		l.setError()
		return fmt.Errorf("capture: %w", err)
	case err := <-render.Fatal():
		l.setError()
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

func (l *Loopback) setError() {
	l.mutex.Lock()
	l.status = StatusError
	l.mutex.Unlock()
	if l.opts.Metrics != nil {
		l.opts.Metrics.SessionError("runtime")
	}
}

// Stop releases both streams. It is safe to call more than once.
func (l *Loopback) Stop() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.capture == nil {
		return nil
	}
	err := errors.Join(l.capture.Stop(), l.render.Stop())
	if l.status != StatusError {
		l.status = StatusStopped
	}
	return err
}

func (l *Loopback) Status() Status {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.status
}

// Dropped reports bytes discarded because the queue was full
func (l *Loopback) Dropped() int64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.queue == nil {
		return 0
	}
	return l.queue.dropped.Load()
}

// frameQueue writes whole frames into the ring buffer and drops what does
// not fit. It never blocks the capture callback and never fails it.
type frameQueue struct {
	ring    *ringbuffer.RingBuffer
	frame   int
	metrics *metrics.Metrics
	dropped atomic.Int64
}

func (q *frameQueue) Write(p []byte) (int, error) {
	fit := len(p)
	if free := q.ring.Free(); free < fit {
		fit = free - free%q.frame
	}

	var n int
	if fit > 0 {
		var err error
		n, err = q.ring.Write(p[:fit])
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			return n, err
		}
	}

	if lost := len(p) - n; lost > 0 {
		q.dropped.Add(int64(lost))
		if q.metrics != nil {
			q.metrics.LoopbackDropped(lost)
		}
	}
	return len(p), nil
}
