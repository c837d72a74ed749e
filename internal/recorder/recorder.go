// Package recorder drives one capture session from device resolution to a
// finalized WAV file.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/audiort/internal/audio"
	"github.com/audiolibrelab/audiort/internal/delay"
	"github.com/audiolibrelab/audiort/internal/metrics"
	"github.com/audiolibrelab/audiort/internal/wavsink"
)

// Status represents the current state of the recorder
type Status string

const (
	StatusStandby   Status = "STANDBY"
	StatusReady     Status = "READY"
	StatusRecording Status = "RECORDING"
	StatusStopped   Status = "STOPPED"
	StatusError     Status = "ERROR"
)

// SessionInfo contains information about the current recording session
type SessionInfo struct {
	Device     string             `json:"device"`
	Direction  string             `json:"direction"`
	Format     string             `json:"format"`
	Config     audio.StreamConfig `json:"config"`
	OutputFile string             `json:"output_file"`
	StartTime  time.Time          `json:"start_time"`
}

// Options configures a Recorder
type Options struct {
	Backend    audio.Backend
	Direction  audio.Direction
	DeviceName string
	Path       string

	// Delay is the countdown before the stream starts; nil means none
	Delay *uint
	Quiet bool
	// Out receives the countdown, defaults to io.Discard
	Out   io.Writer

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Recorder records one device into one file. It is not reusable.
type Recorder struct {
	opts   Options
	logger *slog.Logger

	mutex   sync.Mutex
	status  Status
	session *SessionInfo
	stream  *audio.Stream
	sink    *wavsink.Sink
	obs     *metrics.SessionObserver
}

func New(opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Recorder{
		opts:   opts,
		logger: logger,
		status: StatusStandby,
	}
}

// Prepare resolves the device, creates the output file and builds the
// capture stream. Nothing is written to disk when the device cannot be
// resolved or its format cannot be recorded.
func (r *Recorder) Prepare() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status != StatusStandby {
		return fmt.Errorf("can only prepare from standby state, current: %s", r.status)
	}
	if r.opts.Backend == nil {
		return fmt.Errorf("no audio backend configured")
	}
	if r.opts.Path == "" {
		return fmt.Errorf("output path is required")
	}

	dev, err := audio.ResolveNamed(r.opts.Backend, r.opts.Direction, r.opts.DeviceName)
	if err != nil {
		return r.setupFailed(err)
	}

	name, err := dev.Name()
	if err != nil {
		r.logger.Debug("device name unavailable", "error", err)
		name = "unknown device"
	}
	r.logger.Info("Listening to "+name, "direction", dev.Direction(), "config", dev.Config().String())

	cfg := dev.Config()
	if _, err := audio.CodecFor(cfg.Format); err != nil {
		return r.setupFailed(err)
	}

	var observer wavsink.Observer
	if r.opts.Metrics != nil {
		r.obs = r.opts.Metrics.Session(r.opts.Direction.String(), cfg.Format.String())
		observer = r.obs
	}

	sink, err := wavsink.Create(r.opts.Path, cfg.WavSpec(), observer)
	if err != nil {
		return r.setupFailed(err)
	}

	stream := audio.NewStream(dev).AsInput()
	if err := stream.Build(sink); err != nil {
		if rmErr := sink.Discard(); rmErr != nil {
			r.logger.Warn("failed to remove output file", "path", r.opts.Path, "error", rmErr)
		}
		return r.setupFailed(err)
	}

	r.sink = sink
	r.stream = stream
	r.session = &SessionInfo{
		Device:     name,
		Direction:  r.opts.Direction.String(),
		Format:     cfg.Format.String(),
		Config:     cfg,
		OutputFile: r.opts.Path,
	}
	r.status = StatusReady

	r.logger.Debug("recorder ready", "path", r.opts.Path, "spec", cfg.WavSpec())
	return nil
}

// setupFailed must be called with the mutex held
func (r *Recorder) setupFailed(err error) error {
	r.status = StatusError
	if r.opts.Metrics != nil {
		r.opts.Metrics.SessionError("setup")
	}
	return err
}

// Start runs the countdown, then starts the hardware stream
func (r *Recorder) Start(ctx context.Context) error {
	r.mutex.Lock()
	if r.status != StatusReady {
		status := r.status
		r.mutex.Unlock()
		return fmt.Errorf("can only start recording from ready state, current: %s", status)
	}
	stream := r.stream
	r.mutex.Unlock()

	gate := delay.Gate{Out: r.opts.Out, Quiet: r.opts.Quiet}
	if err := gate.Wait(ctx, r.opts.Delay); err != nil {
		r.abort()
		return err
	}

	if err := stream.Play(); err != nil {
		r.abort()
		r.mutex.Lock()
		r.setupFailed(err)
		r.mutex.Unlock()
		return err
	}

	r.mutex.Lock()
	r.status = StatusRecording
	r.session.StartTime = time.Now()
	r.mutex.Unlock()

	r.logger.Debug("recording started", "path", r.opts.Path)
	return nil
}

// abort releases the stream and removes the file of a session that never
// started recording
func (r *Recorder) abort() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.stream.Stop(); err != nil {
		r.logger.Warn("failed to release stream", "error", err)
	}
	if err := r.sink.Discard(); err != nil {
		r.logger.Warn("failed to remove output file", "path", r.opts.Path, "error", err)
	}
	r.status = StatusStopped
}

// Wait blocks until stop is closed or receives, ctx is done, or the stream
// reports a fatal error. The file is finalized in every case; only the
// fatal error is returned.
func (r *Recorder) Wait(ctx context.Context, stop <-chan struct{}) error {
	r.mutex.Lock()
	if r.status != StatusRecording {
		status := r.status
		r.mutex.Unlock()
		return fmt.Errorf("not recording, current: %s", status)
	}
	stream := r.stream
	r.mutex.Unlock()

	select {
	case <-stop:
		r.logger.Debug("stop requested")
	case <-ctx.Done():
		r.logger.Debug("context done", "error", ctx.Err())
	case err := <-stream.Fatal():
		r.logger.Error("recording failed", "error", err)
		if finErr := r.Finalize(); finErr != nil {
			r.logger.Warn("best-effort finalize failed", "error", finErr)
		}
		r.mutex.Lock()
		r.status = StatusError
		if r.opts.Metrics != nil {
			r.opts.Metrics.SessionError("runtime")
		}
		r.mutex.Unlock()
		return err
	}

	return r.Finalize()
}

// Finalize takes the writer, patches the header and stops the stream.
// It is safe to call more than once.
func (r *Recorder) Finalize() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.sink == nil {
		return nil
	}

	finErr := r.sink.Finalize()
	stopErr := r.stream.Stop()

	if r.status == StatusRecording {
		r.status = StatusStopped
		if r.obs != nil {
			r.obs.RecordingDuration(time.Since(r.session.StartTime))
		}
	}

	if finErr != nil && r.opts.Metrics != nil {
		r.opts.Metrics.SessionError("finalize")
	}
	if stopErr != nil {
		r.logger.Debug("stream stop reported an error", "error", stopErr)
	}
	return finErr
}

// Record runs Prepare, Start and Wait in sequence
func (r *Recorder) Record(ctx context.Context, stop <-chan struct{}) error {
	if err := r.Prepare(); err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return r.Wait(ctx, stop)
}

func (r *Recorder) Status() (Status, *SessionInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.session == nil {
		return r.status, nil
	}
	session := *r.session
	return r.status, &session
}

// SamplesWritten counts samples across all channels
func (r *Recorder) SamplesWritten() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.sink == nil {
		return 0
	}
	return r.sink.SamplesWritten()
}

// Stream exposes the underlying stream, mostly for tests and info output
func (r *Recorder) Stream() *audio.Stream {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stream
}
