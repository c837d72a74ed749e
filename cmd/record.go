package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/audiort/internal/metrics"
	"github.com/audiolibrelab/audiort/internal/recorder"

	"github.com/spf13/cobra"
)

var outputPath string

var recordCmd = &cobra.Command{
	Use:   "record [input|output]",
	Short: "Record the default input or output device to a WAV file",
	Long: `Record the selected device at its native configuration until Enter is
pressed or the process is interrupted. The WAV header matches the device:
channels, sample rate and sample format are never converted.

Recording "output" captures what the system is playing, where the backend
supports loopback capture.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"input", "output"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, err := directionArg(args)
		if err != nil {
			return err
		}

		path := outputPath
		if path == "" {
			path = cfg.OutputPath()
		}

		backend, err := openBackend()
		if err != nil {
			return err
		}
		defer closeBackend(backend)

		m, err := metrics.New()
		if err != nil {
			return err
		}
		defer writeMetrics(m)

		rec := recorder.New(recorder.Options{
			Backend:    backend,
			Direction:  direction,
			DeviceName: cfg.Audio.Device,
			Path:       path,
			Delay:      cfg.Delay.Seconds,
			Quiet:      cfg.Quiet(),
			Out:        os.Stderr,
			Logger:     slog.Default(),
			Metrics:    m,
		})

		if err := rec.Prepare(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := rec.Start(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("Recording cancelled before it started")
				return nil
			}
			return err
		}

		fmt.Fprintln(os.Stderr, "Press Enter to stop recording...")
		if err := rec.Wait(ctx, waitForEnter(cmd.InOrStdin())); err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Written to %s\n", path)
		return nil
	},
}

// waitForEnter closes the returned channel once a line is read from in.
// EOF counts as a line.
func waitForEnter(in io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		reader := bufio.NewReader(in)
		if _, err := reader.ReadString('\n'); err != nil && err != io.EOF {
			slog.Debug("failed to read stdin", "error", err)
		}
	}()
	return done
}

// writeMetrics leaves the run statistics in the configured textfile
func writeMetrics(m *metrics.Metrics) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		slog.Warn("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		return
	}
	slog.Debug("metrics written", "path", cfg.Metrics.Textfile)
}

func init() {
	recordCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (overrides config)")
}
