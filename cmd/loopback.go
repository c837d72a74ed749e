package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/audiort/internal/metrics"
	"github.com/audiolibrelab/audiort/internal/recorder"

	"github.com/spf13/cobra"
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback [input|output]",
	Short: "Play a device back through the default output device",
	Long: `Capture the selected device and play it through the default output
device using the source's configuration. Nothing is written to disk.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"input", "output"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, err := directionArg(args)
		if err != nil {
			return err
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

		lb := recorder.NewLoopback(recorder.LoopbackOptions{
			Backend:    backend,
			Direction:  direction,
			DeviceName: cfg.Audio.Device,
			Delay:      cfg.Delay.Seconds,
			Quiet:      cfg.Quiet(),
			Out:        os.Stderr,
			Logger:     slog.Default(),
			Metrics:    m,
		})
		if err := lb.Prepare(); err != nil {
			return err
		}
		defer lb.Stop()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Fprintln(os.Stderr, "Press Enter to stop...")
		if err := lb.Run(ctx, waitForEnter(cmd.InOrStdin())); err != nil {
			return fmt.Errorf("loopback failed: %w", err)
		}

		if dropped := lb.Dropped(); dropped > 0 {
			slog.Warn("loopback queue overflowed", "dropped_bytes", dropped)
		}
		return nil
	},
}
