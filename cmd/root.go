package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/audiort/internal/audio"
	"github.com/audiolibrelab/audiort/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
	delaySeconds uint
	quiet        bool
	backendName  string
	deviceName   string
)

var rootCmd = &cobra.Command{
	Use:   "audiort",
	Short: "Record an audio device to a WAV file",
	Long: `audiort captures the default input or output device at its native
format and writes the samples to a WAV file until you press Enter.

Recording an output device captures what the system is playing
(loopback, where the backend supports it).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		applyFlagOverrides(cmd)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/audiort.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug (includes backend messages)")
	rootCmd.PersistentFlags().UintVarP(&delaySeconds, "delay", "d", 0, "seconds to count down before the stream starts (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not ring the terminal bell during the countdown")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "audio backend: auto, malgo, portaudio (overrides config)")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device", "", "device name or substring (overrides config)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(loopbackCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
}

// applyFlagOverrides copies explicitly set global flags over the loaded config
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("delay") {
		seconds := delaySeconds
		cfg.Delay.Seconds = &seconds
	}
	if flags.Changed("quiet") {
		q := quiet
		cfg.Delay.Quiet = &q
	}
	if flags.Changed("backend") {
		cfg.Audio.Backend = backendName
	}
	if flags.Changed("device") {
		cfg.Audio.Device = deviceName
	}
}

// directionArg picks the direction from the optional positional argument,
// falling back to the configured one
func directionArg(args []string) (audio.Direction, error) {
	if len(args) > 0 {
		return audio.ParseDirection(args[0])
	}
	return audio.ParseDirection(cfg.Audio.Direction)
}

// openBackend opens the configured audio backend. The caller closes it.
func openBackend() (audio.Backend, error) {
	backend, err := audio.NewBackend(cfg.Audio.Backend, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open audio backend: %w", err)
	}
	slog.Debug("audio backend ready", "backend", backend.Type())
	return backend, nil
}

func closeBackend(backend audio.Backend) {
	if err := backend.Close(); err != nil {
		slog.Warn("failed to close audio backend", "error", err)
	}
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
