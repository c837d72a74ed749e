package cmd

import (
	"fmt"

	"github.com/audiolibrelab/audiort/internal/audio"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [input|output]",
	Short: "Show the resolved device, WAV header and configuration",
	Long:  `Display the device a recording would use, its native configuration, the WAV header that would be written and the resolved configuration with inheritance indicators. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.MaximumNArgs(1),
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

		fmt.Printf("=== DEVICE ===\n")
		fmt.Printf("backend: %s\n", backend.Type())
		fmt.Printf("direction: %s\n", direction)

		dev, err := audio.ResolveNamed(backend, direction, cfg.Audio.Device)
		if err != nil {
			fmt.Printf("device: unavailable (%v)\n", err)
		} else {
			printDevice(dev)
		}

		fmt.Printf("\n=== FILE PATHS ===\n")
		fmt.Printf("output: %s\n", cfg.OutputPath())
		if cfg.Metrics.Textfile != "" {
			fmt.Printf("metrics: %s\n", cfg.Metrics.Textfile)
		}

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, getInheritanceIndicator(cfg.Inheritance.Audio.Backend))
		fmt.Printf("device: %s %s\n", cfg.Audio.Device, getInheritanceIndicator(cfg.Inheritance.Audio.Device))
		fmt.Printf("direction: %s %s\n", cfg.Audio.Direction, getInheritanceIndicator(cfg.Inheritance.Audio.Direction))

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(cfg.Inheritance.Output.Directory))
		fmt.Printf("filename: %s %s\n", cfg.Output.Filename, getInheritanceIndicator(cfg.Inheritance.Output.Filename))

		fmt.Printf("\n[Delay]\n")
		seconds := uint(0)
		if cfg.Delay.Seconds != nil {
			seconds = *cfg.Delay.Seconds
		}
		fmt.Printf("seconds: %d %s\n", seconds, getInheritanceIndicator(cfg.Inheritance.Delay.Seconds))
		fmt.Printf("quiet: %t %s\n", cfg.Quiet(), getInheritanceIndicator(cfg.Inheritance.Delay.Quiet))

		fmt.Printf("\n[Metrics]\n")
		fmt.Printf("textfile: %s %s\n", cfg.Metrics.Textfile, getInheritanceIndicator(cfg.Inheritance.Metrics.Textfile))

		return nil
	},
}

func printDevice(dev *audio.Device) {
	name, err := dev.Name()
	if err != nil {
		name = "(" + err.Error() + ")"
	}
	native := dev.NativeConfig()
	fmt.Printf("device: %s\n", name)
	fmt.Printf("native: %s\n", native)

	codec, err := audio.CodecFor(native.Format)
	if err != nil {
		fmt.Printf("recordable: no (%v)\n", err)
		return
	}

	spec := native.WavSpec()
	fmt.Printf("\n=== WAV HEADER ===\n")
	fmt.Printf("channels: %d\n", spec.Channels)
	fmt.Printf("sample_rate: %d\n", spec.SampleRate)
	fmt.Printf("bits_per_sample: %d\n", spec.BitsPerSample)
	fmt.Printf("encoding: %s (format tag %d)\n", spec.Encoding, int(spec.Encoding))
	if codec.Format == audio.FormatS8 {
		fmt.Printf("note: 8-bit samples are stored unsigned\n")
	}
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[built-in]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
