package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/audiort/internal/audio"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices [input|output]",
	Short: "List available audio devices",
	Long:  `List the devices the selected backend can open, with their native configuration. Without an argument both directions are listed.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		directions := []audio.Direction{audio.Input, audio.Output}
		if len(args) == 1 {
			dir, err := audio.ParseDirection(args[0])
			if err != nil {
				return err
			}
			directions = []audio.Direction{dir}
		}

		backend, err := openBackend()
		if err != nil {
			return err
		}
		defer closeBackend(backend)

		fmt.Printf("Audio devices (%s, %s)\n", backend.Type(), runtime.GOOS)
		for _, dir := range directions {
			if err := listDevices(backend, dir); err != nil {
				return err
			}
		}
		return nil
	},
}

// listDevices prints the devices of one direction, marking the default
func listDevices(backend audio.Backend, dir audio.Direction) error {
	devices, err := backend.Devices(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s devices: %w", dir, err)
	}

	fmt.Printf("\n%s (%d found):\n", dir, len(devices))
	for i, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}

		recordable := ""
		if err := d.Native.Validate(); err != nil {
			recordable = " [no native config]"
		} else if !d.Native.Format.Supported() {
			recordable = " [format not recordable]"
		}
		fmt.Printf(" %s %d. %s: %s%s\n", marker, i+1, name, d.Native, recordable)
	}
	return nil
}
