package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateConfigurationFormat_ValidConfig(t *testing.T) {
	validConfig := `
active_config: studio

configs:
  default:
    audio:
      backend: malgo
      direction: input
    output:
      directory: ~/Music/audiort
    delay:
      seconds: 3

  studio:
    audio:
      device: Scarlett 2i2 USB
    output:
      filename: studio.wav
    delay:
      quiet: true

  desktop:
    audio:
      direction: output
    metrics:
      textfile: /var/lib/node_exporter/audiort.prom
`

	configFile := createTempConfig(t, validConfig)

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if rootConfig.ActiveConfig != "studio" {
		t.Errorf("Expected active config 'studio', got '%s'", rootConfig.ActiveConfig)
	}
	if len(rootConfig.Configs) != 3 {
		t.Errorf("Expected 3 profiles, got %d", len(rootConfig.Configs))
	}

	studio := rootConfig.Configs["studio"]
	if studio == nil {
		t.Fatal("Expected studio config")
	}
	if studio.Audio.Device != "Scarlett 2i2 USB" {
		t.Errorf("Expected device 'Scarlett 2i2 USB', got '%s'", studio.Audio.Device)
	}
	if studio.Delay.Quiet == nil || !*studio.Delay.Quiet {
		t.Errorf("Expected quiet true, got %v", studio.Delay.Quiet)
	}
	if studio.Delay.Seconds != nil {
		t.Errorf("Expected no delay in studio profile, got %d", *studio.Delay.Seconds)
	}
}

func TestValidateConfigurationFormat_InvalidProfiles(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "unknown backend",
			config: `
configs:
  default:
    audio:
      backend: pipewire
`,
			wantErr: "audio.backend",
		},
		{
			name: "bad direction",
			config: `
configs:
  default:
    audio:
      direction: sideways
`,
			wantErr: "audio.direction",
		},
		{
			name: "filename with directory",
			config: `
configs:
  default:
    output:
      filename: takes/out.wav
`,
			wantErr: "output.filename",
		},
		{
			name: "delay too long",
			config: `
configs:
  default:
    delay:
      seconds: 7200
`,
			wantErr: "delay.seconds",
		},
		{
			name: "active config missing",
			config: `
active_config: nowhere
configs:
  default:
    audio:
      backend: auto
`,
			wantErr: "active_config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := createTempConfig(t, tt.config)

			_, err := ValidateConfigurationFormat(configFile)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing '%s', got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadWithProfile_MergesDefault(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio
configs:
  default:
    audio:
      backend: portaudio
    output:
      directory: /tmp/audiort
    delay:
      seconds: 2
  studio:
    audio:
      device: Scarlett
    output:
      filename: studio.wav
`)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Audio.Backend != "portaudio" {
		t.Errorf("Expected backend from default profile, got %s", cfg.Audio.Backend)
	}
	if cfg.Audio.Device != "Scarlett" {
		t.Errorf("Expected device 'Scarlett', got %s", cfg.Audio.Device)
	}
	if cfg.Audio.Direction != "input" {
		t.Errorf("Expected built-in direction 'input', got %s", cfg.Audio.Direction)
	}
	if cfg.OutputPath() != filepath.Join("/tmp/audiort", "studio.wav") {
		t.Errorf("Unexpected output path %s", cfg.OutputPath())
	}
	if cfg.Delay.Seconds == nil || *cfg.Delay.Seconds != 2 {
		t.Errorf("Expected delay 2 from default profile, got %v", cfg.Delay.Seconds)
	}
	if cfg.Inheritance.Audio.Device != "profile-specific" {
		t.Errorf("Expected device to be profile-specific, got %s", cfg.Inheritance.Audio.Device)
	}
}

func TestLoadWithProfile_ProfileFlagOverridesActive(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio
configs:
  studio:
    audio:
      device: Scarlett
  desktop:
    audio:
      direction: output
`)

	cfg, err := LoadWithProfile(configFile, "desktop")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Audio.Direction != "output" {
		t.Errorf("Expected direction 'output', got %s", cfg.Audio.Direction)
	}
	if cfg.Audio.Device != "default" {
		t.Errorf("Expected built-in device 'default', got %s", cfg.Audio.Device)
	}

	if _, err := LoadWithProfile(configFile, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestLoadWithProfile_MissingFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected built-in defaults, got error: %v", err)
	}
	if cfg.OutputPath() != DefaultFilename {
		t.Errorf("Expected output path %s, got %s", DefaultFilename, cfg.OutputPath())
	}

	if _, err := LoadWithProfile(configFile, "studio"); err == nil {
		t.Error("Expected error for a named profile without a config file")
	}

	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error for empty config path")
	}
}

func TestLoadWithProfile_EnvActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio
configs:
  studio:
    output:
      filename: studio.wav
  desktop:
    output:
      filename: desktop.wav
`)
	t.Setenv("AUDIORT_ACTIVE_CONFIG", "desktop")

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Output.Filename != "desktop.wav" {
		t.Errorf("Expected env to select desktop profile, got %s", cfg.Output.Filename)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: studio
configs:
  studio:
    output:
      filename: studio.wav
  desktop:
    output:
      filename: desktop.wav
`)

	if err := UpdateActiveConfig(configFile, "desktop"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Expected valid config after update, got: %v", err)
	}
	if rootConfig.ActiveConfig != "desktop" {
		t.Errorf("Expected active config 'desktop', got '%s'", rootConfig.ActiveConfig)
	}

	if err := UpdateActiveConfig(configFile, "nowhere"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

// Helper function to create temporary config files
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audiort-test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
