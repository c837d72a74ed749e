package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultProfile  = "default"
	DefaultFilename = "out.wav"

	// Longest countdown accepted from the config file
	MaxDelaySeconds = 3600
)

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Delay   DelayConfig   `mapstructure:"delay" yaml:"delay"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// ConfigProfile is one entry under configs. Fields left empty fall back to
// the default profile, then to built-in defaults.
type ConfigProfile = Config

type InheritanceInfo struct {
	Audio struct {
		Backend   string // "inherited" or "profile-specific"
		Device    string
		Direction string
	}
	Output struct {
		Directory string
		Filename  string
	}
	Delay struct {
		Seconds string
		Quiet   string
	}
	Metrics struct {
		Textfile string
	}
}

type AudioConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`     // "auto", "malgo", "portaudio"
	Device    string `mapstructure:"device" yaml:"device"`       // device name, "default" for the system default
	Direction string `mapstructure:"direction" yaml:"direction"` // "input", "output"
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Filename  string `mapstructure:"filename" yaml:"filename"`
}

type DelayConfig struct {
	Seconds *uint `mapstructure:"seconds" yaml:"seconds,omitempty"`
	Quiet   *bool `mapstructure:"quiet" yaml:"quiet,omitempty"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"` // node-exporter textfile written at the end of a run
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:   "auto",
		Device:    "default",
		Direction: "input",
	},
	Output: OutputConfig{
		Directory: "",
		Filename:  DefaultFilename,
	},
}

var (
	validBackends   = []string{"auto", "malgo", "miniaudio", "portaudio"}
	validDirections = []string{"input", "output"}
)

// Default returns the built-in configuration
func Default() *Config {
	return mergeConfigs(&defaultConfig, nil)
}

// DefaultPath is where the config file is looked up when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/audiort.yaml")
}

// LoadWithProfile resolves a profile from configFile. A missing file is not
// an error: the built-in defaults are used as long as no profile other than
// the default was asked for.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if profile != "" && profile != DefaultProfile {
			return nil, fmt.Errorf("configuration profile '%s' not found: %s does not exist", profile, configFile)
		}
		return Default(), nil
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = DefaultProfile
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		if configName != DefaultProfile {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selectedProfile = &ConfigProfile{}
	}

	// Built-in defaults, then the default profile, then the selected one
	base := mergeConfigs(&defaultConfig, rootConfig.Configs[DefaultProfile])
	selectedConfig := base
	if configName != DefaultProfile {
		selectedConfig = mergeConfigs(base, selectedProfile)
	}

	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	selectedConfig.Metrics.Textfile = expandPath(selectedConfig.Metrics.Textfile)

	if err := validateConfig(selectedConfig, configName); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	// Read current config
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveConfig != DefaultProfile && !v.IsSet("configs."+newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found in %s", newActiveConfig, configFile)
	}

	// Update the active_config field
	v.Set("active_config", newActiveConfig)

	// Write back to file
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// every setting uses the profile value when set and falls back to base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}

	// Start with base config and mark everything as inherited
	if base != nil {
		result.Audio = base.Audio
		result.Output = base.Output
		result.Delay = base.Delay
		result.Metrics = base.Metrics

		result.Inheritance.Audio.Backend = "inherited"
		result.Inheritance.Audio.Device = "inherited"
		result.Inheritance.Audio.Direction = "inherited"
		result.Inheritance.Output.Directory = "inherited"
		result.Inheritance.Output.Filename = "inherited"
		result.Inheritance.Delay.Seconds = "inherited"
		result.Inheritance.Delay.Quiet = "inherited"
		result.Inheritance.Metrics.Textfile = "inherited"
	}

	if profile == nil {
		return result
	}

	// Override with profile values
	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		result.Inheritance.Audio.Backend = "profile-specific"
	}
	if profile.Audio.Device != "" {
		result.Audio.Device = profile.Audio.Device
		result.Inheritance.Audio.Device = "profile-specific"
	}
	if profile.Audio.Direction != "" {
		result.Audio.Direction = profile.Audio.Direction
		result.Inheritance.Audio.Direction = "profile-specific"
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = "profile-specific"
	}
	if profile.Output.Filename != "" {
		result.Output.Filename = profile.Output.Filename
		result.Inheritance.Output.Filename = "profile-specific"
	}

	// Pointers: an explicit 0 or false in the profile still overrides
	if profile.Delay.Seconds != nil {
		seconds := *profile.Delay.Seconds
		result.Delay.Seconds = &seconds
		result.Inheritance.Delay.Seconds = "profile-specific"
	}
	if profile.Delay.Quiet != nil {
		quiet := *profile.Delay.Quiet
		result.Delay.Quiet = &quiet
		result.Inheritance.Delay.Quiet = "profile-specific"
	}

	if profile.Metrics.Textfile != "" {
		result.Metrics.Textfile = profile.Metrics.Textfile
		result.Inheritance.Metrics.Textfile = "profile-specific"
	}

	return result
}

// OutputPath joins the output directory and filename
func (c *Config) OutputPath() string {
	return filepath.Join(c.Output.Directory, c.Output.Filename)
}

// Quiet reports whether the countdown should skip the alert
func (c *Config) Quiet() bool {
	return c.Delay.Quiet != nil && *c.Delay.Quiet
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("AUDIORT")
	v.AutomaticEnv()
	_ = v.BindEnv("active_config")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate each profile on its own; empty fields are allowed here
	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			return nil, fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateProfile(configProfile); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	if active := rootConfig.ActiveConfig; active != "" && active != DefaultProfile {
		if _, ok := rootConfig.Configs[active]; !ok {
			return nil, fmt.Errorf("active_config '%s' does not match any entry in configs", active)
		}
	}

	return &rootConfig, nil
}

// validateProfile checks the values a profile sets
func validateProfile(p *ConfigProfile) error {
	if p.Audio.Backend != "" && !oneOf(p.Audio.Backend, validBackends) {
		return fmt.Errorf("audio.backend must be one of %v, got: %s", validBackends, p.Audio.Backend)
	}
	if p.Audio.Direction != "" && !oneOf(p.Audio.Direction, validDirections) {
		return fmt.Errorf("audio.direction must be 'input' or 'output', got: %s", p.Audio.Direction)
	}
	if p.Output.Filename != "" {
		if strings.ContainsRune(p.Output.Filename, filepath.Separator) {
			return fmt.Errorf("output.filename must not contain a path separator, got: %s", p.Output.Filename)
		}
	}
	if p.Delay.Seconds != nil && *p.Delay.Seconds > MaxDelaySeconds {
		return fmt.Errorf("delay.seconds must be <= %d, got: %d", MaxDelaySeconds, *p.Delay.Seconds)
	}
	return nil
}

// validateConfig checks a fully resolved configuration
func validateConfig(c *Config, configName string) error {
	if err := validateProfile(c); err != nil {
		return fmt.Errorf("profile '%s': %w", configName, err)
	}
	if c.Output.Filename == "" {
		return fmt.Errorf("profile '%s': output.filename is required", configName)
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}
