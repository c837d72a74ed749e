package audio

import (
	"fmt"
	"strings"
)

// Device is a resolved physical device and its negotiated configuration.
// It is immutable after resolution except through UseConfig.
type Device struct {
	info    DeviceInfo
	config  StreamConfig
	backend Backend
}

// Resolve returns the backend's default device for dir. The device must
// report a complete native configuration.
func Resolve(b Backend, dir Direction) (*Device, error) {
	info, err := b.DefaultDevice(dir)
	if err != nil {
		return nil, err
	}
	return newDevice(b, dir, info)
}

// ResolveNamed selects a device by exact name, then by case-insensitive
// substring. An empty name or "default" resolves the default device.
func ResolveNamed(b Backend, dir Direction, name string) (*Device, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "default") {
		return Resolve(b, dir)
	}

	infos, err := b.Devices(dir)
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		if info.Name == name {
			return newDevice(b, dir, info)
		}
	}

	lower := strings.ToLower(name)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name), lower) {
			return newDevice(b, dir, info)
		}
	}

	return nil, fmt.Errorf("%w: no %s device matching %q (%d available)", ErrNoDeviceAvailable, dir, name, len(infos))
}

func newDevice(b Backend, dir Direction, info DeviceInfo) (*Device, error) {
	if err := info.Native.Validate(); err != nil {
		return nil, fmt.Errorf("%s device %q: %w", dir, info.Name, err)
	}
	info.Direction = dir
	return &Device{info: info, config: info.Native, backend: b}, nil
}

// Name is best effort; a missing name is not fatal
func (d *Device) Name() (string, error) {
	if d.info.Name == "" {
		return "", ErrNameUnavailable
	}
	return d.info.Name, nil
}

func (d *Device) Direction() Direction { return d.info.Direction }

// NativeConfig is the configuration the device reported when resolved
func (d *Device) NativeConfig() StreamConfig { return d.info.Native }

// Config is the configuration streams built on this device will use
func (d *Device) Config() StreamConfig { return d.config }

// UseConfig substitutes a configuration the device may not support.
// Validity is checked when a stream is built.
func (d *Device) UseConfig(cfg StreamConfig) {
	d.config = cfg
}

func (d *Device) Info() DeviceInfo { return d.info }
