package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/termbridge/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int          `mapstructure:"config_version" yaml:"config_version"`
	Bridge        BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
	Host          HostConfig   `mapstructure:"host" yaml:"host"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BridgeConfig controls the bridge side: where it dials and how it buffers.
type BridgeConfig struct {
	HostURL             string `mapstructure:"host_url" yaml:"host_url"`
	BufferMaxChunks     int    `mapstructure:"buffer_max_chunks" yaml:"buffer_max_chunks"`
	LayoutSettleDelayMs int    `mapstructure:"layout_settle_delay_ms" yaml:"layout_settle_delay_ms"`
	AccelDowngrade      bool   `mapstructure:"accel_downgrade" yaml:"accel_downgrade"`
}

// ToService converts the bridge section into the core service config.
func (c BridgeConfig) ToService() schema.BridgeConfig {
	downgrade := c.AccelDowngrade
	return schema.BridgeConfig{
		BufferMaxChunks:   c.BufferMaxChunks,
		LayoutSettleDelay: time.Duration(c.LayoutSettleDelayMs) * time.Millisecond,
		AccelDowngrade:    &downgrade,
	}
}

// HostConfig controls the session host: listener, shell, and retention.
type HostConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	Path            string `mapstructure:"path" yaml:"path"`
	Shell           string `mapstructure:"shell" yaml:"shell"`
	ScrollbackBytes int    `mapstructure:"scrollback_bytes" yaml:"scrollback_bytes"`
	HighWaterBytes  int64  `mapstructure:"high_water_bytes" yaml:"high_water_bytes"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Bridge: BridgeConfig{
			HostURL:             "ws://127.0.0.1:27490/bridge",
			BufferMaxChunks:     schema.DefaultBufferMaxChunks,
			LayoutSettleDelayMs: int(schema.DefaultLayoutSettleDelay.Milliseconds()),
			AccelDowngrade:      true,
		},
		Host: HostConfig{
			Addr:            "127.0.0.1:27490",
			Path:            "/bridge",
			Shell:           "",
			ScrollbackBytes: 256 * 1024,
			HighWaterBytes:  512 * 1024,
		},
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termbridge", "config.yaml"), nil
}
