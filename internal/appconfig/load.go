package appconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("bridge.host_url", cfg.Bridge.HostURL)
	v.SetDefault("bridge.buffer_max_chunks", cfg.Bridge.BufferMaxChunks)
	v.SetDefault("bridge.layout_settle_delay_ms", cfg.Bridge.LayoutSettleDelayMs)
	v.SetDefault("bridge.accel_downgrade", cfg.Bridge.AccelDowngrade)
	v.SetDefault("host.addr", cfg.Host.Addr)
	v.SetDefault("host.path", cfg.Host.Path)
	v.SetDefault("host.shell", cfg.Host.Shell)
	v.SetDefault("host.scrollback_bytes", cfg.Host.ScrollbackBytes)
	v.SetDefault("host.high_water_bytes", cfg.Host.HighWaterBytes)

	// A missing config file means defaults; anything else is an error.
	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Host.Shell = expandEnv(cfg.Host.Shell)
	if err := validateBridgeConfig(cfg.Bridge); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateBridgeConfig(cfg BridgeConfig) error {
	parsed, err := url.Parse(cfg.HostURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("bridge.host_url must include scheme and host (e.g. ws://127.0.0.1:27490/bridge)")
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("bridge.host_url scheme must be ws or wss, got %q", parsed.Scheme)
	}
	if cfg.BufferMaxChunks < 0 {
		return fmt.Errorf("bridge.buffer_max_chunks must not be negative")
	}
	if cfg.LayoutSettleDelayMs < 0 {
		return fmt.Errorf("bridge.layout_settle_delay_ms must not be negative")
	}
	return nil
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
