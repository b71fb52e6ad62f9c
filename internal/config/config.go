// Package config loads the enclave's runtime configuration, grounded on
// control-plane/internal/config/config.go's viper setup: a defaults
// pass, an optional YAML file, and environment variable overrides under
// a single prefix, unmarshalled into a typed struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the enclave's coordinator and executor
// need at startup.
type Config struct {
	Socket   SocketConfig   `mapstructure:"socket"`
	Handles  HandlesConfig  `mapstructure:"handles"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	Attestor AttestorConfig `mapstructure:"attestor"`
}

// SocketConfig holds the unix-domain listener the protocol server binds.
// spec.md's transport is a generic stream socket; "unix" is the only
// network net.Listen can actually serve without an additional
// transport dependency this repo does not carry.
type SocketConfig struct {
	Network      string        `mapstructure:"network"` // "unix"
	Address      string        `mapstructure:"address"`
	MaxFrameSize uint32        `mapstructure:"max_frame_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// HandlesConfig points at the directory the write-once key, manifest,
// and pivot slots live under.
type HandlesConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"` // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// AttestorConfig selects and configures the attestation backend. Mode
// is resolved against the binary's build tag (nitro vs mock); fields
// here only parameterize the mock attestor for non-enclave testing.
type AttestorConfig struct {
	Mode     string `mapstructure:"mode"` // "nitro" or "mock"
	ModuleID string `mapstructure:"module_id"`
}

// Load reads configuration from an optional YAML file and QOS_-prefixed
// environment variables, falling back to the defaults set here.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/qos")

	v.SetEnvPrefix("QOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the enclave cannot run with.
func (c Config) Validate() error {
	if c.Socket.Network != "unix" {
		return fmt.Errorf("config: socket.network must be \"unix\", got %q", c.Socket.Network)
	}
	if c.Socket.Address == "" {
		return fmt.Errorf("config: socket.address must not be empty")
	}
	if c.Handles.RootDir == "" {
		return fmt.Errorf("config: handles.root_dir must not be empty")
	}
	switch c.Attestor.Mode {
	case "nitro", "mock":
	default:
		return fmt.Errorf("config: attestor.mode must be \"nitro\" or \"mock\", got %q", c.Attestor.Mode)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("socket.network", "unix")
	v.SetDefault("socket.address", "/tmp/qos-enclave.sock")
	v.SetDefault("socket.max_frame_size", 4<<20)
	v.SetDefault("socket.read_timeout", "30s")

	v.SetDefault("handles.root_dir", "/qos/handles")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", "0.0.0.0:9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("attestor.mode", "mock")
	v.SetDefault("attestor.module_id", "qos-enclave")
}
