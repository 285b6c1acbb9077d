package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// LOGSHIP_AGENT_COLLECTOR_URL overrides collector.url.
const EnvPrefix = "LOGSHIP_AGENT"

type Config struct {
	Collector  CollectorConfig  `mapstructure:"collector" yaml:"collector"`
	Device     DeviceConfig     `mapstructure:"device" yaml:"device"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Source     SourceConfig     `mapstructure:"source" yaml:"source"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Follow     FollowConfig     `mapstructure:"follow" yaml:"follow"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type CollectorConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxLines splits large backlogs into several batches.
	MaxLines int `mapstructure:"max_lines" yaml:"max_lines"`
}

// DeviceConfig overrides device id discovery when ID is set.
type DeviceConfig struct {
	ID          string `mapstructure:"id" yaml:"id"`
	CPUInfoPath string `mapstructure:"cpuinfo_path" yaml:"cpuinfo_path"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type SourceConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type CheckpointConfig struct {
	Path     string        `mapstructure:"path" yaml:"path"`
	Lookback time.Duration `mapstructure:"lookback" yaml:"lookback"`
}

type FollowConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configPath (or ./agent.yaml, /etc/logship/agent.yaml) and
// applies environment overrides. Variables from envFile are exported
// first; a missing envFile is not an error.
func Load(configPath, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetDefault("collector.url", "http://localhost:8080/api/v1/logs")
	v.SetDefault("collector.timeout", "30s")
	v.SetDefault("collector.max_lines", 5000)
	v.SetDefault("device.id", "")
	v.SetDefault("device.cpuinfo_path", "/proc/cpuinfo")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "5m")
	v.SetDefault("source.path", "/var/log/syslog")
	v.SetDefault("checkpoint.path", "/var/lib/logship/checkpoint")
	v.SetDefault("checkpoint.lookback", "5m")
	v.SetDefault("follow.poll_interval", "1m")
	v.SetDefault("follow.debounce", "2s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/logship")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
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

func (c *Config) Validate() error {
	if c.Collector.URL == "" {
		return errors.New("collector.url is required")
	}
	if c.Source.Path == "" {
		return errors.New("source.path is required")
	}
	if c.Checkpoint.Path == "" {
		return errors.New("checkpoint.path is required")
	}
	if c.Checkpoint.Lookback < 0 {
		return errors.New("checkpoint.lookback must not be negative")
	}
	if c.Collector.MaxLines < 0 {
		return errors.New("collector.max_lines must not be negative")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Auth.Secret != "" {
		c.Auth.Secret = "********"
	}
	return c
}

func loadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
