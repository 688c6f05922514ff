package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverLXC    = "lxc"
	DriverDocker = "docker"
)

// AppConfig holds daemon-level configuration.
type AppConfig struct {
	NodeName         string `mapstructure:"node_name" yaml:"node_name"`
	ListenAddr       string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Driver           string `mapstructure:"driver" yaml:"driver"`
	PollInterval     int    `mapstructure:"poll_interval" yaml:"poll_interval"`
	CommandTimeout   int    `mapstructure:"command_timeout" yaml:"command_timeout"`
	CreateTimeout    int    `mapstructure:"create_timeout" yaml:"create_timeout"`
	ReconcileOnStart bool   `mapstructure:"reconcile_on_start" yaml:"reconcile_on_start"`
}

// LxcConfig configures the lxc-* command line backend.
type LxcConfig struct {
	BinDir    string `mapstructure:"bin_dir" yaml:"bin_dir"`
	Template  string `mapstructure:"template" yaml:"template"`
	MemoryKey string `mapstructure:"memory_key" yaml:"memory_key"`
	Shell     string `mapstructure:"shell" yaml:"shell"`
}

// DockerConfig configures the Docker Engine backend.
type DockerConfig struct {
	Image       string   `mapstructure:"image" yaml:"image"`
	Command     []string `mapstructure:"command" yaml:"command"`
	Shell       string   `mapstructure:"shell" yaml:"shell"`
	StopTimeout int      `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// SessionConfig tunes interactive terminal sessions.
type SessionConfig struct {
	BufferSize        int `mapstructure:"buffer_size" yaml:"buffer_size"`
	Backlog           int `mapstructure:"backlog" yaml:"backlog"`
	ReadRetryInterval int `mapstructure:"read_retry_interval" yaml:"read_retry_interval"` // milliseconds
	CloseTimeout      int `mapstructure:"close_timeout" yaml:"close_timeout"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level string `mapstructure:"log_level" yaml:"log_level"`
}

// EtcdConfig holds etcd-related configuration for the status mirror.
type EtcdConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoints   []string `mapstructure:"endpoints" yaml:"endpoints"`
	PathPrefix  string   `mapstructure:"path_prefix" yaml:"path_prefix"`
	LeaseTTL    int64    `mapstructure:"lease_ttl" yaml:"lease_ttl"`
	DialTimeout int      `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Config is the top-level configuration struct.
type Config struct {
	App     AppConfig     `mapstructure:"app" yaml:"app"`
	Lxc     LxcConfig     `mapstructure:"lxc" yaml:"lxc"`
	Docker  DockerConfig  `mapstructure:"docker" yaml:"docker"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Logging LoggingConfig `mapstructure:"log" yaml:"log"`
	Etcd    EtcdConfig    `mapstructure:"etcd" yaml:"etcd"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.node_name", "")
	v.SetDefault("app.listen_addr", ":8080")
	v.SetDefault("app.driver", DriverLXC)
	v.SetDefault("app.poll_interval", 10)
	v.SetDefault("app.command_timeout", 60)
	v.SetDefault("app.create_timeout", 600)
	v.SetDefault("app.reconcile_on_start", true)
	v.SetDefault("lxc.bin_dir", "")
	v.SetDefault("lxc.template", "ubuntu")
	v.SetDefault("lxc.memory_key", "memory.limit_in_bytes")
	v.SetDefault("lxc.shell", "bash")
	v.SetDefault("docker.image", "ubuntu:24.04")
	v.SetDefault("docker.command", []string{"sleep", "infinity"})
	v.SetDefault("docker.shell", "bash")
	v.SetDefault("docker.stop_timeout", 10)
	v.SetDefault("session.buffer_size", 64)
	v.SetDefault("session.backlog", 100)
	v.SetDefault("session.read_retry_interval", 100)
	v.SetDefault("session.close_timeout", 5)
	v.SetDefault("log.log_level", "INFO")
	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.path_prefix", "/nodehostd")
	v.SetDefault("etcd.lease_ttl", 30)
	v.SetDefault("etcd.dial_timeout", 2)
}

// InitConfig performs the initial configuration: setting defaults, specifying the config file, and reading it.
func InitConfig(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config") // Looks for config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nodehostd")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// If the file is not found, just continue with defaults and env vars.
	}

	// Enable automatic environment variable binding.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct.
func Load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.App.Driver {
	case DriverLXC, DriverDocker:
	default:
		return fmt.Errorf("unsupported driver %q", c.App.Driver)
	}
	if c.App.PollInterval <= 0 {
		return fmt.Errorf("app.poll_interval must be positive, got %d", c.App.PollInterval)
	}
	if c.App.CommandTimeout <= 0 || c.App.CreateTimeout <= 0 {
		return fmt.Errorf("command timeouts must be positive")
	}
	if c.Session.BufferSize <= 0 {
		return fmt.Errorf("session.buffer_size must be positive, got %d", c.Session.BufferSize)
	}
	if c.Etcd.Enabled && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required when etcd is enabled")
	}
	return nil
}

func (a AppConfig) PollEvery() time.Duration {
	return time.Duration(a.PollInterval) * time.Second
}

func (a AppConfig) CommandDeadline() time.Duration {
	return time.Duration(a.CommandTimeout) * time.Second
}

func (a AppConfig) CreateDeadline() time.Duration {
	return time.Duration(a.CreateTimeout) * time.Second
}

func (s SessionConfig) RetryEvery() time.Duration {
	return time.Duration(s.ReadRetryInterval) * time.Millisecond
}

func (s SessionConfig) CloseWait() time.Duration {
	return time.Duration(s.CloseTimeout) * time.Second
}
