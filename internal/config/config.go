package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Store  StoreConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StaticDir       string        `mapstructure:"static_dir"`
}

type AuthConfig struct {
	// Token is the shared secret checked on every upload. There is
	// deliberately no default: the service refuses to start without one.
	Token string `mapstructure:"token"`
}

type StoreConfig struct {
	UploadDir     string `mapstructure:"upload_dir"`
	JournalPath   string `mapstructure:"journal_path"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load initializes configuration from environment variables and an
// optional config file.
func Load() (*Config, error) {
	viper.SetEnvPrefix("CAMRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 5000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "15s")
	viper.SetDefault("server.static_dir", "./static")

	viper.SetDefault("store.upload_dir", "./uploads")
	viper.SetDefault("store.journal_path", "./camrelay.db")
	viper.SetDefault("store.max_upload_size", 32*1024*1024) // 32MB

	viper.SetDefault("log.level", "info")

	// auth.token has no default on purpose; see validateConfig.
	_ = viper.BindEnv("auth.token", "CAMRELAY_AUTH_TOKEN")
}

func validateConfig(config *Config) error {
	if config.Auth.Token == "" {
		return fmt.Errorf("auth token is required (set CAMRELAY_AUTH_TOKEN)")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", config.Server.Port)
	}
	if config.Store.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
