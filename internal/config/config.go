package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	RedisURL       string        `mapstructure:"redis_url"`
	RoomTTL        time.Duration `mapstructure:"room_ttl"`
	StoreRetries   int           `mapstructure:"store_retries"`
	DirectoryURL   string        `mapstructure:"directory_url"`
	DirectoryWait  time.Duration `mapstructure:"directory_timeout"`
	SessionSecret  string        `mapstructure:"session_secret"`
	SessionIssuer  string        `mapstructure:"session_issuer"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	SignalRate     int           `mapstructure:"signal_rate"`
	SignalWindow   time.Duration `mapstructure:"signal_window"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("redis_url", "")
	v.SetDefault("room_ttl", "24h")
	v.SetDefault("store_retries", 2)
	v.SetDefault("directory_url", "http://localhost:8081")
	v.SetDefault("directory_timeout", "5s")
	v.SetDefault("session_issuer", "syncdocs-identity")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("signal_rate", 100)
	v.SetDefault("signal_window", "1s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
