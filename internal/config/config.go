package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	Secret         string        `mapstructure:"secret"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	RegisterLimit  int           `mapstructure:"register_limit"`
	RegisterWindow time.Duration `mapstructure:"register_window"`
}

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	STUNServers    []string      `mapstructure:"stun_servers"`
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
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

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.register_limit", 10)
	v.SetDefault("server.register_window", "1m")
	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.reconnect_delay", "3s")
	v.SetDefault("client.stun_servers", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
