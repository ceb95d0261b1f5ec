package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	// Client side.
	HubURL           string        `mapstructure:"hub_url"`
	ReconnectBase    time.Duration `mapstructure:"reconnect_base"`
	ReconnectCap     time.Duration `mapstructure:"reconnect_cap"`
	ReconnectMax     int           `mapstructure:"reconnect_max_attempts"`
	DedupTTL         time.Duration `mapstructure:"dedup_ttl"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	StunServers      []string      `mapstructure:"stun_servers"`

	// Hub server side.
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
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
	v.SetDefault("hub_url", "ws://localhost:8080/api/ws/hub")
	v.SetDefault("reconnect_base", "1s")
	v.SetDefault("reconnect_cap", "30s")
	v.SetDefault("reconnect_max_attempts", 5)
	v.SetDefault("dedup_ttl", "1m")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("handshake_timeout", "30s")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("port", 8080)

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
