package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment with an
// optional .env on top.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	StoragePath  string `env:"STORAGE_PATH" envDefault:"tidelink.json"`

	NodeHost     string `env:"NODE_HOST" envDefault:"127.0.0.1"`
	NodePort     int    `env:"NODE_PORT" envDefault:"2333"`
	NodePassword string `env:"NODE_PASSWORD" envDefault:"youshallnotpass"`
	NodeSecure   bool   `env:"NODE_SECURE" envDefault:"false"`
	NodeDriver   string `env:"NODE_DRIVER" envDefault:"lavalink-v4"`

	NodeResume        bool          `env:"NODE_RESUME" envDefault:"true"`
	NodeResumeTimeout time.Duration `env:"NODE_RESUME_TIMEOUT" envDefault:"60s"`

	ReconnectTries       int           `env:"NODE_RECONNECT_TRIES" envDefault:"5"`
	ReconnectInterval    time.Duration `env:"NODE_RECONNECT_INTERVAL" envDefault:"5s"`
	ReconnectExponential bool          `env:"NODE_RECONNECT_EXPONENTIAL" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// New loads the configuration. A missing .env file is fine; the system
// environment always wins.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}
