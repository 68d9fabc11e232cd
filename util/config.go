package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080" validate:"required,number"`
	StoreURL        string        `env:"STORE_URL" envDefault:"memory://" validate:"required"`
	StoreTTL        time.Duration `env:"STORE_TTL" envDefault:"0s" validate:"gte=0s"`
	EnginePath      string        `env:"ENGINE_PATH"`
	EngineMoveTime  time.Duration `env:"ENGINE_MOVE_TIME" envDefault:"2s" validate:"gt=0s"`
	EngineSide      string        `env:"ENGINE_SIDE" envDefault:"black" validate:"oneof=white black"`
	RoomIdleTTL     time.Duration `env:"ROOM_IDLE_TTL" envDefault:"30m" validate:"gte=0s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m" validate:"gt=0s"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*" validate:"min=1,dive,required"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	OTelEndpoint    string        `env:"OTEL_ENDPOINT" validate:"omitempty,url"`
}

// EngineEnabled reports whether an engine binary was configured.
func (c *Config) EngineEnabled() bool {
	return c.EnginePath != ""
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%v", c.Port)
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	return parseConfig(env.ToMap(os.Environ()))
}

func parseConfig(environ map[string]string) (*Config, error) {
	config := &Config{}

	if err := env.ParseWithOptions(config, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := Validate.Struct(config); err != nil {
		return nil, err
	}

	return config, nil
}
