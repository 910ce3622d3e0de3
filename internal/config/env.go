package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the settings read from the environment. They sit below the
// analysis file and command-line flags in precedence.
type Env struct {
	Trials    int    `env:"QBA_TRIALS" envDefault:"1000"`
	Workers   int    `env:"QBA_WORKERS" envDefault:"0"`
	Seed      uint64 `env:"QBA_SEED" envDefault:"0"`
	LogLevel  string `env:"QBA_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"QBA_LOG_FORMAT" envDefault:"text"`
	DB        string `env:"QBA_DB"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	err := ParseEnv(&e)
	return e, err
}

// LoadEnvFrom reads Env from vars instead of the process environment.
func LoadEnvFrom(vars map[string]string) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
