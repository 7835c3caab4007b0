package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name declared in Config tags.
const EnvPrefix = "AUTHKEEPER_"

// dotEnvPath returns the .env file to load, overridable via AUTHKEEPER_ENV_FILE.
func dotEnvPath() string {
	if p := os.Getenv(EnvPrefix + "ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}

// loadDotEnv exports the variables of an optional .env file into the process
// environment. Variables that are already set are left alone. A missing file
// is not an error; an unreadable or malformed one panics.
func loadDotEnv() {
	path := dotEnvPath()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		panic(fmt.Errorf("load %s: %w", path, err))
	}
}

// parseEnv overlays AUTHKEEPER_* environment variables onto config.
// Unset variables keep the current values.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(fmt.Errorf("parse env: %w", err))
	}
}
