package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DATA_DIR keeps badger and bluge files for inspection, a temp dir otherwise
	DataDir string `envconfig:"E2E_DATA_DIR"`
	// E2E_LOG_LEVEL raises service logs while debugging a scenario
	LogLevel string `envconfig:"E2E_LOG_LEVEL" default:"ERROR"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
