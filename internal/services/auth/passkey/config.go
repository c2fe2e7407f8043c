// Package passkey holds WebAuthn relying-party configuration.
package passkey

import (
	"github.com/caarlos0/env/v11"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string   `env:"STAR_HAVEN_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Star Haven"`
	RPID          string   `env:"STAR_HAVEN_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string `env:"STAR_HAVEN_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
}

// LoadConfigFromEnv returns passkey configuration with localhost defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "Star Haven",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8080"},
		}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = "Star Haven"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8080"}
	}
	return cfg
}
