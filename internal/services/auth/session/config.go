package session

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config controls session token signing and cookie behavior.
type Config struct {
	SigningKeyHex string `env:"STAR_HAVEN_SESSION_HMAC_KEY"`
	SecureCookies bool   `env:"STAR_HAVEN_SESSION_SECURE_COOKIES" envDefault:"true"`
}

// LoadConfigFromEnv reads session configuration. The signing key is required:
// a missing key would silently make every deployment mint tokens nobody else
// can verify after a restart.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse session env: %w", err)
	}
	if strings.TrimSpace(cfg.SigningKeyHex) == "" {
		return Config{}, fmt.Errorf("STAR_HAVEN_SESSION_HMAC_KEY is required")
	}
	return cfg, nil
}

// SigningKey decodes the configured hex key.
func (c Config) SigningKey() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(c.SigningKeyHex))
	if err != nil {
		return nil, fmt.Errorf("decode session signing key: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("session signing key must be at least 32 bytes")
	}
	return key, nil
}
