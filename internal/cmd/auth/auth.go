// Package auth wires configuration into the auth server.
package auth

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/starhaven/platform/internal/platform/config"
	"github.com/starhaven/platform/internal/platform/otel"
	server "github.com/starhaven/platform/internal/services/auth/app"
)

// Config holds auth command configuration.
type Config struct {
	Port     int    `env:"STAR_HAVEN_AUTH_PORT" envDefault:"8083"`
	HTTPAddr string `env:"STAR_HAVEN_AUTH_HTTP_ADDR" envDefault:"localhost:8084"`
}

// ParseConfig parses environment and flags into a Config. Flags win over
// environment values.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "The auth gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The auth HTTP server address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the auth server.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "auth")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return server.Run(ctx, cfg.Port, cfg.HTTPAddr)
}
