// Package config loads runtime configuration from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds service configuration.
type Config struct {
	// APIBaseURL is the marketplace REST endpoint.
	APIBaseURL string `env:"API_BASE_URL,default=https://api.scribemarket.io"`
	// SocketURL is the realtime transport endpoint.
	SocketURL string `env:"SOCKET_URL,default=wss://rt.scribemarket.io/socket"`
	// BearerToken authenticates both the REST client and the socket.
	BearerToken string `env:"BEARER_TOKEN,required"`
	// IdentityID is the user this process syncs state for.
	IdentityID string `env:"IDENTITY_ID,required"`

	// CallbackAddr serves the payment provider's browser-return callbacks.
	CallbackAddr string `env:"CALLBACK_ADDR,default=127.0.0.1:8335"`

	DialTimeout time.Duration `env:"DIAL_TIMEOUT,default=10s"`
	BackoffBase time.Duration `env:"BACKOFF_BASE,default=500ms"`
	BackoffCap  time.Duration `env:"BACKOFF_CAP,default=30s"`
	MaxRetries  int           `env:"MAX_RETRIES,default=8"`
}

// Load reads configuration from environment.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return cfg, nil
}
