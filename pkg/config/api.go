package config

import (
	"errors"
	"fmt"
	"strings"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth   APIAuthConfig   `yaml:"auth" mapstructure:"auth"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user. PasswordHash is a bcrypt hash.
type BasicAuthUser struct {
	Username     string `yaml:"username" mapstructure:"username"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// ValidateAPI checks the API server configuration.
func (c *Config) ValidateAPI() error {
	if c.API.Server.Listen == "" {
		return errors.New("api.server.listen is required")
	}

	if c.API.Server.RateLimit.Enabled && c.API.Server.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("api.server.rate_limit.requests_per_minute must be positive")
	}

	if c.API.Auth.Basic.Enabled {
		if len(c.API.Auth.Basic.Users) == 0 {
			return errors.New("api.auth.basic.users must not be empty when basic auth is enabled")
		}

		seen := make(map[string]struct{}, len(c.API.Auth.Basic.Users))

		for i, u := range c.API.Auth.Basic.Users {
			if u.Username == "" {
				return fmt.Errorf("api.auth.basic.users[%d]: username is required", i)
			}

			if _, ok := seen[u.Username]; ok {
				return fmt.Errorf("api.auth.basic.users[%d]: duplicate username %q", i, u.Username)
			}

			seen[u.Username] = struct{}{}

			if !strings.HasPrefix(u.PasswordHash, "$2") {
				return fmt.Errorf("api.auth.basic.users[%d]: password_hash must be a bcrypt hash", i)
			}
		}
	}

	if c.Index.Enabled {
		if err := c.ValidateIndex(); err != nil {
			return err
		}
	}

	return nil
}
