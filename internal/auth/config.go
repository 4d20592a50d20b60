package auth

import (
	"fmt"
	"time"
)

const (
	defaultLeeway   = 30 * time.Second
	defaultTokenTTL = 24 * time.Hour
)

type Config struct {
	JWTSecret string
	Issuer    string
	Leeway    time.Duration
	TokenTTL  time.Duration
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWTSecret is required")
	}
	return nil
}
