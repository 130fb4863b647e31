package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultTypingTimeout = 5 * time.Second
	DefaultEventRate     = 20
	DefaultEventBurst    = 40
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// TypingTimeout clears a typing indicator that was not superseded in time.
	// Zero disables the lease.
	TypingTimeout time.Duration
	// EventRate and EventBurst bound inbound socket events per connection.
	EventRate  float64
	EventBurst int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		TypingTimeout:  DefaultTypingTimeout,
		EventRate:      DefaultEventRate,
		EventBurst:     DefaultEventBurst,
	}, nil
}

// WithLimits overrides the realtime tuning knobs after validation.
func (c *Config) WithLimits(typingTimeout time.Duration, eventRate float64, eventBurst int) error {
	if typingTimeout < 0 {
		return fmt.Errorf("typing timeout cannot be negative")
	}
	if eventRate <= 0 {
		return fmt.Errorf("event rate must be positive")
	}
	if eventBurst < 1 {
		return fmt.Errorf("event burst must be at least 1")
	}

	c.TypingTimeout = typingTimeout
	c.EventRate = eventRate
	c.EventBurst = eventBurst
	return nil
}
