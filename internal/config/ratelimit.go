package config

import "time"

// RateLimitConfig configures the fixed-window limiter. A limit of zero or
// less disables that scope.
type RateLimitConfig struct {
	Enabled      bool          `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Prefix       string        `env:"RATE_LIMIT_PREFIX" env-default:"rl"`
	FailOpen     bool          `env:"RATE_LIMIT_FAIL_OPEN" env-default:"true"`
	StoreTimeout time.Duration `env:"RATE_LIMIT_STORE_TIMEOUT" env-default:"500ms"`

	GlobalLimit     int64         `env:"RATE_LIMIT_GLOBAL_LIMIT" env-default:"100"`
	GlobalWindow    time.Duration `env:"RATE_LIMIT_GLOBAL_WINDOW" env-default:"15m"`
	SensitiveLimit  int64         `env:"RATE_LIMIT_SENSITIVE_LIMIT" env-default:"20"`
	SensitiveWindow time.Duration `env:"RATE_LIMIT_SENSITIVE_WINDOW" env-default:"15m"`
	BurstLimit      int64         `env:"RATE_LIMIT_BURST_LIMIT" env-default:"10"`
	BurstWindow     time.Duration `env:"RATE_LIMIT_BURST_WINDOW" env-default:"1s"`
}

func (c *RateLimitConfig) normalize() {
	if c.Prefix == "" {
		c.Prefix = "rl"
	}
	if c.GlobalWindow <= 0 {
		c.GlobalWindow = 15 * time.Minute
	}
	if c.SensitiveWindow <= 0 {
		c.SensitiveWindow = c.GlobalWindow
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 500 * time.Millisecond
	}
}
