package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the shared counter store. REDIS_HOST and REDIS_PORT
// take precedence over REDIS_ADDR when both are set.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Host     string        `env:"REDIS_HOST"`
	Port     string        `env:"REDIS_PORT"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	TLS      bool          `env:"REDIS_TLS" env-default:"false"`
	Timeout  time.Duration `env:"REDIS_TIMEOUT" env-default:"2s"`
}

// Address resolves the host:port to dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	return c.Addr
}

// Options returns the go-redis options for c. Context deadlines on each call
// are honoured, so store timeouts shorter than c.Timeout take effect.
func (c RedisConfig) Options() *redis.Options {
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &redis.Options{
		Addr:                  c.Address(),
		Password:              c.Password,
		DB:                    c.DB,
		TLSConfig:             tlsConf,
		ReadTimeout:           c.Timeout,
		WriteTimeout:          c.Timeout,
		ContextTimeoutEnabled: true,
	}
}

// NewRedisClient builds a client and pings it within c.Timeout.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
	const op = "config.NewRedisClient"

	client := redis.NewClient(c.Options())

	pingCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: ping %s: %w", op, c.Address(), err)
	}
	return client, nil
}
