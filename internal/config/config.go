// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each leaf field maps to one
// environment variable; required values abort startup when missing.
type Config struct {
	Env             string        `env:"APP_ENV" env-default:"dev"`
	Port            string        `env:"APP_PORT" env-default:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"5s"`

	DB        DBConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Auth      AuthConfig
	Codes     CodeConfig
	RateLimit RateLimitConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User    string `env:"DB_USER" env-required:"true"`
	Pass    string `env:"DB_PASS"`
	Host    string `env:"DB_HOST" env-required:"true"`
	Port    string `env:"DB_PORT" env-default:"3306"`
	Name    string `env:"DB_NAME" env-required:"true"`
	Migrate bool   `env:"DB_MIGRATE" env-default:"true"`
}

// AMQPConfig controls out-of-band delivery of verification codes.
type AMQPConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	Queue           string `env:"AMQP_QUEUE" env-default:"auth.code_issued"`
	ConsumerEnabled bool   `env:"AMQP_CONSUMER_ENABLED" env-default:"false"`
	MailLogDir      string `env:"MAIL_LOG_DIR" env-default:"logs"`
}

// Enabled reports whether a broker URL was configured.
func (c AMQPConfig) Enabled() bool { return c.URL != "" }

// AuthConfig groups token and password settings.
type AuthConfig struct {
	JWTSecret    string        `env:"JWT_SECRET" env-required:"true"`
	Issuer       string        `env:"JWT_ISSUER" env-default:"auth-session-service"`
	AccessTTL    time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	ResetAuthTTL time.Duration `env:"RESET_AUTH_TTL" env-default:"10m"`
	BcryptCost   int           `env:"BCRYPT_COST" env-default:"10"`
	CookieDomain string        `env:"COOKIE_DOMAIN"`
	CookieSecure bool          `env:"COOKIE_SECURE" env-default:"false"`
}

// CodeConfig groups verification-code settings.
type CodeConfig struct {
	Length         int           `env:"CODE_LENGTH" env-default:"6"`
	Alphabet       string        `env:"CODE_ALPHABET" env-default:"numeric"`
	TTL            time.Duration `env:"CODE_TTL" env-default:"10m"`
	ResendCooldown time.Duration `env:"CODE_RESEND_COOLDOWN" env-default:"60s"`
	MaxAttempts    int           `env:"CODE_MAX_ATTEMPTS" env-default:"3"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	const op = "config.Load"

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}
	cfg.RateLimit.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case len(c.Auth.JWTSecret) < 16:
		return errors.New("JWT_SECRET must be at least 16 characters")
	case c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0:
		return errors.New("token TTLs must be positive")
	case c.Auth.AccessTTL >= c.Auth.RefreshTTL:
		return errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	case c.Codes.Length < 4 || c.Codes.Length > 12:
		return errors.New("CODE_LENGTH must be between 4 and 12")
	case c.Codes.Alphabet != "numeric" && c.Codes.Alphabet != "alphanumeric":
		return fmt.Errorf("unknown CODE_ALPHABET %q", c.Codes.Alphabet)
	case c.Codes.MaxAttempts < 1:
		return errors.New("CODE_MAX_ATTEMPTS must be at least 1")
	case c.Codes.TTL <= 0 || c.Codes.ResendCooldown < 0:
		return errors.New("code TTL must be positive and cooldown non-negative")
	case c.RateLimit.GlobalWindow < time.Millisecond ||
		c.RateLimit.SensitiveWindow < time.Millisecond ||
		c.RateLimit.BurstWindow < time.Millisecond:
		return errors.New("rate limit windows must be at least 1ms")
	}
	return nil
}
