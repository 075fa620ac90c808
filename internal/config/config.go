package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// minSigningKeyBytes is the shortest accepted HS256 session key.
const minSigningKeyBytes = 32

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	SessionSigningKey string        `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	BcryptCost        int           `mapstructure:"BCRYPT_COST"`
	ClinicTimezone    string        `mapstructure:"CLINIC_TIMEZONE"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic        string        `mapstructure:"KAFKA_TOPIC"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("BCRYPT_COST", bcrypt.DefaultCost)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("KAFKA_TOPIC", "clinic.appointments")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("SESSION_SIGNING_KEY")
	v.BindEnv("SESSION_TTL")
	v.BindEnv("BCRYPT_COST")
	v.BindEnv("CLINIC_TIMEZONE")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("KAFKA_BROKERS")
	v.BindEnv("KAFKA_TOPIC")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.SessionSigningKey == "" {
		log.Println("WARNING: SESSION_SIGNING_KEY is not set; an ephemeral key will be generated.")
		log.Println("WARNING: sessions will not survive a restart. Do NOT use this in production.")
	}

	return cfg, nil
}

// splitList re-reads comma-separated values from their raw form so that
// entries are trimmed whether they came from the environment or .env.
func splitList(parsed []string, raw string) []string {
	if raw == "" {
		return parsed
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// EventsEnabled reports whether lifecycle events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Location resolves CLINIC_TIMEZONE. It is what "today" means for the clinic.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q is not a known time zone: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// SigningKey decodes SESSION_SIGNING_KEY. It returns nil when no key is
// configured, which only Validate allows in development.
func (c *Config) SigningKey() ([]byte, error) {
	if c.SessionSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SessionSigningKey)
	if err != nil {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY is not valid hex: %w", err)
	}
	if len(key) < minSigningKeyBytes {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes (%d hex chars), got %d bytes",
			minSigningKeyBytes, minSigningKeyBytes*2, len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a session signing key is mandatory.
func (c *Config) Validate() error {
	if !c.IsDev() && c.SessionSigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if _, err := c.SigningKey(); err != nil {
		return err
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.EventsEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}
