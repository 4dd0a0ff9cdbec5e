// Package dbconfig resolves the Postgres connection for the event store
// from the environment.
package dbconfig

import (
	"net"
	"net/url"
	"os"
)

// Config is the resolved Postgres connection.
type Config struct {
	// URL, when set, is used verbatim and the individual parts below are
	// ignored.
	URL string

	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewConfigFromEnv reads DATABASE_URL, falling back to the individual DB_*
// variables with local-development defaults.
func NewConfigFromEnv() Config {
	return Config{
		URL:      os.Getenv("DATABASE_URL"),
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envOr("DB_PORT", "5432"),
		User:     envOr("DB_USER", "postgres"),
		Password: envOr("DB_PASSWORD", "postgres"),
		Database: envOr("DB_NAME", "liveroom"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
}

// DSN builds the pgx connection string.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
