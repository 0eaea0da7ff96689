// Package config holds environment-driven configuration for the relay server
// and the dialing defaults for the client.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server is the relay server configuration, loaded from the environment
// with development defaults.
type Server struct {
	Port        string
	Environment string
	Redis       Redis
}

// Redis configures the optional presence mirror. Disabled when Host is empty.
type Redis struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Load reads the server configuration from the environment.
func Load() *Server {
	return &Server{
		Port:        getEnv("PORT", "3000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		Redis: Redis{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// Enabled reports whether the presence mirror should be wired.
func (r Redis) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port for the Redis client.
func (r Redis) Addr() string {
	return r.Host + ":" + r.Port
}

// Client holds the transport client's dialing parameters.
type Client struct {
	// URLs are the candidate relay endpoints tried in order.
	URLs []string

	// MaxRetries is the retry budget per endpoint before advancing to the
	// next one.
	MaxRetries int

	// RetryDelay is the base delay; the actual delay grows linearly with the
	// retry counter.
	RetryDelay time.Duration
}

// DefaultClient mirrors the dialing defaults used by the browser client.
func DefaultClient(urls []string) Client {
	return Client{
		URLs:       urls,
		MaxRetries: 10,
		RetryDelay: time.Second,
	}
}

// ParseURLList splits a comma-separated endpoint list.
func ParseURLList(raw string) []string {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
