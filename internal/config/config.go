// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/UniQw/leaseq"
	"github.com/UniQw/leaseq/store/pgstore"
	"github.com/UniQw/leaseq/store/redisstore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Supported values of LEASEQ_STORE.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds the settings shared by the example binaries.
type Config struct {
	Store         string
	RedisAddr     string
	RedisPassword string
	Namespace     string
	DatabaseURL   string

	WorkerCount      int
	LeaseDuration    time.Duration
	PollInterval     time.Duration
	RetryWait        time.Duration
	ArchiveRetention time.Duration
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Store:            StoreRedis,
		RedisAddr:        "127.0.0.1:6379",
		Namespace:        redisstore.DefaultNamespace,
		WorkerCount:      5,
		LeaseDuration:    leaseq.DefaultLeaseDuration,
		PollInterval:     time.Second,
		RetryWait:        leaseq.DefaultRetryWait,
		ArchiveRetention: 7 * 24 * time.Hour,
	}
}

// Load reads the given .env files (".env" when none are named) into the
// process environment without overriding it, then parses the environment.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv parses settings through getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	str(getenv, "LEASEQ_STORE", &c.Store)
	str(getenv, "REDIS_ADDR", &c.RedisAddr)
	str(getenv, "REDIS_PASSWORD", &c.RedisPassword)
	str(getenv, "LEASEQ_NAMESPACE", &c.Namespace)
	str(getenv, "DATABASE_URL", &c.DatabaseURL)

	if v := getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: WORKER_COUNT=%q: must be a positive integer", v)
		}
		c.WorkerCount = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"LEASE_DURATION", &c.LeaseDuration},
		{"POLL_INTERVAL", &c.PollInterval},
		{"RETRY_WAIT", &c.RetryWait},
		{"ARCHIVE_RETENTION", &c.ArchiveRetention},
	} {
		if err := duration(getenv, d.key, d.dst); err != nil {
			return Config{}, err
		}
	}

	switch c.Store {
	case StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return Config{}, errors.New("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("config: LEASEQ_STORE=%q: want %s or %s", c.Store, StoreRedis, StorePostgres)
	}
	return c, nil
}

// OpenStore connects to the configured backend. The returned func releases it.
func (c Config) OpenStore(ctx context.Context) (leaseq.Store, func(), error) {
	switch c.Store {
	case StorePostgres:
		s, err := pgstore.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("config: redis ping %s: %w", c.RedisAddr, err)
		}
		return redisstore.New(rdb, redisstore.WithNamespace(c.Namespace)), func() { _ = rdb.Close() }, nil
	}
}

// ServerConfig maps the settings onto a leaseq.ServerConfig.
func (c Config) ServerConfig(l leaseq.Logger) leaseq.ServerConfig {
	return leaseq.ServerConfig{
		Concurrency:      c.WorkerCount,
		LeaseDuration:    c.LeaseDuration,
		PollInterval:     c.PollInterval,
		DefaultRetryWait: c.RetryWait,
		ArchiveRetention: c.ArchiveRetention,
		Logger:           l,
	}
}

func str(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func duration(getenv func(string) string, key string, dst *time.Duration) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fmt.Errorf("config: %s=%q: must be a non-negative duration", key, v)
	}
	*dst = d
	return nil
}
