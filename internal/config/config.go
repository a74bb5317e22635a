// Package config loads server settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/pantheon/internal/engine"
)

// Config holds all configuration for the world server.
type Config struct {
	Shard    string `yaml:"shard"`
	DBPath   string `yaml:"db"`
	Addr     string `yaml:"addr"`
	AdminKey string `yaml:"admin_key"` // Empty disables the command endpoint
	Seed     uint64 `yaml:"seed"`      // 0 draws a random seed

	TickInterval    time.Duration `yaml:"tick_interval"`
	FlushThreshold  int           `yaml:"flush_threshold"`
	BatchInterval   uint64        `yaml:"batch_interval"`
	SeasonLength    uint64        `yaml:"season_length"`
	Radius          int           `yaml:"radius"`
	SnapshotEvery   int           `yaml:"snapshot_every"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	RateLimit      int           `yaml:"rate_limit"` // Commands per window per IP
	RateWindow     time.Duration `yaml:"rate_window"`
	TrustedProxies []string      `yaml:"trusted_proxies"` // Addresses or CIDRs allowed to set X-Forwarded-For

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	Factions []engine.FactionSpec `yaml:"factions"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Shard:           "main",
		DBPath:          "pantheon.db",
		Addr:            ":8080",
		TickInterval:    engine.DefaultTickInterval,
		FlushThreshold:  100,
		BatchInterval:   100,
		SeasonLength:    engine.DefaultSeasonLength,
		Radius:          engine.DefaultRadius,
		SnapshotEvery:   30,
		ShutdownTimeout: 5 * time.Second,
		RateLimit:       60,
		RateWindow:      time.Minute,
		LogFormat:       "text",
		LogLevel:        "info",
	}
}

// Load reads path (optional) and .env (optional), then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("PANTHEON_SHARD", &c.Shard)
	str("PANTHEON_DB", &c.DBPath)
	str("PANTHEON_ADDR", &c.Addr)
	str("PANTHEON_ADMIN_KEY", &c.AdminKey)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := os.LookupEnv("PANTHEON_TRUSTED_PROXIES"); ok {
		c.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.TrustedProxies = append(c.TrustedProxies, p)
			}
		}
	}

	if v, ok := os.LookupEnv("PANTHEON_TICK_INTERVAL_MS"); ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PANTHEON_TICK_INTERVAL_MS: %w", err)
		}
		c.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if v, ok := os.LookupEnv("PANTHEON_FLUSH_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PANTHEON_FLUSH_THRESHOLD: %w", err)
		}
		c.FlushThreshold = n
	}
	for key, dst := range map[string]*uint64{
		"PANTHEON_BATCH_INTERVAL": &c.BatchInterval,
		"PANTHEON_SEASON_LENGTH":  &c.SeasonLength,
		"PANTHEON_SEED":           &c.Seed,
	} {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Shard == "" {
		errs = append(errs, errors.New("shard must be set"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.FlushThreshold <= 0 {
		errs = append(errs, fmt.Errorf("flush threshold must be positive, got %d", c.FlushThreshold))
	}
	if c.BatchInterval == 0 {
		errs = append(errs, errors.New("batch interval must be positive"))
	}
	if c.Radius <= 0 {
		errs = append(errs, fmt.Errorf("radius must be positive, got %d", c.Radius))
	}
	if c.SnapshotEvery <= 0 {
		errs = append(errs, fmt.Errorf("snapshot interval must be positive, got %d", c.SnapshotEvery))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		errs = append(errs, errors.New("rate limit and window must be positive"))
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProxyPrefixes parses TrustedProxies. A bare address is a single-host prefix.
func (c Config) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: not an address or CIDR", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// LogValue keeps the admin key out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("shard", c.Shard),
		slog.String("db", c.DBPath),
		slog.String("addr", c.Addr),
		slog.Bool("admin", c.AdminKey != ""),
		slog.Int("trusted_proxies", len(c.TrustedProxies)),
		slog.Duration("tick_interval", c.TickInterval),
		slog.Int("radius", c.Radius),
		slog.Uint64("season_length", c.SeasonLength),
		slog.Int("factions", len(c.Factions)),
	)
}
