// Package config loads flowboard settings from a TOML file.
//
// A missing file is not an error: every setting has a default. A file that
// exists must parse, contain only known keys, and pass [Config.Validate].
//
//	[log]
//	level = "debug"
//
//	[server]
//	addr = ":9090"
//	read_timeout = "10s"
//
//	[storage]
//	backend = "redis"
//
//	[storage.redis]
//	addr = "localhost:6379"
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/storage"
)

// Config is the full settings tree.
type Config struct {
	Log     LogConfig      `toml:"log"`
	Server  ServerConfig   `toml:"server"`
	Storage storage.Config `toml:"storage"`
}

// LogConfig controls the CLI and server logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// ServerConfig controls `flowboard serve`.
type ServerConfig struct {
	Addr         string        `toml:"addr"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown after an interrupt.
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: storage.Config{
			Backend: storage.BackendFile,
			Redis:   storage.RedisConfig{Addr: "localhost:6379"},
			Mongo:   storage.MongoConfig{URI: "mongodb://localhost:27017"},
		},
	}
}

// DefaultPath returns ~/.config/flowboard/config.toml, honoring
// XDG_CONFIG_HOME when set.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flowboard", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "flowboard", "config.toml"), nil
}

// Load reads path over the defaults. An empty path means [DefaultPath].
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return cfg, fberrors.Wrap(fberrors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fberrors.New(fberrors.ErrCodeInvalidInput, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

var backends = []string{storage.BackendFile, storage.BackendMemory, storage.BackendRedis, storage.BackendMongo}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fberrors.New(fberrors.ErrCodeInvalidInput, "log.level: unknown level %q", c.Log.Level)
	}
	if c.Server.Addr == "" {
		return fberrors.New(fberrors.ErrCodeInvalidInput, "server.addr cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d < 0 {
			return fberrors.New(fberrors.ErrCodeInvalidInput, "%s cannot be negative", name)
		}
	}

	switch c.Storage.Backend {
	case storage.BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fberrors.New(fberrors.ErrCodeInvalidInput, "storage.redis.addr is required for the redis backend")
		}
	case storage.BackendMongo:
		if err := fberrors.ValidateURL(c.Storage.Mongo.URI, "mongodb", "mongodb+srv"); err != nil {
			return fmt.Errorf("storage.mongo.uri: %w", err)
		}
	default:
		if !slices.Contains(backends, c.Storage.Backend) {
			return fberrors.New(fberrors.ErrCodeUnsupported, "storage.backend: unsupported backend %q (want one of %s)",
				c.Storage.Backend, strings.Join(backends, ", "))
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Write encodes c to path, creating parent directories.
func Write(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
