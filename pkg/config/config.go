// Package config loads widgetsync settings from .widgetsync.yaml, the
// environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "WIDGETSYNC"
	// FileName is the config file name without extension.
	FileName = ".widgetsync"
)

// Config is the resolved configuration.
type Config struct {
	StorePath    string
	StoreDriver  store.Driver
	InboxPath    string
	BaseURL      string
	MaxRetries   int
	Backoff      []time.Duration
	MemoDebounce time.Duration
	TimerPoll    time.Duration
	Conflict     string
	LogLevel     slog.Level
	UserID       string
	// File is the config file that was read, if any.
	File string
}

// BasePath implements store.Config.
func (c *Config) BasePath() string { return c.StorePath }

// Driver implements store.Config.
func (c *Config) Driver() store.Driver { return c.StoreDriver }

var _ store.Config = (*Config)(nil)

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "~/.widgetsync")
	v.SetDefault("store.driver", string(store.DriverDiskv))
	v.SetDefault("inbox.path", "")
	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.max_retries", remote.DefaultMaxRetries)
	v.SetDefault("api.backoff", "100ms,500ms,1s")
	v.SetDefault("memo.debounce", "1s")
	v.SetDefault("timer.poll", "5s")
	v.SetDefault("reconcile.conflict", "coarse")
	v.SetDefault("log.level", "info")
	v.SetDefault("user.id", "")
}

// Load reads .env, then the config file from $WIDGETSYNC_CONFIG_PATH, the
// working directory or $HOME, then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(FileName) // .yaml is implicit
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if override := os.Getenv(EnvPrefix + "_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath("./")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	path, err := homedir.Expand(v.GetString("store.path"))
	if err != nil {
		return nil, fmt.Errorf("config: store.path: %w", err)
	}
	inbox, err := homedir.Expand(v.GetString("inbox.path"))
	if err != nil {
		return nil, fmt.Errorf("config: inbox.path: %w", err)
	}
	if inbox == "" {
		inbox = filepath.Join(path, "inbox")
	}
	backoff, err := ParseBackoff(v.GetString("api.backoff"))
	if err != nil {
		return nil, err
	}
	level, err := ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	conflict := strings.ToLower(strings.TrimSpace(v.GetString("reconcile.conflict")))
	switch conflict {
	case "", "coarse", "merge", "remote":
	default:
		return nil, fmt.Errorf("config: reconcile.conflict %q: want coarse, merge or remote", conflict)
	}
	cfg := &Config{
		StorePath:    path,
		StoreDriver:  store.Driver(strings.ToLower(v.GetString("store.driver"))),
		InboxPath:    inbox,
		BaseURL:      strings.TrimRight(v.GetString("api.base_url"), "/"),
		MaxRetries:   v.GetInt("api.max_retries"),
		Backoff:      backoff,
		MemoDebounce: v.GetDuration("memo.debounce"),
		TimerPoll:    v.GetDuration("timer.poll"),
		Conflict:     conflict,
		LogLevel:     level,
		UserID:       v.GetString("user.id"),
		File:         v.ConfigFileUsed(),
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("config: api.max_retries must not be negative")
	}
	return cfg, nil
}

// ParseBackoff parses a comma-separated delay list such as "100ms,500ms,1s".
func ParseBackoff(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("config: api.backoff entry %q invalid", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return append([]time.Duration(nil), remote.DefaultBackoff...), nil
	}
	return out, nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log.level %q: %w", s, err)
	}
	return l, nil
}

// Logger builds the text logger for cfg writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}
