package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Driver names a Backend implementation.
type Driver string

const (
	DriverDiskv  Driver = "diskv"
	DriverSQLite Driver = "sqlite"
	DriverMemory Driver = "memory"
)

// Config describes where and how the Local Store persists.
type Config interface {
	BasePath() string
	Driver() Driver
}

// Open builds a Store for cfg.
func Open(cfg Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: config required")
	}
	driver := Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver()))))
	var (
		b   Backend
		err error
	)
	switch driver {
	case "", DriverDiskv:
		b, err = NewDiskv(filepath.Join(cfg.BasePath(), "store"))
	case DriverSQLite:
		b, err = NewSQLite(filepath.Join(cfg.BasePath(), "widgetsync.sqlite"))
	case DriverMemory:
		b = NewMemory()
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	s := New(b, opts...)
	s.log.Debug("store: opened", "driver", driver, "path", cfg.BasePath())
	return s, nil
}

// StaticConfig is a fixed Config, handy for tests and embedding.
type StaticConfig struct {
	Path string
	Kind Driver
}

func (c StaticConfig) BasePath() string { return c.Path }
func (c StaticConfig) Driver() Driver   { return c.Kind }

var _ Config = StaticConfig{}
