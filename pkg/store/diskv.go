package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/diskv/v3"
)

const fileExt = ".json"

// DiskvBackend stores each key as one JSON file, grouped into a directory
// per widget namespace.
type DiskvBackend struct {
	d        *diskv.Diskv
	basePath string
}

// NewDiskv creates a diskv-backed Backend rooted at basePath. Writes go
// through a sibling temp directory and are renamed into place.
func NewDiskv(basePath string) (*DiskvBackend, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.New("store: base path required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure base path: %w", err)
	}
	tmp := filepath.Clean(basePath) + ".tmp"
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure temp path: %w", err)
	}
	return &DiskvBackend{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			TempDir:           tmp,
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			// Other processes write the same tree, so reads must not be
			// served from an in-process cache.
			CacheSizeMax: 0,
		}),
		basePath: basePath,
	}, nil
}

// BasePath is the directory holding the key files.
func (b *DiskvBackend) BasePath() string {
	return b.basePath
}

func (b *DiskvBackend) Read(key string) ([]byte, error) {
	val, err := b.d.Read(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (b *DiskvBackend) Write(key string, val []byte) error {
	return b.d.Write(key, val)
}

func (b *DiskvBackend) Erase(key string) error {
	if err := b.d.Erase(key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (b *DiskvBackend) Keys(ctx context.Context) []string {
	var keys []string
	for key := range b.d.Keys(ctx.Done()) {
		keys = append(keys, key)
	}
	return keys
}

// keyToPathTransform maps `todo-items` to `todo/todo-items.json`.
func keyToPathTransform(key string) *diskv.PathKey {
	ns := key
	if idx := strings.Index(key, "-"); idx > 0 {
		ns = key[:idx]
	}
	return &diskv.PathKey{
		Path:     []string{ns},
		FileName: key + fileExt,
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	return strings.TrimSuffix(pathKey.FileName, fileExt)
}
