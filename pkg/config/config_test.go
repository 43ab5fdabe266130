package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/widgetsync/pkg/store"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	homedir.DisableCache = true
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".widgetsync"), cfg.StorePath)
	assert.Equal(t, filepath.Join(cfg.StorePath, "inbox"), cfg.InboxPath)
	assert.Equal(t, store.DriverDiskv, cfg.Driver())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second}, cfg.Backoff)
	assert.Equal(t, time.Second, cfg.MemoDebounce)
	assert.Equal(t, 5*time.Second, cfg.TimerPoll)
	assert.Equal(t, "coarse", cfg.Conflict)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	yaml := "store:\n  driver: sqlite\napi:\n  base_url: https://dash.example.com/\nreconcile:\n  conflict: merge\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".widgetsync.yaml"), []byte(yaml), 0o644))
	t.Setenv("WIDGETSYNC_LOG_LEVEL", "debug")
	t.Setenv("WIDGETSYNC_USER_ID", "u9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, store.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "https://dash.example.com", cfg.BaseURL)
	assert.Equal(t, "merge", cfg.Conflict)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "u9", cfg.UserID)
	assert.NotEmpty(t, cfg.File)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WIDGETSYNC_MEMO_DEBOUNCE=250ms\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("WIDGETSYNC_MEMO_DEBOUNCE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.MemoDebounce)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)

	t.Setenv("WIDGETSYNC_RECONCILE_CONFLICT", "newest")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("WIDGETSYNC_RECONCILE_CONFLICT", "coarse")
	t.Setenv("WIDGETSYNC_API_BACKOFF", "fast")
	_, err = Load()
	assert.Error(t, err)
}
