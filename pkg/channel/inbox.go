package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tableflip.dev/widgetsync/pkg/store"
)

const (
	requestExt = ".json"
	rejectExt  = ".rejected"
)

// Inbox is a file-drop channel: each request is one JSON file in a
// directory shared by every process of the install. Files are written to a
// hidden temp name and renamed into place, and removed only after the
// handler succeeds.
type Inbox struct {
	dir   string
	delay time.Duration
	log   *slog.Logger
}

// NewInbox opens the inbox directory, creating it if needed.
func NewInbox(dir string, log *slog.Logger) (*Inbox, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("channel: inbox directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("channel: ensure inbox: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Inbox{dir: dir, delay: 50 * time.Millisecond, log: log.With("inbox", dir)}, nil
}

// Dir is the watched directory.
func (b *Inbox) Dir() string { return b.dir }

// Publish drops req into the inbox.
func (b *Inbox) Publish(ctx context.Context, req TaskRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req = Stamp(req, time.Now())
	if err := req.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("channel: encode request: %w", err)
	}
	name := req.RequestID + requestExt
	tmp := filepath.Join(b.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("channel: write request: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(b.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("channel: publish request: %w", err)
	}
	return nil
}

// Pending lists the request files waiting in the inbox.
func (b *Inbox) Pending() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("channel: list inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isRequestFile(e.Name()) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), requestExt))
	}
	sort.Strings(names)
	return names, nil
}

// Subscribe delivers every request already waiting, then new ones as they
// arrive, until ctx is done.
func (b *Inbox) Subscribe(ctx context.Context, h Handler) error {
	events, err := store.WatchDir(ctx, b.dir, b.delay, func(path string) string {
		if filepath.Dir(path) != filepath.Clean(b.dir) || !isRequestFile(filepath.Base(path)) {
			return ""
		}
		return strings.TrimSuffix(filepath.Base(path), requestExt)
	})
	if err != nil {
		return fmt.Errorf("channel: watch inbox: %w", err)
	}
	b.drain(ctx, h)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return errors.New("channel: inbox watcher stopped")
			}
			switch ev.Type {
			case store.EventInvalidated:
				b.drain(ctx, h)
			case store.EventKeyChanged:
				b.deliver(ctx, ev.Key, h)
			}
		}
	}
}

func (b *Inbox) drain(ctx context.Context, h Handler) {
	names, err := b.Pending()
	if err != nil {
		b.log.Warn("channel: scan failed", "error", err)
		return
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		b.deliver(ctx, name, h)
	}
}

func (b *Inbox) deliver(ctx context.Context, name string, h Handler) {
	path := filepath.Join(b.dir, name+requestExt)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			b.log.Warn("channel: read request failed", "request", name, "error", err)
		}
		return
	}
	var req TaskRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		b.log.Warn("channel: malformed request set aside", "request", name, "error", err)
		_ = os.Rename(path, path+rejectExt)
		return
	}
	if req.RequestID == "" {
		req.RequestID = name
	}
	if err := h(ctx, req); err != nil {
		b.log.Warn("channel: handler failed; request kept", "request", name, "error", err)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.log.Warn("channel: remove handled request failed", "request", name, "error", err)
	}
}

func isRequestFile(name string) bool {
	return strings.HasSuffix(name, requestExt) && !strings.HasPrefix(name, ".")
}
