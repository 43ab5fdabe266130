// Package store implements the Local Store: durable per-key envelopes that
// each widget uses to persist its last-known collection.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNotFound is returned by a Backend when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Backend is the raw byte persistence under a Store. Write must be
// all-or-nothing: a reader never observes a partially written value.
type Backend interface {
	Read(key string) ([]byte, error)
	Write(key string, val []byte) error
	Erase(key string) error
	Keys(ctx context.Context) []string
}

// Envelope is the persisted record for one key. TS is the epoch-ms of the
// last time Data was replaced.
type Envelope struct {
	TS       int64           `json:"ts"`
	Data     json.RawMessage `json:"data"`
	RemoteTS int64           `json:"remoteTs,omitempty"`
	Dirty    bool            `json:"dirty,omitempty"`
}

// Age reports how long ago the envelope was written relative to now.
func (e Envelope) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.TS))
}

// Store wraps a Backend with envelope encoding. Decode failures fail closed:
// they are logged and reported as a missing entry.
type Store struct {
	backend Backend
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the clock used to stamp envelopes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over the given backend.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Backend exposes the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Load returns the envelope stored under key. ok is false when the key is
// missing or the stored value cannot be decoded.
func (s *Store) Load(key string) (Envelope, bool) {
	return s.LoadFresh(key, 0)
}

// LoadFresh is Load with a TTL: envelopes older than maxAge are treated as
// missing. A zero maxAge disables the check.
func (s *Store) LoadFresh(key string, maxAge time.Duration) (Envelope, bool) {
	raw, err := s.backend.Read(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("store: read failed", "key", key, "error", err)
		}
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("store: corrupt envelope", "key", key, "error", err)
		return Envelope{}, false
	}
	if env.TS <= 0 || len(env.Data) == 0 {
		s.log.Warn("store: incomplete envelope", "key", key)
		return Envelope{}, false
	}
	if maxAge > 0 && env.Age(s.now()) > maxAge {
		return Envelope{}, false
	}
	return env, true
}

// Save stamps env.TS with the current time (never earlier than RemoteTS) and
// writes the envelope. The stamped envelope is returned.
func (s *Store) Save(key string, env Envelope) (Envelope, error) {
	if strings.TrimSpace(key) == "" {
		return env, errors.New("store: key required")
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("null")
	}
	env.TS = s.now().UnixMilli()
	if env.RemoteTS > env.TS {
		env.TS = env.RemoteTS
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return env, fmt.Errorf("store: encode %q: %w", key, err)
	}
	if err := s.backend.Write(key, raw); err != nil {
		return env, fmt.Errorf("store: write %q: %w", key, err)
	}
	return env, nil
}

// Clear removes key. Clearing a missing key is not an error.
func (s *Store) Clear(key string) error {
	if err := s.backend.Erase(key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("store: erase %q: %w", key, err)
	}
	return nil
}

// Keys lists every stored key.
func (s *Store) Keys(ctx context.Context) []string {
	return s.backend.Keys(ctx)
}

// Watch streams key change events when the backend supports it.
func (s *Store) Watch(ctx context.Context) (<-chan Event, error) {
	w, ok := s.backend.(Watcher)
	if !ok {
		return nil, fmt.Errorf("store: backend %T does not support watch", s.backend)
	}
	return w.Watch(ctx)
}

// Slot is a typed view of one key.
type Slot[T any] struct {
	Store  *Store
	Key    string
	MaxAge time.Duration
}

// NewSlot binds key in s to the value type T.
func NewSlot[T any](s *Store, key string) Slot[T] {
	return Slot[T]{Store: s, Key: key}
}

// Load decodes the slot value. A value that does not decode into T is
// treated as missing.
func (s Slot[T]) Load() (T, Envelope, bool) {
	var v T
	env, ok := s.Store.LoadFresh(s.Key, s.MaxAge)
	if !ok {
		return v, Envelope{}, false
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		s.Store.log.Warn("store: corrupt slot data", "key", s.Key, "error", err)
		var zero T
		return zero, Envelope{}, false
	}
	return v, env, true
}

// Save replaces the slot value.
func (s Slot[T]) Save(v T) (Envelope, error) {
	return s.SaveWith(v, Envelope{})
}

// SaveWith replaces the slot value, carrying the sync markers from meta.
func (s Slot[T]) SaveWith(v T, meta Envelope) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return meta, fmt.Errorf("store: encode slot %q: %w", s.Key, err)
	}
	meta.Data = data
	return s.Store.Save(s.Key, meta)
}

// Clear removes the slot.
func (s Slot[T]) Clear() error {
	return s.Store.Clear(s.Key)
}
