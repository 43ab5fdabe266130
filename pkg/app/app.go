// Package app wires the Local Store, the remote client and every widget
// into one Service constructed at start-up and reset on logout.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"tableflip.dev/widgetsync/pkg/catalog"
	"tableflip.dev/widgetsync/pkg/channel"
	"tableflip.dev/widgetsync/pkg/chat"
	"tableflip.dev/widgetsync/pkg/config"
	"tableflip.dev/widgetsync/pkg/memo"
	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/session"
	"tableflip.dev/widgetsync/pkg/store"
	"tableflip.dev/widgetsync/pkg/timer"
	"tableflip.dev/widgetsync/pkg/todo"
)

// Service provides the widget operations shared by the CLI and the MCP
// server.
type Service struct {
	Config  *config.Config
	Store   *store.Store
	Client  *remote.Client
	Session *session.Manager

	Todo    *todo.Widget
	Chat    *chat.Widget
	Memo    *memo.Widget
	Timer   *timer.Widget
	Catalog *catalog.Catalog

	DeviceID string

	log *slog.Logger

	inboxOnce sync.Once
	inbox     *channel.Inbox
	inboxErr  error
}

// Option configures New.
type Option func(*options)

type options struct {
	store *store.Store
	http  *http.Client
	log   *slog.Logger
}

// WithStore uses s instead of opening the configured backend.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithHTTPClient sets the transport for the remote client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.http = h }
}

// WithLogger sets the logger for every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New builds the Service for cfg.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("app: no config")
	}
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	st := o.store
	if st == nil {
		var err error
		if st, err = store.Open(cfg, store.WithLogger(o.log)); err != nil {
			return nil, fmt.Errorf("app: open store: %w", err)
		}
	}

	device, err := session.DeviceID(st)
	if err != nil {
		o.log.Warn("app: device id not persisted", "error", err)
	}
	sess := session.New(st, o.log)
	userID := func() string {
		if id := sess.UserID(); id != "" {
			return id
		}
		return cfg.UserID
	}

	clientOpts := []remote.Option{
		remote.WithTokenSource(sess),
		remote.WithDeviceID(device),
		remote.WithBackoff(cfg.Backoff),
		remote.WithMaxRetries(cfg.MaxRetries),
		remote.WithLogger(o.log),
	}
	if o.http != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(o.http))
	}
	client := remote.New(cfg.BaseURL, clientOpts...)

	todoRule, _ := reconcile.RuleByName[todo.Item](cfg.Conflict)
	chatRule, _ := reconcile.RuleByName[chat.Session](cfg.Conflict)

	return &Service{
		Config:   cfg,
		Store:    st,
		Client:   client,
		Session:  sess,
		Todo:     todo.New(st, client, todoRule, o.log),
		Chat:     chat.New(st, client, chatRule, o.log),
		Memo:     memo.New(st, client, cfg.MemoDebounce, o.log),
		Timer:    timer.New(st, client, userID, o.log),
		Catalog:  catalog.New(st, client, userID, o.log),
		DeviceID: device,
		log:      o.log,
	}, nil
}

// Inbox opens the file-drop task channel.
func (s *Service) Inbox() (*channel.Inbox, error) {
	s.inboxOnce.Do(func() {
		s.inbox, s.inboxErr = channel.NewInbox(s.Config.InboxPath, s.log)
	})
	return s.inbox, s.inboxErr
}

// Start restores persisted state, replays a task request left pending by
// the previous run and resends todo items and chat sessions the server
// never confirmed.
func (s *Service) Start(ctx context.Context) error {
	s.Reload("")
	if _, err := s.Timer.ReplayPending(ctx); err != nil {
		s.log.Warn("app: pending task replay failed", "error", err)
	}
	if n := len(s.Todo.Resend(ctx)); n > 0 {
		s.log.Info("app: resent unconfirmed todo items", "count", n)
	}
	if n := len(s.Chat.Resend(ctx)); n > 0 {
		s.log.Info("app: resent unconfirmed chat sessions", "count", n)
	}
	return nil
}

// Reload re-reads key from the store after another process changed it. An
// empty key reloads every collection.
func (s *Service) Reload(key string) {
	collections := map[string]interface{ Reload() bool }{
		store.KeyTodo:  s.Todo.Reconciler(),
		store.KeyChat:  s.Chat.Reconciler(),
		store.KeyTimer: s.Timer.Reconciler(),
	}
	for k, c := range collections {
		if key == "" || key == k {
			if c.Reload() {
				s.log.Debug("app: reloaded", "key", k)
			}
		}
	}
}

// SyncResult is the outcome of revalidating one widget.
type SyncResult struct {
	Widget  string
	Changed bool
	Err     error
}

// Sync revalidates every widget concurrently. Individual failures are
// reported per widget, not returned.
func (s *Service) Sync(ctx context.Context) []SyncResult {
	jobs := []struct {
		name string
		run  func(context.Context) (bool, error)
	}{
		{"todo", s.Todo.Refresh},
		{"chat", s.Chat.Refresh},
		{"timer", s.Timer.Refresh},
		{"memo", s.Memo.Sync},
		{"catalog", func(ctx context.Context) (bool, error) {
			s.Catalog.Preload(ctx, true)
			return true, nil
		}},
	}
	results := make([]SyncResult, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			changed, err := job.run(ctx)
			results[i] = SyncResult{Widget: job.name, Changed: changed, Err: err}
			if err != nil {
				s.log.Warn("app: sync failed", "widget", job.name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Serve consumes task requests from sub and polls the timer until ctx is
// done.
func (s *Service) Serve(ctx context.Context, sub channel.Subscriber) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Timer.Poll(ctx, s.Config.TimerPoll)
		return nil
	})
	g.Go(func() error {
		err := sub.Subscribe(ctx, s.Timer.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// Reset signs out: the session and every widget key are cleared and all
// in-memory state is dropped.
func (s *Service) Reset() error {
	return errors.Join(
		s.Session.Logout(),
		s.Todo.Reset(),
		s.Chat.Reset(),
		s.Memo.Reset(),
		s.Timer.Reset(),
		s.Catalog.Reset(),
	)
}

// Close flushes a pending memo push and releases the store.
func (s *Service) Close() error {
	err := s.Memo.Close()
	if c, ok := s.Store.Backend().(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
