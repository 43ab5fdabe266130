// Package mcp exposes the widgets as Model Context Protocol tools and
// resources.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/catalog"
	"tableflip.dev/widgetsync/pkg/channel"
	"tableflip.dev/widgetsync/pkg/chat"
	"tableflip.dev/widgetsync/pkg/memo"
	"tableflip.dev/widgetsync/pkg/timer"
	"tableflip.dev/widgetsync/pkg/todo"
)

// Service adapts app.Service to the shapes returned over MCP.
type Service struct {
	App *app.Service
}

// ErrNotConfigured is returned when the service has no app behind it.
var ErrNotConfigured = errors.New("mcp: service is not configured")

// NewService wraps a.
func NewService(a *app.Service) *Service {
	return &Service{App: a}
}

// TaskOptions captures the parameters of a new timer task.
type TaskOptions struct {
	Name         string
	CategoryPath string
	Tags         []string
	ParentID     string
	InitialTime  int64
	Date         string
}

// SyncSummary reports one widget's sync outcome.
type SyncSummary struct {
	Widget  string `json:"widget"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

func (s *Service) app() (*app.Service, error) {
	if s == nil || s.App == nil {
		return nil, ErrNotConfigured
	}
	return s.App, nil
}

// Todos lists todo items, refreshing first when possible.
func (s *Service) Todos(ctx context.Context) ([]todo.Item, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	_, _ = a.Todo.Refresh(ctx)
	return a.Todo.Items(), nil
}

// AddTodo appends a todo item.
func (s *Service) AddTodo(ctx context.Context, text, group string) (todo.Item, error) {
	a, err := s.app()
	if err != nil {
		return todo.Item{}, err
	}
	return a.Todo.Add(ctx, text, group)
}

// ToggleTodo flips an item's completed flag.
func (s *Service) ToggleTodo(ctx context.Context, id string) (todo.Item, error) {
	a, err := s.app()
	if err != nil {
		return todo.Item{}, err
	}
	return a.Todo.Toggle(ctx, id)
}

// DeleteTodo removes an item.
func (s *Service) DeleteTodo(ctx context.Context, id string) error {
	a, err := s.app()
	if err != nil {
		return err
	}
	return a.Todo.Delete(ctx, id)
}

// Tasks lists today's timer tasks.
func (s *Service) Tasks(ctx context.Context) ([]timer.Task, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	if _, err := a.Timer.Refresh(ctx); err != nil && !errors.Is(err, timer.ErrNoUser) {
		slog.Debug("mcp: timer refresh failed", "error", err)
	}
	return a.Timer.Tasks(), nil
}

// CreateTask starts a new running task.
func (s *Service) CreateTask(ctx context.Context, opts TaskOptions) (timer.Task, error) {
	a, err := s.app()
	if err != nil {
		return timer.Task{}, err
	}
	return a.Timer.Create(ctx, channel.TaskRequest{
		Name:             strings.TrimSpace(opts.Name),
		CategoryPath:     strings.TrimSpace(opts.CategoryPath),
		InstanceTagNames: channel.TagList(opts.Tags),
		ParentID:         opts.ParentID,
		InitialTime:      opts.InitialTime,
		Date:             opts.Date,
	})
}

// StartTask resumes a task.
func (s *Service) StartTask(ctx context.Context, id string) (timer.Task, error) {
	a, err := s.app()
	if err != nil {
		return timer.Task{}, err
	}
	return a.Timer.Start(ctx, id)
}

// PauseTask pauses a running task.
func (s *Service) PauseTask(ctx context.Context, id string) (timer.Task, error) {
	a, err := s.app()
	if err != nil {
		return timer.Task{}, err
	}
	return a.Timer.Pause(ctx, id)
}

// Memo returns the memo after a sync attempt.
func (s *Service) Memo(ctx context.Context) (memo.Doc, error) {
	a, err := s.app()
	if err != nil {
		return memo.Doc{}, err
	}
	_, _ = a.Memo.Sync(ctx)
	return a.Memo.Doc(), nil
}

// SetMemo replaces the memo and pushes it.
func (s *Service) SetMemo(_ context.Context, content string) (memo.Doc, error) {
	a, err := s.app()
	if err != nil {
		return memo.Doc{}, err
	}
	a.Memo.Edit(content)
	err = a.Memo.Flush()
	return a.Memo.Doc(), err
}

// Chats lists chat sessions.
func (s *Service) Chats(ctx context.Context) ([]chat.Session, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	_, _ = a.Chat.Refresh(ctx)
	return a.Chat.Sessions(), nil
}

// Categories returns the category paths.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	return catalog.Paths(a.Catalog.Categories.Preload(ctx, false)), nil
}

// Tags returns instance tags matching query.
func (s *Service) Tags(ctx context.Context, query string) ([]catalog.InstanceTag, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	return catalog.Match(a.Catalog.Tags.Preload(ctx, false), query), nil
}

// Sync revalidates every widget.
func (s *Service) Sync(ctx context.Context) ([]SyncSummary, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	results := a.Sync(ctx)
	out := make([]SyncSummary, 0, len(results))
	for _, r := range results {
		sum := SyncSummary{Widget: r.Widget, Changed: r.Changed}
		if r.Err != nil {
			sum.Error = r.Err.Error()
		}
		out = append(out, sum)
	}
	return out, nil
}

// Status reports per-widget sync state.
func (s *Service) Status(ctx context.Context) ([]app.WidgetStatus, error) {
	a, err := s.app()
	if err != nil {
		return nil, err
	}
	return a.Status(ctx), nil
}
