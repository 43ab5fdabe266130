package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/config"
	"tableflip.dev/widgetsync/pkg/store"
	"tableflip.dev/widgetsync/pkg/timer"
	"tableflip.dev/widgetsync/pkg/todo"
)

type fakeAPI struct {
	mu    sync.Mutex
	todos []todo.Item
	tasks []timer.Task
	next  int
}

func (f *fakeAPI) id() string {
	f.next++
	return "srv-" + strconv.Itoa(f.next)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(todo.Path, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			var it todo.Item
			_ = json.NewDecoder(r.Body).Decode(&it)
			it.ID = f.id()
			f.todos = append(f.todos, it)
			_ = json.NewEncoder(w).Encode(it)
		default:
			_ = json.NewEncoder(w).Encode(f.todos)
		}
	})
	mux.HandleFunc(timer.Path, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			var t timer.Task
			_ = json.NewDecoder(r.Body).Decode(&t)
			t.ID = f.id()
			f.tasks = append(f.tasks, t)
			_ = json.NewEncoder(w).Encode(t)
		case http.MethodPut:
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		default:
			_ = json.NewEncoder(w).Encode(f.tasks)
		}
	})
	return mux
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	api := &fakeAPI{}
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)
	a, err := app.New(&config.Config{
		BaseURL:      ts.URL,
		InboxPath:    t.TempDir(),
		MemoDebounce: 10 * time.Millisecond,
		UserID:       "u1",
	}, app.WithStore(store.New(store.NewMemory())))
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return NewService(a)
}

func TestServiceAddTodo(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	item, err := svc.AddTodo(ctx, "Buy milk", "")
	if err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	if item.ID != "srv-1" {
		t.Fatalf("expected server id, got %q", item.ID)
	}
	if item.Group != todo.DefaultGroup {
		t.Fatalf("expected default group, got %q", item.Group)
	}

	items, err := svc.Todos(ctx)
	if err != nil {
		t.Fatalf("Todos failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestServiceCreateTaskRuns(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	task, err := svc.CreateTask(ctx, TaskOptions{Name: "Write", Tags: []string{"focus"}})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("expected task id")
	}
	if !task.IsRunning {
		t.Fatalf("expected new task to run")
	}
}

func TestServiceRequiresApp(t *testing.T) {
	var svc *Service
	if _, err := svc.Todos(context.Background()); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHealthzReportsWidgets(t *testing.T) {
	svc := newTestService(t)
	r := Runner{Service: svc.App}
	ts := httptest.NewServer(r.handler(r.newServer()))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		OK      bool             `json:"ok"`
		Widgets []map[string]any `json:"widgets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || len(body.Widgets) == 0 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}
