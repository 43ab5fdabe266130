package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/widgetsync/pkg/catalog"
	"tableflip.dev/widgetsync/pkg/chat"
	"tableflip.dev/widgetsync/pkg/config"
	"tableflip.dev/widgetsync/pkg/memo"
	"tableflip.dev/widgetsync/pkg/session"
	"tableflip.dev/widgetsync/pkg/store"
	"tableflip.dev/widgetsync/pkg/timer"
	"tableflip.dev/widgetsync/pkg/todo"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(path string, v any) {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		})
	}
	reply(todo.Path, []todo.Item{{ID: "1", Text: "Buy milk", Group: todo.DefaultGroup}})
	reply(chat.Path, []chat.Session{})
	reply(timer.Path, []timer.Task{{ID: "t1", Name: "Write"}})
	reply(memo.Path, memo.Memo{ID: "m", Content: "hello", UpdatedAt: time.UnixMilli(1_700_000_000_000)})
	reply(catalog.CategoriesPath, []catalog.Category{{ID: "c", Name: "Work"}})
	reply(catalog.TagsPath, []catalog.InstanceTag{{ID: "g", Name: "focus"}})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	ts := newBackend(t)
	s := store.New(store.NewMemory())
	cfg := &config.Config{
		BaseURL:      ts.URL,
		InboxPath:    t.TempDir(),
		MemoDebounce: 10 * time.Millisecond,
		TimerPoll:    time.Hour,
		Conflict:     "coarse",
		UserID:       "u1",
	}
	svc, err := New(cfg, WithStore(s))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, s
}

func TestNewAssignsDeviceID(t *testing.T) {
	svc, s := newService(t)
	assert.NotEmpty(t, svc.DeviceID)
	again, err := session.DeviceID(s)
	require.NoError(t, err)
	assert.Equal(t, svc.DeviceID, again)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestSyncRefreshesEveryWidget(t *testing.T) {
	svc, _ := newService(t)
	require.NoError(t, svc.Start(context.Background()))

	results := svc.Sync(context.Background())
	require.Len(t, results, 5)
	for _, r := range results {
		assert.NoError(t, r.Err, r.Widget)
	}
	svc.Catalog.Categories.Wait()

	assert.Len(t, svc.Todo.Items(), 1)
	assert.Len(t, svc.Timer.Tasks(), 1)
	assert.Equal(t, "hello", svc.Memo.Content())
	assert.True(t, svc.Catalog.Categories.Ready())
}

func TestStatusReportsWidgets(t *testing.T) {
	svc, _ := newService(t)
	svc.Sync(context.Background())
	svc.Catalog.Categories.Wait()

	byName := map[string]WidgetStatus{}
	for _, st := range svc.Status(context.Background()) {
		byName[st.Widget] = st
	}
	require.Contains(t, byName, "todo")
	assert.Equal(t, "synced", byName["todo"].State)
	assert.Equal(t, 1, byName["todo"].Items)
	assert.False(t, byName["todo"].Updated.IsZero())
	assert.Equal(t, 1, byName["memo"].Items)
	assert.Equal(t, "cached", byName["categories"].State)
}

func TestResetSignsOutAndClears(t *testing.T) {
	svc, s := newService(t)
	require.NoError(t, svc.Session.Login("tok", session.User{ID: "u1"}))
	svc.Sync(context.Background())

	require.NoError(t, svc.Reset())
	assert.False(t, svc.Session.SignedIn())
	assert.Empty(t, svc.Todo.Items())
	assert.Empty(t, svc.Memo.Content())
	for _, key := range store.WidgetKeys {
		_, ok := s.Load(key)
		assert.False(t, ok, key)
	}
}

func TestMigrateStoreCopiesKeys(t *testing.T) {
	from := store.NewMemory()
	require.NoError(t, from.Write(store.KeyTodo, []byte(`{"ts":1,"data":[]}`)))
	require.NoError(t, from.Write(store.KeyMemo, []byte(`{"ts":2,"data":{"content":"x"}}`)))
	to := store.NewMemory()

	n, err := MigrateStore(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	raw, err := to.Read(store.KeyMemo)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ts":2,"data":{"content":"x"}}`, string(raw))

	_, err = MigrateStore(context.Background(), nil, to)
	assert.Error(t, err)
}

func TestStartResendsUnconfirmedTodoItems(t *testing.T) {
	var posted []map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc(todo.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		posted = append(posted, body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(todo.Item{ID: "7", Text: body["text"], Group: body["group"]})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := store.New(store.NewMemory())
	_, err := store.NewSlot[[]todo.Item](s, store.KeyTodo).SaveWith(
		[]todo.Item{{ID: "temp-1", Text: "left offline", Group: todo.DefaultGroup}},
		store.Envelope{Dirty: true},
	)
	require.NoError(t, err)

	svc, err := New(&config.Config{BaseURL: ts.URL, InboxPath: t.TempDir(), TimerPoll: time.Hour}, WithStore(s))
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.Start(context.Background()))
	require.Len(t, posted, 1)
	assert.Equal(t, "left offline", posted[0]["text"])
	items := svc.Todo.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "7", items[0].ID)
}
