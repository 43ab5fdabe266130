package todo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

type fakeServer struct {
	mu     sync.Mutex
	items  []Item
	nextID int
	fail   bool
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(f.items)
	case http.MethodPost:
		var body Item
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		body.ID = strconv.Itoa(f.nextID)
		body.CreatedAt = time.Now().UTC()
		f.items = append(f.items, body)
		_ = json.NewEncoder(w).Encode(body)
	case http.MethodPut:
		var body struct {
			ID        string `json:"id"`
			Completed bool   `json:"completed"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i := range f.items {
			if f.items[i].ID == body.ID {
				f.items[i].Completed = body.Completed
				_ = json.NewEncoder(w).Encode(f.items[i])
				return
			}
		}
		http.Error(w, "missing", http.StatusNotFound)
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		for i := range f.items {
			if f.items[i].ID == id {
				f.items = append(f.items[:i], f.items[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newWidget(t *testing.T, srv *fakeServer) (*Widget, *store.Store) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	s := store.New(store.NewMemory())
	c := remote.New(ts.URL, remote.WithSleep(func(context.Context, time.Duration) error { return nil }))
	return New(s, c, reconcile.Coarse[Item](), nil), s
}

func TestAddRefreshToggleDelete(t *testing.T) {
	srv := &fakeServer{nextID: 41, items: []Item{{ID: "1", Text: "Buy milk", Group: DefaultGroup, CreatedAt: time.Now().Add(-time.Hour).UTC()}}}
	w, s := newWidget(t, srv)
	ctx := context.Background()

	changed, err := w.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, w.Items(), 1)

	added, err := w.Add(ctx, "Call mom", "")
	require.NoError(t, err)
	assert.Equal(t, "42", added.ID)
	assert.Equal(t, DefaultGroup, added.Group)

	items, _, ok := store.NewSlot[[]Item](s, store.KeyTodo).Load()
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "42", items[1].ID)

	toggled, err := w.Toggle(ctx, "42")
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	require.NoError(t, w.Delete(ctx, "1"))
	assert.Len(t, w.Items(), 1)
	assert.Equal(t, reconcile.Synced, w.Reconciler().State())
}

func TestAddFailureKeepsTempItem(t *testing.T) {
	srv := &fakeServer{fail: true}
	w, _ := newWidget(t, srv)

	item, err := w.Add(context.Background(), "offline", "errands")
	require.Error(t, err)
	assert.True(t, reconcile.IsTemp(item.ID))
	require.Len(t, w.Items(), 1)
	assert.Equal(t, reconcile.LocalAhead, w.Reconciler().State())

	// Local-only edits of unconfirmed items never hit the server.
	_, err = w.Toggle(context.Background(), item.ID)
	require.NoError(t, err)
}

func TestGroupedView(t *testing.T) {
	w, _ := newWidget(t, &fakeServer{})
	w.Reconciler().OnBackgroundRevalidate(w.Reconciler().Generation(), []Item{
		{ID: "1", Text: "a", Group: DefaultGroup},
		{ID: "2", Text: "b", Group: "work"},
		{ID: "3", Text: "c", Group: "home", Completed: true},
	}, time.Now().UnixMilli()+1000)

	w.SetExpanded("work", true)
	v := w.Grouped()
	require.Len(t, v.Groups, 2)
	assert.Equal(t, DefaultGroup, v.Groups[0].Name)
	assert.Equal(t, "work", v.Groups[1].Name)
	assert.True(t, v.Groups[1].Expanded)
	require.Len(t, v.Completed, 1)
	assert.False(t, v.ShowCompleted)

	w.SetShowCompleted(true)
	w.SetExpanded("work", false)
	v = w.Grouped()
	assert.True(t, v.ShowCompleted)
	assert.False(t, v.Groups[1].Expanded)
}

func TestAddRequiresText(t *testing.T) {
	w, _ := newWidget(t, &fakeServer{})
	_, err := w.Add(context.Background(), "   ", "")
	assert.Error(t, err)
}

func TestUnconfirmedItemIsResentOnNextMutation(t *testing.T) {
	srv := &fakeServer{fail: true}
	w, _ := newWidget(t, srv)
	ctx := context.Background()

	first, err := w.Add(ctx, "offline", "errands")
	require.Error(t, err)
	require.True(t, reconcile.IsTemp(first.ID))
	_, err = w.Toggle(ctx, first.ID)
	require.NoError(t, err)

	srv.mu.Lock()
	srv.fail = false
	srv.mu.Unlock()

	second, err := w.Add(ctx, "online", "")
	require.NoError(t, err)
	assert.False(t, reconcile.IsTemp(second.ID))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.items, 2)
	assert.Equal(t, "offline", srv.items[0].Text)
	assert.Equal(t, "errands", srv.items[0].Group)
	assert.True(t, srv.items[0].Completed, "the local toggle reaches the server")
	assert.Equal(t, "online", srv.items[1].Text)

	for _, it := range w.Items() {
		assert.False(t, reconcile.IsTemp(it.ID), it.ID)
	}
	assert.Equal(t, reconcile.Synced, w.Reconciler().State())
}

func TestResendStopsAtFirstFailure(t *testing.T) {
	srv := &fakeServer{fail: true}
	w, _ := newWidget(t, srv)
	ctx := context.Background()

	_, _ = w.Add(ctx, "a", "")
	_, _ = w.Add(ctx, "b", "")
	assert.Empty(t, w.Resend(ctx))
	assert.Len(t, w.Reconciler().Unconfirmed(), 2)
	assert.Zero(t, w.Reconciler().Pending())

	srv.mu.Lock()
	srv.fail = false
	srv.mu.Unlock()
	assert.Len(t, w.Resend(ctx), 2)
	assert.Empty(t, w.Reconciler().Unconfirmed())
}
