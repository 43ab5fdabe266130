package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

func TestTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, Title(nil))
	assert.Equal(t, DefaultTitle, Title([]Message{{Role: "assistant", Content: "hi"}}))
	assert.Equal(t, "hello", Title([]Message{{Role: "user", Parts: []Part{{Type: "text", Text: "hello"}}}}))
	long := strings.Repeat("é", 30)
	assert.Equal(t, strings.Repeat("é", 20), Title([]Message{{Role: "user", Content: long}}))
}

func TestSaveAssignsLocalIDThenServerID(t *testing.T) {
	var posted []saveBody
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body saveBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		posted = append(posted, body)
		id := "s1"
		if body.ID != nil {
			id = *body.ID
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Session{ID: id, Title: body.Title, Messages: body.Messages, UpdatedAt: time.Now().UTC()})
	}))
	defer ts.Close()

	s := store.New(store.NewMemory())
	w := New(s, remote.New(ts.URL), reconcile.MergeByID[Session](), nil)
	ctx := context.Background()

	saved, err := w.Save(ctx, Session{Messages: []Message{{Role: "user", Content: "plan my week"}}})
	require.NoError(t, err)
	assert.Equal(t, "s1", saved.ID)
	require.Len(t, posted, 1)
	assert.Nil(t, posted[0].ID, "new sessions are created without an id")
	assert.Equal(t, "plan my week", posted[0].Title)

	saved.Messages = append(saved.Messages, Message{Role: "assistant", Content: "sure"})
	again, err := w.Save(ctx, saved)
	require.NoError(t, err)
	require.Len(t, posted, 2)
	require.NotNil(t, posted[1].ID)
	assert.Equal(t, "s1", *posted[1].ID)
	assert.Len(t, again.Messages, 2)
	assert.Len(t, w.Sessions(), 1)
	assert.Equal(t, reconcile.Synced, w.Reconciler().State())
}

func TestSaveOfflineKeepsLocalSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	w := New(store.New(store.NewMemory()), remote.New(ts.URL), nil, nil)
	saved, err := w.Save(context.Background(), Session{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.True(t, remote.IsClientError(err))
	assert.True(t, strings.HasPrefix(saved.ID, reconcile.LocalPrefix))
	assert.Len(t, w.Sessions(), 1)

	require.NoError(t, w.Delete(context.Background(), saved.ID))
	assert.Empty(t, w.Sessions())
}

func TestLocalSessionIsResentOnNextSave(t *testing.T) {
	var (
		mu     sync.Mutex
		down   = true
		posted []saveBody
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if down {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		var body saveBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		posted = append(posted, body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Session{ID: fmt.Sprintf("s%d", len(posted)), Title: body.Title, Messages: body.Messages})
	}))
	defer ts.Close()

	c := remote.New(ts.URL, remote.WithSleep(func(context.Context, time.Duration) error { return nil }))
	w := New(store.New(store.NewMemory()), c, reconcile.MergeByID[Session](), nil)
	ctx := context.Background()

	offline, err := w.Save(ctx, Session{Messages: []Message{{Role: "user", Content: "first"}}})
	require.Error(t, err)
	require.True(t, reconcile.IsTemp(offline.ID))

	mu.Lock()
	down = false
	mu.Unlock()

	_, err = w.Save(ctx, Session{Messages: []Message{{Role: "user", Content: "second"}}})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, posted, 2)
	assert.Nil(t, posted[0].ID)
	assert.Equal(t, "first", posted[0].Title)
	assert.Equal(t, "second", posted[1].Title)
	mu.Unlock()

	for _, s := range w.Sessions() {
		assert.False(t, reconcile.IsTemp(s.ID), s.ID)
	}
	_, ok := w.Get(offline.ID)
	assert.False(t, ok, "the local id is replaced by the server id")
	assert.Equal(t, reconcile.Synced, w.Reconciler().State())
}
