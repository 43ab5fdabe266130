// Package memo keeps the single memo document in the Local Store and pushes
// edits to /api/widget/memo after a quiet period.
package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tableflip.dev/widgetsync/pkg/debounce"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

// Path is the memo endpoint.
const Path = "/api/widget/memo"

// Memo is the server document.
type Memo struct {
	ID        string    `json:"id,omitempty"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Doc is the locally persisted document. UpdatedAt is epoch ms.
type Doc struct {
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Widget is the memo editor state.
type Widget struct {
	slot   store.Slot[Doc]
	client *remote.Client
	log    *slog.Logger
	now    func() time.Time
	deb    *debounce.Debouncer[string]

	mu      sync.Mutex
	editing bool
	lastErr error
}

// New creates the memo widget. delay is the push quiet period.
func New(s *store.Store, c *remote.Client, delay time.Duration, log *slog.Logger) *Widget {
	if log == nil {
		log = slog.Default()
	}
	w := &Widget{
		slot:   store.NewSlot[Doc](s, store.KeyMemo),
		client: c,
		log:    log.With("widget", "memo"),
		now:    s.Now,
	}
	w.deb = debounce.New(delay, w.push)
	return w
}

// Doc returns the local document.
func (w *Widget) Doc() Doc {
	doc, _, _ := w.slot.Load()
	return doc
}

// Content returns the local memo text.
func (w *Widget) Content() string { return w.Doc().Content }

// Dirty reports whether a local edit has not been confirmed by the server.
func (w *Widget) Dirty() bool {
	_, env, ok := w.slot.Load()
	return (ok && env.Dirty) || w.deb.Pending()
}

// SetEditing marks whether the user is currently editing. While editing a
// newer server copy does not overwrite local text.
func (w *Widget) SetEditing(editing bool) {
	w.mu.Lock()
	w.editing = editing
	w.mu.Unlock()
}

// Edit stores content locally right away and schedules the push.
func (w *Widget) Edit(content string) {
	doc := Doc{Content: content, UpdatedAt: w.now().UnixMilli()}
	if _, err := w.slot.SaveWith(doc, store.Envelope{Dirty: true}); err != nil {
		w.log.Warn("memo: persist failed", "error", err)
	}
	w.deb.Trigger(content)
}

// Flush pushes a pending edit now and returns the push result.
func (w *Widget) Flush() error {
	if !w.deb.Flush() {
		return nil
	}
	return w.LastError()
}

// LastError is the result of the most recent push.
func (w *Widget) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Close flushes any pending edit and stops the debouncer.
func (w *Widget) Close() error {
	err := w.Flush()
	w.deb.Stop()
	return err
}

func (w *Widget) push(content string) {
	err := w.client.Send(context.Background(), remote.Request{
		Method: http.MethodPost,
		Path:   Path,
		Body:   map[string]string{"content": content},
	})
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	if err != nil {
		w.log.Warn("memo: push failed", "error", err)
		return
	}
	doc, _, ok := w.slot.Load()
	if ok && doc.Content == content && !w.deb.Pending() {
		if _, err := w.slot.Save(doc); err != nil {
			w.log.Warn("memo: persist failed", "error", err)
		}
	}
}

// Sync fetches the server memo and applies it to the local document:
// an empty local memo takes the server copy; equal contents only advance
// the local timestamp; a newer server copy replaces local text unless the
// user is editing. It reports whether local content changed.
func (w *Widget) Sync(ctx context.Context) (bool, error) {
	var server *Memo
	if err := w.client.SafeFetchJSON(ctx, remote.Request{Method: http.MethodGet, Path: Path}, &server); err != nil {
		if errors.Is(err, remote.ErrNonJSONResponse) {
			return false, nil
		}
		return false, fmt.Errorf("memo: sync: %w", err)
	}
	if server == nil {
		return false, nil
	}
	return w.apply(*server), nil
}

func (w *Widget) apply(server Memo) bool {
	w.mu.Lock()
	editing := w.editing
	w.mu.Unlock()

	local, _, _ := w.slot.Load()
	serverTime := server.UpdatedAt.UnixMilli()
	switch {
	case local.Content == "":
		w.store(Doc{Content: server.Content, UpdatedAt: serverTime}, false)
		return server.Content != ""
	case local.Content == server.Content:
		if serverTime > local.UpdatedAt {
			w.store(Doc{Content: local.Content, UpdatedAt: serverTime}, false)
		}
		return false
	case serverTime > local.UpdatedAt && !editing && !w.deb.Pending():
		w.store(Doc{Content: server.Content, UpdatedAt: serverTime}, false)
		return true
	default:
		w.log.Debug("memo: keeping local copy", "local_ts", local.UpdatedAt, "server_ts", serverTime)
		return false
	}
}

func (w *Widget) store(doc Doc, dirty bool) {
	if _, err := w.slot.SaveWith(doc, store.Envelope{Dirty: dirty}); err != nil {
		w.log.Warn("memo: persist failed", "error", err)
	}
}

// Reset stops pending pushes and clears the document.
func (w *Widget) Reset() error {
	w.deb.Cancel()
	w.SetEditing(false)
	return w.slot.Clear()
}
