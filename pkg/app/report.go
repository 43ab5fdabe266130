package app

import (
	"context"
	"time"

	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/store"
)

// WidgetStatus summarizes one widget's sync state.
type WidgetStatus struct {
	Widget  string
	Key     string
	State   string
	Items   int
	Pending int
	Updated time.Time
}

type collection interface {
	Name() string
	State() reconcile.State
	Pending() int
	Envelope() store.Envelope
}

// Status reports the sync state of every widget.
func (s *Service) Status(_ context.Context) []WidgetStatus {
	out := make([]WidgetStatus, 0, 6)
	add := func(widget string, c collection, items int) {
		st := WidgetStatus{
			Widget:  widget,
			Key:     c.Name(),
			State:   c.State().String(),
			Items:   items,
			Pending: c.Pending(),
		}
		if ts := c.Envelope().TS; ts > 0 {
			st.Updated = time.UnixMilli(ts)
		}
		out = append(out, st)
	}
	add("todo", s.Todo.Reconciler(), len(s.Todo.Items()))
	add("chat", s.Chat.Reconciler(), len(s.Chat.Sessions()))
	add("timer", s.Timer.Reconciler(), len(s.Timer.Tasks()))

	memoState := reconcile.Synced
	if s.Memo.Dirty() {
		memoState = reconcile.LocalAhead
	}
	memo := WidgetStatus{Widget: "memo", Key: store.KeyMemo, State: memoState.String()}
	if doc := s.Memo.Doc(); doc.UpdatedAt > 0 {
		memo.Items = 1
		memo.Updated = time.UnixMilli(doc.UpdatedAt)
	}
	out = append(out, memo)

	for _, c := range []struct {
		name, key string
		items     int
		age       func() (time.Duration, bool)
	}{
		{"categories", store.KeyCategories, len(s.Catalog.Categories.Cached()), s.Catalog.Categories.Age},
		{"tags", store.KeyInstanceTags, len(s.Catalog.Tags.Cached()), s.Catalog.Tags.Age},
	} {
		st := WidgetStatus{Widget: c.name, Key: c.key, State: "empty", Items: c.items}
		if age, ok := c.age(); ok {
			st.State = "cached"
			st.Updated = s.Store.Now().Add(-age)
		}
		out = append(out, st)
	}
	return out
}
