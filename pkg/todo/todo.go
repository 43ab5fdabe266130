// Package todo binds the todo widget to its Local Store key and the
// /api/widget/todo collection.
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

// Path is the REST collection endpoint.
const Path = "/api/widget/todo"

// DefaultGroup is used for items added without a group.
const DefaultGroup = "default"

// Item is one todo entry.
type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Group     string    `json:"group"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Policy is the reconcile policy for todo items.
func Policy(rule reconcile.ConflictRule[Item]) reconcile.Policy[Item] {
	return reconcile.Policy[Item]{
		ID:    func(it Item) string { return it.ID },
		SetID: func(it Item, id string) Item { it.ID = id; return it },
		Stamp: func(it Item) time.Time {
			if it.UpdatedAt.After(it.CreatedAt) {
				return it.UpdatedAt
			}
			return it.CreatedAt
		},
		IDPrefix: reconcile.TempPrefix,
		Conflict: rule,
	}
}

// UIState is the persisted presentation state.
type UIState struct {
	ExpandedGroups []string `json:"expandedGroups"`
	ShowCompleted  bool     `json:"showCompleted"`
}

// Expanded reports whether group is expanded. The default group always is.
func (u UIState) Expanded(group string) bool {
	if group == DefaultGroup {
		return true
	}
	for _, g := range u.ExpandedGroups {
		if g == group {
			return true
		}
	}
	return false
}

// Widget is the todo list.
type Widget struct {
	rec    *reconcile.Reconciler[Item]
	remote remote.Collection[Item]
	ui     store.Slot[UIState]
	log    *slog.Logger
	now    func() time.Time
}

// New creates the todo widget.
func New(s *store.Store, c *remote.Client, rule reconcile.ConflictRule[Item], log *slog.Logger) *Widget {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("widget", "todo")
	return &Widget{
		rec:    reconcile.New(store.NewSlot[[]Item](s, store.KeyTodo), Policy(rule), reconcile.WithLogger(log)),
		remote: remote.NewCollection[Item](c, Path),
		ui:     store.NewSlot[UIState](s, store.KeyTodoUI),
		log:    log,
		now:    s.Now,
	}
}

// Reconciler exposes the underlying reconciler.
func (w *Widget) Reconciler() *reconcile.Reconciler[Item] { return w.rec }

// Items returns the current list.
func (w *Widget) Items() []Item { return w.rec.View() }

// Refresh revalidates against the server.
func (w *Widget) Refresh(ctx context.Context) (bool, error) {
	changed, err := w.rec.Revalidate(ctx, w.remote.List)
	if err != nil {
		return false, fmt.Errorf("todo: refresh: %w", err)
	}
	return changed, nil
}

// Add appends a new item optimistically and POSTs it. On failure the item
// stays visible with its temporary id and the error is returned.
func (w *Widget) Add(ctx context.Context, text, group string) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, errors.New("todo: text required")
	}
	group = strings.TrimSpace(group)
	if group == "" {
		group = DefaultGroup
	}
	w.Resend(ctx)
	ticket, item := w.rec.Create(Item{Text: text, Group: group, CreatedAt: w.now().UTC()})
	if group != DefaultGroup {
		w.setExpanded(group, true)
	}

	confirmed, err := w.remote.Create(ctx, map[string]string{"text": text, "group": group})
	if err != nil {
		w.rec.OnServerFailure(ticket, err)
		return item, fmt.Errorf("todo: add: %w", err)
	}
	if confirmed.ID == "" {
		w.rec.OnServerFailure(ticket, errors.New("server returned no id"))
		return item, errors.New("todo: add: server returned no id")
	}
	if confirmed.Group == "" {
		confirmed.Group = group
	}
	_ = w.rec.OnServerAck(ticket, &confirmed)
	return confirmed, nil
}

// Toggle flips the completed flag.
func (w *Widget) Toggle(ctx context.Context, id string) (Item, error) {
	if renamed, ok := w.Resend(ctx)[id]; ok {
		id = renamed
	}
	return w.update(ctx, id, func(it Item) Item {
		it.Completed = !it.Completed
		return it
	})
}

func (w *Widget) update(ctx context.Context, id string, fn func(Item) Item) (Item, error) {
	ticket, item, ok := w.rec.Update(id, func(it Item) Item {
		it = fn(it)
		it.UpdatedAt = w.now().UTC()
		return it
	})
	if !ok {
		return Item{}, fmt.Errorf("todo: no item %q", id)
	}
	if reconcile.IsTemp(id) {
		// Resend posts the current fields once the server is back.
		_ = w.rec.OnServerAck(ticket, nil)
		return item, nil
	}
	confirmed, got, err := w.remote.Update(ctx, map[string]any{"id": id, "completed": item.Completed})
	if err != nil {
		w.rec.OnServerFailure(ticket, err)
		return item, fmt.Errorf("todo: toggle: %w", err)
	}
	if got && confirmed.ID == id {
		_ = w.rec.OnServerAck(ticket, &confirmed)
		return confirmed, nil
	}
	_ = w.rec.OnServerAck(ticket, nil)
	return item, nil
}

// Delete removes an item.
func (w *Widget) Delete(ctx context.Context, id string) error {
	if renamed, ok := w.Resend(ctx)[id]; ok {
		id = renamed
	}
	ticket, ok := w.rec.Delete(id)
	if !ok {
		return fmt.Errorf("todo: no item %q", id)
	}
	if reconcile.IsTemp(id) {
		_ = w.rec.OnServerAck(ticket, nil)
		return nil
	}
	if err := w.remote.Delete(ctx, id); err != nil {
		w.rec.OnServerFailure(ticket, err)
		return fmt.Errorf("todo: delete: %w", err)
	}
	_ = w.rec.OnServerAck(ticket, nil)
	return nil
}

// Resend creates every item still holding a temporary id on the server,
// carrying its current fields, and returns the temporary to durable id
// mapping of the items that made it. Failures are logged and the items
// stay local until the next attempt.
func (w *Widget) Resend(ctx context.Context) map[string]string {
	renamed := map[string]string{}
	for _, it := range w.rec.Unconfirmed() {
		ticket, item, ok := w.rec.Resend(it.ID)
		if !ok {
			continue
		}
		confirmed, err := w.remote.Create(ctx, map[string]string{"text": item.Text, "group": item.Group})
		if err == nil && confirmed.ID == "" {
			err = errors.New("server returned no id")
		}
		if err != nil {
			w.rec.OnServerFailure(ticket, err)
			w.log.Warn("todo: resend failed", "id", item.ID, "error", err)
			// The server is likely still down; leave the rest for later.
			break
		}
		if confirmed.Group == "" {
			confirmed.Group = item.Group
		}
		_ = w.rec.OnServerAck(ticket, &confirmed)
		renamed[item.ID] = confirmed.ID
		if item.Completed && !confirmed.Completed {
			if _, err := w.update(ctx, confirmed.ID, func(it Item) Item {
				it.Completed = true
				return it
			}); err != nil {
				w.log.Warn("todo: resend completed flag failed", "id", confirmed.ID, "error", err)
			}
		}
	}
	return renamed
}

// Group is one group of active items.
type Group struct {
	Name     string
	Items    []Item
	Expanded bool
}

// View is the grouped presentation of the list.
type View struct {
	Groups        []Group
	Completed     []Item
	ShowCompleted bool
}

// Grouped returns active items grouped in first-seen order, with the default
// group first, and completed items listed separately. Empty non-default
// groups are omitted.
func (w *Widget) Grouped() View {
	ui := w.UI()
	items := w.Items()
	byGroup := map[string][]Item{DefaultGroup: nil}
	order := []string{DefaultGroup}
	var completed []Item
	for _, it := range items {
		g := it.Group
		if g == "" {
			g = DefaultGroup
		}
		if _, seen := byGroup[g]; !seen {
			order = append(order, g)
			byGroup[g] = nil
		}
		if it.Completed {
			completed = append(completed, it)
			continue
		}
		byGroup[g] = append(byGroup[g], it)
	}
	v := View{Completed: completed, ShowCompleted: ui.ShowCompleted}
	for _, g := range order {
		if len(byGroup[g]) == 0 && g != DefaultGroup {
			continue
		}
		v.Groups = append(v.Groups, Group{Name: g, Items: byGroup[g], Expanded: ui.Expanded(g)})
	}
	return v
}

// UI returns the persisted presentation state.
func (w *Widget) UI() UIState {
	ui, _, ok := w.ui.Load()
	if !ok {
		return UIState{ExpandedGroups: []string{DefaultGroup}}
	}
	return ui
}

// SetExpanded expands or collapses group.
func (w *Widget) SetExpanded(group string, expanded bool) {
	w.setExpanded(group, expanded)
}

func (w *Widget) setExpanded(group string, expanded bool) {
	ui := w.UI()
	set := make(map[string]struct{}, len(ui.ExpandedGroups)+1)
	for _, g := range ui.ExpandedGroups {
		set[g] = struct{}{}
	}
	if expanded {
		set[group] = struct{}{}
	} else {
		delete(set, group)
	}
	ui.ExpandedGroups = ui.ExpandedGroups[:0]
	for g := range set {
		ui.ExpandedGroups = append(ui.ExpandedGroups, g)
	}
	sort.Strings(ui.ExpandedGroups)
	w.saveUI(ui)
}

// SetShowCompleted toggles the completed section.
func (w *Widget) SetShowCompleted(show bool) {
	ui := w.UI()
	ui.ShowCompleted = show
	w.saveUI(ui)
}

func (w *Widget) saveUI(ui UIState) {
	if _, err := w.ui.Save(ui); err != nil {
		w.log.Warn("todo: persist ui state failed", "error", err)
	}
}

// Reset clears the widget's memory and storage.
func (w *Widget) Reset() error {
	if err := w.rec.Reset(); err != nil {
		return err
	}
	return w.ui.Clear()
}
