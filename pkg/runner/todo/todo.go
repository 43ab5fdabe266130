// Package todo runs the todo subcommands.
package todo

import (
	"context"
	"log/slog"

	"tableflip.dev/widgetsync/pkg/printers"
	"tableflip.dev/widgetsync/pkg/todo"
)

// Action selects what Do performs.
type Action string

const (
	List   Action = "list"
	Add    Action = "add"
	Toggle Action = "toggle"
	Remove Action = "remove"
	Expand Action = "expand"
)

// Todo drives the todo widget.
type Todo struct {
	Widget *todo.Widget
	Action Action

	ID        string
	Text      string
	Group     string
	Collapse  bool
	Completed bool
	ShowID    bool
	JSON      bool
}

// Do performs the action, then prints the list.
func (t *Todo) Do(ctx context.Context) error {
	if _, err := t.Widget.Refresh(ctx); err != nil {
		slog.Warn("showing cached todo list", "error", err)
	}
	var err error
	switch t.Action {
	case Add:
		_, err = t.Widget.Add(ctx, t.Text, t.Group)
	case Toggle:
		_, err = t.Widget.Toggle(ctx, t.ID)
	case Remove:
		err = t.Widget.Delete(ctx, t.ID)
	case Expand:
		t.Widget.SetExpanded(t.Group, !t.Collapse)
	}
	if t.Completed {
		t.Widget.SetShowCompleted(true)
	}

	if t.JSON {
		if perr := printers.JSON(nil, t.Widget.Items()); perr != nil {
			return perr
		}
		return err
	}
	pp := printers.PrettyPrint{ShowID: t.ShowID}
	pp.Todos(t.Widget.Grouped())
	return err
}
