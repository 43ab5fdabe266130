// Package timer runs the timer subcommands.
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"tableflip.dev/widgetsync/pkg/channel"
	"tableflip.dev/widgetsync/pkg/printers"
	"tableflip.dev/widgetsync/pkg/timer"
)

// Action selects what Do performs.
type Action string

const (
	List  Action = "list"
	Start Action = "start"
	Pause Action = "pause"
	// Create applies a task request directly.
	Create Action = "create"
	// Publish drops the request into the inbox for a running watcher.
	Publish Action = "publish"
)

// Timer drives the timer widget.
type Timer struct {
	Widget    *timer.Widget
	Publisher channel.Publisher
	Action    Action

	ID      string
	Request channel.TaskRequest
	ShowID  bool
	JSON    bool
}

// Do performs the action, then prints today's tasks.
func (t *Timer) Do(ctx context.Context) error {
	if t.Action == Publish {
		if t.Publisher == nil {
			return fmt.Errorf("timer: no task channel configured")
		}
		req := channel.Stamp(t.Request, time.Now())
		if err := t.Publisher.Publish(ctx, req); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(color.Output, "queued task request %s\n", req.Key())
		return nil
	}

	if _, err := t.Widget.Refresh(ctx); err != nil {
		slog.Warn("showing cached tasks", "error", err)
	}
	var err error
	switch t.Action {
	case Start:
		_, err = t.Widget.Start(ctx, t.ID)
	case Pause:
		_, err = t.Widget.Pause(ctx, t.ID)
	case Create:
		_, err = t.Widget.Create(ctx, t.Request)
	}

	if t.JSON {
		if perr := printers.JSON(nil, t.Widget.Tasks()); perr != nil {
			return perr
		}
		return err
	}
	pp := printers.PrettyPrint{ShowID: t.ShowID}
	pp.Tasks(t.Widget.Tasks(), time.Now())
	return err
}
