// Package chat runs the chat subcommands.
package chat

import (
	"context"
	"log/slog"

	"tableflip.dev/widgetsync/pkg/chat"
	"tableflip.dev/widgetsync/pkg/printers"
)

// Chat lists sessions, optionally deleting one first.
type Chat struct {
	Widget *chat.Widget
	Delete string
	ShowID bool
	JSON   bool
}

func (c *Chat) Do(ctx context.Context) error {
	if _, err := c.Widget.Refresh(ctx); err != nil {
		slog.Warn("showing cached chat sessions", "error", err)
	}
	var err error
	if c.Delete != "" {
		err = c.Widget.Delete(ctx, c.Delete)
	}
	if c.JSON {
		if perr := printers.JSON(nil, c.Widget.Sessions()); perr != nil {
			return perr
		}
		return err
	}
	pp := printers.PrettyPrint{ShowID: c.ShowID}
	pp.Sessions(c.Widget.Sessions())
	return err
}
