package commands

import (
	"context"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/commands/options"
	"tableflip.dev/widgetsync/pkg/runner/chat"
)

func addChat(topLevel *cobra.Command) {
	io := &options.IDOptions{}
	r := &chat.Chat{}

	run := func(cmd *cobra.Command) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			r.Widget = svc.Chat
			r.ShowID = io.ShowID
			r.JSON = oo.JSON
			return r.Do(ctx)
		})
	}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "List AI chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	options.AddShowIDArgs(cmd, io)

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Delete = args[0]
			return run(cmd)
		},
	}
	options.AddShowIDArgs(rm, io)
	cmd.AddCommand(rm)
	topLevel.AddCommand(cmd)
}
