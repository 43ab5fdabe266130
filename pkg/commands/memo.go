package commands

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/runner/memo"
)

func addMemo(topLevel *cobra.Command) {
	r := &memo.Memo{}

	run := func(cmd *cobra.Command) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			r.Widget = svc.Memo
			r.JSON = oo.JSON
			return r.Do(ctx)
		})
	}

	cmd := &cobra.Command{
		Use:   "memo",
		Short: "Show the memo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	set := &cobra.Command{
		Use:   "set <text | ->",
		Short: "Replace the memo; - reads stdin",
		Example: `
widgetsync memo set call the plumber
pbpaste | widgetsync memo set -
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if content == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = strings.TrimRight(string(b), "\n")
			}
			r.Set = &content
			return run(cmd)
		},
	}
	cmd.AddCommand(set)
	topLevel.AddCommand(cmd)
}
