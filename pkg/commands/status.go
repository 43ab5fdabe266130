package commands

import (
	"context"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/runner/status"
	"tableflip.dev/widgetsync/pkg/runner/watch"
)

func addStatus(topLevel *cobra.Command) {
	r := &status.Status{}
	run := func(cmd *cobra.Command) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			r.Service = svc
			r.JSON = oo.JSON
			return r.Do(ctx)
		})
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of every widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	cmd.Flags().BoolVar(&r.Sync, "sync", false, "Sync with the server first.")

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Revalidate every widget against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r.Sync = true
			return run(cmd)
		},
	}
	topLevel.AddCommand(cmd, sync)
}

func addWatch(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply queued task requests and poll the timer until interrupted",
		Example: `
widgetsync watch &
widgetsync timer new deep work --queue
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				w := watch.Watch{Service: svc}
				return w.Do(ctx)
			})
		},
	}
	topLevel.AddCommand(cmd)
}
