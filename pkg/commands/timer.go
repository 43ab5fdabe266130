package commands

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/commands/options"
	"tableflip.dev/widgetsync/pkg/runner/timer"
)

func addTimer(topLevel *cobra.Command) {
	io := &options.IDOptions{}
	r := &timer.Timer{Action: timer.List}

	run := func(cmd *cobra.Command) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			r.Widget = svc.Timer
			r.ShowID = io.ShowID
			r.JSON = oo.JSON
			if r.Action == timer.Publish {
				inbox, err := svc.Inbox()
				if err != nil {
					return err
				}
				r.Publisher = inbox
			}
			return r.Do(ctx)
		})
	}

	cmd := &cobra.Command{
		Use:     "timer",
		Aliases: []string{"tasks"},
		Short:   "List today's timer tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	options.AddShowIDArgs(cmd, io)

	start := &cobra.Command{
		Use:   "start <id>",
		Short: "Start or resume a task, pausing the running one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Action, r.ID = timer.Start, args[0]
			return run(cmd)
		},
	}

	pause := &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Action, r.ID = timer.Pause, args[0]
			return run(cmd)
		},
	}

	to := &options.TaskOptions{}
	var queue bool
	create := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a task and start it",
		Long: base.Wrap80(`Create a task and start it. With --queue the request is dropped into
the inbox for a running "widgetsync watch" instead of being applied here.`),
		Example: `
widgetsync timer new write report -c Work/Deep -t focus,writing
widgetsync timer new standup --initial 15m --queue
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			req, err := to.Request(strings.Join(args, " "), time.Now())
			if err != nil {
				return oo.HandleError(err)
			}
			r.Request = req
			r.Action = timer.Create
			if queue {
				r.Action = timer.Publish
			}
			return run(cmd)
		},
	}
	options.AddTaskArgs(create, to)
	create.Flags().BoolVarP(&queue, "queue", "q", false, "Queue the request for the watcher.")

	for _, sub := range []*cobra.Command{start, pause, create} {
		options.AddShowIDArgs(sub, io)
		cmd.AddCommand(sub)
	}
	topLevel.AddCommand(cmd)
}
