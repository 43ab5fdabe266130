package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/commands/options"
	"tableflip.dev/widgetsync/pkg/runner/todo"
)

func addTodo(topLevel *cobra.Command) {
	io := &options.IDOptions{}
	r := &todo.Todo{Action: todo.List}

	run := func(cmd *cobra.Command) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			r.Widget = svc.Todo
			r.ShowID = io.ShowID
			r.JSON = oo.JSON
			return r.Do(ctx)
		})
	}

	cmd := &cobra.Command{
		Use:     "todo",
		Aliases: []string{"todos"},
		Short:   "List todo items",
		Example: `
widgetsync todo
widgetsync todo --completed -k
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	options.AddShowIDArgs(cmd, io)
	cmd.PersistentFlags().BoolVar(&r.Completed, "completed", false, "Show completed items.")

	add := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a todo item",
		Example: `
widgetsync todo add buy milk
widgetsync todo add --group work write report
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Action = todo.Add
			r.Text = strings.Join(args, " ")
			return run(cmd)
		},
	}
	add.Flags().StringVarP(&r.Group, "group", "g", "", "Group to file the item under.")

	toggle := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle an item's completed flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Action, r.ID = todo.Toggle, args[0]
			return run(cmd)
		},
	}

	rm := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Action, r.ID = todo.Remove, args[0]
			return run(cmd)
		},
	}

	expand := &cobra.Command{
		Use:   "expand <group>",
		Short: "Expand or collapse a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Action, r.Group = todo.Expand, args[0]
			return run(cmd)
		},
	}
	expand.Flags().BoolVar(&r.Collapse, "collapse", false, "Collapse instead.")

	for _, sub := range []*cobra.Command{add, toggle, rm, expand} {
		options.AddShowIDArgs(sub, io)
		cmd.AddCommand(sub)
	}
	topLevel.AddCommand(cmd)
}
