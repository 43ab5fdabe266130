package commands

import (
	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/widgetsync/pkg/commands/options"
)

var (
	oo = &options.OutputOptions{}
)

func New() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "widgetsync",
		Short: base.Wrap80("Offline-first sync for the todo, timer, memo and chat widgets."),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	options.AddOutputArg(cmd, oo)

	AddCommands(cmd)
	return cmd
}

func AddCommands(topLevel *cobra.Command) {
	addTodo(topLevel)
	addTimer(topLevel)
	addMemo(topLevel)
	addChat(topLevel)
	addCatalog(topLevel)
	addStatus(topLevel)
	addWatch(topLevel)
	addAuth(topLevel)
	addMigrate(topLevel)
	addMCP(topLevel)
	addVersion(topLevel)
}
