package commands

import (
	"context"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/commands/options"
	"tableflip.dev/widgetsync/pkg/runner/catalog"
)

func addCatalog(topLevel *cobra.Command) {
	io := &options.IDOptions{}
	r := &catalog.Catalog{}

	run := func(cmd *cobra.Command) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			r.Catalog = svc.Catalog
			r.ShowID = io.ShowID
			r.JSON = oo.JSON
			return r.Do(ctx)
		})
	}

	categories := &cobra.Command{
		Use:   "categories",
		Short: "List category paths for timer tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	categories.Flags().BoolVar(&r.Force, "refresh", false, "Fetch even when the cache is fresh.")

	tags := &cobra.Command{
		Use:   "tags [query]",
		Short: "List instance tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.Tags = true
			if len(args) == 1 {
				r.Query = args[0]
			}
			return run(cmd)
		},
	}
	tags.Flags().BoolVar(&r.Force, "refresh", false, "Fetch even when the cache is fresh.")
	options.AddShowIDArgs(tags, io)

	topLevel.AddCommand(categories, tags)
}
