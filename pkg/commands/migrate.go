package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/store"
)

func addMigrate(topLevel *cobra.Command) {
	var (
		driver string
		path   string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the local store into another backend",
		Long: `Copy every key of the configured store into another backend. Set
store.driver afterwards to switch over; the source is left untouched.`,
		Example: `
widgetsync migrate --to sqlite
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				to := store.Driver(strings.ToLower(strings.TrimSpace(driver)))
				if to == svc.Config.StoreDriver && (path == "" || path == svc.Config.StorePath) {
					return fmt.Errorf("store already uses %s at %s", to, svc.Config.StorePath)
				}
				if path == "" {
					path = svc.Config.StorePath
				}
				dst, err := store.Open(store.StaticConfig{Path: path, Kind: to})
				if err != nil {
					return err
				}
				defer func() { _ = closeBackend(dst.Backend()) }()

				n, err := app.MigrateStore(ctx, svc.Store.Backend(), dst.Backend())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(color.Output, "copied %d keys from %s to %s\n", n, svc.Config.StoreDriver, to)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&driver, "to", string(store.DriverSQLite), "Target driver: diskv or sqlite.")
	cmd.Flags().StringVar(&path, "to-path", "", "Target base path. Defaults to the configured store path.")
	topLevel.AddCommand(cmd)
}

func closeBackend(b store.Backend) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
