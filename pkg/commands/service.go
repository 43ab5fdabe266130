package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/config"
)

// withService loads config, builds the service, runs fn and closes the
// service again.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service) error) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load()
	if err != nil {
		return oo.HandleError(err)
	}
	log := cfg.Logger(cmd.ErrOrStderr())
	slog.SetDefault(log)

	svc, err := app.New(cfg, app.WithLogger(log))
	if err != nil {
		return oo.HandleError(err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := svc.Start(ctx); err != nil {
		return oo.HandleError(err)
	}
	return oo.HandleError(fn(ctx, svc))
}
