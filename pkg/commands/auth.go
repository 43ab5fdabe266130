package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/session"
)

func addAuth(topLevel *cobra.Command) {
	var (
		token string
		user  session.User
	)
	login := &cobra.Command{
		Use:   "login",
		Short: "Store an API token for this device",
		Example: `
widgetsync login --token $TOKEN --user-id 42 --email me@example.com
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				if strings.TrimSpace(token) == "" {
					return errors.New("--token is required")
				}
				if err := svc.Session.Login(strings.TrimSpace(token), user); err != nil {
					return err
				}
				results := svc.Sync(ctx)
				_, _ = fmt.Fprintf(color.Output, "signed in as %s on device %s\n", displayUser(user), svc.DeviceID)
				for _, r := range results {
					if r.Err != nil {
						_, _ = fmt.Fprintf(color.Output, "%s %s: %v\n", color.YellowString("sync failed"), r.Widget, r.Err)
					}
				}
				return nil
			})
		},
	}
	login.Flags().StringVar(&token, "token", "", "Bearer token for the API.")
	login.Flags().StringVar(&user.ID, "user-id", "", "User id scoping tasks and tags.")
	login.Flags().StringVar(&user.Email, "email", "", "Account email.")
	login.Flags().StringVar(&user.Name, "name", "", "Display name.")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and clear all widget data on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(_ context.Context, svc *app.Service) error {
				if err := svc.Reset(); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(color.Output, "signed out")
				return nil
			})
		},
	}
	topLevel.AddCommand(login, logout)
}

func displayUser(u session.User) string {
	switch {
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	case u.ID != "":
		return u.ID
	default:
		return "anonymous"
	}
}
