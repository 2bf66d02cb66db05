package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"globalbangla.org/internal/app"
)

func newAdminCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}
	cmd.AddCommand(newAdminCreateCmd(rt))
	cmd.AddCommand(newAdminListCmd(rt))
	return cmd
}

func newAdminCreateCmd(rt *Runtime) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account without an invite code",
		Long: `Create an admin account directly in the database. The admin cap still
applies. The password may be passed through GB_ADMIN_PASSWORD instead of the flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("GB_ADMIN_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			if name == "" {
				name = "Admin"
			}
			return rt.withApp(cmd, func(a *app.App) error {
				u, err := a.Accounts.BootstrapAdmin(cmd.Context(), name, email, password)
				if err != nil {
					return err
				}
				out := NewOutput(rt.Output, cmd.OutOrStdout())
				out.PrintMessage("Admin account created.")
				out.Print(u)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (env: GB_ADMIN_PASSWORD)")

	return cmd
}

func newAdminListCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				admins, err := a.Accounts.Admins(cmd.Context())
				if err != nil {
					return err
				}
				NewOutput(rt.Output, cmd.OutOrStdout()).Print(admins)
				return nil
			})
		},
	}
}
