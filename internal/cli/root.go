// Package cli implements gbctl, the operator command line for migrations,
// admin bootstrap and payment reconciliation.
package cli

import (
	"context"
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"globalbangla.org/internal/app"
	"globalbangla.org/internal/config"
	"globalbangla.org/internal/store/pg"
)

// Runtime holds what commands need. Tests replace the openers.
type Runtime struct {
	WorkDir string
	Output  string

	LoadConfig func(workDir string) (*config.Config, error)
	OpenDB     func(dsn string) (*sql.DB, error)
	OpenApp    func(ctx context.Context, cfg *config.Config) (*app.App, error)

	cfg *config.Config
}

// DefaultRuntime connects to the configured database.
func DefaultRuntime() *Runtime {
	return &Runtime{
		WorkDir:    ".",
		Output:     "text",
		LoadConfig: config.Load,
		OpenDB: func(dsn string) (*sql.DB, error) {
			s, err := pg.Open(dsn)
			if err != nil {
				return nil, err
			}
			return s.DB(), nil
		},
		OpenApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg)
		},
	}
}

// NewRootCmd creates the gbctl command tree.
func NewRootCmd(rt *Runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gbctl",
		Short: "Operator tool for the Global Bangla platform",
		Long: `gbctl manages the Global Bangla database and accounts.

It applies schema migrations and seeds, bootstraps admin accounts without an
invite code and repairs payment orders the gateway knows about but the
database does not.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig(rt.WorkDir)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&rt.WorkDir, "workdir", rt.WorkDir, "Directory holding config/.env.<env>")
	rootCmd.PersistentFlags().StringVarP(&rt.Output, "output", "o", rt.Output, "Output format: text, json")

	rootCmd.AddCommand(newMigrateCmd(rt))
	rootCmd.AddCommand(newAdminCmd(rt))
	rootCmd.AddCommand(newPaymentsCmd(rt))

	return rootCmd
}

// Execute runs gbctl against the real database.
func Execute() {
	if err := NewRootCmd(DefaultRuntime()).Execute(); err != nil {
		os.Exit(1)
	}
}

func (rt *Runtime) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	a, err := rt.OpenApp(cmd.Context(), rt.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
