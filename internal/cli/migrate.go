package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"globalbangla.org/internal/migrate"
)

func newMigrateCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withManager(cmd, func(m *migrate.Manager, out *Output) error {
				if err := m.Up(cmd.Context()); err != nil {
					return err
				}
				out.PrintMessage("Migrations applied.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withManager(cmd, func(m *migrate.Manager, out *Output) error {
				err := m.Down(cmd.Context())
				if errors.Is(err, migrate.ErrNothingApplied) {
					out.PrintMessage("Nothing to roll back.")
					return nil
				}
				if err != nil {
					return err
				}
				out.PrintMessage("Rolled back latest migration.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withManager(cmd, func(m *migrate.Manager, out *Output) error {
				applied, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				if applied == nil {
					applied = []string{}
				}
				out.Print(applied)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Apply seed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withManager(cmd, func(m *migrate.Manager, out *Output) error {
				if err := m.Seed(cmd.Context()); err != nil {
					return err
				}
				out.PrintMessage("Seeds applied.")
				return nil
			})
		},
	})

	return cmd
}

func (rt *Runtime) withManager(cmd *cobra.Command, fn func(*migrate.Manager, *Output) error) error {
	if rt.cfg.DatabaseDSN == "" {
		return errors.New("database.dsn is required (GB_DATABASE_DSN)")
	}
	db, err := rt.OpenDB(rt.cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(migrate.New(db), NewOutput(rt.Output, cmd.OutOrStdout()))
}
