package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"globalbangla.org/internal/app"
)

func newPaymentsCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Payment maintenance",
	}
	cmd.AddCommand(newReconcileCmd(rt))
	return cmd
}

func newReconcileCmd(rt *Runtime) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Record gateway orders missing from the database",
		Long: `Lists gateway orders created after --since and inserts a pending row for
every order whose notes identify a student and competition but which has no
local record.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			return rt.withApp(cmd, func(a *app.App) error {
				report, err := a.Payments.Reconcile(cmd.Context(), from)
				if err != nil {
					return err
				}
				NewOutput(rt.Output, cmd.OutOrStdout()).Print(report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "24h", "Lookback as a duration (48h) or a date (2006-01-02, RFC3339)")

	return cmd
}

// parseSince accepts a lookback duration or an absolute time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("--since must be a positive duration, got %q", s)
		}
		return now.Add(-d).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("--since: cannot parse %q", s)
}
