package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"globalbangla.org/internal/auth"
	"globalbangla.org/internal/payment"
)

// Output formats command results as text or JSON.
type Output struct {
	format string
	w      io.Writer
}

func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print writes data in the configured format.
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
		return
	}
	switch v := data.(type) {
	case []*auth.User:
		o.printUsers(v)
	case *auth.User:
		o.printUsers([]*auth.User{v})
	case payment.ReconcileReport:
		o.printReport(v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(o.w, s)
		}
	default:
		o.printJSON(data)
	}
}

// PrintMessage writes a single line message.
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		o.printJSON(map[string]string{"message": msg})
		return
	}
	fmt.Fprintln(o.w, msg)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printUsers(users []*auth.User) {
	if len(users) == 0 {
		fmt.Fprintln(o.w, "No accounts.")
		return
	}
	for _, u := range users {
		fmt.Fprintf(o.w, "%s  %-24s  %s  %s\n", u.ID, u.Email, u.Name, u.CreatedAt.Format("2006-01-02"))
	}
}

func (o *Output) printReport(r payment.ReconcileReport) {
	fmt.Fprintf(o.w, "Scanned:  %d\n", r.Scanned)
	fmt.Fprintf(o.w, "Inserted: %d\n", r.Inserted)
	fmt.Fprintf(o.w, "Skipped:  %d\n", r.Skipped)
	if len(r.Orphans) > 0 {
		fmt.Fprintf(o.w, "Repaired: %s\n", strings.Join(r.Orphans, ", "))
	}
}
