package obs

import (
	"context"
	"strings"
	"sync"

	"github.com/rollbar/rollbar-go"
)

// Reporter forwards unexpected errors to an external tracker.
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]any)
	Close()
}

// ReporterConfig configures the Rollbar reporter.
type ReporterConfig struct {
	Token       string
	Environment string
	Version     string
	Host        string
}

type rollbarReporter struct{}

type logReporter struct{}

var (
	reporterMu sync.RWMutex
	reporter   Reporter = logReporter{}
)

// NewReporter returns a Rollbar-backed reporter, or a log-only reporter when
// no token is configured.
func NewReporter(cfg ReporterConfig) Reporter {
	if strings.TrimSpace(cfg.Token) == "" {
		return logReporter{}
	}
	rollbar.SetToken(cfg.Token)
	rollbar.SetEnvironment(cfg.Environment)
	rollbar.SetCodeVersion(cfg.Version)
	if cfg.Host != "" {
		rollbar.SetServerHost(cfg.Host)
	}
	rollbar.SetEnabled(true)
	return rollbarReporter{}
}

// SetReporter installs the process-wide reporter used by ReportError.
func SetReporter(r Reporter) {
	if r == nil {
		r = logReporter{}
	}
	reporterMu.Lock()
	reporter = r
	reporterMu.Unlock()
}

// ReportError logs err and forwards it to the configured reporter.
func ReportError(ctx context.Context, err error, fields map[string]any) {
	if err == nil {
		return
	}
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	r.Report(ctx, err, fields)
}

func (rollbarReporter) Report(ctx context.Context, err error, fields map[string]any) {
	logError(err, fields)
	extras := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		extras[k] = v
	}
	rollbar.Error(err, extras)
}

func (rollbarReporter) Close() {
	rollbar.Wait()
	rollbar.Close()
}

func (logReporter) Report(_ context.Context, err error, fields map[string]any) {
	logError(err, fields)
}

func (logReporter) Close() {}

func logError(err error, fields map[string]any) {
	entry := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		entry[k] = v
	}
	entry["error"] = err.Error()
	Error("unexpected_error", entry)
}
