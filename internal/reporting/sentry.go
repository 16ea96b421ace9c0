package reporting

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/mategroup/sso/config"
)

const flushTimeout = 2 * time.Second

// Reporter forwards unexpected errors to Sentry. With no DSN it does nothing.
type Reporter struct {
	enabled bool
	logger  *slog.Logger
}

func New(cfg config.SentryConfig, release string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		logger.Info("SENTRY_DSN not set, error reporting disabled")
		return &Reporter{logger: logger}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		logger.Warn("sentry initialization failed", "error", err)
		return &Reporter{logger: logger}
	}
	logger.Info("sentry initialized", "environment", cfg.Environment)
	return &Reporter{enabled: true, logger: logger}
}

// Disabled returns a Reporter that drops everything.
func Disabled() *Reporter {
	return &Reporter{logger: slog.Default()}
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// Capture sends err to Sentry using the request hub from ctx when present.
func (r *Reporter) Capture(ctx context.Context, err error) {
	if !r.Enabled() || err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// Middleware attaches a per-request hub and reports panics before re-raising them.
func (r *Reporter) Middleware(next http.Handler) http.Handler {
	if !r.Enabled() {
		return next
	}
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
}

// Flush waits for buffered events to be sent.
func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}
	sentry.Flush(flushTimeout)
}
