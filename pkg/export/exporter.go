package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/audit"
)

// Exporter seals bundles and writes them to a destination. Exports
// are rate limited so a misbehaving scheduler cannot flood the
// destination with snapshots.
type Exporter struct {
	dest    Destination
	limiter *rate.Limiter
	clock   approval.Clock
	logger  *slog.Logger
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithRate bounds exports to r per second with the given burst.
func WithRate(r float64, burst int) ExporterOption {
	return func(e *Exporter) { e.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithClock replaces the wall clock, used by tests.
func WithClock(c approval.Clock) ExporterOption {
	return func(e *Exporter) { e.clock = c }
}

// WithLogger sets the exporter logger.
func WithLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) { e.logger = l }
}

// NewExporter creates an exporter writing to dest. The default rate
// allows one export per second with a burst of one.
func NewExporter(dest Destination, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		dest:    dest,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		clock:   wallClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Export seals the current ledger and trail state into a bundle and
// writes it out. It blocks until the rate limiter grants a slot or
// the context is cancelled.
func (e *Exporter) Export(ctx context.Context, ledger *approval.Ledger, trail *audit.Trail) (*Bundle, string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("export: rate limit wait: %w", err)
	}

	bundle, err := Build(ledger, trail, e.clock.Now())
	if err != nil {
		return nil, "", err
	}

	data, err := bundle.Encode()
	if err != nil {
		return nil, "", fmt.Errorf("export: encode bundle: %w", err)
	}

	location, err := e.dest.Write(ctx, bundle.Filename(), data)
	if err != nil {
		return nil, "", err
	}

	e.logger.Info("bundle exported",
		"bundle_id", bundle.BundleID,
		"location", location,
		"operations", bundle.Ledger.OperationCount,
		"audit_entries", len(bundle.Audit),
		"size_bytes", len(data),
	)

	return bundle, location, nil
}
