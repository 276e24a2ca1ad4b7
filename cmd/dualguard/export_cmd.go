package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/audit"
	"github.com/404-Panda/DualGuardETH/pkg/config"
	"github.com/404-Panda/DualGuardETH/pkg/export"
	"github.com/404-Panda/DualGuardETH/pkg/observability"
	"github.com/404-Panda/DualGuardETH/pkg/store"
)

// runExportCmd implements `dualguard export`.
//
// Rehydrates the ledger from the configured store and writes a sealed
// bundle to the configured destination. The bundle's audit section only
// carries entries recorded in this process, so a cold export contains
// operations but an empty trail.
//
// Exit codes:
//
//	0 = export completed
//	2 = runtime error
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		backend     string
		sqlitePath  string
		postgresDSN string
		outDir      string
		jsonOutput  bool
	)

	cmd.StringVar(&backend, "store", "", "Store backend: sqlite or postgres (default: DUALGUARD_STORE)")
	cmd.StringVar(&sqlitePath, "sqlite", "", "SQLite database path (default: DUALGUARD_SQLITE_PATH)")
	cmd.StringVar(&postgresDSN, "dsn", "", "Postgres DSN (default: DUALGUARD_POSTGRES_DSN)")
	cmd.StringVar(&outDir, "out", "", "Write the bundle to this directory instead of the configured destination")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	approvalCfg, err := cfg.ApprovalConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := observability.NewLogger(cfg.LogLevel)

	ctx := context.Background()
	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    "cli",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTelEnabled,
		Insecure:       true,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: observability: %v\n", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	if backend == "" {
		backend = cfg.StoreBackend
	}
	if sqlitePath == "" {
		sqlitePath = cfg.SQLitePath
	}
	if postgresDSN == "" {
		postgresDSN = cfg.PostgresDSN
	}

	var st store.Store
	switch backend {
	case "sqlite":
		st, err = store.OpenSQLite(sqlitePath)
	case "postgres":
		st, err = store.OpenPostgres(postgresDSN)
	case "memory":
		_, _ = fmt.Fprintln(stderr, "Error: the memory backend has nothing to export; use sqlite or postgres")
		return 2
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown store backend %q\n", backend)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: open store: %v\n", err)
		return 2
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: init store: %v\n", err)
		return 2
	}

	ledger, err := store.Rehydrate(ctx, st, approvalCfg, logger,
		approval.WithObserver(obs.EventRecorder()))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: rehydrate ledger: %v\n", err)
		return 2
	}
	trail := audit.NewTrail()

	var dest export.Destination
	if outDir != "" {
		dest, err = export.NewFSDestination(outDir)
	} else {
		dest, err = export.NewDestinationFromEnv(ctx)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	exporter := export.NewExporter(dest,
		export.WithRate(cfg.ExportRate, 1),
		export.WithLogger(logger),
	)
	exportCtx, finish := obs.TrackCall(ctx, "export")
	bundle, location, err := exporter.Export(exportCtx, ledger, trail)
	finish(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: export: %v\n", err)
		return 2
	}

	if jsonOutput {
		result := map[string]any{
			"bundle_id":      bundle.BundleID,
			"location":       location,
			"format_version": bundle.FormatVersion,
			"operations":     bundle.Ledger.OperationCount,
			"executed":       bundle.Ledger.ExecutedCount,
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else {
		_, _ = fmt.Fprintf(stdout, "✅ Exported %d operations (%d executed)\n",
			bundle.Ledger.OperationCount, bundle.Ledger.ExecutedCount)
		_, _ = fmt.Fprintf(stdout, "📦 bundle: %s\n", location)
	}

	return 0
}
