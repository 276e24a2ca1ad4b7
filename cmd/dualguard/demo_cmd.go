package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/audit"
	"github.com/404-Panda/DualGuardETH/pkg/export"
	"github.com/404-Panda/DualGuardETH/pkg/verify"
)

// stepClock lets the demo move time forward explicitly so the timelock
// portion of the walkthrough does not depend on wall-clock sleeps.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// runDemoCmd implements `dualguard demo`.
//
// Walks a single operation through the full lifecycle against an
// in-memory ledger: registration, quorum approval, the timelock gate,
// execution, a late approval rejection, and finally an exported bundle
// that is verified offline.
//
// Exit codes:
//
//	0 = walkthrough completed
//	2 = runtime error
func runDemoCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		reviewers  string
		timelock   time.Duration
		outDir     string
		jsonOutput bool
	)

	cmd.StringVar(&reviewers, "reviewers", "alice,bob,carol", "Comma-separated reviewer roster")
	cmd.DurationVar(&timelock, "timelock", approval.DefaultTimelock, "Review window before execution is allowed")
	cmd.StringVar(&outDir, "out", "", "Directory for the exported bundle (default: temp dir)")
	cmd.BoolVar(&jsonOutput, "json", false, "Print a machine-readable summary")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	roster := splitRoster(reviewers)
	cfg := approval.DefaultConfig(roster...)
	cfg.Timelock = timelock

	clock := &stepClock{now: time.Now().UTC().Truncate(time.Second)}
	trail := audit.NewTrail(audit.WithClock(clock))
	ledger, err := approval.New(cfg,
		approval.WithClock(clock),
		approval.WithObserver(audit.Recorder(trail)),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	quorum := ledger.Threshold(false)
	if len(roster) < quorum {
		_, _ = fmt.Fprintf(stderr, "Error: need at least %d reviewers, got %d\n", quorum, len(roster))
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "ℹ️  roster: %s\n", strings.Join(roster, ", "))
	_, _ = fmt.Fprintf(stdout, "ℹ️  quorum: %d approvals, +%d for system changes, timelock %s\n",
		quorum, ledger.Threshold(true)-quorum, timelock)

	// Registration opens the review window.
	value, _ := new(big.Int).SetString("2500000000000000000", 10)
	payload := []byte(`{"method":"transfer","asset":"ETH"}`)
	id, err := ledger.Register("0x7aE3b5f1C2D94e8A90b1c6F7d8E9a0B1C2d3E4f5", value, payload, false)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	op, _ := ledger.GetDetails(id)
	deadline := op.RegisteredAt.Add(timelock)
	_, _ = fmt.Fprintf(stdout, "✅ registered operation %d (%s wei to %s)\n", id, value, op.Target)
	_, _ = fmt.Fprintf(stdout, "   content hash %s\n", op.ContentHash)

	step := timelock / 20

	if err := ledger.MarkExecuted(id); err != nil {
		_, _ = fmt.Fprintf(stdout, "❌ execute rejected: %v\n", err)
	}

	for i, reviewer := range roster[:quorum] {
		clock.Advance(step)
		if err := ledger.Approve(id, reviewer); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "✅ approval by %s (%d/%d)\n", reviewer, i+1, quorum)
	}

	if err := ledger.MarkExecuted(id); err != nil {
		_, _ = fmt.Fprintf(stdout, "❌ execute rejected: %v (timelock has %s left)\n",
			err, deadline.Sub(clock.Now()))
	}

	clock.Advance(deadline.Sub(clock.Now()))
	_, _ = fmt.Fprintf(stdout, "ℹ️  timelock elapsed\n")

	if err := ledger.MarkExecuted(id); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "✅ operation %d executed\n", id)

	// The window is closed now, so even an honest reviewer is refused.
	if len(roster) > quorum {
		if err := ledger.Approve(id, roster[quorum]); err != nil {
			_, _ = fmt.Fprintf(stdout, "❌ late approval by %s rejected: %v\n", roster[quorum], err)
		}
	}

	if err := trail.Verify(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: audit chain: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "✅ audit trail intact (%d entries, head %s)\n", trail.Len(), trail.Head())

	if outDir == "" {
		outDir, err = os.MkdirTemp("", "dualguard-demo-")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	dest, err := export.NewFSDestination(outDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	exporter := export.NewExporter(dest,
		export.WithClock(clock),
		export.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	bundle, location, err := exporter.Export(context.Background(), ledger, trail)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "📦 bundle written: %s\n", location)

	data, err := os.ReadFile(location)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	report, err := verify.Bundle(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if !report.OK {
		_, _ = fmt.Fprintf(stderr, "Error: exported bundle failed verification: %v\n", report.Problems)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "✅ bundle verification PASSED\n")

	if jsonOutput {
		final, _ := ledger.GetDetails(id)
		summary := map[string]any{
			"operation_id": final.ID,
			"content_hash": final.ContentHash,
			"approvals":    final.Approvals,
			"executed":     final.Executed,
			"bundle_id":    bundle.BundleID,
			"bundle_path":  location,
			"verified":     report.OK,
		}
		out, _ := json.MarshalIndent(summary, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	}

	return 0
}

func splitRoster(s string) []string {
	parts := strings.Split(s, ",")
	roster := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roster = append(roster, p)
		}
	}
	return roster
}
