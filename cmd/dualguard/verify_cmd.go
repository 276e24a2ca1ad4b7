package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/verify"
)

// runVerifyCmd implements `dualguard verify`.
//
// With --bundle, verifies an exported bundle offline: schema, sealed
// hash, audit chain, per-operation content hashes, and policy
// cross-checks. With --record, recomputes the content hash of a single
// operation record. Needs no network and no store access.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundlePath string
		recordPath string
		jsonOutput bool
	)

	cmd.StringVar(&bundlePath, "bundle", "", "Path to a bundle file")
	cmd.StringVar(&recordPath, "record", "", "Path to a single operation record (JSON)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if (bundlePath == "") == (recordPath == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --bundle or --record is required")
		return 2
	}

	if recordPath != "" {
		return verifyRecord(recordPath, jsonOutput, stdout, stderr)
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report, err := verify.Bundle(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else if report.OK {
		_, _ = fmt.Fprintln(stdout, "✅ Bundle verification PASSED")
		_, _ = fmt.Fprintf(stdout, "Bundle: %s\n", bundlePath)
		_, _ = fmt.Fprintf(stdout, "ID:     %s\n", report.BundleID)
	} else {
		_, _ = fmt.Fprintln(stdout, "❌ Bundle verification FAILED")
		_, _ = fmt.Fprintf(stdout, "Bundle: %s\n", bundlePath)
		for _, problem := range report.Problems {
			_, _ = fmt.Fprintf(stdout, "  - %s\n", problem)
		}
	}

	if !report.OK {
		return 1
	}
	return 0
}

func verifyRecord(path string, jsonOutput bool, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var op approval.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: decode record: %v\n", err)
		return 2
	}

	verifyErr := verify.Operation(op)

	if jsonOutput {
		result := map[string]any{
			"record":       path,
			"operation_id": op.ID,
			"content_hash": op.ContentHash,
			"ok":           verifyErr == nil,
		}
		if verifyErr != nil {
			result["problem"] = verifyErr.Error()
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else if verifyErr == nil {
		_, _ = fmt.Fprintf(stdout, "✅ Record verification PASSED (operation %d, %s)\n", op.ID, op.ContentHash)
	} else {
		_, _ = fmt.Fprintln(stdout, "❌ Record verification FAILED")
		_, _ = fmt.Fprintf(stdout, "  - %v\n", verifyErr)
	}

	if verifyErr != nil {
		return 1
	}
	return 0
}
