// Package verify performs offline validation of exported bundles and
// individual operation records. It recomputes every hash a bundle
// carries instead of trusting the stored values, so a verifier needs
// nothing beyond the bundle bytes themselves.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/audit"
	"github.com/404-Panda/DualGuardETH/pkg/export"
)

var (
	// ErrHashMismatch reports that a stored content hash does not match
	// the hash recomputed from the record's own fields.
	ErrHashMismatch = errors.New("content hash mismatch")

	// ErrMalformedRecord reports an operation record that is internally
	// inconsistent before any hashing is attempted.
	ErrMalformedRecord = errors.New("malformed operation record")
)

const schemaURL = "https://dualguard.schemas.local/bundle.schema.json"

var (
	schemaOnce     sync.Once
	compiledBundle *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, strings.NewReader(bundleSchema)); err != nil {
			schemaErr = fmt.Errorf("load bundle schema: %w", err)
			return
		}
		compiledBundle, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile bundle schema: %w", schemaErr)
		}
	})
	return compiledBundle, schemaErr
}

// Report is the outcome of a bundle verification. OK is true only when
// every check passed; Problems lists each failed check in the order it
// was detected so an auditor sees all defects in one pass.
type Report struct {
	OK       bool     `json:"ok"`
	BundleID string   `json:"bundle_id,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func (r *Report) addf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Operation checks a single operation record: internal consistency
// first, then the content hash recomputed from the record's identity
// fields. Errors wrap ErrMalformedRecord or ErrHashMismatch.
func Operation(op approval.Operation) error {
	if op.ContentHash == "" {
		return fmt.Errorf("%w: missing content hash", ErrMalformedRecord)
	}
	if op.Value != nil && op.Value.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrMalformedRecord, op.Value)
	}
	if op.ApprovalCount != len(op.Approvals) {
		return fmt.Errorf("%w: approval count %d but %d recorded approvals",
			ErrMalformedRecord, op.ApprovalCount, len(op.Approvals))
	}
	want, err := approval.ComputeContentHash(op.ID, op.Target, op.Value, op.Payload, op.ModifiesSystem)
	if err != nil {
		return fmt.Errorf("recompute content hash: %w", err)
	}
	if want != op.ContentHash {
		return fmt.Errorf("%w: stored %s, recomputed %s", ErrHashMismatch, op.ContentHash, want)
	}
	return nil
}

// Bundle verifies exported bundle bytes end to end: structural schema,
// format version compatibility, the sealed bundle hash, the audit hash
// chain, per-operation content hashes, and the cross-references between
// operations, approvals, and audit entries. The returned error is
// non-nil only for verifier-internal failures; everything wrong with
// the input lands in the Report.
func Bundle(data []byte) (*Report, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	report := &Report{}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		report.addf("bundle is not valid JSON: %v", err)
		return report, nil
	}
	if err := schema.Validate(doc); err != nil {
		report.addf("bundle does not match schema: %v", err)
		return report, nil
	}

	var b export.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		report.addf("decode bundle: %v", err)
		return report, nil
	}
	report.BundleID = b.BundleID

	checkVersion(report, b.FormatVersion)
	checkSeal(report, &b)
	checkLedgerMeta(report, &b)
	ops := checkOperations(report, &b)
	checkAudit(report, &b, ops)

	report.OK = len(report.Problems) == 0
	return report, nil
}

func checkVersion(r *Report, version string) {
	got, err := semver.NewVersion(version)
	if err != nil {
		r.addf("parse format version %q: %v", version, err)
		return
	}
	want, err := semver.NewVersion(export.FormatVersion)
	if err != nil {
		r.addf("parse supported format version %q: %v", export.FormatVersion, err)
		return
	}
	if got.Major() != want.Major() {
		r.addf("format version %s is incompatible with verifier version %s", version, export.FormatVersion)
	}
}

func checkSeal(r *Report, b *export.Bundle) {
	digest, err := b.Digest()
	if err != nil {
		r.addf("recompute bundle hash: %v", err)
		return
	}
	if digest != b.BundleHash {
		r.addf("bundle hash mismatch: sealed %s, recomputed %s", b.BundleHash, digest)
	}
}

func checkLedgerMeta(r *Report, b *export.Bundle) {
	if b.Ledger.OperationCount != len(b.Operations) {
		r.addf("ledger reports %d operations, bundle carries %d",
			b.Ledger.OperationCount, len(b.Operations))
	}
	executed := 0
	for _, op := range b.Operations {
		if op.Executed {
			executed++
		}
	}
	if b.Ledger.ExecutedCount != executed {
		r.addf("ledger reports %d executed operations, bundle carries %d",
			b.Ledger.ExecutedCount, executed)
	}
	seen := make(map[string]bool, len(b.Ledger.Reviewers))
	for _, reviewer := range b.Ledger.Reviewers {
		if seen[reviewer] {
			r.addf("reviewer %s appears twice in the roster", reviewer)
		}
		seen[reviewer] = true
	}
}

// checkOperations validates every operation record and returns an index
// by id for the audit cross-checks.
func checkOperations(r *Report, b *export.Bundle) map[uint64]approval.Operation {
	roster := make(map[string]bool, len(b.Ledger.Reviewers))
	for _, reviewer := range b.Ledger.Reviewers {
		roster[reviewer] = true
	}

	ops := make(map[uint64]approval.Operation, len(b.Operations))
	for _, op := range b.Operations {
		if _, dup := ops[op.ID]; dup {
			r.addf("operation %d appears twice in the bundle", op.ID)
			continue
		}
		ops[op.ID] = op

		if err := Operation(op); err != nil {
			r.addf("operation %d: %v", op.ID, err)
		}

		approvers := make(map[string]bool, len(op.Approvals))
		for _, reviewer := range op.Approvals {
			if approvers[reviewer] {
				r.addf("operation %d: reviewer %s approved twice", op.ID, reviewer)
			}
			approvers[reviewer] = true
			if !roster[reviewer] {
				r.addf("operation %d: approval by %s, who is not in the roster", op.ID, reviewer)
			}
		}

		if op.Executed {
			threshold := b.Ledger.RequiredApprovals
			if op.ModifiesSystem {
				threshold += b.Ledger.ModificationApprovals
			}
			if op.ApprovalCount < threshold {
				r.addf("operation %d executed with %d approvals, threshold is %d",
					op.ID, op.ApprovalCount, threshold)
			}
		}
	}
	return ops
}

func checkAudit(r *Report, b *export.Bundle, ops map[uint64]approval.Operation) {
	if err := audit.VerifyEntries(b.Audit); err != nil {
		r.addf("audit chain: %v", err)
	}

	wantHead := "genesis"
	if n := len(b.Audit); n > 0 {
		wantHead = b.Audit[n-1].EntryHash
	}
	if b.AuditHead != wantHead {
		r.addf("audit head %s does not match last entry hash %s", b.AuditHead, wantHead)
	}

	for _, entry := range b.Audit {
		op, ok := ops[entry.OperationID]
		if !ok {
			r.addf("audit entry %d references unknown operation %d", entry.Sequence, entry.OperationID)
			continue
		}
		if entry.OperationHash != op.ContentHash {
			r.addf("audit entry %d carries hash %s for operation %d, ledger has %s",
				entry.Sequence, entry.OperationHash, entry.OperationID, op.ContentHash)
		}
	}
}
