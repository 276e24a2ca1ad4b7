// Package export builds portable evidence bundles from the ledger
// and its review trail and writes them to a configured destination.
// A bundle is a self-contained canonical JSON document that external
// auditors can verify offline.
package export

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/audit"
	"github.com/404-Panda/DualGuardETH/pkg/canonical"
)

// FormatVersion identifies the bundle document layout. Verifiers
// accept any version with the same major component.
const FormatVersion = "1.0.0"

// LedgerMeta captures the review policy under which the bundled
// operations were processed.
type LedgerMeta struct {
	RequiredApprovals     int      `json:"required_approvals"`
	ModificationApprovals int      `json:"modification_approvals"`
	Timelock              string   `json:"timelock"`
	Reviewers             []string `json:"reviewers"`
	OperationCount        int      `json:"operation_count"`
	ExecutedCount         int      `json:"executed_count"`
}

// Bundle is an exportable snapshot of the ledger and its trail.
type Bundle struct {
	BundleID      string               `json:"bundle_id"`
	FormatVersion string               `json:"format_version"`
	CreatedAt     time.Time            `json:"created_at"`
	Ledger        LedgerMeta           `json:"ledger"`
	Operations    []approval.Operation `json:"operations"`
	Audit         []audit.Entry        `json:"audit"`
	AuditHead     string               `json:"audit_head"`
	BundleHash    string               `json:"bundle_hash"`
}

// digestInput mirrors Bundle without the hash itself so the hash can
// be recomputed from a decoded document.
type digestInput struct {
	BundleID      string               `json:"bundle_id"`
	FormatVersion string               `json:"format_version"`
	CreatedAt     time.Time            `json:"created_at"`
	Ledger        LedgerMeta           `json:"ledger"`
	Operations    []approval.Operation `json:"operations"`
	Audit         []audit.Entry        `json:"audit"`
	AuditHead     string               `json:"audit_head"`
}

// Digest recomputes the bundle hash from its content.
func (b *Bundle) Digest() (string, error) {
	return canonical.Hash(digestInput{
		BundleID:      b.BundleID,
		FormatVersion: b.FormatVersion,
		CreatedAt:     b.CreatedAt,
		Ledger:        b.Ledger,
		Operations:    b.Operations,
		Audit:         b.Audit,
		AuditHead:     b.AuditHead,
	})
}

// Encode serializes the bundle as canonical JSON.
func (b *Bundle) Encode() ([]byte, error) {
	return canonical.Marshal(b)
}

// Build snapshots the ledger and trail into a sealed bundle.
func Build(ledger *approval.Ledger, trail *audit.Trail, at time.Time) (*Bundle, error) {
	ops := ledger.Operations()
	executed := 0
	for _, op := range ops {
		if op.Executed {
			executed++
		}
	}

	b := &Bundle{
		BundleID:      uuid.New().String(),
		FormatVersion: FormatVersion,
		CreatedAt:     at.UTC(),
		Ledger: LedgerMeta{
			RequiredApprovals:     ledger.Threshold(false),
			ModificationApprovals: ledger.Threshold(true) - ledger.Threshold(false),
			Timelock:              ledger.ReviewWindow().String(),
			Reviewers:             ledger.Roster().Members(),
			OperationCount:        len(ops),
			ExecutedCount:         executed,
		},
		Operations: ops,
		Audit:      trail.Entries(),
		AuditHead:  trail.Head(),
	}

	hash, err := b.Digest()
	if err != nil {
		return nil, fmt.Errorf("export: seal bundle: %w", err)
	}
	b.BundleHash = hash
	return b, nil
}

// Filename returns the canonical object name for the bundle.
func (b *Bundle) Filename() string {
	return "bundle-" + b.BundleID + ".json"
}
