package verify_test

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/audit"
	"github.com/404-Panda/DualGuardETH/pkg/export"
	"github.com/404-Panda/DualGuardETH/pkg/verify"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// sealedBundle exports a ledger with one executed and one pending
// operation and returns the sealed bundle bytes.
func sealedBundle(t *testing.T) []byte {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	trail := audit.NewTrail(audit.WithClock(clock))
	ledger, err := approval.New(
		approval.DefaultConfig("alice", "bob", "carol"),
		approval.WithClock(clock),
		approval.WithObserver(audit.Recorder(trail)),
	)
	require.NoError(t, err)

	id, err := ledger.Register("0xA", big.NewInt(100), []byte("P"), false)
	require.NoError(t, err)
	require.NoError(t, ledger.Approve(id, "alice"))
	require.NoError(t, ledger.Approve(id, "bob"))

	_, err = ledger.Register("0xB", big.NewInt(7), nil, true)
	require.NoError(t, err)

	clock.Advance(approval.DefaultTimelock)
	require.NoError(t, ledger.MarkExecuted(id))

	bundle, err := export.Build(ledger, trail, clock.Now())
	require.NoError(t, err)
	data, err := bundle.Encode()
	require.NoError(t, err)
	return data
}

// tamper decodes bundle bytes to a generic document, applies mutate,
// and re-encodes. The sealed hash is left untouched, so most mutations
// also trip the seal check.
func tamper(t *testing.T, data []byte, mutate func(doc map[string]any)) []byte {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	mutate(doc)
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func operationAt(doc map[string]any, i int) map[string]any {
	return doc["operations"].([]any)[i].(map[string]any)
}

func entryAt(doc map[string]any, i int) map[string]any {
	return doc["audit"].([]any)[i].(map[string]any)
}

func TestOperationChecks(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	ledger, err := approval.New(
		approval.DefaultConfig("alice", "bob"),
		approval.WithClock(clock),
	)
	require.NoError(t, err)
	id, err := ledger.Register("0xA", big.NewInt(42), []byte("payload"), true)
	require.NoError(t, err)
	require.NoError(t, ledger.Approve(id, "alice"))
	intact, err := ledger.GetDetails(id)
	require.NoError(t, err)

	t.Run("intact record passes", func(t *testing.T) {
		require.NoError(t, verify.Operation(intact))
	})

	t.Run("missing content hash", func(t *testing.T) {
		op := intact
		op.ContentHash = ""
		assert.ErrorIs(t, verify.Operation(op), verify.ErrMalformedRecord)
	})

	t.Run("negative value", func(t *testing.T) {
		op := intact
		op.Value = big.NewInt(-1)
		assert.ErrorIs(t, verify.Operation(op), verify.ErrMalformedRecord)
	})

	t.Run("approval count mismatch", func(t *testing.T) {
		op := intact
		op.ApprovalCount++
		assert.ErrorIs(t, verify.Operation(op), verify.ErrMalformedRecord)
	})

	t.Run("edited target", func(t *testing.T) {
		op := intact
		op.Target = "0xEVIL"
		assert.ErrorIs(t, verify.Operation(op), verify.ErrHashMismatch)
	})
}

func TestBundleAcceptsIntactExport(t *testing.T) {
	data := sealedBundle(t)

	report, err := verify.Bundle(data)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.NotEmpty(t, report.BundleID)
	assert.Empty(t, report.Problems)
}

func TestBundleRejectsInvalidJSON(t *testing.T) {
	report, err := verify.Bundle([]byte("{"))
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Problems, 1)
	assert.Contains(t, report.Problems[0], "not valid JSON")
}

func TestBundleRejectsSchemaViolations(t *testing.T) {
	data := sealedBundle(t)

	cases := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{"missing bundle hash", func(doc map[string]any) {
			delete(doc, "bundle_hash")
		}},
		{"non-decimal value", func(doc map[string]any) {
			operationAt(doc, 0)["value"] = "12x"
		}},
		{"unknown audit kind", func(doc map[string]any) {
			entryAt(doc, 0)["kind"] = "SIGNED"
		}},
		{"empty roster", func(doc map[string]any) {
			doc["ledger"].(map[string]any)["reviewers"] = []any{}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := verify.Bundle(tamper(t, data, tc.mutate))
			require.NoError(t, err)
			assert.False(t, report.OK)
			require.Len(t, report.Problems, 1)
			assert.Contains(t, report.Problems[0], "does not match schema")
		})
	}
}

func TestBundleDetectsTampering(t *testing.T) {
	data := sealedBundle(t)

	cases := []struct {
		name   string
		mutate func(doc map[string]any)
		want   []string
	}{
		{
			name:   "operation target edited",
			mutate: func(doc map[string]any) { operationAt(doc, 0)["target"] = "0xEVIL" },
			want:   []string{"content hash mismatch", "bundle hash mismatch"},
		},
		{
			name: "approval by a stranger",
			mutate: func(doc map[string]any) {
				op := operationAt(doc, 0)
				op["approvals"] = append(op["approvals"].([]any), "mallory")
				op["approval_count"] = 3
			},
			want: []string{"not in the roster"},
		},
		{
			name: "reviewer approved twice",
			mutate: func(doc map[string]any) {
				op := operationAt(doc, 0)
				op["approvals"] = []any{"alice", "alice"}
			},
			want: []string{"approved twice"},
		},
		{
			name:   "executed flag forged",
			mutate: func(doc map[string]any) { operationAt(doc, 1)["executed"] = true },
			want: []string{
				"executed with 0 approvals, threshold is 3",
				"executed operations",
			},
		},
		{
			name:   "audit reviewer edited",
			mutate: func(doc map[string]any) { entryAt(doc, 1)["reviewer"] = "mallory" },
			want:   []string{"audit chain"},
		},
		{
			name: "audit trail truncated",
			mutate: func(doc map[string]any) {
				entries := doc["audit"].([]any)
				doc["audit"] = entries[:len(entries)-1]
			},
			want: []string{"audit head"},
		},
		{
			name:   "entry points at unknown operation",
			mutate: func(doc map[string]any) { entryAt(doc, 0)["operation_id"] = 99 },
			want:   []string{"unknown operation 99"},
		},
		{
			name:   "format version bumped",
			mutate: func(doc map[string]any) { doc["format_version"] = "2.0.0" },
			want:   []string{"incompatible"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := verify.Bundle(tamper(t, data, tc.mutate))
			require.NoError(t, err)
			assert.False(t, report.OK)
			all := strings.Join(report.Problems, "\n")
			for _, want := range tc.want {
				assert.Contains(t, all, want)
			}
		})
	}
}

// A forger who re-seals the bundle after editing it defeats the hash
// check but not the semantic cross-checks.
func TestBundleResealedTamperStillCaught(t *testing.T) {
	data := sealedBundle(t)

	var b export.Bundle
	require.NoError(t, json.Unmarshal(data, &b))
	b.Operations[1].Executed = true
	digest, err := b.Digest()
	require.NoError(t, err)
	b.BundleHash = digest
	resealed, err := b.Encode()
	require.NoError(t, err)

	report, err := verify.Bundle(resealed)
	require.NoError(t, err)
	assert.False(t, report.OK)
	all := strings.Join(report.Problems, "\n")
	assert.Contains(t, all, "executed with 0 approvals, threshold is 3")
	assert.NotContains(t, all, "bundle hash mismatch")
}
