//go:build property

package approval

import (
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Run with: go test -tags property ./pkg/approval/

func TestApprovalCountAlwaysMatchesSet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	roster := []string{"alice", "bob", "carol", "dave"}
	callers := gen.SliceOf(gen.OneConstOf(
		"alice", "bob", "carol", "dave", "mallory", "eve", "",
	))

	properties.Property("count equals distinct roster approvers", prop.ForAll(
		func(attempts []string) bool {
			l, err := New(DefaultConfig(roster...), WithClock(newFakeClock()))
			if err != nil {
				return false
			}
			id, err := l.Register("0xdead", big.NewInt(1), nil, false)
			if err != nil {
				return false
			}

			granted := map[string]bool{}
			for _, caller := range attempts {
				if l.Approve(id, caller) == nil {
					granted[caller] = true
				}
			}

			op, err := l.GetDetails(id)
			if err != nil {
				return false
			}
			if op.ApprovalCount != len(op.Approvals) {
				return false
			}
			if op.ApprovalCount != len(granted) {
				return false
			}
			for _, r := range op.Approvals {
				if !l.Roster().Contains(r) {
					return false
				}
			}
			return true
		},
		callers,
	))

	properties.TestingRun(t)
}

func TestContentHashIsTotalOverInputs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("recomputing yields the stored hash", prop.ForAll(
		func(target string, value int64, payload []byte, modifies bool) bool {
			if value < 0 {
				value = -value
			}
			l, err := New(DefaultConfig("alice", "bob"), WithClock(newFakeClock()))
			if err != nil {
				return false
			}
			id, err := l.Register(target, big.NewInt(value), payload, modifies)
			if err != nil {
				return false
			}
			op, err := l.GetDetails(id)
			if err != nil {
				return false
			}
			want, err := ComputeContentHash(id, target, big.NewInt(value), payload, modifies)
			if err != nil {
				return false
			}
			return op.ContentHash == want
		},
		gen.AnyString(),
		gen.Int64(),
		gen.SliceOf(gen.UInt8()),
		gen.Bool(),
	))

	properties.Property("hash is sensitive to the id", prop.ForAll(
		func(target string, value int64) bool {
			if value < 0 {
				value = -value
			}
			h1, err := ComputeContentHash(1, target, big.NewInt(value), nil, false)
			if err != nil {
				return false
			}
			h2, err := ComputeContentHash(2, target, big.NewInt(value), nil, false)
			if err != nil {
				return false
			}
			return h1 != h2
		},
		gen.AnyString(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestValidationPredicateIsExact(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	roster := []string{"r1", "r2", "r3", "r4", "r5"}

	properties.Property("validated iff threshold met and window elapsed", prop.ForAll(
		func(approvals int, modifies bool, elapse bool) bool {
			clock := newFakeClock()
			l, err := New(DefaultConfig(roster...), WithClock(clock))
			if err != nil {
				return false
			}
			id, err := l.Register("0xdead", big.NewInt(1), nil, modifies)
			if err != nil {
				return false
			}
			for i := 0; i < approvals; i++ {
				if err := l.Approve(id, roster[i]); err != nil {
					return false
				}
			}
			if elapse {
				clock.Advance(DefaultTimelock + time.Minute)
			}

			got, err := l.IsValidated(id)
			if err != nil {
				return false
			}
			want := approvals >= l.Threshold(modifies) && elapse
			return got == want
		},
		gen.IntRange(0, len(roster)),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
