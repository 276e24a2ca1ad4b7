package approval

import (
	"fmt"
	"time"
)

// Defaults for the construction-time configuration surface.
const (
	DefaultRequiredApprovals     = 2
	DefaultModificationApprovals = 1
	DefaultTimelock              = time.Hour
)

// Clock supplies authority time to the ledger. The ledger only reads it;
// it must be monotonically non-decreasing. Inject a fake in tests to walk
// the review window deterministically.
type Clock interface {
	Now() time.Time
}

// wallClock is the default clock.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Config fixes the ledger's policy at construction. None of it is
// runtime-mutable.
type Config struct {
	// RequiredApprovals is the base threshold (default 2).
	RequiredApprovals int

	// ModificationApprovals is added to the threshold for operations
	// flagged as self-modifying (default 1).
	ModificationApprovals int

	// Timelock is the mandatory review window: approvals are accepted
	// only strictly before RegisteredAt+Timelock, and execution is
	// permitted only at or after it (default one hour).
	Timelock time.Duration

	// Reviewers is the fixed roster, in order.
	Reviewers []string
}

// DefaultConfig returns the stock policy (2 approvals, +1 for
// self-modifying operations, one-hour timelock) for the given roster.
func DefaultConfig(reviewers ...string) Config {
	return Config{
		RequiredApprovals:     DefaultRequiredApprovals,
		ModificationApprovals: DefaultModificationApprovals,
		Timelock:              DefaultTimelock,
		Reviewers:             reviewers,
	}
}

func (c Config) validate() error {
	if c.RequiredApprovals < 1 {
		return fmt.Errorf("required approvals must be at least 1, got %d", c.RequiredApprovals)
	}
	if c.ModificationApprovals < 0 {
		return fmt.Errorf("modification approvals must not be negative, got %d", c.ModificationApprovals)
	}
	if c.Timelock <= 0 {
		return fmt.Errorf("timelock must be positive, got %s", c.Timelock)
	}
	return nil
}
