// Package approval implements the second-layer approval gate for sensitive
// operations: a ledger of registered operations that may proceed only after
// a quorum of trusted reviewers has independently approved their exact raw
// parameters within a bounded review window.
//
// Approval binds to a content hash of the literal registered parameters, and
// the full raw record is readable by anyone, so a compromised presentation
// layer cannot show reviewers different parameters than what will execute.
//
// The ledger decides only whether execution may proceed; it never performs
// the underlying operation.
package approval

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Ledger owns the set of registered operations and enforces the
// registration, approval, validation, and execution-marking rules.
//
// Every public operation is atomic: mutations are serialized behind a single
// writer lock, and reads observe a consistent snapshot (an approval is never
// seen half-applied). Operations are append-only and never deleted.
type Ledger struct {
	mu sync.RWMutex

	required   int
	additional int
	timelock   time.Duration
	roster     *Roster

	clock     Clock
	observers []Observer

	ops []*Operation
}

// Option customizes ledger construction.
type Option func(*Ledger)

// WithClock overrides the authority clock. The ledger never advances the
// clock, only reads it.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithObserver registers an observer for completed mutations. Observers are
// invoked synchronously in mutation order; see Observer for constraints.
func WithObserver(fn Observer) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.observers = append(l.observers, fn)
		}
	}
}

// New constructs a ledger with the given fixed policy. The reviewer roster
// is frozen here; there is no membership mutation afterwards.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("approval config: %w", err)
	}
	roster, err := NewRoster(cfg.Reviewers)
	if err != nil {
		return nil, fmt.Errorf("approval roster: %w", err)
	}
	l := &Ledger{
		required:   cfg.RequiredApprovals,
		additional: cfg.ModificationApprovals,
		timelock:   cfg.Timelock,
		roster:     roster,
		clock:      wallClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Register records a new operation and returns its assigned id. Anyone may
// register; approval is where trust is enforced. The content hash is
// computed here, once, over the literal parameters plus the assigned id.
func (l *Ledger) Register(target string, value *big.Int, payload []byte, modifiesSystem bool) (uint64, error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return 0, fmt.Errorf("register: %w", ErrNegativeValue)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := uint64(len(l.ops)) + 1
	hash, err := ComputeContentHash(id, target, value, payload, modifiesSystem)
	if err != nil {
		// No state changed: the id is not consumed.
		return 0, fmt.Errorf("register: content hash: %w", err)
	}

	now := l.clock.Now()
	op := &Operation{
		ID:             id,
		Target:         target,
		Value:          new(big.Int).Set(value),
		Payload:        append([]byte(nil), payload...),
		ModifiesSystem: modifiesSystem,
		ContentHash:    hash,
		RegisteredAt:   now,
		Approvals:      make([]string, 0),
		approverSet:    make(map[string]struct{}),
	}
	l.ops = append(l.ops, op)

	l.notify(Event{Kind: EventRegistered, Operation: op.clone(), At: now})
	return id, nil
}

// Approve records reviewer's approval of the operation. Each roster member
// may approve a given operation exactly once, and only strictly before the
// review window closes; late approvals are rejected rather than allowed to
// accumulate, forcing re-registration of stale operations.
func (l *Ledger) Approve(id uint64, reviewer string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.roster.Contains(reviewer) {
		return fmt.Errorf("approve operation %d by %q: %w", id, reviewer, ErrUnauthorized)
	}
	op, ok := l.lookup(id)
	if !ok {
		return fmt.Errorf("approve operation %d: %w", id, ErrNotFound)
	}
	if _, dup := op.approverSet[reviewer]; dup {
		return fmt.Errorf("approve operation %d by %q: %w", id, reviewer, ErrAlreadyApproved)
	}
	now := l.clock.Now()
	if !now.Before(op.RegisteredAt.Add(l.timelock)) {
		return fmt.Errorf("approve operation %d: %w", id, ErrTimelockExpired)
	}

	op.approverSet[reviewer] = struct{}{}
	op.Approvals = append(op.Approvals, reviewer)
	op.ApprovalCount++

	l.notify(Event{Kind: EventApproved, Operation: op.clone(), Reviewer: reviewer, At: now})
	return nil
}

// IsValidated reports whether the operation may be executed: the approval
// threshold is met AND the timelock has elapsed. Both are required; reaching
// quorum early never permits early execution. Unknown ids are an error, so
// "not validated" is never confused with "does not exist".
func (l *Ledger) IsValidated(id uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	op, ok := l.lookup(id)
	if !ok {
		return false, fmt.Errorf("validate operation %d: %w", id, ErrNotFound)
	}
	return l.validated(op, l.clock.Now()), nil
}

// MarkExecuted irreversibly marks the operation executed. The validation
// predicate is re-evaluated fresh at call time, and a second marking always
// fails with ErrAlreadyExecuted regardless of caller: that is the replay
// guard. No state changes on any failure path.
func (l *Ledger) MarkExecuted(id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	op, ok := l.lookup(id)
	if !ok {
		return fmt.Errorf("execute operation %d: %w", id, ErrNotFound)
	}
	if op.Executed {
		return fmt.Errorf("execute operation %d: %w", id, ErrAlreadyExecuted)
	}
	now := l.clock.Now()
	if !l.validated(op, now) {
		return fmt.Errorf("execute operation %d: %w", id, ErrNotValidated)
	}

	op.Executed = true

	l.notify(Event{Kind: EventExecuted, Operation: op.clone(), At: now})
	return nil
}

// GetDetails returns a deep snapshot of the full operation record. There is
// no access restriction: full transparency is the point.
func (l *Ledger) GetDetails(id uint64) (Operation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	op, ok := l.lookup(id)
	if !ok {
		return Operation{}, fmt.Errorf("operation %d: %w", id, ErrNotFound)
	}
	return op.clone(), nil
}

// HasApproved reports whether reviewer is recorded as approving the
// operation.
func (l *Ledger) HasApproved(id uint64, reviewer string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	op, ok := l.lookup(id)
	if !ok {
		return false, fmt.Errorf("operation %d: %w", id, ErrNotFound)
	}
	_, approved := op.approverSet[reviewer]
	return approved, nil
}

// Operations returns deep snapshots of every registered operation in id
// order.
func (l *Ledger) Operations() []Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Operation, 0, len(l.ops))
	for _, op := range l.ops {
		out = append(out, op.clone())
	}
	return out
}

// Size returns the number of registered operations.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

// Threshold returns the approval count an operation with the given flag
// must reach.
func (l *Ledger) Threshold(modifiesSystem bool) int {
	if modifiesSystem {
		return l.required + l.additional
	}
	return l.required
}

// ReviewWindow returns the configured timelock duration.
func (l *Ledger) ReviewWindow() time.Duration {
	return l.timelock
}

// Roster returns the fixed reviewer roster.
func (l *Ledger) Roster() *Roster {
	return l.roster
}

// Restore seeds a freshly constructed, still-empty ledger from persisted
// snapshots, for example after a daemon restart. It validates the
// structural invariants of the records (dense ids from 1, approval counts
// matching approval sets, approvers drawn from this ledger's roster) and
// rejects anything inconsistent. Content hashes are stored verbatim, never
// recomputed.
func (l *Ledger) Restore(ops []Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ops) != 0 {
		return fmt.Errorf("restore: ledger already holds %d operations", len(l.ops))
	}

	restored := make([]*Operation, 0, len(ops))
	for i, src := range ops {
		wantID := uint64(i) + 1
		if src.ID != wantID {
			return fmt.Errorf("restore: operation at position %d has id %d, want %d", i, src.ID, wantID)
		}
		if src.Value != nil && src.Value.Sign() < 0 {
			return fmt.Errorf("restore operation %d: %w", src.ID, ErrNegativeValue)
		}
		if src.ApprovalCount != len(src.Approvals) {
			return fmt.Errorf("restore operation %d: approval count %d does not match %d recorded approvals",
				src.ID, src.ApprovalCount, len(src.Approvals))
		}
		seen := make(map[string]struct{}, len(src.Approvals))
		for _, reviewer := range src.Approvals {
			if !l.roster.Contains(reviewer) {
				return fmt.Errorf("restore operation %d: approver %q: %w", src.ID, reviewer, ErrUnauthorized)
			}
			if _, dup := seen[reviewer]; dup {
				return fmt.Errorf("restore operation %d: approver %q: %w", src.ID, reviewer, ErrAlreadyApproved)
			}
			seen[reviewer] = struct{}{}
		}
		op := src.clone()
		restored = append(restored, &op)
	}

	l.ops = restored
	return nil
}

// lookup resolves an id to its operation. Callers hold l.mu.
func (l *Ledger) lookup(id uint64) (*Operation, bool) {
	if id == 0 || id > uint64(len(l.ops)) {
		return nil, false
	}
	return l.ops[id-1], true
}

// validated evaluates the execution predicate at the given instant.
// Callers hold l.mu.
func (l *Ledger) validated(op *Operation, now time.Time) bool {
	if op.ApprovalCount < l.Threshold(op.ModifiesSystem) {
		return false
	}
	return !now.Before(op.RegisteredAt.Add(l.timelock))
}

func (l *Ledger) notify(ev Event) {
	for _, fn := range l.observers {
		fn(ev)
	}
}
