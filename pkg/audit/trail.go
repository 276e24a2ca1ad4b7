// Package audit implements the append-only review trail with
// content addressing and hash chaining. Every ledger mutation is
// recorded as an immutable entry so the full approval history of an
// operation can be reconstructed and independently verified.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
	"github.com/404-Panda/DualGuardETH/pkg/canonical"
)

var (
	ErrEntryNotFound = errors.New("audit entry not found")
	ErrChainBroken   = errors.New("audit hash chain is broken")
)

// Kind categorizes trail entries by the ledger mutation they record.
type Kind string

const (
	KindRegistered Kind = "REGISTERED"
	KindApproved   Kind = "APPROVED"
	KindExecuted   Kind = "EXECUTED"
)

// Entry is a single immutable entry in the review trail.
type Entry struct {
	EntryID       string          `json:"entry_id"`
	Sequence      uint64          `json:"sequence"`
	Timestamp     time.Time       `json:"timestamp"`
	Kind          Kind            `json:"kind"`
	OperationID   uint64          `json:"operation_id"`
	Reviewer      string          `json:"reviewer,omitempty"`
	OperationHash string          `json:"operation_hash"`
	Payload       json.RawMessage `json:"payload"`
	PayloadHash   string          `json:"payload_hash"`
	PreviousHash  string          `json:"previous_hash"`
	EntryHash     string          `json:"entry_hash"`
}

// Trail is an append-only review trail with hash chaining. The chain
// is anchored at the literal head "genesis".
type Trail struct {
	mu        sync.RWMutex
	entries   []*Entry
	entryByID map[string]*Entry
	sequence  uint64
	chainHead string
	clock     approval.Clock
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock replaces the wall clock, used by tests.
func WithClock(c approval.Clock) Option {
	return func(t *Trail) { t.clock = c }
}

// NewTrail creates an empty review trail.
func NewTrail(opts ...Option) *Trail {
	t := &Trail{
		entries:   make([]*Entry, 0),
		entryByID: make(map[string]*Entry),
		chainHead: "genesis",
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Record appends a trail entry for a ledger event, stamped with the
// event's authoritative time. It is the entry point used by the
// Recorder observer.
func (t *Trail) Record(ev approval.Event) error {
	_, err := t.append(ev.At, Kind(ev.Kind), ev.Operation, ev.Reviewer)
	return err
}

// Append records an operation snapshot under the given kind, stamped
// with the trail clock.
func (t *Trail) Append(kind Kind, op approval.Operation, reviewer string) (*Entry, error) {
	return t.append(t.clock.Now(), kind, op, reviewer)
}

func (t *Trail) append(at time.Time, kind Kind, op approval.Operation, reviewer string) (*Entry, error) {
	payload, err := canonical.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("audit: serialize operation %d: %w", op.ID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	entry := &Entry{
		EntryID:       uuid.New().String(),
		Sequence:      t.sequence,
		Timestamp:     at,
		Kind:          kind,
		OperationID:   op.ID,
		Reviewer:      reviewer,
		OperationHash: op.ContentHash,
		Payload:       payload,
		PayloadHash:   canonical.HashBytes(payload),
		PreviousHash:  t.chainHead,
	}

	entryHash, err := computeEntryHash(entry)
	if err != nil {
		t.sequence--
		return nil, fmt.Errorf("audit: compute entry hash: %w", err)
	}
	entry.EntryHash = entryHash
	t.chainHead = entry.EntryHash

	t.entries = append(t.entries, entry)
	t.entryByID[entry.EntryID] = entry

	return entry, nil
}

// computeEntryHash hashes the chain-relevant fields of an entry. The
// previous hash is part of the input so entries cannot be reordered
// or dropped without breaking the chain.
func computeEntryHash(entry *Entry) (string, error) {
	hashable := struct {
		Sequence      uint64    `json:"sequence"`
		Timestamp     time.Time `json:"timestamp"`
		Kind          Kind      `json:"kind"`
		OperationID   uint64    `json:"operation_id"`
		Reviewer      string    `json:"reviewer"`
		OperationHash string    `json:"operation_hash"`
		PayloadHash   string    `json:"payload_hash"`
		PreviousHash  string    `json:"previous_hash"`
	}{
		Sequence:      entry.Sequence,
		Timestamp:     entry.Timestamp,
		Kind:          entry.Kind,
		OperationID:   entry.OperationID,
		Reviewer:      entry.Reviewer,
		OperationHash: entry.OperationHash,
		PayloadHash:   entry.PayloadHash,
		PreviousHash:  entry.PreviousHash,
	}
	return canonical.Hash(hashable)
}

// RecomputeEntryHash re-derives the hash of an entry from its fields.
// Used by external verifiers against exported trails.
func RecomputeEntryHash(entry Entry) (string, error) {
	return computeEntryHash(&entry)
}

// Get retrieves an entry by ID.
func (t *Trail) Get(entryID string) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entryByID[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return *entry, nil
}

// Entries returns a copy of the trail in append order.
func (t *Trail) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

// ForOperation returns the entries recorded for one operation, in
// append order.
func (t *Trail) ForOperation(opID uint64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, 4)
	for _, e := range t.entries {
		if e.OperationID == opID {
			out = append(out, *e)
		}
	}
	return out
}

// Head returns the current chain head hash.
func (t *Trail) Head() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chainHead
}

// Len returns the number of entries in the trail.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Verify walks the trail and recomputes every link of the hash chain.
func (t *Trail) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return VerifyEntries(entriesCopy(t.entries))
}

func entriesCopy(entries []*Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = *e
	}
	return out
}

// VerifyEntries checks the chain integrity of a slice of entries that
// is expected to start at the genesis anchor.
func VerifyEntries(entries []Entry) error {
	expectedPrev := "genesis"
	for i, entry := range entries {
		if entry.PreviousHash != expectedPrev {
			return fmt.Errorf("%w: entry %d has previous_hash %s, expected %s",
				ErrChainBroken, i, entry.PreviousHash, expectedPrev)
		}
		if got := canonical.HashBytes(entry.Payload); got != entry.PayloadHash {
			return fmt.Errorf("%w: entry %d payload hash mismatch", ErrChainBroken, i)
		}
		computed, err := computeEntryHash(&entry)
		if err != nil {
			return fmt.Errorf("%w: entry %d hash computation failed: %w", ErrChainBroken, i, err)
		}
		if computed != entry.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, computed, entry.EntryHash)
		}
		expectedPrev = entry.EntryHash
	}
	return nil
}

// Recorder adapts a Trail into a ledger observer. Entries that fail
// to serialize are dropped; operation snapshots contain only
// marshalable fields, so in practice this does not occur.
func Recorder(trail *Trail) approval.Observer {
	return func(ev approval.Event) {
		_ = trail.Record(ev)
	}
}
