package approval

import "time"

// EventKind categorizes a ledger mutation.
type EventKind string

const (
	EventRegistered EventKind = "REGISTERED"
	EventApproved   EventKind = "APPROVED"
	EventExecuted   EventKind = "EXECUTED"
)

// Event notifies observers of a completed mutation. Operation is a deep
// snapshot taken after the mutation applied; Reviewer is set only for
// EventApproved.
type Event struct {
	Kind      EventKind
	Operation Operation
	Reviewer  string
	At        time.Time
}

// Observer receives events synchronously, in mutation order, while the
// ledger write lock is held. Observers must not call back into the ledger.
type Observer func(Event)
