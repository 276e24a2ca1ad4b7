package approval

import "fmt"

// Roster is the fixed, ordered set of reviewer identities trusted to
// approve operations. It is built once at ledger construction and never
// mutated; membership changes mean standing up a new ledger, which keeps
// the record of who could approve what, when, auditable.
type Roster struct {
	order   []string
	members map[string]struct{}
}

// NewRoster builds a roster from reviewer identities in the given order.
// Identities are opaque; empty strings and duplicates are rejected.
func NewRoster(reviewers []string) (*Roster, error) {
	if len(reviewers) == 0 {
		return nil, ErrEmptyRoster
	}
	r := &Roster{
		order:   make([]string, 0, len(reviewers)),
		members: make(map[string]struct{}, len(reviewers)),
	}
	for i, id := range reviewers {
		if id == "" {
			return nil, fmt.Errorf("reviewer %d: identity must not be empty", i)
		}
		if _, dup := r.members[id]; dup {
			return nil, fmt.Errorf("reviewer %q: %w", id, ErrDuplicateReviewer)
		}
		r.members[id] = struct{}{}
		r.order = append(r.order, id)
	}
	return r, nil
}

// Contains reports roster membership.
func (r *Roster) Contains(reviewer string) bool {
	_, ok := r.members[reviewer]
	return ok
}

// Members returns the reviewer identities in construction order.
func (r *Roster) Members() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of reviewers.
func (r *Roster) Len() int {
	return len(r.order)
}
