package approval

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/404-Panda/DualGuardETH/pkg/canonical"
)

// Operation is one record in the approval ledger: the literal parameters of
// a sensitive action, the integrity hash binding them, and the approval
// state accumulated against them. A snapshot returned by the ledger is a
// deep copy; mutating it has no effect on the ledger.
type Operation struct {
	// ID is the ledger-assigned sequence number, starting at 1.
	// 0 never refers to a stored operation.
	ID uint64

	// Target is the opaque destination the operation would act on.
	Target string

	// Value is the non-negative magnitude to transfer on execution.
	Value *big.Int

	// Payload is the opaque encoded action and arguments, stored verbatim
	// so any observer can inspect exactly what was registered.
	Payload []byte

	// ModifiesSystem marks the operation as self-modifying, which raises
	// the approval threshold.
	ModifiesSystem bool

	// ContentHash is "sha256:"+hex over the canonical JSON of the five
	// defining fields (id, target, value, payload, modifies_system).
	// Computed once at registration; the ledger never recomputes or
	// compares it. It exists so an external observer can verify the
	// stored record off-band.
	ContentHash string

	// RegisteredAt is the authority-clock time of registration.
	RegisteredAt time.Time

	// ApprovalCount always equals len(Approvals).
	ApprovalCount int

	// Approvals lists approving reviewers in approval order.
	Approvals []string

	// Executed flips to true exactly once, after the validation predicate
	// held at the instant of the marking call.
	Executed bool

	approverSet map[string]struct{}
}

// hashInput is the canonical form the content hash commits to. The id is
// included so structurally identical operations registered at different
// times hash differently.
type hashInput struct {
	ID             uint64 `json:"id"`
	Target         string `json:"target"`
	Value          string `json:"value"`
	Payload        []byte `json:"payload"`
	ModifiesSystem bool   `json:"modifies_system"`
}

// ComputeContentHash returns the digest an operation with these defining
// fields receives at registration. Exposed for external verification
// tooling; the ledger itself calls it only once, at registration.
func ComputeContentHash(id uint64, target string, value *big.Int, payload []byte, modifiesSystem bool) (string, error) {
	if value == nil {
		value = new(big.Int)
	}
	return canonical.Hash(hashInput{
		ID:             id,
		Target:         target,
		Value:          value.String(),
		Payload:        payload,
		ModifiesSystem: modifiesSystem,
	})
}

// HasApproval reports whether reviewer is recorded as having approved.
func (o *Operation) HasApproval(reviewer string) bool {
	if o.approverSet != nil {
		_, ok := o.approverSet[reviewer]
		return ok
	}
	for _, r := range o.Approvals {
		if r == reviewer {
			return true
		}
	}
	return false
}

// clone returns a deep copy safe to hand outside the ledger lock.
func (o *Operation) clone() Operation {
	out := *o
	out.Value = new(big.Int)
	if o.Value != nil {
		out.Value.Set(o.Value)
	}
	out.Payload = append([]byte(nil), o.Payload...)
	out.Approvals = append([]string(nil), o.Approvals...)
	out.approverSet = make(map[string]struct{}, len(o.Approvals))
	for _, r := range o.Approvals {
		out.approverSet[r] = struct{}{}
	}
	return out
}

// operationRecord is the JSON shape of an Operation. Value travels as a
// decimal string so canonical JSON never loses precision on large amounts.
type operationRecord struct {
	ID             uint64    `json:"id"`
	Target         string    `json:"target"`
	Value          string    `json:"value"`
	Payload        []byte    `json:"payload"`
	ModifiesSystem bool      `json:"modifies_system"`
	ContentHash    string    `json:"content_hash"`
	RegisteredAt   time.Time `json:"registered_at"`
	ApprovalCount  int       `json:"approval_count"`
	Approvals      []string  `json:"approvals"`
	Executed       bool      `json:"executed"`
}

// MarshalJSON implements json.Marshaler.
func (o Operation) MarshalJSON() ([]byte, error) {
	value := o.Value
	if value == nil {
		value = new(big.Int)
	}
	return json.Marshal(operationRecord{
		ID:             o.ID,
		Target:         o.Target,
		Value:          value.String(),
		Payload:        o.Payload,
		ModifiesSystem: o.ModifiesSystem,
		ContentHash:    o.ContentHash,
		RegisteredAt:   o.RegisteredAt,
		ApprovalCount:  o.ApprovalCount,
		Approvals:      o.Approvals,
		Executed:       o.Executed,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var rec operationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	value, ok := new(big.Int).SetString(rec.Value, 10)
	if !ok {
		return fmt.Errorf("operation %d: invalid value %q", rec.ID, rec.Value)
	}
	o.ID = rec.ID
	o.Target = rec.Target
	o.Value = value
	o.Payload = rec.Payload
	o.ModifiesSystem = rec.ModifiesSystem
	o.ContentHash = rec.ContentHash
	o.RegisteredAt = rec.RegisteredAt
	o.ApprovalCount = rec.ApprovalCount
	o.Approvals = rec.Approvals
	o.Executed = rec.Executed
	o.approverSet = make(map[string]struct{}, len(rec.Approvals))
	for _, r := range rec.Approvals {
		o.approverSet[r] = struct{}{}
	}
	return nil
}
