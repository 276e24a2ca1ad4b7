package approval

import "errors"

// Every rejected precondition surfaces one of these kinds so callers and
// auditors can tell "not enough approvals yet" from "window closed" from
// "already done". Match with errors.Is; returned errors carry the operation
// id (and reviewer, where relevant) as wrapping context.
var (
	// ErrNotFound is returned when an id refers to no registered operation.
	ErrNotFound = errors.New("operation not found")

	// ErrUnauthorized is returned when the approving identity is not in
	// the reviewer roster.
	ErrUnauthorized = errors.New("reviewer not in roster")

	// ErrAlreadyApproved is returned when a reviewer approves the same
	// operation a second time.
	ErrAlreadyApproved = errors.New("reviewer already approved")

	// ErrTimelockExpired is returned when an approval arrives at or after
	// the end of the review window.
	ErrTimelockExpired = errors.New("review window closed")

	// ErrNotValidated is returned when execution is requested before the
	// threshold and timelock are both satisfied.
	ErrNotValidated = errors.New("operation not validated")

	// ErrAlreadyExecuted is returned on any replayed execution marking.
	ErrAlreadyExecuted = errors.New("operation already executed")

	// ErrNegativeValue rejects registration of a negative magnitude.
	ErrNegativeValue = errors.New("value must be non-negative")

	// ErrEmptyRoster rejects construction without any reviewers.
	ErrEmptyRoster = errors.New("reviewer roster is empty")

	// ErrDuplicateReviewer rejects a roster listing the same identity twice.
	ErrDuplicateReviewer = errors.New("duplicate reviewer in roster")
)
