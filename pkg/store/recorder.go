package store

import (
	"context"
	"log/slog"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
)

// Recorder adapts a Store into a ledger observer that writes every
// granted mutation through to the database. The ledger remains the
// source of truth within a process; failed writes are logged and do
// not roll back the in-memory mutation.
func Recorder(ctx context.Context, st Store, logger *slog.Logger) approval.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev approval.Event) {
		var err error
		switch ev.Kind {
		case approval.EventRegistered:
			err = st.SaveOperation(ctx, ev.Operation)
		case approval.EventApproved:
			err = st.AddApproval(ctx, ev.Operation.ID, ev.Operation.ApprovalCount, ev.Reviewer, ev.At)
		case approval.EventExecuted:
			err = st.SetExecuted(ctx, ev.Operation.ID)
		default:
			logger.Warn("unknown ledger event kind", "kind", string(ev.Kind))
			return
		}
		if err != nil {
			logger.Error("write-behind persistence failed",
				"kind", string(ev.Kind),
				"operation_id", ev.Operation.ID,
				"error", err,
			)
		}
	}
}

// Rehydrate builds a ledger from the persisted operation records and
// attaches a write-behind recorder so subsequent mutations persist.
func Rehydrate(ctx context.Context, st Store, cfg approval.Config, logger *slog.Logger, opts ...approval.Option) (*approval.Ledger, error) {
	ops, err := st.ListOperations(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, approval.WithObserver(Recorder(ctx, st, logger)))
	ledger, err := approval.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := ledger.Restore(ops); err != nil {
		return nil, err
	}
	return ledger, nil
}
