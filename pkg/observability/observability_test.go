package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/404-Panda/DualGuardETH/pkg/approval"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "dualguard", config.ServiceName)
	require.Equal(t, "1.0.0", config.ServiceVersion)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackCallDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, finish := p.TrackCall(context.Background(), "approve")
	require.NotNil(t, ctx)

	time.Sleep(time.Millisecond)
	finish(nil)

	_, finish = p.TrackCall(context.Background(), "approve")
	finish(errors.New("reviewer not in roster"))
}

func TestStartSpanDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "ledger.register")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdownDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestEventRecorderProcessesLedgerEvents(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	clock := &staticClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	ledger, err := approval.New(
		approval.DefaultConfig("alice", "bob"),
		approval.WithClock(clock),
		approval.WithObserver(p.EventRecorder()),
	)
	require.NoError(t, err)

	id, err := ledger.Register("0xdead", big.NewInt(1), nil, true)
	require.NoError(t, err)
	require.NoError(t, ledger.Approve(id, "alice"))
	require.NoError(t, ledger.Approve(id, "bob"))
	clock.now = clock.now.Add(approval.DefaultTimelock)

	// Two of three required approvals for a system-modifying
	// operation, so execution stays rejected; the recorder must
	// absorb the granted events without panicking.
	err = ledger.MarkExecuted(id)
	require.ErrorIs(t, err, approval.ErrNotValidated)
}

type staticClock struct {
	now time.Time
}

func (c *staticClock) Now() time.Time { return c.now }

func TestRejectionReasonLabels(t *testing.T) {
	require.Equal(t, "timelock_expired", rejectionReason(fmt.Errorf("approve: %w", approval.ErrTimelockExpired)))
	require.Equal(t, "already_executed", rejectionReason(fmt.Errorf("mark executed: %w", approval.ErrAlreadyExecuted)))
	require.Equal(t, "unauthorized", rejectionReason(approval.ErrUnauthorized))
	require.Equal(t, "other", rejectionReason(errors.New("disk full")))
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"DEBUG", "info", "WARN", "error", "unknown"} {
		logger := NewLogger(level)
		require.NotNil(t, logger)
	}

	require.True(t, NewLogger("debug").Enabled(context.Background(), slog.LevelDebug))
	require.False(t, NewLogger("warn").Enabled(context.Background(), slog.LevelInfo))
}
