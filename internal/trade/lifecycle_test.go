package trade

import (
	"context"
	"io"
	"testing"
	"time"

	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the machine sleeps, so every deadline in a
// test is deterministic.
type fakeClock struct {
	t time.Time
}

func newTestMachine(broker Broker, trading config.TradingConfig, cancel config.CancellationConfig) (*Machine, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	m := NewMachine(broker, trading, cancel, logger.New(io.Discard, "error"))
	m.now = func() time.Time { return clk.t }
	m.sleep = func(ctx context.Context, d time.Duration) error {
		clk.t = clk.t.Add(d)
		return nil
	}
	return m, clk
}

func cancellableTrade(clk *fakeClock, windowSeconds int) *Trade {
	expiry := clk.t.Add(time.Duration(windowSeconds) * time.Second)
	return &Trade{
		ContractID:         42,
		Direction:          DirectionUp,
		Stake:              10.0,
		EntryPrice:         10.0,
		Multiplier:         100,
		OpenedAt:           clk.t,
		Phase:              PhaseCancellable,
		Status:             StatusOpen,
		TakeProfitAmount:   15.0,
		StopLossAmount:     5.0,
		CancellationFee:    0.50,
		CancellationExpiry: &expiry,
	}
}

type alwaysHold struct{}

func (alwaysHold) ShouldCloseTrade(float64) (bool, string) { return false, "" }

type closeAt struct {
	limit  float64
	reason string
}

func (p closeAt) ShouldCloseTrade(pnl float64) (bool, string) {
	if pnl <= p.limit {
		return true, p.reason
	}
	return false, ""
}

func TestMonitorCancelsOnAdverseMove(t *testing.T) {
	// Threshold = fee 0.50 x multiplier 2.0 = 1.00. The second poll shows
	// an adverse spot with a loss past the threshold.
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{CurrentSpot: 10.05, EntrySpot: 10.0, Profit: 0.30}},
			{status: deriv.ContractStatus{CurrentSpot: 9.90, EntrySpot: 10.0, Profit: -1.20}},
			{status: deriv.ContractStatus{Status: "cancelled", IsSold: true, Profit: -0.50}},
		},
		cancelRes: deriv.CancelReceipt{BalanceBefore: 100.0, BalanceAfter: 109.50},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, 1, broker.cancelCalls)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, PhaseClosed, tr.Phase)
	assert.InDelta(t, 9.50, res.Refund, 1e-9)
	// Realized loss comes from the final poll, not the refund arithmetic.
	assert.Equal(t, -0.50, res.PnL)
	assert.Equal(t, 0, broker.applyCalls)
}

func TestMonitorIgnoresFavorableLoss(t *testing.T) {
	// Loss past the threshold but the spot is above entry for an UP trade:
	// no cancel, and the window later expires into the committed phase.
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{CurrentSpot: 10.10, EntrySpot: 10.0, Profit: -1.50}},
			{status: deriv.ContractStatus{CurrentSpot: 10.12, EntrySpot: 10.0, Profit: -1.20}},
			{status: deriv.ContractStatus{Status: "won", IsSold: true, Profit: 2.0}},
		},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 8)

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, 0, broker.cancelCalls)
	assert.Equal(t, 1, broker.applyCalls)
	assert.Equal(t, StatusWon, res.Status)
}

func TestMonitorWindowExpiryAppliesLimits(t *testing.T) {
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{CurrentSpot: 10.02, EntrySpot: 10.0, Profit: 0.20}},
			{status: deriv.ContractStatus{CurrentSpot: 10.03, EntrySpot: 10.0, Profit: 0.30}},
			{status: deriv.ContractStatus{Status: "won", IsSold: true, Profit: 1.95}},
		},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 10) // two 5s polls, then expiry

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, 1, broker.applyCalls)
	assert.Equal(t, 15.0, broker.appliedTP)
	assert.Equal(t, 5.0, broker.appliedSL)
	assert.Equal(t, StatusWon, res.Status)
	assert.Equal(t, 1.95, res.PnL)
	assert.False(t, res.Forced)
}

func TestMonitorBrokerClosesDuringWindow(t *testing.T) {
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{Status: "lost", IsSold: true, Profit: -5.0}},
		},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, StatusLost, res.Status)
	assert.Equal(t, -5.0, res.PnL)
	assert.Equal(t, "closed by broker during cancellation window", res.ExitReason)
	assert.Equal(t, 0, broker.cancelCalls)
	assert.Equal(t, 0, broker.applyCalls)
}

func TestMonitorCancelFailureKeepsPolling(t *testing.T) {
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{CurrentSpot: 9.90, EntrySpot: 10.0, Profit: -1.50}},
			{status: deriv.ContractStatus{Status: "lost", IsSold: true, Profit: -2.0}},
		},
		cancelErr: &deriv.APIError{Code: "RateLimit", Message: "too many requests"},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, 1, broker.cancelCalls)
	assert.Equal(t, StatusLost, res.Status)
}

func TestMonitorCommittedNaturalClose(t *testing.T) {
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{Profit: 0.50}},
			{status: deriv.ContractStatus{Status: "won", IsSold: true, Profit: 1.95}},
		},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)
	tr.Phase = PhaseCommitted
	tr.CancellationExpiry = nil

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, StatusWon, res.Status)
	assert.Equal(t, 1.95, res.PnL)
	assert.Equal(t, PhaseClosed, tr.Phase)
	assert.False(t, res.Forced)
}

func TestMonitorForcedCloseAtMaxDuration(t *testing.T) {
	trading := testTradingConfig()
	trading.MaxDurationSeconds = 25
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{Profit: -0.10}},
			{status: deriv.ContractStatus{Profit: -0.20}},
			{status: deriv.ContractStatus{Profit: -0.30}},
			{status: deriv.ContractStatus{IsSold: true, Profit: -1.0}},
		},
		sellRes: deriv.SellReceipt{SoldFor: 9.0},
	}
	m, clk := newTestMachine(broker, trading, testCancellationConfig())
	tr := cancellableTrade(clk, 300)
	tr.Phase = PhaseCommitted
	tr.CancellationExpiry = nil

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, 1, broker.sellCalls)
	assert.True(t, res.Forced)
	assert.Equal(t, "max duration reached", res.ExitReason)
	assert.Equal(t, StatusLost, res.Status)
	assert.Equal(t, -1.0, res.PnL)
}

func TestMonitorEmergencyExit(t *testing.T) {
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{Profit: -3.0}},
			{status: deriv.ContractStatus{IsSold: true, Profit: -3.1}},
		},
		sellRes: deriv.SellReceipt{SoldFor: 6.9},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)
	tr.Phase = PhaseCommitted
	tr.CancellationExpiry = nil

	res, err := m.Monitor(context.Background(), tr, closeAt{limit: -2.5, reason: "projected daily loss"})
	require.NoError(t, err)

	assert.Equal(t, 1, broker.sellCalls)
	assert.True(t, res.Forced)
	assert.Equal(t, "projected daily loss", res.ExitReason)
	assert.Equal(t, StatusLost, res.Status)
}

func TestMonitorSurvivesTransientPollFailures(t *testing.T) {
	broker := &fakeBroker{
		statuses: []statusStep{
			{err: &deriv.APIError{Code: "RateLimit", Message: "too many requests"}},
			{err: &deriv.APIError{Code: "RateLimit", Message: "too many requests"}},
			{status: deriv.ContractStatus{Status: "won", IsSold: true, Profit: 1.0}},
		},
	}
	m, clk := newTestMachine(broker, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)
	tr.Phase = PhaseCommitted
	tr.CancellationExpiry = nil

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.Equal(t, 3, broker.statusCalls)
	assert.Equal(t, StatusWon, res.Status)
}

func TestMonitorSellDerivesOutcomeWhenFinalPollFails(t *testing.T) {
	trading := testTradingConfig()
	trading.MaxDurationSeconds = 5
	broker := &fakeBroker{
		statuses: []statusStep{
			{status: deriv.ContractStatus{Profit: -0.10}},
			{err: &deriv.APIError{Code: "RateLimit", Message: "too many requests"}},
		},
		sellRes: deriv.SellReceipt{SoldFor: 11.5},
	}
	m, clk := newTestMachine(broker, trading, testCancellationConfig())
	tr := cancellableTrade(clk, 300)
	tr.Phase = PhaseCommitted
	tr.CancellationExpiry = nil

	res, err := m.Monitor(context.Background(), tr, alwaysHold{})
	require.NoError(t, err)

	assert.True(t, res.Forced)
	assert.Equal(t, StatusWon, res.Status)
	assert.InDelta(t, 1.5, res.PnL, 1e-9)
}

func TestMonitorMissingExpiryIsAnError(t *testing.T) {
	m, clk := newTestMachine(&fakeBroker{statuses: []statusStep{{}}}, testTradingConfig(), testCancellationConfig())
	tr := cancellableTrade(clk, 300)
	tr.CancellationExpiry = nil

	_, err := m.Monitor(context.Background(), tr, alwaysHold{})
	assert.Error(t, err)
}
