package bot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/logger"
	"multibot/internal/risk"
	"multibot/internal/signal"
	"multibot/internal/trade"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAdmission struct {
	mock.Mock
}

func (m *mockAdmission) ShouldCloseTrade(unrealizedPnL float64) (bool, string) {
	args := m.Called(unrealizedPnL)
	return args.Bool(0), args.String(1)
}

func (m *mockAdmission) CanTrade() (bool, string) {
	args := m.Called()
	return args.Bool(0), args.String(1)
}

func (m *mockAdmission) ValidateTradeParameters(stake, takeProfit, stopLoss float64) error {
	args := m.Called(stake, takeProfit, stopLoss)
	return args.Error(0)
}

func (m *mockAdmission) RecordOpen(t *trade.Trade) {
	m.Called(t)
}

func (m *mockAdmission) RecordClose(contractID int64, pnl float64, status trade.Status) string {
	args := m.Called(contractID, pnl, status)
	return args.String(0)
}

func (m *mockAdmission) ForceUnlock() {
	m.Called()
}

func (m *mockAdmission) CooldownRemaining() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *mockAdmission) Snapshot() risk.Stats {
	args := m.Called()
	return args.Get(0).(risk.Stats)
}

type stubOpener struct {
	trade *trade.Trade
	err   error
	calls int
}

func (s *stubOpener) OpenPosition(ctx context.Context, dir trade.Direction) (*trade.Trade, error) {
	s.calls++
	return s.trade, s.err
}

type stubMonitor struct {
	res *trade.Result
	err error
}

func (s *stubMonitor) Monitor(ctx context.Context, t *trade.Trade, policy trade.EmergencyPolicy) (*trade.Result, error) {
	return s.res, s.err
}

type stubMarket struct {
	candles []deriv.Candle
	err     error
}

func (s *stubMarket) CandleHistory(ctx context.Context, symbol string, granularity, count int) ([]deriv.Candle, error) {
	return s.candles, s.err
}

func (s *stubMarket) Balance(ctx context.Context) (float64, error) {
	return 1000.0, nil
}

type stubGen struct {
	sig signal.Signal
}

func (s stubGen) Evaluate(m1, m5 []deriv.Candle) signal.Signal { return s.sig }

type stubSink struct {
	saved []*trade.Result
	err   error
}

func (s *stubSink) SaveResult(ctx context.Context, res *trade.Result, symbol, exitKind string) error {
	s.saved = append(s.saved, res)
	return s.err
}

func botConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{CycleSeconds: 1},
		Trading: config.TradingConfig{
			Symbol: "R_25", Currency: "USD", Multiplier: 100, Stake: 10.0,
			TakeProfitPct: 10.0, StopLossPct: 5.0,
		},
		Cancellation: config.CancellationConfig{
			Enabled: true, DurationSeconds: 300,
			PostCancelTakeProfitPct: 15.0, PostCancelStopLossPct: 5.0,
		},
		Signal: config.SignalConfig{CandleCount: 60},
	}
}

func openedTrade() *trade.Trade {
	return &trade.Trade{
		ContractID: 42,
		Direction:  trade.DirectionUp,
		Stake:      10.0,
		EntryPrice: 10.0,
		Multiplier: 100,
		Phase:      trade.PhaseCancellable,
		Status:     trade.StatusOpen,
	}
}

func upSignal() signal.Signal {
	return signal.Signal{Direction: trade.DirectionUp, Tradable: true, Confidence: 0.8, Reason: "test"}
}

func newTestBot(adm *mockAdmission, opener *stubOpener, monitor *stubMonitor, market *stubMarket, gen signal.Generator, sink *stubSink) *Bot {
	return New(Params{
		Config:  botConfig(),
		Market:  market,
		Opener:  opener,
		Monitor: monitor,
		Risk:    adm,
		Gen:     gen,
		Sink:    sink,
		Log:     logger.New(io.Discard, "error"),
	})
}

func TestExecuteTradeNotPermitted(t *testing.T) {
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(false, "Active trade in progress (only 1 concurrent trade allowed)")
	opener := &stubOpener{}
	b := newTestBot(adm, opener, &stubMonitor{}, &stubMarket{}, stubGen{}, nil)

	_, err := b.ExecuteTrade(context.Background(), upSignal())
	require.ErrorIs(t, err, ErrNotPermitted)
	assert.Equal(t, 0, opener.calls)
	adm.AssertNotCalled(t, "ForceUnlock")
}

func TestExecuteTradeHappyPath(t *testing.T) {
	tr := openedTrade()
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	adm.On("RecordOpen", tr).Once()
	adm.On("RecordClose", int64(42), 1.95, trade.StatusWon).Return("take_profit").Once()
	monitor := &stubMonitor{res: &trade.Result{Trade: tr, Status: trade.StatusWon, PnL: 1.95}}
	b := newTestBot(adm, &stubOpener{trade: tr}, monitor, &stubMarket{}, stubGen{}, nil)

	res, err := b.ExecuteTrade(context.Background(), upSignal())
	require.NoError(t, err)
	assert.Equal(t, "take_profit", res.ExitKind)
	adm.AssertExpectations(t)
	adm.AssertNotCalled(t, "ForceUnlock")
}

func TestExecuteTradeUnlocksOnMonitorError(t *testing.T) {
	tr := openedTrade()
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	adm.On("RecordOpen", tr).Once()
	adm.On("ForceUnlock").Once()
	monitor := &stubMonitor{err: errors.New("websocket torn down")}
	b := newTestBot(adm, &stubOpener{trade: tr}, monitor, &stubMarket{}, stubGen{}, nil)

	_, err := b.ExecuteTrade(context.Background(), upSignal())
	require.Error(t, err)
	adm.AssertExpectations(t)
	adm.AssertNotCalled(t, "RecordClose")
}

func TestExecuteTradeUnlocksOnNilResult(t *testing.T) {
	tr := openedTrade()
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	adm.On("RecordOpen", tr).Once()
	adm.On("ForceUnlock").Once()
	b := newTestBot(adm, &stubOpener{trade: tr}, &stubMonitor{}, &stubMarket{}, stubGen{}, nil)

	_, err := b.ExecuteTrade(context.Background(), upSignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no terminal result")
	adm.AssertExpectations(t)
}

func TestExecuteTradeOpenFailureLeavesSlotUntouched(t *testing.T) {
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	opener := &stubOpener{err: errors.New("price moved on every attempt (3)")}
	b := newTestBot(adm, opener, &stubMonitor{}, &stubMarket{}, stubGen{}, nil)

	_, err := b.ExecuteTrade(context.Background(), upSignal())
	require.Error(t, err)
	adm.AssertNotCalled(t, "RecordOpen")
	adm.AssertNotCalled(t, "ForceUnlock")
}

type blockingNotifier struct {
	calls   chan string
	release chan struct{}
}

func (n *blockingNotifier) SendText(text string) error {
	n.calls <- text
	<-n.release
	return nil
}

func TestExecuteTradeDoesNotWaitForNotifier(t *testing.T) {
	tr := openedTrade()
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	adm.On("RecordOpen", tr).Once()
	adm.On("RecordClose", int64(42), 1.95, trade.StatusWon).Return("take_profit").Once()
	monitor := &stubMonitor{res: &trade.Result{Trade: tr, Status: trade.StatusWon, PnL: 1.95}}

	notifier := &blockingNotifier{calls: make(chan string, 4), release: make(chan struct{})}
	b := New(Params{
		Config:   botConfig(),
		Market:   &stubMarket{},
		Opener:   &stubOpener{trade: tr},
		Monitor:  monitor,
		Risk:     adm,
		Gen:      stubGen{},
		Notifier: notifier,
		Log:      logger.New(io.Discard, "error"),
	})

	// The notifier never completes until released; the trade must still
	// run to its recorded close without waiting on it.
	done := make(chan struct{})
	var res *trade.Result
	var err error
	go func() {
		res, err = b.ExecuteTrade(context.Background(), upSignal())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteTrade blocked on notification delivery")
	}
	require.NoError(t, err)
	assert.Equal(t, "take_profit", res.ExitKind)

	select {
	case text := <-notifier.calls:
		assert.Contains(t, text, "Trade opened")
	case <-time.After(2 * time.Second):
		t.Fatal("notification never dispatched")
	}
	close(notifier.release)
	adm.AssertExpectations(t)
}

func TestRunCyclePersistsResult(t *testing.T) {
	tr := openedTrade()
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	adm.On("ValidateTradeParameters", 10.0, 150.0, 50.0).Return(nil)
	adm.On("RecordOpen", tr).Once()
	adm.On("RecordClose", int64(42), 1.95, trade.StatusWon).Return("take_profit").Once()
	adm.On("Snapshot").Return(risk.Stats{TotalTrades: 1, WinningTrades: 1, WinRate: 100})
	monitor := &stubMonitor{res: &trade.Result{Trade: tr, Status: trade.StatusWon, PnL: 1.95}}
	market := &stubMarket{candles: make([]deriv.Candle, 60)}
	sink := &stubSink{}
	b := newTestBot(adm, &stubOpener{trade: tr}, monitor, market, stubGen{sig: upSignal()}, sink)

	b.runCycle(context.Background(), b.log)
	require.Len(t, sink.saved, 1)
	assert.Equal(t, trade.StatusWon, sink.saved[0].Status)
	adm.AssertExpectations(t)
}

func TestRunCycleHoldsWithoutTrading(t *testing.T) {
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	opener := &stubOpener{}
	gen := stubGen{sig: signal.Signal{Tradable: false, Reason: "neutral"}}
	b := newTestBot(adm, opener, &stubMonitor{}, &stubMarket{candles: make([]deriv.Candle, 60)}, gen, nil)

	b.runCycle(context.Background(), b.log)
	assert.Equal(t, 0, opener.calls)
}

func TestRunCycleRejectedParametersBlockTrade(t *testing.T) {
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(true, "OK")
	adm.On("ValidateTradeParameters", 10.0, 150.0, 50.0).Return(errors.New("stake 10.00 exceeds maximum 5.00"))
	opener := &stubOpener{}
	b := newTestBot(adm, opener, &stubMonitor{}, &stubMarket{candles: make([]deriv.Candle, 60)}, stubGen{sig: upSignal()}, nil)

	b.runCycle(context.Background(), b.log)
	assert.Equal(t, 0, opener.calls)
	adm.AssertNotCalled(t, "RecordOpen")
}

func TestRunCycleSkipsWhenGateClosed(t *testing.T) {
	adm := &mockAdmission{}
	adm.On("CanTrade").Return(false, "Cooldown active (30s remaining)")
	market := &stubMarket{}
	b := newTestBot(adm, &stubOpener{}, &stubMonitor{}, market, stubGen{sig: upSignal()}, nil)

	b.runCycle(context.Background(), b.log)
	adm.AssertNotCalled(t, "ValidateTradeParameters")
}
