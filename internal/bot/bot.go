package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/logger"
	"multibot/internal/notify"
	"multibot/internal/risk"
	"multibot/internal/signal"
	"multibot/internal/trade"

	"github.com/google/uuid"
)

// ErrNotPermitted is returned by ExecuteTrade when the admission gate
// refuses the trade.
var ErrNotPermitted = errors.New("trading not permitted")

// Candle granularities, in seconds, for the two series the generator
// consumes.
const (
	triggerGranularity = 60
	trendGranularity   = 300
)

type marketData interface {
	CandleHistory(ctx context.Context, symbol string, granularity, count int) ([]deriv.Candle, error)
	Balance(ctx context.Context) (float64, error)
}

type positionOpener interface {
	OpenPosition(ctx context.Context, dir trade.Direction) (*trade.Trade, error)
}

type tradeMonitor interface {
	Monitor(ctx context.Context, t *trade.Trade, policy trade.EmergencyPolicy) (*trade.Result, error)
}

type admission interface {
	trade.EmergencyPolicy
	CanTrade() (bool, string)
	ValidateTradeParameters(stake, takeProfit, stopLoss float64) error
	RecordOpen(t *trade.Trade)
	RecordClose(contractID int64, pnl float64, status trade.Status) string
	ForceUnlock()
	CooldownRemaining() time.Duration
	Snapshot() risk.Stats
}

type resultSink interface {
	SaveResult(ctx context.Context, res *trade.Result, symbol, exitKind string) error
}

// Bot wires the admission gate, the negotiator and the lifecycle machine
// into one trade per cycle. It is the only component allowed to fail safe
// by force-clearing the admission slot.
type Bot struct {
	cfg      *config.Config
	market   marketData
	opener   positionOpener
	monitor  tradeMonitor
	risk     admission
	gen      signal.Generator
	notifier notify.Notifier
	sink     resultSink
	log      *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Params collects the bot's dependencies.
type Params struct {
	Config   *config.Config
	Market   marketData
	Opener   positionOpener
	Monitor  tradeMonitor
	Risk     admission
	Gen      signal.Generator
	Notifier notify.Notifier
	Sink     resultSink
	Log      *logger.Logger
}

func New(p Params) *Bot {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Bot{
		cfg:      p.Config,
		market:   p.Market,
		opener:   p.Opener,
		monitor:  p.Monitor,
		risk:     p.Risk,
		gen:      p.Gen,
		notifier: notifier,
		sink:     p.Sink,
		log:      p.Log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteTrade runs one complete trade: admission check, open, monitor to
// a terminal state, close recording. Whatever goes wrong after the slot
// was locked, the deferred unlock guarantees the admission gate is open
// again when this returns without a recorded close.
func (b *Bot) ExecuteTrade(ctx context.Context, sig signal.Signal) (*trade.Result, error) {
	if ok, reason := b.risk.CanTrade(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPermitted, reason)
	}

	t, err := b.opener.OpenPosition(ctx, sig.Direction)
	if err != nil {
		return nil, fmt.Errorf("opening %s position (stake %.2f): %w", sig.Direction, b.cfg.Trading.Stake, err)
	}
	b.risk.RecordOpen(t)
	b.notifyText(notify.TradeOpened(t))

	closed := false
	defer func() {
		if !closed {
			b.risk.ForceUnlock()
		}
	}()

	res, err := b.monitor.Monitor(ctx, t, b.risk)
	if err != nil {
		return nil, fmt.Errorf("monitoring contract %d (%s, stake %.2f): %w", t.ContractID, t.Direction, t.Stake, err)
	}
	if res == nil {
		return nil, fmt.Errorf("monitoring contract %d returned no terminal result", t.ContractID)
	}

	res.ExitKind = b.risk.RecordClose(t.ContractID, res.PnL, res.Status)
	closed = true
	return res, nil
}

// Run is the main trading loop. It exits when the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if balance, err := b.market.Balance(ctx); err != nil {
		b.log.Warn("balance fetch failed at startup", "error", err)
	} else {
		b.log.Info("account balance", "balance", balance)
		b.notifyText(notify.BotStarted(balance, b.cfg.Trading.Symbol, b.cfg.Trading.Multiplier))
	}

	cycleInterval := time.Duration(b.cfg.App.CycleSeconds) * time.Second
	cycle := 0
	for {
		cycle++
		clog := b.log.With("cycle", cycle, "trace", uuid.NewString()[:8])
		b.runCycle(ctx, clog)

		wait := cycleInterval
		if cooldown := b.risk.CooldownRemaining(); cooldown > wait {
			wait = cooldown
		}
		clog.Debug("cycle complete", "next_in", wait)
		if err := b.sleep(ctx, wait); err != nil {
			break
		}
	}

	stats := b.risk.Snapshot()
	b.log.Info("final statistics",
		"trades", stats.TotalTrades, "wins", stats.WinningTrades, "losses", stats.LosingTrades,
		"total_pnl", stats.TotalPnL, "max_drawdown", stats.MaxDrawdown)
	b.notifyText(notify.BotStopped(stats))
	return nil
}

// runCycle performs one pass: gate, data, signal, trade.
func (b *Bot) runCycle(ctx context.Context, log *logger.Logger) {
	if ok, reason := b.risk.CanTrade(); !ok {
		log.Debug("skipping cycle", "reason", reason)
		return
	}

	symbol := b.cfg.Trading.Symbol
	count := b.cfg.Signal.CandleCount
	m1, err := b.market.CandleHistory(ctx, symbol, triggerGranularity, count)
	if err != nil {
		log.Error("fetching 1m candles failed", "symbol", symbol, "error", err)
		return
	}
	m5, err := b.market.CandleHistory(ctx, symbol, trendGranularity, count)
	if err != nil {
		log.Error("fetching 5m candles failed", "symbol", symbol, "error", err)
		return
	}

	sig := b.gen.Evaluate(m1, m5)
	if !sig.Tradable {
		log.Info("hold", "reason", sig.Reason)
		return
	}
	log.Info("signal detected", "direction", sig.Direction, "confidence", sig.Confidence, "reason", sig.Reason)
	b.notifyText(notify.SignalDetected(sig))

	tp, sl := b.configuredLimits()
	if err := b.risk.ValidateTradeParameters(b.cfg.Trading.Stake, tp, sl); err != nil {
		log.Warn("trade parameters rejected", "error", err)
		return
	}

	res, err := b.ExecuteTrade(ctx, sig)
	if err != nil {
		log.Error("trade execution failed", "direction", sig.Direction, "stake", b.cfg.Trading.Stake, "error", err)
		return
	}

	b.notifyText(notify.TradeClosed(res))
	if b.sink != nil {
		if err := b.sink.SaveResult(ctx, res, symbol, res.ExitKind); err != nil {
			log.Warn("persisting trade record failed", "contract_id", res.Trade.ContractID, "error", err)
		}
	}
	stats := b.risk.Snapshot()
	log.Info("cycle result",
		"status", res.Status, "pnl", res.PnL, "win_rate", stats.WinRate,
		"trades_today", stats.TradesToday, "daily_pnl", stats.DailyPnL)
}

// configuredLimits returns the TP/SL amounts the next trade would carry.
func (b *Bot) configuredLimits() (tp, sl float64) {
	t := b.cfg.Trading
	if b.cfg.Cancellation.Enabled {
		c := b.cfg.Cancellation
		return trade.LimitAmount(c.PostCancelTakeProfitPct, t.Stake, t.Multiplier),
			trade.LimitAmount(c.PostCancelStopLossPct, t.Stake, t.Multiplier)
	}
	return trade.LimitAmount(t.TakeProfitPct, t.Stake, t.Multiplier),
		trade.LimitAmount(t.StopLossPct, t.Stake, t.Multiplier)
}

// notifyText delivers in the background: the notifier retries with
// synchronous pauses, and an outage must not eat into the cancellation
// window or delay a poll cycle.
func (b *Bot) notifyText(text string) {
	go func() {
		if err := b.notifier.SendText(text); err != nil {
			b.log.Warn("notification failed", "error", err)
		}
	}()
}
