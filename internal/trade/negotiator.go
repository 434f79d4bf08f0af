package trade

import (
	"context"
	"fmt"
	"time"

	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/logger"
)

// retryPause is the fixed pause between open attempts after a price-moved
// rejection.
const retryPause = 500 * time.Millisecond

// Negotiator turns a directional signal into a committed position using
// the proposal-then-buy flow. A quote is used for exactly one buy attempt;
// if the broker rejects the buy because the price or payout moved, a fresh
// quote is requested, up to the configured attempt budget.
type Negotiator struct {
	broker  Broker
	trading config.TradingConfig
	cancel  config.CancellationConfig
	log     *logger.Logger
	pause   func(ctx context.Context, d time.Duration) error
}

func NewNegotiator(broker Broker, trading config.TradingConfig, cancel config.CancellationConfig, log *logger.Logger) *Negotiator {
	return &Negotiator{
		broker:  broker,
		trading: trading,
		cancel:  cancel,
		log:     log,
		pause:   pauseCtx,
	}
}

func pauseCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OpenPosition opens a multiplier position in the given direction at the
// configured stake. On success the returned trade starts in the
// cancellable phase when a cancellation window is configured, otherwise it
// is committed immediately.
func (n *Negotiator) OpenPosition(ctx context.Context, dir Direction) (*Trade, error) {
	maxAttempts := n.trading.MaxOpenAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	params := deriv.ProposalParams{
		ContractType: dir.ContractType(),
		Symbol:       n.trading.Symbol,
		Currency:     n.trading.Currency,
		Stake:        n.trading.Stake,
		Multiplier:   n.trading.Multiplier,
	}
	if n.cancel.Enabled {
		params.CancellationSeconds = n.cancel.DurationSeconds
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			n.log.Info("retrying open with fresh quote", "attempt", attempt, "max", maxAttempts)
			if err := n.pause(ctx, retryPause); err != nil {
				return nil, err
			}
		}
		proposal, err := n.broker.RequestProposal(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("requesting proposal (%s %s): %w", dir, n.trading.Symbol, err)
		}
		maxPrice := MaxBuyPrice(proposal.AskPrice)
		n.log.Debug("quote received", "proposal_id", proposal.ID, "ask", proposal.AskPrice, "max_price", maxPrice)

		buy, err := n.broker.Buy(ctx, proposal.ID, maxPrice)
		if err != nil {
			if deriv.IsPriceMoved(err) {
				n.log.Warn("buy rejected, price moved", "attempt", attempt, "error", err)
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("buying contract (%s %s, stake %.2f): %w", dir, n.trading.Symbol, n.trading.Stake, err)
		}
		return n.buildTrade(dir, proposal, buy), nil
	}
	return nil, fmt.Errorf("price moved on every attempt (%d): %w", maxAttempts, lastErr)
}

func (n *Negotiator) buildTrade(dir Direction, proposal deriv.Proposal, buy deriv.BuyConfirmation) *Trade {
	t := &Trade{
		ContractID: buy.ContractID,
		Direction:  dir,
		Stake:      n.trading.Stake,
		EntryPrice: buy.BuyPrice,
		Multiplier: n.trading.Multiplier,
		Longcode:   buy.Longcode,
		OpenedAt:   time.Now(),
		Status:     StatusOpen,
	}
	if n.cancel.Enabled {
		t.Phase = PhaseCancellable
		t.TakeProfitAmount = LimitAmount(n.cancel.PostCancelTakeProfitPct, t.Stake, t.Multiplier)
		t.StopLossAmount = LimitAmount(n.cancel.PostCancelStopLossPct, t.Stake, t.Multiplier)
		t.CancellationFee = n.cancellationFee(proposal, buy)
		expiry := t.OpenedAt.Add(n.cancel.Duration())
		t.CancellationExpiry = &expiry
		n.log.Info("trade opened, cancellation window active",
			"contract_id", t.ContractID, "direction", dir, "entry", t.EntryPrice,
			"fee", t.CancellationFee, "expires", expiry.Format(time.TimeOnly))
	} else {
		t.Phase = PhaseCommitted
		t.TakeProfitAmount = LimitAmount(n.trading.TakeProfitPct, t.Stake, t.Multiplier)
		t.StopLossAmount = LimitAmount(n.trading.StopLossPct, t.Stake, t.Multiplier)
		n.log.Info("trade opened",
			"contract_id", t.ContractID, "direction", dir, "entry", t.EntryPrice,
			"tp", t.TakeProfitAmount, "sl", t.StopLossAmount)
	}
	return t
}

// cancellationFee prefers the fee from the buy confirmation, then the
// proposal, then the configured fallback.
func (n *Negotiator) cancellationFee(proposal deriv.Proposal, buy deriv.BuyConfirmation) float64 {
	if buy.CancellationFee > 0 {
		return buy.CancellationFee
	}
	if proposal.CancellationFee > 0 {
		return proposal.CancellationFee
	}
	return n.cancel.FeeFallback
}
