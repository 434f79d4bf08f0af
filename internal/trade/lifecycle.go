package trade

import (
	"context"
	"fmt"
	"time"

	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/logger"
)

// EmergencyPolicy is consulted on every committed-phase poll. It exists
// for the one exit the broker cannot enforce: the projected daily loss
// limit.
type EmergencyPolicy interface {
	ShouldCloseTrade(unrealizedPnL float64) (bool, string)
}

// Machine drives a single trade from its opening phase to a terminal
// status. All deadlines (cancellation expiry, max duration) are plain
// timestamps checked on every poll cycle, so a stalled poll cannot
// silently extend them. A transient status-fetch failure never changes
// state; polling just continues.
type Machine struct {
	broker  Broker
	trading config.TradingConfig
	cancel  config.CancellationConfig
	log     *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewMachine(broker Broker, trading config.TradingConfig, cancel config.CancellationConfig, log *logger.Logger) *Machine {
	return &Machine{
		broker:  broker,
		trading: trading,
		cancel:  cancel,
		log:     log,
		now:     time.Now,
		sleep:   pauseCtx,
	}
}

// Monitor polls the trade until it reaches a terminal status and returns
// the outcome. The policy may force an early close during the committed
// phase.
func (m *Machine) Monitor(ctx context.Context, t *Trade, policy EmergencyPolicy) (*Result, error) {
	start := m.now()
	if t.Phase == PhaseCancellable {
		res, err := m.runCancellable(ctx, t)
		if err != nil || res != nil {
			return res, err
		}
		// Window expired without a cancel; the position is committed.
		t.Phase = PhaseCommitted
	}
	return m.runCommitted(ctx, t, policy, start)
}

// runCancellable watches the cancellation window. It returns a non-nil
// result if the trade ended inside the window (broker close or cancel),
// and (nil, nil) when the window expired and the trade moves on.
func (m *Machine) runCancellable(ctx context.Context, t *Trade) (*Result, error) {
	if t.CancellationExpiry == nil {
		return nil, fmt.Errorf("cancellable trade %d has no expiry", t.ContractID)
	}
	threshold := t.CancellationFee * m.cancel.ThresholdMultiplier
	m.log.Info("cancellation phase started",
		"contract_id", t.ContractID, "fee", t.CancellationFee, "threshold", threshold,
		"expires", t.CancellationExpiry.Format(time.TimeOnly))

	for {
		if !m.now().Before(*t.CancellationExpiry) {
			m.log.Info("cancellation window expired, applying limits",
				"contract_id", t.ContractID, "tp", t.TakeProfitAmount, "sl", t.StopLossAmount)
			if err := m.broker.ApplyLimits(ctx, t.ContractID, t.TakeProfitAmount, t.StopLossAmount); err != nil {
				// The broker keeps the position open either way; the
				// committed loop still enforces max duration and the
				// emergency policy.
				m.log.Error("applying limits failed", "contract_id", t.ContractID, "error", err)
			}
			return nil, nil
		}

		status, err := m.broker.ContractStatus(ctx, t.ContractID)
		if err != nil {
			m.log.Warn("status poll failed, continuing", "contract_id", t.ContractID, "error", err)
			if serr := m.sleep(ctx, m.cancel.CheckInterval()); serr != nil {
				return nil, serr
			}
			continue
		}
		if status.Terminal() {
			return m.finalize(t, status, "closed by broker during cancellation window", false), nil
		}

		if ok, reason := m.shouldCancelNow(t, status, threshold); ok {
			m.log.Warn("cancelling trade", "contract_id", t.ContractID, "reason", reason)
			receipt, err := m.broker.Cancel(ctx, t.ContractID)
			if err != nil {
				// Not a state transition: the cancel may succeed on a
				// later poll, or the window will expire.
				m.log.Error("cancel request failed, polling continues", "contract_id", t.ContractID, "error", err)
			} else {
				return m.finalizeCancelled(ctx, t, status, receipt, reason), nil
			}
		} else {
			m.log.Debug("cancellation phase poll",
				"contract_id", t.ContractID, "pnl", status.Profit, "reason", reason)
		}

		if err := m.sleep(ctx, m.cancel.CheckInterval()); err != nil {
			return nil, err
		}
	}
}

// shouldCancelNow applies the cancellation policy: the spot must be moving
// against the trade direction and the unrealized loss must have reached
// the fee-derived threshold.
func (m *Machine) shouldCancelNow(t *Trade, status deriv.ContractStatus, threshold float64) (bool, string) {
	adverse := status.CurrentSpot < status.EntrySpot
	if t.Direction == DirectionDown {
		adverse = status.CurrentSpot > status.EntrySpot
	}
	if !adverse {
		return false, "price moving favorably"
	}
	loss := -status.Profit
	if loss < 0 {
		loss = 0
	}
	if loss >= threshold {
		return true, fmt.Sprintf("loss %.2f reached threshold %.2f", loss, threshold)
	}
	return false, fmt.Sprintf("loss %.2f below threshold %.2f", loss, threshold)
}

func (m *Machine) runCommitted(ctx context.Context, t *Trade, policy EmergencyPolicy, start time.Time) (*Result, error) {
	m.log.Info("committed phase started", "contract_id", t.ContractID,
		"max_duration", m.trading.MaxDuration(), "interval", m.trading.MonitorInterval())

	for {
		if m.now().Sub(start) > m.trading.MaxDuration() {
			m.log.Warn("max duration reached, forcing close", "contract_id", t.ContractID)
			if res, ok := m.forceClose(ctx, t, "max duration reached"); ok {
				return res, nil
			}
			// Sell failed; keep polling, the next cycle retries.
			if err := m.sleep(ctx, m.trading.MonitorInterval()); err != nil {
				return nil, err
			}
			continue
		}

		status, err := m.broker.ContractStatus(ctx, t.ContractID)
		if err != nil {
			m.log.Warn("status poll failed, continuing", "contract_id", t.ContractID, "error", err)
			if serr := m.sleep(ctx, m.trading.MonitorInterval()); serr != nil {
				return nil, serr
			}
			continue
		}

		if policy != nil && !status.Terminal() {
			if should, reason := policy.ShouldCloseTrade(status.Profit); should {
				m.log.Warn("emergency exit", "contract_id", t.ContractID, "reason", reason)
				if res, ok := m.forceClose(ctx, t, reason); ok {
					return res, nil
				}
				if err := m.sleep(ctx, m.trading.MonitorInterval()); err != nil {
					return nil, err
				}
				continue
			}
		}

		if status.Terminal() {
			return m.finalize(t, status, "", false), nil
		}

		m.log.Debug("committed phase poll",
			"contract_id", t.ContractID, "pnl", status.Profit, "elapsed", m.now().Sub(start).Round(time.Second))
		if err := m.sleep(ctx, m.trading.MonitorInterval()); err != nil {
			return nil, err
		}
	}
}

// forceClose sells the contract at market. The bool reports whether the
// close went through; a failed sell is retried by continued polling.
func (m *Machine) forceClose(ctx context.Context, t *Trade, reason string) (*Result, bool) {
	receipt, err := m.broker.Sell(ctx, t.ContractID)
	if err != nil {
		m.log.Error("sell request failed, polling continues", "contract_id", t.ContractID, "error", err)
		return nil, false
	}
	m.log.Info("trade force-closed", "contract_id", t.ContractID, "sold_for", receipt.SoldFor, "reason", reason)
	final, err := m.broker.ContractStatus(ctx, t.ContractID)
	if err != nil {
		// Best effort: derive the outcome from the sale proceeds.
		final = deriv.ContractStatus{IsSold: true, Profit: receipt.SoldFor - t.Stake}
	}
	return m.finalize(t, final, reason, true), true
}

func (m *Machine) finalize(t *Trade, status deriv.ContractStatus, reason string, forced bool) *Result {
	t.Phase = PhaseClosed
	t.Status = Status(status.Outcome())
	res := &Result{
		Trade:      t,
		Status:     t.Status,
		PnL:        status.Profit,
		Forced:     forced,
		ExitReason: reason,
		ClosedAt:   m.now(),
		Final:      status,
	}
	m.log.Info("trade closed",
		"contract_id", t.ContractID, "status", res.Status, "pnl", res.PnL, "forced", forced)
	return res
}

// finalizeCancelled records a successful cancellation. The refund comes
// from the cancel receipt; the realized loss is taken from a final status
// poll when available, otherwise derived from the refund.
func (m *Machine) finalizeCancelled(ctx context.Context, t *Trade, last deriv.ContractStatus, receipt deriv.CancelReceipt, reason string) *Result {
	t.Phase = PhaseClosed
	t.Status = StatusCancelled
	pnl := receipt.Refund() - t.Stake
	final, err := m.broker.ContractStatus(ctx, t.ContractID)
	if err != nil {
		final = last
	} else if final.IsSold || final.Status == "cancelled" {
		pnl = final.Profit
	}
	res := &Result{
		Trade:      t,
		Status:     StatusCancelled,
		PnL:        pnl,
		Refund:     receipt.Refund(),
		ExitReason: reason,
		ClosedAt:   m.now(),
		Final:      final,
	}
	m.log.Info("trade cancelled",
		"contract_id", t.ContractID, "refund", res.Refund, "pnl", res.PnL)
	return res
}
