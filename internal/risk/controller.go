package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"multibot/internal/config"
	"multibot/internal/logger"
	"multibot/internal/trade"
)

// exitTolerance absorbs broker rounding when matching a realized P&L
// against the nominal TP/SL amounts.
const exitTolerance = 0.1

// LogEntry is one trade in today's log.
type LogEntry struct {
	OpenedAt   time.Time
	ClosedAt   time.Time
	ContractID int64
	Direction  string
	Stake      float64
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
	Status     string
	PnL        float64
	ExitKind   string
}

// Stats is a read-only snapshot of the accumulated statistics.
type Stats struct {
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	WinRate           float64 `json:"win_rate"`
	TotalPnL          float64 `json:"total_pnl"`
	DailyPnL          float64 `json:"daily_pnl"`
	TradesToday       int     `json:"trades_today"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	LargestWin        float64 `json:"largest_win"`
	LargestLoss       float64 `json:"largest_loss"`
	PeakBalance       float64 `json:"peak_balance"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	HasActiveTrade    bool    `json:"has_active_trade"`
	CooldownSeconds   float64 `json:"cooldown_seconds"`
}

// Controller is the admission gate in front of every trade. It enforces
// the single-position invariant, the daily caps, the consecutive-loss
// circuit breaker and the cooldown. All state is guarded by a mutex: the
// trading loop and the web API read it concurrently.
type Controller struct {
	mu        sync.Mutex
	cfg       config.RiskConfig
	baseStake float64
	log       *logger.Logger
	now       func() time.Time

	currentDate    string
	tradesToday    []*LogEntry
	lastTradeStart time.Time
	dailyPnL       float64
	active         *LogEntry
	hasActive      bool
	consecLosses   int

	totalTrades int
	wins        int
	losses      int
	totalPnL    float64
	largestWin  float64
	largestLoss float64
	peakBalance float64
	maxDrawdown float64
}

func NewController(cfg config.RiskConfig, baseStake float64, log *logger.Logger) *Controller {
	c := &Controller{
		cfg:       cfg,
		baseStake: baseStake,
		log:       log,
		now:       time.Now,
	}
	c.currentDate = c.now().Format(time.DateOnly)
	return c
}

// CanTrade reports whether a new trade may be opened, with the reason
// for the first failing check. Checks run in priority order: active
// trade, circuit breaker, daily trade cap, daily loss cap, cooldown.
func (c *Controller) CanTrade() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDateLocked()

	if c.hasActive {
		return false, "Active trade in progress (only 1 concurrent trade allowed)"
	}
	if c.consecLosses >= c.cfg.MaxConsecutiveLosses {
		return false, fmt.Sprintf("Circuit breaker active (%d consecutive losses)", c.consecLosses)
	}
	if len(c.tradesToday) >= c.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("Daily trade limit reached (%d trades)", c.cfg.MaxTradesPerDay)
	}
	if c.dailyPnL <= -c.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("Daily loss limit reached (%.2f)", c.dailyPnL)
	}
	if !c.lastTradeStart.IsZero() {
		elapsed := c.now().Sub(c.lastTradeStart)
		if cooldown := c.cfg.Cooldown(); elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("Cooldown active (%.0fs remaining)", remaining.Seconds())
		}
	}
	return true, "OK"
}

// ValidateTradeParameters sanity-checks an order before it is sent.
func (c *Controller) ValidateTradeParameters(stake, takeProfit, stopLoss float64) error {
	if stake <= 0 {
		return fmt.Errorf("stake must be positive")
	}
	if maxStake := c.baseStake * c.cfg.MaxStakeMultiple; maxStake > 0 && stake > maxStake {
		return fmt.Errorf("stake %.2f exceeds maximum %.2f", stake, maxStake)
	}
	if takeProfit <= 0 {
		return fmt.Errorf("take profit must be positive")
	}
	if stopLoss <= 0 {
		return fmt.Errorf("stop loss must be positive")
	}
	if c.cfg.MaxLossPerTrade > 0 && stopLoss > c.cfg.MaxLossPerTrade {
		return fmt.Errorf("stop loss %.2f exceeds maximum %.2f", stopLoss, c.cfg.MaxLossPerTrade)
	}
	return nil
}

// RecordOpen appends the trade to today's log, locks the admission slot
// and stamps the cooldown clock.
func (c *Controller) RecordOpen(t *trade.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDateLocked()

	entry := &LogEntry{
		OpenedAt:   c.now(),
		ContractID: t.ContractID,
		Direction:  string(t.Direction),
		Stake:      t.Stake,
		EntryPrice: t.EntryPrice,
		TakeProfit: t.TakeProfitAmount,
		StopLoss:   t.StopLossAmount,
		Status:     string(trade.StatusOpen),
	}
	c.tradesToday = append(c.tradesToday, entry)
	c.lastTradeStart = entry.OpenedAt
	c.totalTrades++
	c.active = entry
	c.hasActive = true
	c.log.Info("trade slot locked", "contract_id", t.ContractID, "direction", t.Direction, "entry", t.EntryPrice)
}

// RecordClose updates the matching log entry, unlocks the admission slot
// and folds the result into the statistics. It returns the exit
// classification (take_profit, stop_loss or other).
func (c *Controller) RecordClose(contractID int64, pnl float64, status trade.Status) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry *LogEntry
	for _, t := range c.tradesToday {
		if t.ContractID == contractID {
			entry = t
			break
		}
	}
	exitKind := "other"
	if entry != nil {
		exitKind = classifyExit(pnl, entry.TakeProfit, entry.StopLoss)
		entry.Status = string(status)
		entry.PnL = pnl
		entry.ClosedAt = c.now()
		entry.ExitKind = exitKind
	}
	if c.active != nil && c.active.ContractID == contractID {
		c.active = nil
		c.hasActive = false
		c.log.Info("trade slot unlocked", "contract_id", contractID)
	}

	c.dailyPnL += pnl
	c.totalPnL += pnl
	switch {
	case pnl > 0:
		c.wins++
		c.consecLosses = 0
		if pnl > c.largestWin {
			c.largestWin = pnl
		}
	case pnl < 0:
		c.losses++
		c.consecLosses++
		if pnl < c.largestLoss {
			c.largestLoss = pnl
		}
	}
	if c.totalPnL > c.peakBalance {
		c.peakBalance = c.totalPnL
	}
	if drawdown := c.peakBalance - c.totalPnL; drawdown > c.maxDrawdown {
		c.maxDrawdown = drawdown
	}

	c.log.Info("trade result recorded",
		"contract_id", contractID, "status", status, "pnl", pnl, "exit", exitKind,
		"daily_pnl", c.dailyPnL, "total_pnl", c.totalPnL)
	return exitKind
}

// ShouldCloseTrade is the emergency-only override consulted while a trade
// is open: it fires when the projected daily P&L (realized plus this
// trade's unrealized) would breach the configured fraction of the daily
// loss cap. Regular TP/SL exits are enforced by the broker, not here.
func (c *Controller) ShouldCloseTrade(unrealizedPnL float64) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	projected := c.dailyPnL + unrealizedPnL
	limit := -c.cfg.MaxDailyLoss * c.cfg.EmergencyExitFraction
	if projected <= limit {
		return true, fmt.Sprintf("projected daily loss %.2f breaches %.0f%% of cap %.2f",
			projected, c.cfg.EmergencyExitFraction*100, c.cfg.MaxDailyLoss)
	}
	return false, ""
}

// ForceUnlock clears the active-trade flag unconditionally. It is the
// orchestrator's fail-safe: a crash while monitoring must never leave the
// admission gate permanently closed.
func (c *Controller) ForceUnlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasActive {
		c.log.Warn("force-unlocking trade slot")
	}
	c.active = nil
	c.hasActive = false
}

// CooldownRemaining returns how long until the cooldown check passes.
func (c *Controller) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastTradeStart.IsZero() {
		return 0
	}
	remaining := c.cfg.Cooldown() - c.now().Sub(c.lastTradeStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns the current statistics.
func (c *Controller) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDateLocked()

	winRate := 0.0
	if c.totalTrades > 0 {
		winRate = float64(c.wins) / float64(c.totalTrades) * 100
	}
	cooldown := 0.0
	if !c.lastTradeStart.IsZero() {
		if remaining := c.cfg.Cooldown() - c.now().Sub(c.lastTradeStart); remaining > 0 {
			cooldown = remaining.Seconds()
		}
	}
	return Stats{
		TotalTrades:       c.totalTrades,
		WinningTrades:     c.wins,
		LosingTrades:      c.losses,
		WinRate:           winRate,
		TotalPnL:          c.totalPnL,
		DailyPnL:          c.dailyPnL,
		TradesToday:       len(c.tradesToday),
		ConsecutiveLosses: c.consecLosses,
		LargestWin:        c.largestWin,
		LargestLoss:       c.largestLoss,
		PeakBalance:       c.peakBalance,
		MaxDrawdown:       c.maxDrawdown,
		HasActiveTrade:    c.hasActive,
		CooldownSeconds:   cooldown,
	}
}

// rollDateLocked resets the daily state when the wall-clock date has
// changed since the last call. Lifetime totals are untouched. Calling it
// twice on the same date is a no-op. Callers hold c.mu.
func (c *Controller) rollDateLocked() {
	today := c.now().Format(time.DateOnly)
	if today == c.currentDate {
		return
	}
	c.log.Info("new trading day, resetting daily stats", "date", today)
	c.currentDate = today
	c.tradesToday = nil
	c.dailyPnL = 0
	c.lastTradeStart = time.Time{}
	c.active = nil
	c.hasActive = false
	c.consecLosses = 0
}

func classifyExit(pnl, takeProfit, stopLoss float64) string {
	switch {
	case pnl > 0 && takeProfit > 0 && math.Abs(math.Abs(pnl)-takeProfit) <= exitTolerance:
		return "take_profit"
	case pnl < 0 && stopLoss > 0 && math.Abs(math.Abs(pnl)-stopLoss) <= exitTolerance:
		return "stop_loss"
	default:
		return "other"
	}
}
