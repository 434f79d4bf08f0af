package notify

import (
	"fmt"
	"strings"
	"time"

	"multibot/internal/risk"
	"multibot/internal/signal"
	"multibot/internal/trade"
)

// Message formatters for the lifecycle events the bot emits. Kept here so
// the trading code never deals with presentation.

func BotStarted(balance float64, symbol string, multiplier int) string {
	return fmt.Sprintf("🚀 *Bot started*\nSymbol: %s ×%d\nBalance: %.2f", symbol, multiplier, balance)
}

func BotStopped(stats risk.Stats) string {
	var b strings.Builder
	b.WriteString("🛑 *Bot stopped*\n")
	fmt.Fprintf(&b, "Trades: %d (W %d / L %d, %.1f%%)\n", stats.TotalTrades, stats.WinningTrades, stats.LosingTrades, stats.WinRate)
	fmt.Fprintf(&b, "Total P&L: %.2f\n", stats.TotalPnL)
	fmt.Fprintf(&b, "Max drawdown: %.2f", stats.MaxDrawdown)
	return b.String()
}

func SignalDetected(s signal.Signal) string {
	return fmt.Sprintf("📡 *Signal*: %s (%.0f%%)\n%s", s.Direction, s.Confidence*100, s.Reason)
}

func TradeOpened(t *trade.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *Trade opened* %s\n", t.Direction)
	fmt.Fprintf(&b, "Contract: %d\n", t.ContractID)
	fmt.Fprintf(&b, "Stake: %.2f @ entry %.2f\n", t.Stake, t.EntryPrice)
	if t.Phase == trade.PhaseCancellable && t.CancellationExpiry != nil {
		fmt.Fprintf(&b, "Cancellable until %s (fee %.2f)", t.CancellationExpiry.Format(time.TimeOnly), t.CancellationFee)
	} else {
		fmt.Fprintf(&b, "TP %.2f / SL %.2f", t.TakeProfitAmount, t.StopLossAmount)
	}
	return b.String()
}

func TradeClosed(res *trade.Result) string {
	emoji := map[trade.Status]string{
		trade.StatusWon:       "✅",
		trade.StatusLost:      "❌",
		trade.StatusSold:      "📤",
		trade.StatusCancelled: "🛑",
	}[res.Status]
	if emoji == "" {
		emoji = "ℹ️"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Trade %s*\n", emoji, strings.ToUpper(string(res.Status)))
	fmt.Fprintf(&b, "Contract: %d\n", res.Trade.ContractID)
	fmt.Fprintf(&b, "P&L: %.2f", res.PnL)
	if res.Status == trade.StatusCancelled {
		fmt.Fprintf(&b, "\nRefund: %.2f", res.Refund)
	}
	if res.ExitReason != "" {
		fmt.Fprintf(&b, "\nReason: %s", res.ExitReason)
	}
	return b.String()
}
