package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	if strings.TrimSpace(c.Deriv.APIToken) == "" {
		return fmt.Errorf("deriv.api_token is required")
	}
	if !strings.HasPrefix(c.Deriv.Endpoint, "ws://") && !strings.HasPrefix(c.Deriv.Endpoint, "wss://") {
		return fmt.Errorf("deriv.endpoint must be a ws:// or wss:// URL, got %q", c.Deriv.Endpoint)
	}
	if c.Deriv.MaxReconnectAttempts < 1 {
		return fmt.Errorf("deriv.max_reconnect_attempts must be at least 1")
	}
	if c.Trading.Stake <= 0 {
		return fmt.Errorf("trading.stake must be positive")
	}
	if c.Trading.Multiplier <= 0 {
		return fmt.Errorf("trading.multiplier must be positive")
	}
	if c.Trading.TakeProfitPct <= 0 || c.Trading.StopLossPct <= 0 {
		return fmt.Errorf("trading take_profit_pct and stop_loss_pct must be positive")
	}
	if c.Trading.MaxOpenAttempts < 1 {
		return fmt.Errorf("trading.max_open_attempts must be at least 1")
	}
	if c.Trading.MonitorIntervalSeconds < 1 {
		return fmt.Errorf("trading.monitor_interval_seconds must be at least 1")
	}
	if c.Trading.MaxDurationSeconds < c.Trading.MonitorIntervalSeconds {
		return fmt.Errorf("trading.max_duration_seconds must not be shorter than the monitor interval")
	}
	if c.Cancellation.Enabled {
		if c.Cancellation.DurationSeconds < 1 {
			return fmt.Errorf("cancellation.duration_seconds must be at least 1")
		}
		if c.Cancellation.ThresholdMultiplier <= 0 {
			return fmt.Errorf("cancellation.threshold_multiplier must be positive")
		}
		if c.Cancellation.CheckIntervalSeconds < 1 {
			return fmt.Errorf("cancellation.check_interval_seconds must be at least 1")
		}
		if c.Cancellation.PostCancelTakeProfitPct <= 0 || c.Cancellation.PostCancelStopLossPct <= 0 {
			return fmt.Errorf("cancellation post-cancel TP/SL percentages must be positive")
		}
	}
	if c.Risk.MaxTradesPerDay < 1 {
		return fmt.Errorf("risk.max_trades_per_day must be at least 1")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be positive")
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("risk.max_consecutive_losses must be at least 1")
	}
	if c.Risk.EmergencyExitFraction <= 0 || c.Risk.EmergencyExitFraction > 1 {
		return fmt.Errorf("risk.emergency_exit_fraction must be in (0, 1]")
	}
	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.BotToken) == "" || strings.TrimSpace(c.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	if c.Web.Enabled && strings.TrimSpace(c.Web.Addr) == "" {
		return fmt.Errorf("web.addr is required when the web server is enabled")
	}
	return nil
}
