package config

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultCycleSeconds = 30

	defaultDerivEndpoint   = "wss://ws.derivws.com/websockets/v3"
	defaultDerivAppID      = "1089"
	defaultReconnectCap    = 5
	defaultSymbol          = "R_25"
	defaultCurrency        = "USD"
	defaultMultiplier      = 100
	defaultStake           = 10.0
	defaultTakeProfitPct   = 10.0
	defaultStopLossPct     = 5.0
	defaultOpenAttempts    = 3
	defaultMonitorInterval = 10
	defaultMaxDuration     = 3600

	defaultCancelDuration      = 300
	defaultCancelThreshold     = 2.0
	defaultCancelFeeFallback   = 0.45
	defaultCancelCheckInterval = 5
	defaultPostCancelTP        = 15.0
	defaultPostCancelSL        = 5.0

	defaultMaxTradesPerDay   = 5
	defaultMaxDailyLoss      = 25.0
	defaultCooldownSeconds   = 60
	defaultBreakerLimit      = 3
	defaultEmergencyFraction = 0.90
	defaultMaxStakeMultiple  = 2.0
	defaultMaxLossPerTrade   = 10.0
	defaultSignalRSIPeriod   = 14
	defaultSignalOversold    = 30.0
	defaultSignalOverbought  = 70.0
	defaultSignalEMAFast     = 9
	defaultSignalEMASlow     = 21
	defaultSignalCandleCount = 120
	defaultStorePath         = "data/multibot.db"
	defaultWebAddr           = ":9991"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Deriv.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Cancellation.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Web.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		intFieldDefault("app.cycle_seconds", &a.CycleSeconds, defaultCycleSeconds),
	)
}

func (d *DerivConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("deriv.endpoint", &d.Endpoint, defaultDerivEndpoint),
		stringFieldDefault("deriv.app_id", &d.AppID, defaultDerivAppID),
		intFieldDefault("deriv.max_reconnect_attempts", &d.MaxReconnectAttempts, defaultReconnectCap),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("trading.symbol", &t.Symbol, defaultSymbol),
		stringFieldDefault("trading.currency", &t.Currency, defaultCurrency),
		intFieldDefault("trading.multiplier", &t.Multiplier, defaultMultiplier),
		floatFieldDefault("trading.stake", &t.Stake, defaultStake),
		floatFieldDefault("trading.take_profit_pct", &t.TakeProfitPct, defaultTakeProfitPct),
		floatFieldDefault("trading.stop_loss_pct", &t.StopLossPct, defaultStopLossPct),
		intFieldDefault("trading.max_open_attempts", &t.MaxOpenAttempts, defaultOpenAttempts),
		intFieldDefault("trading.monitor_interval_seconds", &t.MonitorIntervalSeconds, defaultMonitorInterval),
		intFieldDefault("trading.max_duration_seconds", &t.MaxDurationSeconds, defaultMaxDuration),
	)
}

func (c *CancellationConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("cancellation.enabled", &c.Enabled, true),
		intFieldDefault("cancellation.duration_seconds", &c.DurationSeconds, defaultCancelDuration),
		floatFieldDefault("cancellation.threshold_multiplier", &c.ThresholdMultiplier, defaultCancelThreshold),
		floatFieldDefault("cancellation.fee_fallback", &c.FeeFallback, defaultCancelFeeFallback),
		intFieldDefault("cancellation.check_interval_seconds", &c.CheckIntervalSeconds, defaultCancelCheckInterval),
		floatFieldDefault("cancellation.post_cancel_take_profit_pct", &c.PostCancelTakeProfitPct, defaultPostCancelTP),
		floatFieldDefault("cancellation.post_cancel_stop_loss_pct", &c.PostCancelStopLossPct, defaultPostCancelSL),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("risk.max_trades_per_day", &r.MaxTradesPerDay, defaultMaxTradesPerDay),
		floatFieldDefault("risk.max_daily_loss", &r.MaxDailyLoss, defaultMaxDailyLoss),
		intFieldDefault("risk.cooldown_seconds", &r.CooldownSeconds, defaultCooldownSeconds),
		intFieldDefault("risk.max_consecutive_losses", &r.MaxConsecutiveLosses, defaultBreakerLimit),
		floatFieldDefault("risk.emergency_exit_fraction", &r.EmergencyExitFraction, defaultEmergencyFraction),
		floatFieldDefault("risk.max_stake_multiple", &r.MaxStakeMultiple, defaultMaxStakeMultiple),
		floatFieldDefault("risk.max_loss_per_trade", &r.MaxLossPerTrade, defaultMaxLossPerTrade),
	)
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("signal.rsi_period", &s.RSIPeriod, defaultSignalRSIPeriod),
		floatFieldDefault("signal.oversold", &s.Oversold, defaultSignalOversold),
		floatFieldDefault("signal.overbought", &s.Overbought, defaultSignalOverbought),
		intFieldDefault("signal.ema_fast", &s.EMAFast, defaultSignalEMAFast),
		intFieldDefault("signal.ema_slow", &s.EMASlow, defaultSignalEMASlow),
		intFieldDefault("signal.candle_count", &s.CandleCount, defaultSignalCandleCount),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (w *WebConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("web.addr", &w.Addr, defaultWebAddr),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil },
		apply: func() { *target = def },
	}
}
