package config

import "time"

// Config is the root configuration for the bot.
type Config struct {
	App          AppConfig          `toml:"app"`
	Deriv        DerivConfig        `toml:"deriv"`
	Trading      TradingConfig      `toml:"trading"`
	Cancellation CancellationConfig `toml:"cancellation"`
	Risk         RiskConfig         `toml:"risk"`
	Signal       SignalConfig       `toml:"signal"`
	Notify       NotifyConfig       `toml:"notify"`
	Store        StoreConfig        `toml:"store"`
	Web          WebConfig          `toml:"web"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	LogPath      string `toml:"log_path"`
	CycleSeconds int    `toml:"cycle_seconds"` // minimum pause between trading cycles
}

// DerivConfig describes the broker websocket endpoint and credentials.
type DerivConfig struct {
	Endpoint             string `toml:"endpoint"`
	AppID                string `toml:"app_id"`
	APIToken             string `toml:"api_token"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
}

type TradingConfig struct {
	Symbol                 string  `toml:"symbol"`
	Currency               string  `toml:"currency"`
	Multiplier             int     `toml:"multiplier"`
	Stake                  float64 `toml:"stake"`
	TakeProfitPct          float64 `toml:"take_profit_pct"`
	StopLossPct            float64 `toml:"stop_loss_pct"`
	MaxOpenAttempts        int     `toml:"max_open_attempts"`
	MonitorIntervalSeconds int     `toml:"monitor_interval_seconds"`
	MaxDurationSeconds     int     `toml:"max_duration_seconds"`
}

// CancellationConfig controls the deal-cancellation window. When enabled,
// a position starts in a cancellable phase and TP/SL are applied only
// after the window expires (post_cancel percentages).
type CancellationConfig struct {
	Enabled                 bool    `toml:"enabled"`
	DurationSeconds         int     `toml:"duration_seconds"`
	ThresholdMultiplier     float64 `toml:"threshold_multiplier"`
	FeeFallback             float64 `toml:"fee_fallback"`
	CheckIntervalSeconds    int     `toml:"check_interval_seconds"`
	PostCancelTakeProfitPct float64 `toml:"post_cancel_take_profit_pct"`
	PostCancelStopLossPct   float64 `toml:"post_cancel_stop_loss_pct"`
}

type RiskConfig struct {
	MaxTradesPerDay       int     `toml:"max_trades_per_day"`
	MaxDailyLoss          float64 `toml:"max_daily_loss"`
	CooldownSeconds       int     `toml:"cooldown_seconds"`
	MaxConsecutiveLosses  int     `toml:"max_consecutive_losses"`
	EmergencyExitFraction float64 `toml:"emergency_exit_fraction"`
	MaxStakeMultiple      float64 `toml:"max_stake_multiple"`
	MaxLossPerTrade       float64 `toml:"max_loss_per_trade"`
}

type SignalConfig struct {
	RSIPeriod   int     `toml:"rsi_period"`
	Oversold    float64 `toml:"oversold"`
	Overbought  float64 `toml:"overbought"`
	EMAFast     int     `toml:"ema_fast"`
	EMASlow     int     `toml:"ema_slow"`
	CandleCount int     `toml:"candle_count"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

func (t TradingConfig) MonitorInterval() time.Duration {
	return time.Duration(t.MonitorIntervalSeconds) * time.Second
}

func (t TradingConfig) MaxDuration() time.Duration {
	return time.Duration(t.MaxDurationSeconds) * time.Second
}

func (c CancellationConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

func (c CancellationConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

func (r RiskConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}
