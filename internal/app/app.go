package app

import (
	"context"
	"fmt"

	"multibot/internal/bot"
	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/logger"
	"multibot/internal/notify"
	"multibot/internal/risk"
	"multibot/internal/signal"
	"multibot/internal/store"
	"multibot/internal/trade"
	"multibot/internal/web"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: build the dependency graph
// from config, then run the trading loop and the status server together.
type App struct {
	cfgPath string
	cfg     *config.Config
	log     *logger.Logger

	session *deriv.Session
	trades  *store.Store
	bot     *bot.Bot
	web     *web.Server
}

// New builds the application object without starting anything.
func New(cfgPath string, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	session := deriv.NewSession(cfg.Deriv, log.With("component", "session"))
	negotiator := trade.NewNegotiator(session, cfg.Trading, cfg.Cancellation, log.With("component", "negotiator"))
	machine := trade.NewMachine(session, cfg.Trading, cfg.Cancellation, log.With("component", "lifecycle"))
	controller := risk.NewController(cfg.Risk, cfg.Trading.Stake, log.With("component", "risk"))
	generator := signal.NewMomentum(cfg.Signal)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Telegram.Enabled {
		notifier = notify.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	trades, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening trade store: %w", err)
	}

	a := &App{
		cfgPath: cfgPath,
		cfg:     cfg,
		log:     log,
		session: session,
		trades:  trades,
	}
	a.bot = bot.New(bot.Params{
		Config:   cfg,
		Market:   session,
		Opener:   negotiator,
		Monitor:  machine,
		Risk:     controller,
		Gen:      generator,
		Notifier: notifier,
		Sink:     trades,
		Log:      log.With("component", "bot"),
	})
	if cfg.Web.Enabled {
		a.web = web.NewServer(cfg.Web.Addr, controller, trades, log.With("component", "web"))
	}
	return a, nil
}

// Run connects the session and drives everything until the context ends.
func (a *App) Run(ctx context.Context) error {
	a.printStartupSummary()

	if err := a.session.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer a.session.Disconnect()
	defer a.trades.Close()

	group, ctx := errgroup.WithContext(ctx)
	if a.web != nil {
		group.Go(func() error {
			if err := a.web.Start(ctx); err != nil {
				return fmt.Errorf("web server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.watchConfig(ctx)
	})
	group.Go(func() error {
		return a.bot.Run(ctx)
	})
	return group.Wait()
}

func (a *App) printStartupSummary() {
	t := a.cfg.Trading
	a.log.Info("starting multiplier bot",
		"env", a.cfg.App.Env, "symbol", t.Symbol, "multiplier", t.Multiplier, "stake", t.Stake)
	if a.cfg.Cancellation.Enabled {
		a.log.Info("cancellation window enabled",
			"duration", a.cfg.Cancellation.Duration(),
			"post_cancel_tp_pct", a.cfg.Cancellation.PostCancelTakeProfitPct,
			"post_cancel_sl_pct", a.cfg.Cancellation.PostCancelStopLossPct)
	} else {
		a.log.Info("cancellation window disabled",
			"tp_pct", t.TakeProfitPct, "sl_pct", t.StopLossPct)
	}
	a.log.Info("risk limits",
		"max_trades_per_day", a.cfg.Risk.MaxTradesPerDay,
		"max_daily_loss", a.cfg.Risk.MaxDailyLoss,
		"cooldown", a.cfg.Risk.Cooldown(),
		"max_consecutive_losses", a.cfg.Risk.MaxConsecutiveLosses)
}
