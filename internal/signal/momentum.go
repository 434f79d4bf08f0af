package signal

import (
	"fmt"

	"multibot/internal/config"
	"multibot/internal/deriv"
	"multibot/internal/trade"

	talib "github.com/markcheno/go-talib"
)

// Momentum is a mean-reversion generator: it trades RSI extremes on the
// 1-minute series, but only in the direction of the 5-minute EMA trend.
// An oversold dip in an uptrend suggests Up; an overbought spike in a
// downtrend suggests Down. Anything else is a hold.
type Momentum struct {
	cfg config.SignalConfig
}

func NewMomentum(cfg config.SignalConfig) *Momentum {
	return &Momentum{cfg: cfg}
}

func (m *Momentum) Evaluate(m1, m5 []deriv.Candle) Signal {
	minM1 := m.cfg.RSIPeriod + 1
	minM5 := m.cfg.EMASlow + 1
	if len(m1) < minM1 {
		return hold(fmt.Sprintf("not enough 1m candles (%d/%d)", len(m1), minM1))
	}
	if len(m5) < minM5 {
		return hold(fmt.Sprintf("not enough 5m candles (%d/%d)", len(m5), minM5))
	}

	rsi := talib.Rsi(closes(m1), m.cfg.RSIPeriod)
	lastRSI := rsi[len(rsi)-1]

	fast := talib.Ema(closes(m5), m.cfg.EMAFast)
	slow := talib.Ema(closes(m5), m.cfg.EMASlow)
	trendUp := fast[len(fast)-1] > slow[len(slow)-1]

	switch {
	case trendUp && lastRSI <= m.cfg.Oversold:
		return Signal{
			Direction:  trade.DirectionUp,
			Tradable:   true,
			Confidence: confidence(m.cfg.Oversold - lastRSI),
			Reason:     fmt.Sprintf("oversold dip (RSI %.1f) in uptrend", lastRSI),
		}
	case !trendUp && lastRSI >= m.cfg.Overbought:
		return Signal{
			Direction:  trade.DirectionDown,
			Tradable:   true,
			Confidence: confidence(lastRSI - m.cfg.Overbought),
			Reason:     fmt.Sprintf("overbought spike (RSI %.1f) in downtrend", lastRSI),
		}
	case trendUp:
		return hold(fmt.Sprintf("uptrend but RSI %.1f above oversold %.1f", lastRSI, m.cfg.Oversold))
	default:
		return hold(fmt.Sprintf("downtrend but RSI %.1f below overbought %.1f", lastRSI, m.cfg.Overbought))
	}
}

func closes(candles []deriv.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// confidence maps the RSI distance past the threshold onto (0, 1].
func confidence(depth float64) float64 {
	c := 0.5 + depth/60
	if c > 1 {
		return 1
	}
	return c
}
