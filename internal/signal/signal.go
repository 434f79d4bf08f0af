package signal

import (
	"multibot/internal/deriv"
	"multibot/internal/trade"
)

// Signal is a directional trade suggestion. The execution core treats it
// as opaque: it only looks at Tradable and Direction.
type Signal struct {
	Direction  trade.Direction
	Tradable   bool
	Confidence float64
	Reason     string
}

// Generator produces a signal from two candle streams (1-minute trigger
// series and 5-minute trend series).
type Generator interface {
	Evaluate(m1, m5 []deriv.Candle) Signal
}

func hold(reason string) Signal {
	return Signal{Tradable: false, Reason: reason}
}
