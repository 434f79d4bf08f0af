package trade

import (
	"context"
	"time"

	"multibot/internal/deriv"

	"github.com/shopspring/decimal"
)

// Broker is the slice of the session API the trade layer depends on.
// *deriv.Session satisfies it.
type Broker interface {
	RequestProposal(ctx context.Context, p deriv.ProposalParams) (deriv.Proposal, error)
	Buy(ctx context.Context, proposalID string, maxPrice float64) (deriv.BuyConfirmation, error)
	Cancel(ctx context.Context, contractID int64) (deriv.CancelReceipt, error)
	ApplyLimits(ctx context.Context, contractID int64, takeProfit, stopLoss float64) error
	ContractStatus(ctx context.Context, contractID int64) (deriv.ContractStatus, error)
	Sell(ctx context.Context, contractID int64) (deriv.SellReceipt, error)
}

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// ContractType maps a direction onto the broker's multiplier contract types.
func (d Direction) ContractType() string {
	if d == DirectionDown {
		return "MULTDOWN"
	}
	return "MULTUP"
}

// Phase is a trade's position in the lifecycle state machine.
type Phase int

const (
	PhaseCancellable Phase = iota
	PhaseCommitted
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseCancellable:
		return "cancellable"
	case PhaseCommitted:
		return "committed"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

type Status string

const (
	StatusOpen      Status = "open"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
)

// Trade is the single position the system may hold. ContractID is assigned
// by the broker at buy time and never changes. Only the lifecycle machine
// mutates Phase and Status after construction.
type Trade struct {
	ContractID         int64
	Direction          Direction
	Stake              float64
	EntryPrice         float64
	Multiplier         int
	Longcode           string
	OpenedAt           time.Time
	Phase              Phase
	Status             Status
	TakeProfitAmount   float64
	StopLossAmount     float64
	CancellationFee    float64
	CancellationExpiry *time.Time
}

// Result is the terminal outcome of one trade.
type Result struct {
	Trade      *Trade
	Status     Status
	PnL        float64
	Refund     float64
	Forced     bool
	ExitReason string
	ExitKind   string
	ClosedAt   time.Time
	Final      deriv.ContractStatus
}

// slippageTolerance is the maximum accepted drift between a quoted ask
// price and the committed buy price.
const slippageTolerance = 1.10

// MaxBuyPrice returns the quote's ask price with the slippage tolerance
// applied, rounded to the instrument's 2-decimal price precision.
func MaxBuyPrice(askPrice float64) float64 {
	d := decimal.NewFromFloat(askPrice).Mul(decimal.NewFromFloat(slippageTolerance))
	f, _ := d.Round(2).Float64()
	return f
}

// LimitAmount converts a percent-of-exposure into a currency amount:
// pct/100 × stake × multiplier, rounded to 2 decimals.
func LimitAmount(pct, stake float64, multiplier int) float64 {
	d := decimal.NewFromFloat(pct).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromFloat(stake)).
		Mul(decimal.NewFromInt(int64(multiplier)))
	f, _ := d.Round(2).Float64()
	return f
}
