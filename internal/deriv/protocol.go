package deriv

import (
	"time"

	"github.com/tidwall/gjson"
)

// Request types form a closed set: every message the session can send is
// one of these structs, so a malformed request is a compile error rather
// than a missing map key. Responses are matched to requests purely by
// arrival order; the Deriv protocol carries no correlation id, which is
// why the session allows a single outstanding request at a time.

type authorizeRequest struct {
	Authorize string `json:"authorize"`
}

type proposalRequest struct {
	Proposal     int     `json:"proposal"`
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Multiplier   int     `json:"multiplier"`
	Symbol       string  `json:"symbol"`
	Cancellation string  `json:"cancellation,omitempty"`
}

type buyRequest struct {
	Buy   string  `json:"buy"`
	Price float64 `json:"price"`
}

type cancelRequest struct {
	Cancel int64 `json:"cancel"`
}

type limitOrderRequest struct {
	LimitOrder limitOrderAdd `json:"limit_order"`
	ContractID int64         `json:"contract_id"`
}

type limitOrderAdd struct {
	Add limitOrderLevels `json:"add"`
}

type limitOrderLevels struct {
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

type statusRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	ContractID           int64 `json:"contract_id"`
}

type sellRequest struct {
	Sell  int64   `json:"sell"`
	Price float64 `json:"price"`
}

type ticksHistoryRequest struct {
	TicksHistory string `json:"ticks_history"`
	Style        string `json:"style"`
	Granularity  int    `json:"granularity"`
	Count        int    `json:"count"`
	End          string `json:"end"`
}

type balanceRequest struct {
	Balance int `json:"balance"`
}

// Proposal is a price quote for a multiplier contract. It is valid for a
// single buy attempt; a rejected buy discards it.
type Proposal struct {
	ID              string
	AskPrice        float64
	Payout          float64
	Spot            float64
	CancellationFee float64
}

// BuyConfirmation is the broker's acknowledgement of a committed position.
type BuyConfirmation struct {
	ContractID      int64
	BuyPrice        float64
	Longcode        string
	CancellationFee float64
}

// CancelReceipt reports the balance movement caused by cancelling a
// contract inside its cancellation window.
type CancelReceipt struct {
	BalanceBefore float64
	BalanceAfter  float64
}

func (r CancelReceipt) Refund() float64 {
	return r.BalanceAfter - r.BalanceBefore
}

// ContractStatus is one poll of an open (or just-closed) contract.
type ContractStatus struct {
	Status            string
	IsSold            bool
	Profit            float64
	CurrentSpot       float64
	EntrySpot         float64
	BidPrice          float64
	BuyPrice          float64
	CancellationPrice float64
}

// Outcome normalizes the broker status. Some terminal responses report an
// empty or "unknown" status, so the result is derived from the profit sign.
func (s ContractStatus) Outcome() string {
	switch s.Status {
	case "won", "lost", "sold", "cancelled":
		return s.Status
	}
	if !s.IsSold {
		return "open"
	}
	switch {
	case s.Profit > 0:
		return "won"
	case s.Profit < 0:
		return "lost"
	default:
		return "sold"
	}
}

// Terminal reports whether the contract has reached a final state.
func (s ContractStatus) Terminal() bool {
	return s.IsSold || s.Status == "won" || s.Status == "lost" || s.Status == "sold" || s.Status == "cancelled"
}

// SellReceipt is the broker's acknowledgement of a market close.
type SellReceipt struct {
	SoldFor float64
}

// Candle is one OHLC bar from ticks_history.
type Candle struct {
	Epoch time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

func parseProposal(node gjson.Result) Proposal {
	p := Proposal{
		ID:       node.Get("id").String(),
		AskPrice: node.Get("ask_price").Float(),
		Payout:   node.Get("payout").Float(),
		Spot:     node.Get("spot").Float(),
	}
	// The cancellation fee shows up in different places depending on API
	// version; try them in order of specificity.
	if fee := node.Get("cancellation.ask_price").Float(); fee > 0 {
		p.CancellationFee = fee
	} else if fee := node.Get("limit_order.cancellation.cost").Float(); fee > 0 {
		p.CancellationFee = fee
	} else if fee := node.Get("commission").Float(); fee > 0 {
		p.CancellationFee = fee
	}
	return p
}

func parseBuy(node gjson.Result) BuyConfirmation {
	return BuyConfirmation{
		ContractID:      node.Get("contract_id").Int(),
		BuyPrice:        node.Get("buy_price").Float(),
		Longcode:        node.Get("longcode").String(),
		CancellationFee: node.Get("cancellation.ask_price").Float(),
	}
}

func parseStatus(node gjson.Result) ContractStatus {
	return ContractStatus{
		Status:            node.Get("status").String(),
		IsSold:            node.Get("is_sold").Int() == 1,
		Profit:            node.Get("profit").Float(),
		CurrentSpot:       node.Get("current_spot").Float(),
		EntrySpot:         node.Get("entry_spot").Float(),
		BidPrice:          node.Get("bid_price").Float(),
		BuyPrice:          node.Get("buy_price").Float(),
		CancellationPrice: node.Get("cancellation.ask_price").Float(),
	}
}

func parseCandles(node gjson.Result) []Candle {
	arr := node.Array()
	out := make([]Candle, 0, len(arr))
	for _, c := range arr {
		out = append(out, Candle{
			Epoch: time.Unix(c.Get("epoch").Int(), 0),
			Open:  c.Get("open").Float(),
			High:  c.Get("high").Float(),
			Low:   c.Get("low").Float(),
			Close: c.Get("close").Float(),
		})
	}
	return out
}
