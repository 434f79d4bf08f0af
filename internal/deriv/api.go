package deriv

import (
	"context"
	"fmt"
)

// ProposalParams describes the quote being requested.
type ProposalParams struct {
	ContractType        string
	Symbol              string
	Currency            string
	Stake               float64
	Multiplier          int
	CancellationSeconds int // 0 disables the cancellation window
}

// RequestProposal asks the broker for a price quote. The returned proposal
// is valid for a single Buy attempt.
func (s *Session) RequestProposal(ctx context.Context, p ProposalParams) (Proposal, error) {
	req := proposalRequest{
		Proposal:     1,
		Amount:       p.Stake,
		Basis:        "stake",
		ContractType: p.ContractType,
		Currency:     p.Currency,
		Multiplier:   p.Multiplier,
		Symbol:       p.Symbol,
	}
	if p.CancellationSeconds > 0 {
		req.Cancellation = fmt.Sprintf("%d", p.CancellationSeconds)
	}
	envelope, err := s.Send(ctx, req)
	if err != nil {
		return Proposal{}, err
	}
	node := envelope.Get("proposal")
	if !node.Exists() {
		return Proposal{}, fmt.Errorf("proposal response missing payload")
	}
	return parseProposal(node), nil
}

// Buy commits to a proposal at up to maxPrice. A price-moved rejection is
// detectable with IsPriceMoved on the returned error.
func (s *Session) Buy(ctx context.Context, proposalID string, maxPrice float64) (BuyConfirmation, error) {
	envelope, err := s.Send(ctx, buyRequest{Buy: proposalID, Price: maxPrice})
	if err != nil {
		return BuyConfirmation{}, err
	}
	node := envelope.Get("buy")
	if !node.Exists() {
		return BuyConfirmation{}, fmt.Errorf("buy response missing payload")
	}
	return parseBuy(node), nil
}

// Cancel unwinds a contract inside its cancellation window.
func (s *Session) Cancel(ctx context.Context, contractID int64) (CancelReceipt, error) {
	envelope, err := s.Send(ctx, cancelRequest{Cancel: contractID})
	if err != nil {
		return CancelReceipt{}, err
	}
	node := envelope.Get("cancel")
	if !node.Exists() {
		return CancelReceipt{}, fmt.Errorf("cancel response missing payload")
	}
	return CancelReceipt{
		BalanceBefore: node.Get("balance_before").Float(),
		BalanceAfter:  node.Get("balance_after").Float(),
	}, nil
}

// ApplyLimits attaches broker-enforced take-profit and stop-loss amounts
// to an open contract.
func (s *Session) ApplyLimits(ctx context.Context, contractID int64, takeProfit, stopLoss float64) error {
	req := limitOrderRequest{
		LimitOrder: limitOrderAdd{Add: limitOrderLevels{TakeProfit: takeProfit, StopLoss: stopLoss}},
		ContractID: contractID,
	}
	_, err := s.Send(ctx, req)
	return err
}

// ContractStatus polls the current state of a contract.
func (s *Session) ContractStatus(ctx context.Context, contractID int64) (ContractStatus, error) {
	envelope, err := s.Send(ctx, statusRequest{ProposalOpenContract: 1, ContractID: contractID})
	if err != nil {
		return ContractStatus{}, err
	}
	node := envelope.Get("proposal_open_contract")
	if !node.Exists() {
		return ContractStatus{}, fmt.Errorf("status response missing payload")
	}
	return parseStatus(node), nil
}

// Sell closes a contract at the current market price.
func (s *Session) Sell(ctx context.Context, contractID int64) (SellReceipt, error) {
	envelope, err := s.Send(ctx, sellRequest{Sell: contractID, Price: 0})
	if err != nil {
		return SellReceipt{}, err
	}
	node := envelope.Get("sell")
	if !node.Exists() {
		return SellReceipt{}, fmt.Errorf("sell response missing payload")
	}
	return SellReceipt{SoldFor: node.Get("sold_for").Float()}, nil
}

// CandleHistory fetches the most recent OHLC bars for a symbol at the
// given granularity in seconds.
func (s *Session) CandleHistory(ctx context.Context, symbol string, granularity, count int) ([]Candle, error) {
	req := ticksHistoryRequest{
		TicksHistory: symbol,
		Style:        "candles",
		Granularity:  granularity,
		Count:        count,
		End:          "latest",
	}
	envelope, err := s.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	node := envelope.Get("candles")
	if !node.Exists() {
		return nil, fmt.Errorf("ticks_history response missing candles")
	}
	return parseCandles(node), nil
}

// Balance returns the account balance.
func (s *Session) Balance(ctx context.Context) (float64, error) {
	envelope, err := s.Send(ctx, balanceRequest{Balance: 1})
	if err != nil {
		return 0, err
	}
	node := envelope.Get("balance")
	if !node.Exists() {
		return 0, fmt.Errorf("balance response missing payload")
	}
	return node.Get("balance").Float(), nil
}
