package domain

import (
	"fmt"
	"math"
	"time"
)

// AttemptState is the lifecycle of one order attempt.
type AttemptState string

const (
	AttemptBuilt           AttemptState = "BUILT"
	AttemptSubmitted       AttemptState = "SUBMITTED"
	AttemptPolling         AttemptState = "POLLING"
	AttemptFilled          AttemptState = "FILLED"
	AttemptPartiallyFilled AttemptState = "PARTIALLY_FILLED"
	AttemptCancelled       AttemptState = "CANCELLED"
	AttemptTimedOut        AttemptState = "TIMED_OUT"
	AttemptRejected        AttemptState = "REJECTED"
)

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptBuilt:     {AttemptSubmitted, AttemptRejected},
	AttemptSubmitted: {AttemptPolling},
	AttemptPolling: {
		AttemptFilled, AttemptPartiallyFilled, AttemptCancelled,
		AttemptTimedOut, AttemptRejected,
	},
}

// Terminal reports whether no further transition is possible.
func (s AttemptState) Terminal() bool {
	_, ok := attemptTransitions[s]
	return !ok
}

// CanTransition reports whether from -> to is a legal attempt transition.
func CanTransition(from, to AttemptState) bool {
	for _, next := range attemptTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderSide is the venue direction.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// TimeInForce for limit orders.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFGoodTillDate   TimeInForce = "GTD"
)

// OrderRequest is what the executor asks the venue to do.
type OrderRequest struct {
	MarketID    string
	PairID      string
	TokenID     string
	Outcome     Side
	Side        OrderSide
	Price       float64 // limit price, also the expected fill price
	Shares      float64
	TimeInForce TimeInForce
	Expiration  time.Time // only for GTD
	NegRisk     bool
}

// Notional is price x shares.
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Shares
}

// VenueStatus is the venue's view of an order.
type VenueStatus string

const (
	VenueOpen      VenueStatus = "OPEN"
	VenueMatched   VenueStatus = "MATCHED"
	VenueCancelled VenueStatus = "CANCELLED"
	VenueRejected  VenueStatus = "REJECTED"
)

// VenueOrderStatus is the response of a status poll.
type VenueOrderStatus struct {
	OrderID    string
	Status     VenueStatus
	FilledSize float64 // shares
	AvgPrice   float64
}

// OrderAttempt tracks one order through the attempt state machine.
type OrderAttempt struct {
	ID             string
	PairID         string
	MarketID       string
	TokenID        string
	Outcome        Side
	Side           OrderSide
	RequestedPrice float64
	RequestedSize  float64
	ExpectedPrice  float64
	State          AttemptState
	VenueOrderID   string
	FilledSize     float64
	AvgFillPrice   float64
	Slippage       float64 // (fill - expected) / expected
	PriceEstimated bool    // venue gave no fill price; AvgFillPrice is the limit
	Retries        int
	CancelAttempts int
	Reason         ReasonCode
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrderAttempt builds an attempt in the BUILT state.
func NewOrderAttempt(id string, req OrderRequest, now time.Time) *OrderAttempt {
	return &OrderAttempt{
		ID:             id,
		PairID:         req.PairID,
		MarketID:       req.MarketID,
		TokenID:        req.TokenID,
		Outcome:        req.Outcome,
		Side:           req.Side,
		RequestedPrice: req.Price,
		RequestedSize:  req.Shares,
		ExpectedPrice:  req.Price,
		State:          AttemptBuilt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Advance moves the attempt to the next state, rejecting illegal transitions.
func (a *OrderAttempt) Advance(to AttemptState, now time.Time) error {
	if !CanTransition(a.State, to) {
		return fmt.Errorf("order attempt %s: illegal transition %s -> %s", a.ID, a.State, to)
	}
	a.State = to
	a.UpdatedAt = now
	return nil
}

// RecordFill stores fill data and computes slippage against the expected price.
func (a *OrderAttempt) RecordFill(filled, avgPrice float64) {
	a.FilledSize = filled
	a.AvgFillPrice = avgPrice
	if a.ExpectedPrice > 0 && avgPrice > 0 {
		a.Slippage = (avgPrice - a.ExpectedPrice) / a.ExpectedPrice
	}
}

// HasFill reports whether any shares were filled.
func (a *OrderAttempt) HasFill() bool {
	return a.FilledSize > 0
}

// FilledNotional is the USDC paid (or received) for the filled shares.
func (a *OrderAttempt) FilledNotional() float64 {
	return a.FilledSize * a.AvgFillPrice
}

// RecordEstimatedFill books a fill whose price the venue did not report at
// the limit price, which bounds what was paid. Slippage stays unknown.
func (a *OrderAttempt) RecordEstimatedFill(filled float64) {
	a.FilledSize = filled
	a.AvgFillPrice = a.RequestedPrice
	a.Slippage = 0
	a.PriceEstimated = true
}

// SlippageExceeds compares |slippage| against a threshold.
func (a *OrderAttempt) SlippageExceeds(threshold float64) bool {
	return threshold > 0 && !a.PriceEstimated && math.Abs(a.Slippage) > threshold
}
