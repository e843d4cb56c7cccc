package types

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Market is one spot instrument as loaded from the exchange. Read-only after
// load; discovery works against a single immutable snapshot of these.
type Market struct {
	Symbol      string // exchange symbol, e.g. "BTCUSDT"
	Base        string
	Quote       string
	Active      bool
	MinOrderQty float64
	QtyStep     float64
}

type PriceLevel struct {
	Price  float64
	Volume float64
}

type OrderBook struct {
	Asks []PriceLevel // ascending
	Bids []PriceLevel // descending
}

// Leg is one resolved edge of a triangle. Side together with the market
// orientation is fixed at discovery time: a buy leg acquires the market's base
// currency against the asks, a sell leg disposes of it against the bids.
type Leg struct {
	Symbol string
	Base   string
	Quote  string
	Side   Side
}

// Triangle is a base->mid1->mid2->base cycle. Immutable once discovered; if
// the market snapshot is refreshed, triangles are rediscovered, not patched.
type Triangle struct {
	Base string
	Mid1 string
	Mid2 string
	Legs [3]Leg
}

// RouteID is the human-readable route label, e.g. "USDT->BTC->ETH->USDT".
func (t Triangle) RouteID() string {
	return t.Base + "->" + t.Mid1 + "->" + t.Mid2 + "->" + t.Base
}

// RouteHash is the stable digest used as the cooldown-cache key.
func (t Triangle) RouteHash() string {
	sum := md5.Sum([]byte(t.RouteID()))
	return hex.EncodeToString(sum[:])
}

// ExecutionEstimate is the result of walking order-book depth for a target
// notional. Filled=false means the book could not cover the notional; that is
// a distinct outcome from a zero-profit estimate and callers must abandon the
// triangle for the cycle.
type ExecutionEstimate struct {
	AvgPrice           float64
	Filled             bool
	FilledNotional     float64
	AvailableLiquidity float64
}

// TradeStep is one leg ready for submission.
type TradeStep struct {
	Symbol string
	Side   Side
	Amount float64
}

// Opportunity is a fully evaluated triangle inside the profit band.
type Opportunity struct {
	Triangle      Triangle
	RouteID       string
	RouteHash     string
	NetYield      float64
	ProfitPercent float64
	Steps         [3]TradeStep
	LegPrices     [3]float64
	MinLiquidity  float64 // smallest available notional across the three legs
	ExpectedQuote float64 // expected profit in base-currency units
	Ts            time.Time
}

type OrderResult struct {
	OrderID   string
	Symbol    string
	Side      Side
	Amount    float64
	Simulated bool
}

// ExecutionResult is what the orchestrator returns. Orders holds every leg
// that was actually submitted; on a mid-sequence failure it is shorter than
// three and those legs are NOT unwound.
type ExecutionResult struct {
	Simulated bool
	Orders    []OrderResult
}

type TradeStatus string

const (
	StatusDetected  TradeStatus = "detected"
	StatusSimulated TradeStatus = "simulated"
	StatusExecuted  TradeStatus = "executed"
	StatusFailed    TradeStatus = "failed"
)
