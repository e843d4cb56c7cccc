package marketdata

import (
	"context"
	"time"

	imetrics "github.com/you/tri-bot/internal/metrics"
	"github.com/you/tri-bot/internal/types"
)

// BookSource hands out order-book snapshots. Each evaluation re-fetches a
// snapshot; there is no incremental book maintenance.
type BookSource interface {
	OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error)
}

// Estimate walks depth levels (best price first) until the accumulated
// notional covers targetNotional and returns the depth-weighted average fill
// price. The crossing level is consumed fractionally. If the whole book is
// thinner than the target, Filled is false and AvailableLiquidity carries the
// full summed notional — callers must treat that as "cannot fill", not as a
// price of zero.
func Estimate(levels []types.PriceLevel, targetNotional float64) types.ExecutionEstimate {
	var totalBase, totalQuote float64
	for _, lv := range levels {
		if lv.Price <= 0 || lv.Volume <= 0 {
			continue
		}
		quote := lv.Price * lv.Volume
		if totalQuote+quote >= targetNotional {
			remaining := targetNotional - totalQuote
			totalBase += remaining / lv.Price
			totalQuote += remaining
			break
		}
		totalBase += lv.Volume
		totalQuote += quote
	}
	if totalQuote < targetNotional || totalBase <= 0 {
		return types.ExecutionEstimate{AvailableLiquidity: totalQuote}
	}
	return types.ExecutionEstimate{
		AvgPrice:           totalQuote / totalBase,
		Filled:             true,
		FilledNotional:     totalQuote,
		AvailableLiquidity: totalQuote,
	}
}

// ExecutionPrice fetches a fresh snapshot for the leg's market and estimates
// the achievable price for targetNotional. Buy legs walk the asks, sell legs
// the bids.
func ExecutionPrice(ctx context.Context, books BookSource, leg types.Leg, targetNotional float64, depth int) (types.ExecutionEstimate, error) {
	start := time.Now()
	ob, err := books.OrderBook(ctx, leg.Symbol, depth)
	if err != nil {
		return types.ExecutionEstimate{}, err
	}
	imetrics.BookFetchLatency.Observe(time.Since(start).Seconds())

	if leg.Side == types.SideBuy {
		return Estimate(ob.Asks, targetNotional), nil
	}
	return Estimate(ob.Bids, targetNotional), nil
}
