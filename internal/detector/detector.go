package detector

import (
	"context"
	"math"
	"time"

	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/marketdata"
	imetrics "github.com/you/tri-bot/internal/metrics"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

// CheckTriangle estimates all three legs of a triangle against fresh order
// books and computes the net multiplicative yield across the fee-bearing legs.
// It returns nil (no error) when any leg's book cannot cover its notional —
// the triangle is simply abandoned for this cycle. A non-nil error is a
// market-data fault (order book unavailable).
//
// Each leg's output amount, after the taker fee, becomes the next leg's
// target notional; fees compound multiplicatively, not additively.
func CheckTriangle(ctx context.Context, cfg *config.Config, books marketdata.BookSource, tri types.Triangle, log *zap.Logger) (*types.Opportunity, error) {
	imetrics.TrianglesScanned.Inc()

	fee := cfg.Trade.FeeRate
	amount := cfg.Trade.TargetVolumeUSDT

	var (
		prices  [3]float64
		amounts [3]float64
		minLiq  = math.MaxFloat64
	)

	for i, leg := range tri.Legs {
		est, err := marketdata.ExecutionPrice(ctx, books, leg, amount, cfg.Limits.OrderBookDepth)
		if err != nil {
			return nil, err
		}
		if !est.Filled {
			log.Debug("insufficient depth, triangle abandoned",
				zap.String("route", tri.RouteID()),
				zap.String("symbol", leg.Symbol),
				zap.Float64("wanted", amount),
				zap.Float64("available", est.AvailableLiquidity),
			)
			return nil, nil
		}
		prices[i] = est.AvgPrice
		amounts[i] = amount
		if est.AvailableLiquidity < minLiq {
			minLiq = est.AvailableLiquidity
		}

		if leg.Side == types.SideBuy {
			amount = amount / est.AvgPrice
		} else {
			amount = amount * est.AvgPrice
		}
		amount *= 1 - fee
	}

	netYield := 1.0
	for i, leg := range tri.Legs {
		factor := prices[i]
		if leg.Side == types.SideBuy {
			factor = 1 / prices[i]
		}
		netYield *= factor * (1 - fee)
	}
	profitPercent := (netYield - 1) * 100

	log.Debug("triangle evaluated",
		zap.String("route", tri.RouteID()),
		zap.Float64("profit_percent", profitPercent),
	)

	opp := &types.Opportunity{
		Triangle:      tri,
		RouteID:       tri.RouteID(),
		RouteHash:     tri.RouteHash(),
		NetYield:      netYield,
		ProfitPercent: profitPercent,
		LegPrices:     prices,
		MinLiquidity:  minLiq,
		ExpectedQuote: (netYield - 1) * cfg.Trade.TargetVolumeUSDT,
		Ts:            time.Now(),
	}
	for i, leg := range tri.Legs {
		opp.Steps[i] = types.TradeStep{Symbol: leg.Symbol, Side: leg.Side, Amount: amounts[i]}
	}
	return opp, nil
}

// InBand reports whether the spread sits inside the configured profit band.
// Spreads below the floor are noise; spreads above the ceiling usually mean a
// stale or broken book and are discarded from execution as well.
func InBand(cfg *config.Config, profitPercent float64) bool {
	return profitPercent >= cfg.Trade.MinProfit && profitPercent <= cfg.Trade.MaxProfit
}
