package detector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

func newTestConfig() *config.Config {
	return &config.Config{
		Testnet: true,
		Trade: config.TradeCfg{
			TargetVolumeUSDT: 10,
			MinProfit:        0.01,
			MaxProfit:        5.0,
			FeeRate:          0.001,
		},
		Limits: config.LimitsCfg{OrderBookDepth: 20},
	}
}

type fakeBooks struct {
	books map[string]types.OrderBook
	err   error
}

func (f *fakeBooks) OrderBook(_ context.Context, symbol string, _ int) (types.OrderBook, error) {
	if f.err != nil {
		return types.OrderBook{}, f.err
	}
	ob, ok := f.books[symbol]
	if !ok {
		return types.OrderBook{}, fmt.Errorf("no book for %s", symbol)
	}
	return ob, nil
}

func deep(price float64) types.OrderBook {
	lv := []types.PriceLevel{{Price: price, Volume: 1e9}}
	return types.OrderBook{Asks: lv, Bids: lv}
}

func testTriangle() types.Triangle {
	return types.Triangle{
		Base: "USDT", Mid1: "AAA", Mid2: "BBB",
		Legs: [3]types.Leg{
			{Symbol: "AAAUSDT", Base: "AAA", Quote: "USDT", Side: types.SideBuy},
			{Symbol: "BBBAAA", Base: "BBB", Quote: "AAA", Side: types.SideBuy},
			{Symbol: "BBBUSDT", Base: "BBB", Quote: "USDT", Side: types.SideSell},
		},
	}
}

func TestCheckTriangle_NetYield(t *testing.T) {
	cfg := newTestConfig()
	// buy factors 1/price = 1.01, sell factor = price = 0.995
	books := &fakeBooks{books: map[string]types.OrderBook{
		"AAAUSDT": deep(1.0 / 1.01),
		"BBBAAA":  deep(1.0 / 1.01),
		"BBBUSDT": deep(0.995),
	}}

	opp, err := CheckTriangle(context.Background(), cfg, books, testTriangle(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, opp)

	fee := 1 - cfg.Trade.FeeRate
	wantYield := 1.01 * fee * 1.01 * fee * 0.995 * fee
	assert.InDelta(t, wantYield, opp.NetYield, 1e-9)
	assert.InDelta(t, (wantYield-1)*100, opp.ProfitPercent, 1e-9)
}

func TestCheckTriangle_StepAmountsChain(t *testing.T) {
	cfg := newTestConfig()
	books := &fakeBooks{books: map[string]types.OrderBook{
		"AAAUSDT": deep(1.0 / 1.01),
		"BBBAAA":  deep(1.0 / 1.01),
		"BBBUSDT": deep(0.995),
	}}

	opp, err := CheckTriangle(context.Background(), cfg, books, testTriangle(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, opp)

	fee := 1 - cfg.Trade.FeeRate
	assert.Equal(t, 10.0, opp.Steps[0].Amount)
	assert.InDelta(t, 10.0*1.01*fee, opp.Steps[1].Amount, 1e-9)
	assert.InDelta(t, 10.0*1.01*fee*1.01*fee, opp.Steps[2].Amount, 1e-9)

	// each leg consumed exactly its target notional against a deep book
	assert.InDelta(t, 10.0, opp.MinLiquidity, 1e-9)
}

func TestCheckTriangle_InsufficientDepthAbandons(t *testing.T) {
	cfg := newTestConfig()
	books := &fakeBooks{books: map[string]types.OrderBook{
		"AAAUSDT": deep(1.0 / 1.01),
		// second leg's book cannot cover the notional
		"BBBAAA":  {Asks: []types.PriceLevel{{Price: 1, Volume: 0.001}}},
		"BBBUSDT": deep(0.995),
	}}

	opp, err := CheckTriangle(context.Background(), cfg, books, testTriangle(), zap.NewNop())
	assert.NoError(t, err)
	assert.Nil(t, opp, "unfillable leg must abandon the triangle, not evaluate partially")
}

func TestCheckTriangle_BookFaultPropagates(t *testing.T) {
	cfg := newTestConfig()
	books := &fakeBooks{err: errors.New("orderbook unavailable")}

	opp, err := CheckTriangle(context.Background(), cfg, books, testTriangle(), zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, opp)
}

func TestInBand(t *testing.T) {
	cfg := newTestConfig()

	assert.False(t, InBand(cfg, -0.5), "negative spread is out of band")
	assert.False(t, InBand(cfg, 0.001), "below the floor")
	assert.True(t, InBand(cfg, 0.5))
	assert.True(t, InBand(cfg, cfg.Trade.MaxProfit))
	assert.False(t, InBand(cfg, 7.0), "implausible spread above the ceiling")
}
