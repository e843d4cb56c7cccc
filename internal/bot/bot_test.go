package bot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/execution"
	"github.com/you/tri-bot/internal/tradelog"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

type fakeExchange struct {
	balances map[string]float64
	balErr   error
	submits  []string
}

func (f *fakeExchange) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeExchange) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	return nil, nil
}

func (f *fakeExchange) OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error) {
	return types.OrderBook{}, nil
}

func (f *fakeExchange) TickerQuoteVolume(ctx context.Context, symbol string) (float64, error) {
	return 1e9, nil
}

func (f *fakeExchange) Balances(ctx context.Context) (map[string]float64, error) {
	return f.balances, f.balErr
}

func (f *fakeExchange) SubmitMarketOrder(ctx context.Context, symbol string, side types.Side, amount float64) (types.OrderResult, error) {
	f.submits = append(f.submits, symbol)
	return types.OrderResult{OrderID: "ord", Symbol: symbol, Side: side, Amount: amount}, nil
}

func testOpportunity() types.Opportunity {
	tri := types.Triangle{
		Base: "USDT", Mid1: "BTC", Mid2: "ETH",
		Legs: [3]types.Leg{
			{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Side: types.SideBuy},
			{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", Side: types.SideBuy},
			{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Side: types.SideSell},
		},
	}
	return types.Opportunity{
		Triangle:      tri,
		RouteID:       tri.RouteID(),
		RouteHash:     tri.RouteHash(),
		NetYield:      1.005,
		ProfitPercent: 0.5,
		Steps: [3]types.TradeStep{
			{Symbol: "BTCUSDT", Side: types.SideBuy, Amount: 10},
			{Symbol: "ETHBTC", Side: types.SideBuy, Amount: 0.0002},
			{Symbol: "ETHUSDT", Side: types.SideSell, Amount: 0.004},
		},
		LegPrices:     [3]float64{50000, 0.05, 2510},
		MinLiquidity:  150,
		ExpectedQuote: 0.05,
		Ts:            time.Now(),
	}
}

func testMarkets() map[string]types.Market {
	return map[string]types.Market{
		"BTCUSDT": {Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Active: true, MinOrderQty: 0.00001, QtyStep: 0.00001},
		"ETHBTC":  {Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", Active: true, MinOrderQty: 0.0001, QtyStep: 0.0001},
		"ETHUSDT": {Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Active: true, MinOrderQty: 0.0001, QtyStep: 0.0001},
	}
}

func newTestBot(t *testing.T, cfg *config.Config, ex Exchange) (*Bot, string) {
	t.Helper()
	journalPath := filepath.Join(t.TempDir(), "trades.csv")
	cfg.JournalFile = journalPath
	cfg.Redis.Addr = ""
	log := zap.NewNop()
	journal := tradelog.New(cfg, log)
	t.Cleanup(func() { journal.Close() })
	return New(cfg, log, ex, nil, journal), journalPath
}

func readJournal(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestTrade_SimulatedPath(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Testnet = true

	ex := &fakeExchange{}
	b, journalPath := newTestBot(t, cfg, ex)
	exec := execution.NewExecutor(cfg, ex, testMarkets(), b.log)

	b.trade(context.Background(), exec, testOpportunity())

	assert.Empty(t, ex.submits, "testnet run must not touch the exchange")
	out := readJournal(t, journalPath)
	assert.Contains(t, out, "simulated")
	assert.Contains(t, out, "USDT->BTC->ETH->USDT")
}

func TestTrade_LiveInsufficientBalance(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Testnet = false
	cfg.Trade.TargetVolumeUSDT = 100

	ex := &fakeExchange{balances: map[string]float64{"USDT": 1}}
	b, journalPath := newTestBot(t, cfg, ex)
	exec := execution.NewExecutor(cfg, ex, testMarkets(), b.log)

	b.trade(context.Background(), exec, testOpportunity())

	assert.Empty(t, ex.submits, "no legs submitted without funds")
	out := readJournal(t, journalPath)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "insufficient_balance")
}

func TestTrade_LiveUnknownMarket(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Testnet = false
	cfg.Trade.TargetVolumeUSDT = 100

	ex := &fakeExchange{balances: map[string]float64{"USDT": 1000}}
	b, journalPath := newTestBot(t, cfg, ex)
	// empty market snapshot: the first leg has nothing to validate against
	exec := execution.NewExecutor(cfg, ex, map[string]types.Market{}, b.log)

	b.trade(context.Background(), exec, testOpportunity())

	assert.Empty(t, ex.submits)
	assert.Contains(t, readJournal(t, journalPath), "failed")
}

func TestTrade_LiveExecuted(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Testnet = false
	cfg.Trade.TargetVolumeUSDT = 100
	cfg.Limits.LegPauseMs = 1

	ex := &fakeExchange{balances: map[string]float64{"USDT": 1000}}
	b, journalPath := newTestBot(t, cfg, ex)
	exec := execution.NewExecutor(cfg, ex, testMarkets(), b.log)

	b.trade(context.Background(), exec, testOpportunity())

	assert.Equal(t, []string{"BTCUSDT", "ETHBTC", "ETHUSDT"}, ex.submits)
	assert.Contains(t, readJournal(t, journalPath), "executed")
}

func TestOpportunityMessage(t *testing.T) {
	opp := testOpportunity()

	msg := opportunityMessage("Bybit Testnet", &opp, true)
	assert.Contains(t, msg, "Bybit Testnet")
	assert.Contains(t, msg, "USDT->BTC->ETH->USDT")
	assert.Contains(t, msg, "1. BTCUSDT BUY @ 50000.000000")
	assert.Contains(t, msg, "3. ETHUSDT SELL @ 2510.000000")
	assert.Contains(t, msg, "Ready:</b> YES")

	msg = opportunityMessage("Bybit Testnet", &opp, false)
	assert.Contains(t, msg, "Ready:</b> NO")
}

func TestTradeDoneMessage(t *testing.T) {
	opp := testOpportunity()
	msg := tradeDoneMessage("Bybit Mainnet", opp, types.StatusExecuted, actualProfitLine(0.42))
	assert.Contains(t, msg, "Trade executed")
	assert.Contains(t, msg, opp.RouteID)
	assert.Contains(t, msg, "Actual profit: 0.42 USDT")
}

func TestBalanceMessage(t *testing.T) {
	balances := map[string]float64{"USDT": 123.456789, "BTC": 0.5, "DUST": 0.00001}

	msg := balanceMessage("Bybit Testnet", balances, true)
	assert.Contains(t, msg, "BYBIT TESTNET BALANCE")
	assert.Contains(t, msg, "USDT: 123.456789")
	assert.Contains(t, msg, "BTC: 0.500000")
	assert.NotContains(t, msg, "DUST")
	assert.Contains(t, msg, "Faucet")

	msg = balanceMessage("Bybit Mainnet", balances, false)
	assert.NotContains(t, msg, "Faucet")
}

func TestInsufficientFundsMessage(t *testing.T) {
	msg := insufficientFundsMessage("USDT", 3.5, 100)
	assert.Contains(t, msg, "USDT balance: 3.50 < 100.00")
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleepCtx(ctx, 5*time.Second)
	assert.Less(t, time.Since(start), time.Second, "canceled context returns promptly")

	sleepCtx(context.Background(), 0) // no-op
}
