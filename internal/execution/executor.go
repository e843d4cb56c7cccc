package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

// OrderSubmitter places a single market order on the exchange.
type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, symbol string, side types.Side, amount float64) (types.OrderResult, error)
}

// Executor sequences the three legs of an admitted triangle.
//
// The contract is best-effort sequential execution with no atomicity: legs are
// submitted strictly in order, a failed leg stops the sequence immediately and
// legs already executed are NOT unwound. A partial failure leaves the account
// holding an intermediate currency that needs manual reconciliation.
type Executor struct {
	cfg     *config.Config
	ex      OrderSubmitter
	markets map[string]types.Market
	log     *zap.Logger
}

func NewExecutor(cfg *config.Config, ex OrderSubmitter, markets map[string]types.Market, log *zap.Logger) *Executor {
	return &Executor{cfg: cfg, ex: ex, markets: markets, log: log}
}

// Execute runs the legs in order. In testnet mode nothing touches the order
// API; a synthesized result tagged simulated is returned instead, identical in
// shape to a live one.
func (e *Executor) Execute(ctx context.Context, routeID string, steps []types.TradeStep) (types.ExecutionResult, error) {
	if e.cfg.Testnet {
		res := types.ExecutionResult{Simulated: true}
		for i, s := range steps {
			res.Orders = append(res.Orders, types.OrderResult{
				OrderID:   fmt.Sprintf("sim-%d", i+1),
				Symbol:    s.Symbol,
				Side:      s.Side,
				Amount:    s.Amount,
				Simulated: true,
			})
		}
		e.log.Info("trade simulated", zap.String("route", routeID), zap.Int("legs", len(steps)))
		return res, nil
	}

	var res types.ExecutionResult
	for i, s := range steps {
		m, ok := e.markets[s.Symbol]
		if !ok {
			return res, fmt.Errorf("unknown market %s", s.Symbol)
		}
		if s.Amount < m.MinOrderQty {
			return res, fmt.Errorf("amount below min: %g < %g for %s", s.Amount, m.MinOrderQty, s.Symbol)
		}
		amount := roundToStep(s.Amount, m.QtyStep)

		e.log.Debug("submitting market order",
			zap.String("route", routeID),
			zap.String("symbol", s.Symbol),
			zap.String("side", string(s.Side)),
			zap.Float64("amount", amount),
		)
		order, err := e.ex.SubmitMarketOrder(ctx, s.Symbol, s.Side, amount)
		if err != nil {
			// executed legs stay in place; there is no compensating transaction
			return res, fmt.Errorf("leg %d (%s %s): %w", i+1, s.Side, s.Symbol, err)
		}
		res.Orders = append(res.Orders, order)
		e.log.Info("order executed", zap.String("order_id", order.OrderID), zap.String("symbol", s.Symbol))

		// each leg's output funds the next one and balances are not re-queried
		// in between, so give the exchange a moment to settle
		if i < len(steps)-1 {
			time.Sleep(e.cfg.LegPause())
		}
	}
	return res, nil
}

func roundToStep(amount, step float64) float64 {
	if step <= 0 {
		return amount
	}
	return math.Floor(amount/step) * step
}
