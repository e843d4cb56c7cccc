package bot

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/detector"
	"github.com/you/tri-bot/internal/discovery"
	"github.com/you/tri-bot/internal/execution"
	"github.com/you/tri-bot/internal/gate"
	imetrics "github.com/you/tri-bot/internal/metrics"
	"github.com/you/tri-bot/internal/notify"
	"github.com/you/tri-bot/internal/tradelog"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Exchange is the connectivity collaborator the core depends on.
type Exchange interface {
	ServerTime(ctx context.Context) (time.Time, error)
	LoadMarkets(ctx context.Context) (map[string]types.Market, error)
	OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error)
	TickerQuoteVolume(ctx context.Context, symbol string) (float64, error)
	Balances(ctx context.Context) (map[string]float64, error)
	SubmitMarketOrder(ctx context.Context, symbol string, side types.Side, amount float64) (types.OrderResult, error)
}

// Bot manages the application's lifecycle: startup checks, triangle
// discovery, the periodic scan loop and the single trading goroutine.
type Bot struct {
	cfg       *config.Config
	log       *zap.Logger
	ex        Exchange
	notifier  *notify.Telegram
	journal   *tradelog.Journal
	gate      *gate.Gate
	discovery *discovery.Service
}

func New(cfg *config.Config, log *zap.Logger, ex Exchange, notifier *notify.Telegram, journal *tradelog.Journal) *Bot {
	return &Bot{
		cfg:       cfg,
		log:       log,
		ex:        ex,
		notifier:  notifier,
		journal:   journal,
		gate:      gate.New(cfg, ex, log),
		discovery: discovery.NewService(cfg, log),
	}
}

// Run blocks until the context is canceled or a fatal startup fault occurs.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// graceful shutdown: the scan loop stops, an in-flight execution finishes
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			b.log.Warn("received signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := b.ex.ServerTime(ctx); err != nil {
		b.notifier.Notify(ctx, "❌ <b>Connection error to "+b.cfg.NetworkName()+"</b>\n"+err.Error())
		return err
	}
	b.notifier.Notify(ctx, "🤖 <b>Bot started ("+b.cfg.NetworkName()+")</b>")

	markets, err := b.ex.LoadMarkets(ctx)
	if err != nil {
		return err
	}
	active := 0
	for _, m := range markets {
		if m.Active {
			active++
		}
	}
	b.log.Info("markets loaded", zap.Int("total", len(markets)), zap.Int("active", active))
	if active == 0 {
		b.notifier.Notify(ctx, "⚠️ <b>No trading symbols found!</b>")
		return errNoMarkets
	}

	triangles := b.discovery.Discover(markets, b.cfg.Trade.BaseCoins)
	if len(triangles) == 0 {
		b.notifier.Notify(ctx, "⚠️ <b>No arbitrage triangles found!</b>")
	}

	exec := execution.NewExecutor(b.cfg, b.ex, markets, b.log)

	// a single trader goroutine consumes admitted opportunities, so live
	// executions never interleave on a shared base-currency balance
	tradeCh := make(chan types.Opportunity, 16)
	var traderWG sync.WaitGroup
	traderWG.Add(1)
	go func() {
		defer traderWG.Done()
		// shutdown must not cut an execution sequence mid-leg
		execCtx := context.WithoutCancel(ctx)
		for opp := range tradeCh {
			b.trade(execCtx, exec, opp)
		}
	}()

	b.log.Info("scan loop starting",
		zap.Int("triangles", len(triangles)),
		zap.Duration("interval", b.cfg.ScanInterval()),
		zap.Bool("testnet", b.cfg.Testnet),
	)

	lastBalanceReport := time.Now()
	for ctx.Err() == nil {
		start := time.Now()

		if err := b.scanCycle(ctx, triangles, tradeCh); err != nil && ctx.Err() == nil {
			// the loop never dies on a single cycle's error
			b.log.Error("scan cycle error", zap.Error(err))
			sleepCtx(ctx, 30*time.Second)
			continue
		}

		if time.Since(lastBalanceReport) > time.Hour {
			b.sendBalanceReport(ctx)
			lastBalanceReport = time.Now()
		}

		elapsed := time.Since(start)
		imetrics.ScanCycle.Observe(elapsed.Seconds())
		b.log.Debug("scan cycle completed", zap.Duration("took", elapsed))

		pause := b.cfg.ScanInterval() - elapsed
		if pause < time.Second {
			pause = time.Second
		}
		sleepCtx(ctx, pause)
	}

	close(tradeCh)
	traderWG.Wait()
	b.log.Info("bot finished")
	return nil
}

// scanCycle evaluates every triangle with bounded fan-out. Evaluation is
// read-only against market data; the gate serializes its own state.
func (b *Bot) scanCycle(ctx context.Context, triangles []types.Triangle, tradeCh chan<- types.Opportunity) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Limits.MaxConcurrent)

	for _, tri := range triangles {
		tri := tri
		g.Go(func() error {
			b.checkOne(gctx, tri, tradeCh)
			return nil
		})
		// pace the order-book polling
		sleepCtx(ctx, b.cfg.TriangleDelay())
		if ctx.Err() != nil {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// checkOne runs one triangle through detection, reporting and the trade gate.
func (b *Bot) checkOne(ctx context.Context, tri types.Triangle, tradeCh chan<- types.Opportunity) {
	opp, err := detector.CheckTriangle(ctx, b.cfg, b.ex, tri, b.log)
	if err != nil {
		// market-data fault: abandon the triangle for this cycle, no retry
		b.log.Debug("triangle check failed", zap.String("route", tri.RouteID()), zap.Error(err))
		return
	}
	if opp == nil || !detector.InBand(b.cfg, opp.ProfitPercent) {
		return
	}

	decision := b.gate.Admit(ctx, *opp)

	b.notifier.Notify(ctx, opportunityMessage(b.cfg.NetworkName(), opp, decision.Admitted))
	b.journal.Append(ctx, tradelog.Record{
		Ts:            opp.Ts,
		Network:       b.cfg.NetworkName(),
		Route:         opp.RouteID,
		ProfitPercent: opp.ProfitPercent,
		VolumeUSDT:    opp.MinLiquidity,
		Status:        types.StatusDetected,
	})
	imetrics.Opportunities.WithLabelValues(string(types.StatusDetected)).Inc()

	if !decision.Admitted {
		b.log.Info("trade gate denied",
			zap.String("route", opp.RouteID),
			zap.String("reason", decision.Reason),
			zap.String("detail", decision.Detail),
		)
		b.journal.Append(ctx, tradelog.Record{
			Ts:            time.Now(),
			Network:       b.cfg.NetworkName(),
			Route:         opp.RouteID,
			ProfitPercent: opp.ProfitPercent,
			VolumeUSDT:    opp.MinLiquidity,
			Status:        types.StatusFailed,
			Details:       decision.Reason,
		})
		return
	}
	tradeCh <- *opp
}

// trade performs the balance check and the three-leg execution for one
// admitted opportunity, then reports the outcome.
func (b *Bot) trade(ctx context.Context, exec *execution.Executor, opp types.Opportunity) {
	base := opp.Triangle.Base
	var baseBefore float64

	if !b.cfg.Testnet {
		balances, err := b.ex.Balances(ctx)
		if err != nil {
			b.log.Warn("balance fetch failed", zap.Error(err))
		}
		baseBefore = balances[base]
		if baseBefore < b.cfg.Trade.TargetVolumeUSDT {
			b.notifier.Notify(ctx, insufficientFundsMessage(base, baseBefore, b.cfg.Trade.TargetVolumeUSDT))
			b.journal.Append(ctx, tradelog.Record{
				Ts:            time.Now(),
				Network:       b.cfg.NetworkName(),
				Route:         opp.RouteID,
				ProfitPercent: opp.ProfitPercent,
				VolumeUSDT:    opp.MinLiquidity,
				Status:        types.StatusFailed,
				Details:       "insufficient_balance",
			})
			imetrics.Opportunities.WithLabelValues(string(types.StatusFailed)).Inc()
			return
		}
	}

	res, err := exec.Execute(ctx, opp.RouteID, opp.Steps[:])
	if err != nil {
		b.notifier.Notify(ctx, "❌ <b>Trade failed</b>\nRoute: "+opp.RouteID+"\nReason: "+err.Error())
		b.journal.Append(ctx, tradelog.Record{
			Ts:            time.Now(),
			Network:       b.cfg.NetworkName(),
			Route:         opp.RouteID,
			ProfitPercent: opp.ProfitPercent,
			VolumeUSDT:    opp.MinLiquidity,
			Status:        types.StatusFailed,
			Details:       err.Error(),
		})
		imetrics.Opportunities.WithLabelValues(string(types.StatusFailed)).Inc()
		return
	}

	status := types.StatusExecuted
	profitLine := expectedProfitLine(opp.ExpectedQuote)
	if res.Simulated {
		status = types.StatusSimulated
	} else {
		if balances, err := b.ex.Balances(ctx); err == nil {
			profitLine = actualProfitLine(balances[base] - baseBefore)
		}
	}

	b.notifier.Notify(ctx, tradeDoneMessage(b.cfg.NetworkName(), opp, status, profitLine))
	b.journal.Append(ctx, tradelog.Record{
		Ts:            time.Now(),
		Network:       b.cfg.NetworkName(),
		Route:         opp.RouteID,
		ProfitPercent: opp.ProfitPercent,
		VolumeUSDT:    b.cfg.Trade.TargetVolumeUSDT,
		Status:        status,
	})
	imetrics.Opportunities.WithLabelValues(string(status)).Inc()
}

func (b *Bot) sendBalanceReport(ctx context.Context) {
	balances, err := b.ex.Balances(ctx)
	if err != nil {
		b.log.Warn("balance report failed", zap.Error(err))
		return
	}
	if len(balances) == 0 {
		return
	}
	b.notifier.Notify(ctx, balanceMessage(b.cfg.NetworkName(), balances, b.cfg.Testnet))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NewLogger builds the production JSON logger used across the bot.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
