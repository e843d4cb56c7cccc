package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/you/tri-bot/internal/config"
	imetrics "github.com/you/tri-bot/internal/metrics"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

// Denial reasons.
const (
	ReasonProfitBand = "profit_band"
	ReasonCooldown   = "cooldown"
	ReasonMinute     = "minute"
	ReasonHour       = "hour"
	ReasonDay        = "day"
	ReasonVolume     = "volume"
)

// VolumeSource reports a symbol's trailing 24h quote volume.
type VolumeSource interface {
	TickerQuoteVolume(ctx context.Context, symbol string) (float64, error)
}

type Decision struct {
	Admitted bool
	Reason   string
	Detail   string
}

type window struct {
	name    string
	length  time.Duration
	cap     int
	count   int
	resetAt time.Time
}

// Gate is the single admit/deny point in front of the orchestrator. It owns
// the cooldown cache and the minute/hour/day trade counters; every read and
// mutation of that state happens under one mutex, so concurrent evaluations
// of the same route cannot both pass the cooldown check. The cooldown cache
// is never evicted — with a fixed triangle universe it is bounded by the
// number of discovered routes, and its size is exported as a gauge.
type Gate struct {
	cfg  *config.Config
	vols VolumeSource
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	cooldown map[string]time.Time
	windows  [3]*window
}

func New(cfg *config.Config, vols VolumeSource, log *zap.Logger) *Gate {
	g := &Gate{
		cfg:      cfg,
		vols:     vols,
		log:      log,
		now:      time.Now,
		cooldown: make(map[string]time.Time),
	}
	g.windows = [3]*window{
		{name: ReasonMinute, length: time.Minute, cap: cfg.Limits.MaxTradesPerMinute},
		{name: ReasonHour, length: time.Hour, cap: cfg.Limits.MaxTradesPerHour},
		{name: ReasonDay, length: 24 * time.Hour, cap: cfg.Limits.MaxTradesPerDay},
	}
	n := g.now()
	for _, w := range g.windows {
		w.resetAt = n.Add(w.length)
	}
	return g
}

// Admit runs the full decision chain, short-circuiting on the first failure:
// profit band, cooldown, rate windows, then the per-leg volume cap. Passing
// the cooldown check records the trigger time immediately; a denial further
// down the chain does not erase it. On admission every window counter is
// incremented exactly once — one attempt, not one per leg. The gate lock
// covers only the stateful checks; the volume probes are remote calls and run
// outside it so they cannot stall concurrent admissions.
func (g *Gate) Admit(ctx context.Context, opp types.Opportunity) Decision {
	if d, ok := g.reserve(opp); !ok {
		return d
	}

	if !g.cfg.Testnet {
		for _, step := range opp.Steps {
			dayVolume, err := g.vols.TickerQuoteVolume(ctx, step.Symbol)
			if err != nil {
				// fail open: a dead volume feed must not stall trading
				g.log.Warn("volume limit check failed", zap.String("symbol", step.Symbol), zap.Error(err))
				continue
			}
			if step.Amount > dayVolume*0.01 {
				g.release()
				return g.deny(ReasonVolume, fmt.Sprintf("volume exceeds 1%% daily limit for %s", step.Symbol))
			}
		}
	}

	return Decision{Admitted: true}
}

// reserve performs the band, cooldown and rate-window checks under the lock.
// Window counters are taken up front so two concurrent admissions cannot both
// squeeze through the last slot while their volume probes are in flight; a
// volume denial hands the slots back via release.
func (g *Gate) reserve(opp types.Opportunity) (Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if opp.ProfitPercent < g.cfg.Trade.MinProfit || opp.ProfitPercent > g.cfg.Trade.MaxProfit {
		return g.deny(ReasonProfitBand, fmt.Sprintf("profit %.4f%% outside [%.4f, %.4f]",
			opp.ProfitPercent, g.cfg.Trade.MinProfit, g.cfg.Trade.MaxProfit)), false
	}

	now := g.now()
	if last, ok := g.cooldown[opp.RouteHash]; ok && now.Sub(last) < g.cfg.TriangleHold() {
		// the route must cool down fully; the entry is NOT refreshed
		return g.deny(ReasonCooldown, fmt.Sprintf("route triggered %.1fs ago", now.Sub(last).Seconds())), false
	}
	g.cooldown[opp.RouteHash] = now
	imetrics.CooldownEntries.Set(float64(len(g.cooldown)))

	for _, w := range g.windows {
		if now.After(w.resetAt) {
			w.count = 0
			w.resetAt = now.Add(w.length)
		}
		if w.count >= w.cap {
			return g.deny(w.name, fmt.Sprintf("rate limit exceeded for %s (%d/%d)", w.name, w.count, w.cap)), false
		}
	}
	for _, w := range g.windows {
		w.count++
	}
	return Decision{Admitted: true}, true
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range g.windows {
		if w.count > 0 {
			w.count--
		}
	}
}

func (g *Gate) deny(reason, detail string) Decision {
	imetrics.GateDenials.WithLabelValues(reason).Inc()
	return Decision{Reason: reason, Detail: detail}
}

// CooldownSize reports how many routes the cooldown cache currently holds.
func (g *Gate) CooldownSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cooldown)
}
