package discovery

import (
	"sort"
	"strings"

	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

// Service builds the set of tradable triangles from a loaded market snapshot.
type Service struct {
	cfg *config.Config
	log *zap.Logger
}

func NewService(cfg *config.Config, log *zap.Logger) *Service {
	return &Service{cfg: cfg, log: log}
}

// Discover walks the traded-pair graph for every configured base currency and
// returns all base->mid1->mid2->base cycles whose three legs resolve to active
// markets. Leg direction and orientation are fixed here, once, so the
// estimator and the order-submission path never re-derive sides from symbol
// strings. Triangles are deduplicated by the unordered triple of leg symbols;
// the walk visits markets in sorted symbol order, so the surviving
// representative of each cycle (and with it RouteID and the cooldown hash) is
// the same on every run.
func (s *Service) Discover(markets map[string]types.Market, baseCoins []string) []types.Triangle {
	symbols := make([]string, 0, len(markets))
	for sym, m := range markets {
		if !m.Active {
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	byCurrency := make(map[string][]types.Market)
	byPair := make(map[string]types.Market, len(symbols))
	for _, sym := range symbols {
		m := markets[sym]
		byCurrency[m.Base] = append(byCurrency[m.Base], m)
		byCurrency[m.Quote] = append(byCurrency[m.Quote], m)
		byPair[m.Base+"/"+m.Quote] = m
	}

	seen := make(map[string]struct{})
	var out []types.Triangle

	for _, base := range baseCoins {
		firstLegs := byCurrency[base]
		s.log.Debug("candidate first legs", zap.String("base", base), zap.Int("count", len(firstLegs)))

		for _, m1 := range firstLegs {
			mid1 := other(m1, base)
			if mid1 == base {
				continue
			}
			for _, m2 := range byCurrency[mid1] {
				if m2.Symbol == m1.Symbol {
					continue
				}
				mid2 := other(m2, mid1)
				if mid2 == base || mid2 == mid1 {
					continue
				}
				m3, ok := pairEither(byPair, mid2, base)
				if !ok {
					continue
				}

				tri := types.Triangle{
					Base: base,
					Mid1: mid1,
					Mid2: mid2,
					Legs: [3]types.Leg{
						legFor(m1, mid1),  // base -> mid1: acquire mid1
						legFor(m2, mid2),  // mid1 -> mid2: acquire mid2
						legAway(m3, mid2), // mid2 -> base: dispose mid2
					},
				}

				key := dedupKey(tri)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, tri)
				s.log.Debug("triangle found", zap.String("route", tri.RouteID()))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RouteID() < out[j].RouteID() })
	s.log.Info("triangle discovery finished", zap.Int("triangles", len(out)))
	return out
}

func other(m types.Market, cur string) string {
	if m.Base == cur {
		return m.Quote
	}
	return m.Base
}

func pairEither(byPair map[string]types.Market, a, b string) (types.Market, bool) {
	if m, ok := byPair[a+"/"+b]; ok {
		return m, true
	}
	m, ok := byPair[b+"/"+a]
	return m, ok
}

// legFor resolves the leg that acquires want on market m: buying when want is
// the market's base, selling the market's base otherwise.
func legFor(m types.Market, want string) types.Leg {
	side := types.SideSell
	if m.Base == want {
		side = types.SideBuy
	}
	return types.Leg{Symbol: m.Symbol, Base: m.Base, Quote: m.Quote, Side: side}
}

// legAway resolves the leg that disposes of have on market m.
func legAway(m types.Market, have string) types.Leg {
	side := types.SideBuy
	if m.Base == have {
		side = types.SideSell
	}
	return types.Leg{Symbol: m.Symbol, Base: m.Base, Quote: m.Quote, Side: side}
}

func dedupKey(t types.Triangle) string {
	syms := []string{t.Legs[0].Symbol, t.Legs[1].Symbol, t.Legs[2].Symbol}
	sort.Strings(syms)
	return strings.Join(syms, "|")
}
