package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/you/tri-bot/internal/types"
)

var errNoMarkets = errors.New("no active markets found")

// Telegram message builders. Formatting mirrors the operator reports the bot
// has always sent: HTML with a short header line and one line per leg.

func opportunityMessage(network string, opp *types.Opportunity, ready bool) string {
	readiness := "NO"
	if ready {
		readiness = "YES"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔁 <b>%s: Arbitrage Opportunity</b>\n", network)
	fmt.Fprintf(&sb, "🔄 Route: %s\n", opp.RouteID)
	for i, s := range opp.Steps {
		fmt.Fprintf(&sb, "%d. %s %s @ %.6f\n", i+1, s.Symbol, strings.ToUpper(string(s.Side)), opp.LegPrices[i])
	}
	fmt.Fprintf(&sb, "\n💰 <b>Profit:</b> %.2f USDT\n", opp.ExpectedQuote)
	fmt.Fprintf(&sb, "📈 <b>Spread:</b> %.2f%%\n", opp.ProfitPercent)
	fmt.Fprintf(&sb, "💧 <b>Min Liquidity:</b> $%.2f\n", opp.MinLiquidity)
	fmt.Fprintf(&sb, "⚙️ <b>Ready:</b> %s", readiness)
	return sb.String()
}

func tradeDoneMessage(network string, opp types.Opportunity, status types.TradeStatus, profitLine string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ <b>%s: Trade %s</b>\n", network, status)
	fmt.Fprintf(&sb, "Route: %s\n", opp.RouteID)
	fmt.Fprintf(&sb, "Spread: %.2f%%\n", opp.ProfitPercent)
	sb.WriteString(profitLine)
	return sb.String()
}

func insufficientFundsMessage(currency string, have, want float64) string {
	return fmt.Sprintf("⛔ <b>Insufficient funds</b>\n%s balance: %.2f < %.2f", currency, have, want)
}

func expectedProfitLine(profit float64) string {
	return fmt.Sprintf("Expected profit: %.2f USDT", profit)
}

func actualProfitLine(profit float64) string {
	return fmt.Sprintf("Actual profit: %.2f USDT", profit)
}

func balanceMessage(network string, balances map[string]float64, testnet bool) string {
	coins := make([]string, 0, len(balances))
	for c, amt := range balances {
		if amt > 0.0001 {
			coins = append(coins, c)
		}
	}
	sort.Strings(coins)

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 <b>%s BALANCE:</b>\n", strings.ToUpper(network))
	for _, c := range coins {
		fmt.Fprintf(&sb, "%s: %.6f\n", c, balances[c])
	}
	if testnet {
		sb.WriteString("\n⚙️ Use Bybit Testnet Faucet for funding")
	}
	return strings.TrimRight(sb.String(), "\n")
}
