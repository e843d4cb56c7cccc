package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/tri-bot/internal/config"
	"github.com/you/tri-bot/internal/types"
	"go.uber.org/zap"
)

const recvWindow = "5000"

// Client talks to the Bybit v5 REST API (testnet or mainnet per config).
type Client struct {
	cfg     *config.Config
	log     *zap.Logger
	http    *http.Client
	baseURL string
}

func NewClient(cfg *config.Config, log *zap.Logger) (*Client, error) {
	return &Client{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: 6 * time.Second},
		baseURL: cfg.RestURL(),
	}, nil
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// ServerTime is used as the startup connectivity check.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		TimeSecond string `json:"timeSecond"`
	}
	if err := c.get(ctx, "/v5/market/time", nil, false, &out); err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(out.TimeSecond, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server time %q: %w", out.TimeSecond, err)
	}
	return time.Unix(sec, 0), nil
}

// LoadMarkets fetches all spot instruments keyed by symbol, following the
// pagination cursor until the exchange reports no further page. Only
// instruments in Trading status are marked active.
func (c *Client) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	markets := make(map[string]types.Market)
	cursor := ""
	for {
		q := url.Values{}
		q.Set("category", "spot")
		q.Set("limit", "1000")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var out struct {
			NextPageCursor string `json:"nextPageCursor"`
			List           []struct {
				Symbol        string `json:"symbol"`
				BaseCoin      string `json:"baseCoin"`
				QuoteCoin     string `json:"quoteCoin"`
				Status        string `json:"status"`
				LotSizeFilter struct {
					BasePrecision string `json:"basePrecision"`
					MinOrderQty   string `json:"minOrderQty"`
				} `json:"lotSizeFilter"`
			} `json:"list"`
		}
		if err := c.get(ctx, "/v5/market/instruments-info", q, false, &out); err != nil {
			return nil, err
		}
		for _, it := range out.List {
			markets[it.Symbol] = types.Market{
				Symbol:      it.Symbol,
				Base:        it.BaseCoin,
				Quote:       it.QuoteCoin,
				Active:      it.Status == "Trading",
				MinOrderQty: parseF(it.LotSizeFilter.MinOrderQty),
				QtyStep:     parseF(it.LotSizeFilter.BasePrecision),
			}
		}
		if out.NextPageCursor == "" || len(out.List) == 0 {
			break
		}
		cursor = out.NextPageCursor
	}
	return markets, nil
}

// OrderBook returns a depth snapshot: asks ascending, bids descending.
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(depth))
	var out struct {
		Asks [][2]string `json:"a"`
		Bids [][2]string `json:"b"`
	}
	if err := c.get(ctx, "/v5/market/orderbook", q, false, &out); err != nil {
		return types.OrderBook{}, err
	}
	ob := types.OrderBook{
		Asks: make([]types.PriceLevel, 0, len(out.Asks)),
		Bids: make([]types.PriceLevel, 0, len(out.Bids)),
	}
	for _, lv := range out.Asks {
		ob.Asks = append(ob.Asks, types.PriceLevel{Price: parseF(lv[0]), Volume: parseF(lv[1])})
	}
	for _, lv := range out.Bids {
		ob.Bids = append(ob.Bids, types.PriceLevel{Price: parseF(lv[0]), Volume: parseF(lv[1])})
	}
	return ob, nil
}

// TickerQuoteVolume returns the trailing 24h turnover in quote units.
func (c *Client) TickerQuoteVolume(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", symbol)
	var out struct {
		List []struct {
			Turnover24h string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/tickers", q, false, &out); err != nil {
		return 0, err
	}
	if len(out.List) == 0 {
		return 0, fmt.Errorf("no ticker for %s", symbol)
	}
	return parseF(out.List[0].Turnover24h), nil
}

// Balances returns non-dust wallet balances keyed by currency.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	var out struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/v5/account/wallet-balance", q, true, &out); err != nil {
		return nil, err
	}
	balances := make(map[string]float64)
	for _, acct := range out.List {
		for _, coin := range acct.Coin {
			if v := parseF(coin.WalletBalance); v > 0.000001 {
				balances[coin.Coin] = v
			}
		}
	}
	return balances, nil
}

// SubmitMarketOrder places a spot market order for the exact amount in base
// units.
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol string, side types.Side, amount float64) (types.OrderResult, error) {
	body := map[string]string{
		"category":   "spot",
		"symbol":     symbol,
		"side":       titleSide(side),
		"orderType":  "Market",
		"qty":        trim(amount),
		"marketUnit": "baseCoin",
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := c.post(ctx, "/v5/order/create", body, &out); err != nil {
		return types.OrderResult{}, err
	}
	c.log.Info("market order placed",
		zap.String("order_id", out.OrderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("amount", amount),
	)
	return types.OrderResult{OrderID: out.OrderID, Symbol: symbol, Side: side, Amount: amount}, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, signed bool, out any) error {
	endpoint := c.baseURL + path
	query := ""
	if q != nil {
		query = q.Encode()
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}
	if signed {
		c.signRequest(req, query)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, string(payload))
	return c.do(req, out)
}

// signRequest applies the v5 HMAC scheme: sign(timestamp + apiKey +
// recvWindow + payload) where payload is the query string for GET and the raw
// body for POST.
func (c *Client) signRequest(req *http.Request, payload string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.cfg.Bybit.ApiSecret))
	mac.Write([]byte(ts + c.cfg.Bybit.ApiKey + recvWindow + payload))
	req.Header.Set("X-BAPI-API-KEY", c.cfg.Bybit.ApiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return fmt.Errorf("%s %d: %s", req.URL.Path, resp.StatusCode, string(body))
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("%s retCode %d: %s", req.URL.Path, env.RetCode, env.RetMsg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func titleSide(s types.Side) string {
	if s == types.SideBuy {
		return "Buy"
	}
	return "Sell"
}

func trim(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
