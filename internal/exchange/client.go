// Package exchange is the Broker Adapter (C1): a uniform, synchronous
// interface to one Binance-compatible exchange, hiding HMAC signing, the
// process-wide rate limiter, balance/positions caching and lot-size/
// min-notional compliance from every caller.
//
// Grounded on the header-based HMAC signer in
// _examples/aristath-sentinel/trader/internal/clients/tradernet/sdk/client.go,
// generalized to Binance's query-string signature scheme exactly as
// original_source/backend/services/binance_sync.py implements it
// (_generate_signature, _make_signed_request, _make_public_request).
package exchange

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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aitrader/engine/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client is the Broker Adapter. One instance is shared across the process;
// its rate limiter and cache are process-wide by design (DESIGN.md Open
// Question / Design Notes §9).
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	cache      *balanceCache
	log        zerolog.Logger
}

// Config configures the shared Client instance.
type Config struct {
	BaseURL        string
	RateInterval   time.Duration
	CacheTTL       time.Duration
	RequestTimeout time.Duration
}

// New constructs the shared exchange Client.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(cfg.RateInterval),
		cache:      newBalanceCache(cfg.CacheTTL),
		log:        log.With().Str("component", "exchange").Logger(),
	}
}

// mapSymbol maps an internal symbol to its exchange trading pair, e.g.
// BTC -> BTCUSDT, per spec.md §6. An internal symbol this engine has no
// quantization rule for is not tradeable here, so step 1 of spec.md §4.1's
// order-preparation procedure fails it outright with ErrUnknownSymbol
// rather than silently trading it under the default lot-size rule.
func mapSymbol(symbol string) (string, error) {
	upper := strings.ToUpper(symbol)
	if _, known := symbolRules[upper]; !known {
		return "", newError(ErrUnknownSymbol, fmt.Sprintf("no trading rule for symbol %q", symbol))
	}
	return upper + "USDT", nil
}

func unmapSymbol(pair string) string {
	p := strings.ToUpper(pair)
	for _, suffix := range []string{"USDT", "BUSD"} {
		if strings.HasSuffix(p, suffix) {
			return strings.TrimSuffix(p, suffix)
		}
	}
	return p
}

// sign computes the HMAC-SHA256 signature of an ordered query string,
// hex-encoded, per spec.md §6.
func sign(query, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// buildSignedQuery builds the full query string (sorted key order, with
// timestamp included) and appends the computed signature.
func buildSignedQuery(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	query := values.Encode()

	sig := sign(query, secret)
	return query + "&signature=" + sig
}

type binanceErrorEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func classifyHTTPStatus(status int, body []byte) *Error {
	switch status {
	case http.StatusUnauthorized:
		return newError(ErrUnauthorized, "exchange rejected credentials")
	case http.StatusForbidden:
		return newError(ErrForbidden, "exchange forbade this request")
	case 451:
		return newError(ErrGeoRestricted, "exchange blocked the request for this region")
	case http.StatusTooManyRequests:
		return newError(ErrRateLimited, "exchange rate limit exceeded")
	}

	var envelope binanceErrorEnvelope
	if json.Unmarshal(body, &envelope) == nil && envelope.Msg != "" {
		return newError(ErrExchangeRejected, envelope.Msg)
	}
	return newError(ErrExchangeRejected, fmt.Sprintf("unexpected status %d", status))
}

// signedRequest performs a rate-limited, HMAC-signed call against the
// exchange and returns the raw response body.
func (c *Client) signedRequest(ctx context.Context, method, endpoint string, params map[string]string, apiKey, apiSecret string) ([]byte, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, newError(ErrCredentialMissing, "exchange credentials not configured")
	}

	c.limiter.Wait()

	if params == nil {
		params = map[string]string{}
	}
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	query := buildSignedQuery(params, apiSecret)

	reqURL := c.baseURL + endpoint
	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, method, reqURL+"?"+query, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(query))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, newError(ErrNetwork, err.Error())
	}
	req.Header.Set("X-MBX-APIKEY", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(ErrNetwork, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode, body)
	}
	return body, nil
}

// LastPrice fetches the last traded price for a symbol via the exchange's
// public (unsigned) ticker endpoint. Used by the market stream (C2); does
// not consume the rate limiter's budget since it carries no signature.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	pair, err := mapSymbol(symbol)
	if err != nil {
		return 0, err
	}
	reqURL := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, newError(ErrNetwork, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, newError(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, newError(ErrNetwork, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return 0, classifyHTTPStatus(resp.StatusCode, body)
	}

	var parsed struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, newError(ErrMalformedResponse, err.Error())
	}
	price, err := strconv.ParseFloat(parsed.Price, 64)
	if err != nil {
		return 0, newError(ErrMalformedResponse, "non-numeric price")
	}
	return price, nil
}

type balancesResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// GetBalanceAndPositions returns the account's spendable quote-currency
// balance and every non-quote asset held, per spec.md §4.1/§6. Cached for
// Config.CacheTTL; any error invalidates the cache before returning.
func (c *Client) GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error) {
	if cash, positions, ok := c.cache.get(acc.ID); ok {
		return cash, positions, nil
	}

	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", nil, acc.ExchangeAPIKey, acc.ExchangeAPISecret)
	if err != nil {
		c.cache.invalidate(acc.ID)
		return 0, nil, err
	}

	var parsed balancesResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		c.cache.invalidate(acc.ID)
		return 0, nil, newError(ErrMalformedResponse, jsonErr.Error())
	}

	var cash float64
	var positions []domain.Position
	for _, b := range parsed.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		total := free + locked

		switch b.Asset {
		case "USDT", "BUSD":
			cash += total
		default:
			if total > 0 {
				positions = append(positions, domain.Position{
					Symbol:   b.Asset,
					TotalQty: total,
					FreeQty:  free,
					AvgCost:  0, // exchange does not report it; see DESIGN.md Open Question
				})
			}
		}
	}

	c.cache.set(acc.ID, cash, positions)
	return cash, positions, nil
}

type orderResponse struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Type    string `json:"type"`
	Price   string `json:"price"`
	OrigQty string `json:"origQty"`
	Status  string `json:"status"`
	Time    int64  `json:"time"`
}

func (o orderResponse) toDomain() domain.Order {
	qty, _ := strconv.ParseFloat(o.OrigQty, 64)
	order := domain.Order{
		OrderID:  strconv.FormatInt(o.OrderID, 10),
		Symbol:   unmapSymbol(o.Symbol),
		Side:     o.Side,
		Type:     o.Type,
		Quantity: qty,
		Status:   o.Status,
	}
	if o.Time > 0 {
		order.CreatedAt = time.UnixMilli(o.Time)
	}
	if price, err := strconv.ParseFloat(o.Price, 64); err == nil && price > 0 {
		order.Price = &price
	}
	return order
}

// GetOpenOrders lists not-yet-terminal orders for the account.
func (c *Client) GetOpenOrders(ctx context.Context, acc *domain.Account) ([]domain.Order, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/openOrders", nil, acc.ExchangeAPIKey, acc.ExchangeAPISecret)
	if err != nil {
		c.cache.invalidate(acc.ID)
		return nil, err
	}

	var parsed []orderResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		c.cache.invalidate(acc.ID)
		return nil, newError(ErrMalformedResponse, jsonErr.Error())
	}
	out := make([]domain.Order, 0, len(parsed))
	for _, o := range parsed {
		out = append(out, o.toDomain())
	}
	return out, nil
}

// GetClosedOrders lists filled/partially-filled orders for the account,
// newest first, capped at limit. Grounded on spec.md §4.1.
func (c *Client) GetClosedOrders(ctx context.Context, acc *domain.Account, limit int) ([]domain.Order, error) {
	params := map[string]string{"limit": strconv.Itoa(limit)}
	body, err := c.signedRequest(ctx, http.MethodGet, "/api/v3/allOrders", params, acc.ExchangeAPIKey, acc.ExchangeAPISecret)
	if err != nil {
		c.cache.invalidate(acc.ID)
		return nil, err
	}

	var parsed []orderResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		c.cache.invalidate(acc.ID)
		return nil, newError(ErrMalformedResponse, jsonErr.Error())
	}

	out := make([]domain.Order, 0, len(parsed))
	for _, o := range parsed {
		if o.Status == "FILLED" || o.Status == "PARTIALLY_FILLED" {
			out = append(out, o.toDomain())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OrderType selects MARKET or LIMIT execution.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// ExecuteOrder submits a quantized order, implementing spec.md §4.1's
// 8-step order-preparation procedure.
func (c *Client) ExecuteOrder(ctx context.Context, acc *domain.Account, symbol, side string, qty, refPrice float64, orderType OrderType) (string, error) {
	pair, err := mapSymbol(symbol)
	if err != nil {
		return "", err
	}

	qtyDec := decimal.NewFromFloat(qty)
	priceDec := decimal.NewFromFloat(refPrice)

	quantized, err := quantizeOrder(symbol, qtyDec, priceDec)
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"symbol":   pair,
		"side":     strings.ToUpper(side),
		"type":     string(orderType),
		"quantity": formatQuantity(quantized),
	}
	if orderType == OrderLimit {
		params["price"] = formatQuantity(priceDec)
		params["timeInForce"] = "GTC"
	}

	body, err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params, acc.ExchangeAPIKey, acc.ExchangeAPISecret)
	if err != nil {
		c.cache.invalidate(acc.ID)
		return "", err
	}

	var parsed orderResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		c.cache.invalidate(acc.ID)
		return "", newError(ErrMalformedResponse, jsonErr.Error())
	}

	c.cache.invalidate(acc.ID)
	return strconv.FormatInt(parsed.OrderID, 10), nil
}

// CancelOrder cancels an order, resolving the trading pair from the open
// or (failing that) closed order list, per spec.md §4.1.
func (c *Client) CancelOrder(ctx context.Context, acc *domain.Account, orderID string) error {
	pair, err := c.resolvePairForOrder(ctx, acc, orderID)
	if err != nil {
		return err
	}

	params := map[string]string{"symbol": pair, "orderId": orderID}
	_, err = c.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params, acc.ExchangeAPIKey, acc.ExchangeAPISecret)
	if err != nil {
		c.cache.invalidate(acc.ID)
		return err
	}
	c.cache.invalidate(acc.ID)
	return nil
}

func (c *Client) resolvePairForOrder(ctx context.Context, acc *domain.Account, orderID string) (string, error) {
	open, err := c.GetOpenOrders(ctx, acc)
	if err == nil {
		for _, o := range open {
			if o.OrderID == orderID {
				return mapSymbol(o.Symbol)
			}
		}
	}

	closed, err := c.GetClosedOrders(ctx, acc, 100)
	if err != nil {
		return "", err
	}
	for _, o := range closed {
		if o.OrderID == orderID {
			return mapSymbol(o.Symbol)
		}
	}
	return "", newError(ErrExchangeRejected, "order id not found in open or recent closed orders")
}
