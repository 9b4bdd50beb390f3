// Package alpaca adapts the teacher's trader/alpaca_trader.go (a
// hand-rolled, header-signed REST client for Alpaca Markets) into the
// exchange.Adapter interface, generalized from a stocks-only Trader
// surface to the full securities OrderType set spec.md adds
// (MARKET_ON_CLOSE / LIMIT_ON_CLOSE via Alpaca's "cls" time_in_force).
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/logger"
)

// Adapter implements exchange.Adapter for Alpaca securities accounts.
type Adapter struct {
	apiKey    string
	secretKey string
	baseURL   string
	dataURL   string
	client    *http.Client
	limiter   *rate.Limiter
}

func New(apiKey, secretKey string, isPaper bool) *Adapter {
	baseURL := "https://api.alpaca.markets"
	if isPaper {
		baseURL = "https://paper-api.alpaca.markets"
	}
	return &Adapter{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		dataURL:   "https://data.alpaca.markets",
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   exchange.NewLimiter(10, 10),
	}
}

func (a *Adapter) Exchange() domain.Exchange { return domain.Alpaca }

func (a *Adapter) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("alpaca: marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("alpaca: build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alpaca: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("alpaca: API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// orderTypeAndTIF maps a domain.OrderType to Alpaca's type/time_in_force
// pair; MARKET_ON_CLOSE and LIMIT_ON_CLOSE use Alpaca's "cls" TIF, the
// securities analogue of a closing auction order (spec.md §9 securities
// supplement — absent from the crypto-only original).
func orderTypeAndTIF(ot domain.OrderType) (alpacaType, tif string, err error) {
	switch ot {
	case domain.OrderMarket:
		return "market", "day", nil
	case domain.OrderLimit:
		return "limit", "day", nil
	case domain.OrderStopMarket:
		return "stop", "gtc", nil
	case domain.OrderStopLimit:
		return "stop_limit", "gtc", nil
	case domain.OrderMarketOnClose:
		return "market", "cls", nil
	case domain.OrderLimitOnClose:
		return "limit", "cls", nil
	default:
		return "", "", fmt.Errorf("alpaca: unsupported order type %s", ot)
	}
}

func sideString(s domain.Side) string {
	if s == domain.Sell {
		return "sell"
	}
	return "buy"
}

func (a *Adapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	alpacaType, tif, err := orderTypeAndTIF(req.OrderType)
	if err != nil {
		return exchange.OrderResult{}, err
	}

	order := map[string]interface{}{
		"symbol":        req.Symbol,
		"qty":           req.Quantity.String(),
		"side":          sideString(req.Side),
		"type":          alpacaType,
		"time_in_force": tif,
	}
	if req.OrderType.RequiresPrice() {
		order["limit_price"] = req.Price.StringFixed(2)
	}
	if req.OrderType.RequiresStopPrice() {
		order["stop_price"] = req.StopPrice.StringFixed(2)
	}

	resp, err := a.doRequest(ctx, "POST", "/v2/orders", order)
	if err != nil {
		return exchange.OrderResult{}, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("alpaca: parse order response: %w", err)
	}
	logger.Infof("alpaca: placed %s %s %s qty=%s", alpacaType, sideString(req.Side), req.Symbol, req.Quantity.String())
	return alpacaOrderToResult(raw), nil
}

func alpacaOrderToResult(raw map[string]interface{}) exchange.OrderResult {
	res := exchange.OrderResult{RawResponse: fmt.Sprint(raw)}
	if id, ok := raw["id"].(string); ok {
		res.ExchangeOrderID = id
	}
	if status, ok := raw["status"].(string); ok {
		res.Status = alpacaStatusToCanonical(status)
	}
	if qty, ok := raw["filled_qty"].(string); ok && qty != "" {
		if d, err := decimal.NewFromString(qty); err == nil {
			res.FilledQuantity = d
		}
	}
	if price, ok := raw["filled_avg_price"].(string); ok && price != "" {
		if d, err := decimal.NewFromString(price); err == nil {
			res.AveragePrice = d
		}
	}
	return res
}

// alpacaStatusToCanonical maps Alpaca's order status vocabulary; Alpaca
// is intentionally not in status.Transform's table (it is a securities
// broker, not one of the crypto venues the original status transformer
// covers), so the mapping lives locally to this adapter.
func alpacaStatusToCanonical(raw string) domain.CanonicalStatus {
	switch strings.ToLower(raw) {
	case "new", "accepted", "pending_new":
		return domain.StatusNew
	case "partially_filled":
		return domain.StatusPartiallyFilled
	case "filled":
		return domain.StatusFilled
	case "canceled", "pending_cancel":
		return domain.StatusCancelled
	case "rejected":
		return domain.StatusRejected
	case "expired":
		return domain.StatusExpired
	default:
		return domain.StatusNew
	}
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	_, err := a.doRequest(ctx, "DELETE", "/v2/orders/"+exchangeOrderID, nil)
	return err
}

func (a *Adapter) FetchOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	resp, err := a.doRequest(ctx, "GET", "/v2/orders/"+exchangeOrderID, nil)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("alpaca: parse order response: %w", err)
	}
	return alpacaOrderToResult(raw), nil
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	resp, err := a.doRequest(ctx, "GET", "/v2/orders?status=open&symbols="+symbol, nil)
	if err != nil {
		return nil, err
	}
	var raws []map[string]interface{}
	if err := json.Unmarshal(resp, &raws); err != nil {
		return nil, fmt.Errorf("alpaca: parse open orders: %w", err)
	}
	out := make([]exchange.OrderResult, 0, len(raws))
	for _, r := range raws {
		out = append(out, alpacaOrderToResult(r))
	}
	return out, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.dataURL, symbol)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: ticker request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: parse ticker: %w", err)
	}
	trade, ok := result["trade"].(map[string]interface{})
	if !ok {
		return decimal.Zero, fmt.Errorf("alpaca: no trade data for %s", symbol)
	}
	price, ok := trade["p"].(float64)
	if !ok {
		return decimal.Zero, fmt.Errorf("alpaca: missing trade price for %s", symbol)
	}
	return decimal.NewFromFloat(price), nil
}

func (a *Adapter) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	resp, err := a.doRequest(ctx, "GET", "/v2/account", nil)
	if err != nil {
		return decimal.Zero, err
	}
	var account map[string]interface{}
	if err := json.Unmarshal(resp, &account); err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: parse account: %w", err)
	}
	bp, ok := account["buying_power"].(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("alpaca: missing buying_power")
	}
	return decimal.NewFromString(bp)
}

// CreateBatchOrders places orders one at a time — Alpaca has no native
// batch endpoint — collecting a per-element outcome so one failure never
// invalidates the rest (spec.md §4.2 partial-success contract).
func (a *Adapter) CreateBatchOrders(ctx context.Context, reqs []exchange.OrderRequest) ([]exchange.BatchOrderOutcome, error) {
	out := make([]exchange.BatchOrderOutcome, 0, len(reqs))
	for _, req := range reqs {
		res, err := a.CreateOrder(ctx, req)
		out = append(out, exchange.BatchOrderOutcome{Result: res, Err: err})
	}
	return out, nil
}

// GetPrecision returns Alpaca's effectively unconstrained securities
// precision: whole-cent ticks, fractional shares down to 1e-6, no
// exchange-enforced minimum notional.
func (a *Adapter) GetPrecision(ctx context.Context, market domain.MarketType, symbol string) (exchange.Precision, error) {
	return exchange.Precision{
		StepSize:    decimal.New(1, -6),
		TickSize:    decimal.New(1, -2),
		MinQuantity: decimal.New(1, -6),
		MinNotional: decimal.Zero,
	}, nil
}
