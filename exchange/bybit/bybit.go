// Package bybit is a hand-rolled, HMAC-signed REST client for Bybit's
// v5 unified trading API, in the same header-signed-request idiom as
// the teacher's trader/alpaca_trader.go (doRequest + explicit auth
// headers), since no Bybit SDK is present anywhere in the example pack.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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
)

const baseURL = "https://api.bybit.com"

// Adapter implements exchange.Adapter for Bybit.
type Adapter struct {
	apiKey    string
	secretKey string
	client    *http.Client
	limiter   *rate.Limiter
}

func New(apiKey, secretKey string) *Adapter {
	return &Adapter{
		apiKey:    apiKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   exchange.NewLimiter(10, 10),
	}
}

func (a *Adapter) sign(timestamp, recvWindow, payload string) string {
	prehash := timestamp + a.apiKey + recvWindow + payload
	h := hmac.New(sha256.New, []byte(a.secretKey))
	h.Write([]byte(prehash))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest signs and executes a Bybit v5 request. GET requests sign the
// query string; POST requests sign the raw JSON body — Bybit's v5
// signing scheme treats them identically as "payload".
func (a *Adapter) doRequest(ctx context.Context, method, path string, payload string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	recvWindow := "5000"
	sig := a.sign(timestamp, recvWindow, payload)

	url := baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if payload != "" {
			url += "?" + payload
		}
	} else {
		body = bytes.NewBufferString(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("bybit: build request: %w", err)
	}
	req.Header.Set("X-BAPI-API-KEY", a.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", sig)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bybit: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bybit: read response: %w", err)
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("bybit: parse envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("bybit: API error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return envelope.Result, nil
}

func (a *Adapter) Exchange() domain.Exchange { return domain.Bybit }

func categoryFor(m domain.MarketType) string {
	if m == domain.MarketFutures {
		return "linear"
	}
	return "spot"
}

func sideString(s domain.Side) string {
	if s == domain.Sell {
		return "Sell"
	}
	return "Buy"
}

func orderTypeString(ot domain.OrderType) (string, error) {
	switch ot {
	case domain.OrderMarket:
		return "Market", nil
	case domain.OrderLimit, domain.OrderStopLimit:
		return "Limit", nil
	case domain.OrderStopMarket:
		return "Market", nil
	default:
		return "", fmt.Errorf("bybit: unsupported order type %s", ot)
	}
}

func (a *Adapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	orderType, err := orderTypeString(req.OrderType)
	if err != nil {
		return exchange.OrderResult{}, err
	}

	body := map[string]interface{}{
		"category":  categoryFor(req.Market),
		"symbol":    req.Symbol,
		"side":      sideString(req.Side),
		"orderType": orderType,
		"qty":       req.Quantity.String(),
	}
	if req.OrderType.RequiresPrice() {
		body["price"] = req.Price.String()
	}
	if req.OrderType.RequiresStopPrice() {
		body["triggerPrice"] = req.StopPrice.String()
		body["triggerDirection"] = triggerDirection(req.Side)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("bybit: marshal order: %w", err)
	}

	result, err := a.doRequest(ctx, http.MethodPost, "/v5/order/create", string(payload))
	if err != nil {
		return exchange.OrderResult{}, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("bybit: parse create response: %w", err)
	}
	return exchange.OrderResult{ExchangeOrderID: created.OrderID, Status: domain.StatusNew}, nil
}

// triggerDirection: 1 = triggered when price rises to triggerPrice
// (covers a short's stop-loss), 2 = triggered when price falls (covers a
// long's stop-loss) — Bybit v5's own vocabulary for conditional orders.
func triggerDirection(s domain.Side) int {
	if s == domain.Sell {
		return 2
	}
	return 1
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	body, _ := json.Marshal(map[string]string{"category": "linear", "symbol": symbol, "orderId": exchangeOrderID})
	_, err := a.doRequest(ctx, http.MethodPost, "/v5/order/cancel", string(body))
	return err
}

func (a *Adapter) FetchOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	qs := fmt.Sprintf("category=linear&symbol=%s&orderId=%s", symbol, exchangeOrderID)
	result, err := a.doRequest(ctx, http.MethodGet, "/v5/order/realtime", qs)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	var list struct {
		List []bybitOrder `json:"list"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("bybit: parse order: %w", err)
	}
	if len(list.List) == 0 {
		return exchange.OrderResult{}, fmt.Errorf("bybit: order %s not found", exchangeOrderID)
	}
	return bybitOrderToResult(list.List[0]), nil
}

type bybitOrder struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
}

func bybitOrderToResult(o bybitOrder) exchange.OrderResult {
	qty, _ := decimal.NewFromString(o.CumExecQty)
	avg, _ := decimal.NewFromString(o.AvgPrice)
	return exchange.OrderResult{
		ExchangeOrderID: o.OrderID,
		Status:          bybitStatusToCanonical(o.OrderStatus),
		FilledQuantity:  qty,
		AveragePrice:    avg,
	}
}

func bybitStatusToCanonical(raw string) domain.CanonicalStatus {
	switch strings.ToLower(raw) {
	case "created", "new":
		return domain.StatusNew
	case "partiallyfilled":
		return domain.StatusPartiallyFilled
	case "filled":
		return domain.StatusFilled
	case "cancelled", "partiallyfilledcanceled":
		return domain.StatusCancelled
	case "rejected":
		return domain.StatusRejected
	case "deactivated":
		return domain.StatusExpired
	default:
		return domain.StatusNew
	}
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	qs := fmt.Sprintf("category=linear&symbol=%s", symbol)
	result, err := a.doRequest(ctx, http.MethodGet, "/v5/order/realtime", qs)
	if err != nil {
		return nil, err
	}
	var list struct {
		List []bybitOrder `json:"list"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("bybit: parse open orders: %w", err)
	}
	out := make([]exchange.OrderResult, 0, len(list.List))
	for _, o := range list.List {
		out = append(out, bybitOrderToResult(o))
	}
	return out, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	qs := fmt.Sprintf("category=%s&symbol=%s", categoryFor(market), symbol)
	result, err := a.doRequest(ctx, http.MethodGet, "/v5/market/tickers", qs)
	if err != nil {
		return decimal.Zero, err
	}
	var list struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &list); err != nil || len(list.List) == 0 {
		return decimal.Zero, fmt.Errorf("bybit: ticker for %s not found", symbol)
	}
	return decimal.NewFromString(list.List[0].LastPrice)
}

func (a *Adapter) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	result, err := a.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", "accountType=UNIFIED")
	if err != nil {
		return decimal.Zero, err
	}
	var wallet struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &wallet); err != nil || len(wallet.List) == 0 {
		return decimal.Zero, fmt.Errorf("bybit: wallet balance unavailable")
	}
	return decimal.NewFromString(wallet.List[0].TotalEquity)
}

// CreateBatchOrders walks the requests in chunks of 10 and places each
// one through CreateOrder, recording a per-order outcome; it does not use
// Bybit's batch-order endpoint.
func (a *Adapter) CreateBatchOrders(ctx context.Context, reqs []exchange.OrderRequest) ([]exchange.BatchOrderOutcome, error) {
	const chunkSize = 10
	out := make([]exchange.BatchOrderOutcome, 0, len(reqs))
	for i := 0; i < len(reqs); i += chunkSize {
		end := i + chunkSize
		if end > len(reqs) {
			end = len(reqs)
		}
		for _, req := range reqs[i:end] {
			res, err := a.CreateOrder(ctx, req)
			out = append(out, exchange.BatchOrderOutcome{Result: res, Err: err})
		}
	}
	return out, nil
}

func (a *Adapter) GetPrecision(ctx context.Context, market domain.MarketType, symbol string) (exchange.Precision, error) {
	qs := fmt.Sprintf("category=%s&symbol=%s", categoryFor(market), symbol)
	result, err := a.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", qs)
	if err != nil {
		return exchange.Precision{}, err
	}
	var list struct {
		List []struct {
			LotSizeFilter struct {
				QtyStep   string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &list); err != nil || len(list.List) == 0 {
		return exchange.Precision{}, fmt.Errorf("bybit: instrument info for %s not found", symbol)
	}
	row := list.List[0]
	p := exchange.Precision{}
	p.StepSize, _ = decimal.NewFromString(row.LotSizeFilter.QtyStep)
	p.MinQuantity, _ = decimal.NewFromString(row.LotSizeFilter.MinOrderQty)
	p.TickSize, _ = decimal.NewFromString(row.PriceFilter.TickSize)
	return p, nil
}
