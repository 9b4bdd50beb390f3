// Package okx is a hand-rolled, HMAC-signed REST client for OKX's v5
// API, following the same doRequest-plus-auth-headers idiom as
// trader/alpaca_trader.go — no OKX SDK appears anywhere in the pack.
package okx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

const baseURL = "https://www.okx.com"

// Adapter implements exchange.Adapter for OKX.
type Adapter struct {
	apiKey     string
	secretKey  string
	passphrase string
	client     *http.Client
	limiter    *rate.Limiter
}

func New(apiKey, secretKey, passphrase string) *Adapter {
	return &Adapter{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    exchange.NewLimiter(10, 10),
	}
}

func (a *Adapter) Exchange() domain.Exchange { return domain.OKX }

func (a *Adapter) sign(timestamp, method, path, body string) string {
	prehash := timestamp + method + path + body
	h := hmac.New(sha256.New, []byte(a.secretKey))
	h.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (a *Adapter) doRequest(ctx context.Context, method, path string, body string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	sig := a.sign(timestamp, method, path, body)

	var reqBody io.Reader
	if body != "" {
		reqBody = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("okx: build request: %w", err)
	}
	req.Header.Set("OK-ACCESS-KEY", a.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", sig)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", a.passphrase)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okx: request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("okx: read response: %w", err)
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("okx: parse envelope: %w", err)
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("okx: API error %s: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

func instIDFor(market domain.MarketType, symbol string) string {
	if market == domain.MarketFutures {
		return symbol + "-SWAP"
	}
	return symbol
}

func sideString(s domain.Side) string {
	if s == domain.Sell {
		return "sell"
	}
	return "buy"
}

func tdModeFor(market domain.MarketType) string {
	if market == domain.MarketFutures {
		return "cross"
	}
	return "cash"
}

func orderTypeString(ot domain.OrderType) (string, error) {
	switch ot {
	case domain.OrderMarket, domain.OrderStopMarket:
		return "market", nil
	case domain.OrderLimit, domain.OrderStopLimit:
		return "limit", nil
	default:
		return "", fmt.Errorf("okx: unsupported order type %s", ot)
	}
}

func (a *Adapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	orderType, err := orderTypeString(req.OrderType)
	if err != nil {
		return exchange.OrderResult{}, err
	}

	body := map[string]interface{}{
		"instId":  instIDFor(req.Market, req.Symbol),
		"tdMode":  tdModeFor(req.Market),
		"side":    sideString(req.Side),
		"ordType": orderType,
		"sz":      req.Quantity.String(),
	}
	if req.OrderType.RequiresPrice() {
		body["px"] = req.Price.String()
	}

	path := "/api/v5/trade/order"
	// Conditional (STOP_MARKET / STOP_LIMIT) orders route through OKX's
	// dedicated algo-order endpoint rather than /trade/order.
	if req.OrderType == domain.OrderStopMarket || req.OrderType == domain.OrderStopLimit {
		path = "/api/v5/trade/order-algo"
		body["ordType"] = "conditional"
		body["triggerPx"] = req.StopPrice.String()
		if req.OrderType == domain.OrderStopLimit {
			body["orderPx"] = req.Price.String()
		} else {
			body["orderPx"] = "-1" // market execution on trigger
		}
		delete(body, "px")
	}

	payload, err := json.Marshal([]map[string]interface{}{body})
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("okx: marshal order: %w", err)
	}

	data, err := a.doRequest(ctx, http.MethodPost, path, string(payload))
	if err != nil {
		return exchange.OrderResult{}, err
	}
	var created []struct {
		OrdID    string `json:"ordId"`
		AlgoID   string `json:"algoId"`
		SCode    string `json:"sCode"`
		SMsg     string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &created); err != nil || len(created) == 0 {
		return exchange.OrderResult{}, fmt.Errorf("okx: parse create response: %w", err)
	}
	if created[0].SCode != "0" {
		return exchange.OrderResult{}, fmt.Errorf("okx: order rejected %s: %s", created[0].SCode, created[0].SMsg)
	}
	id := created[0].OrdID
	if id == "" {
		id = created[0].AlgoID
	}
	return exchange.OrderResult{ExchangeOrderID: id, Status: domain.StatusNew}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	body, _ := json.Marshal([]map[string]string{{"instId": symbol, "ordId": exchangeOrderID}})
	_, err := a.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", string(body))
	return err
}

type okxOrder struct {
	OrdID    string `json:"ordId"`
	State    string `json:"state"`
	AccFillSz string `json:"accFillSz"`
	AvgPx    string `json:"avgPx"`
}

func okxOrderToResult(o okxOrder) exchange.OrderResult {
	qty, _ := decimal.NewFromString(o.AccFillSz)
	avg, _ := decimal.NewFromString(o.AvgPx)
	return exchange.OrderResult{
		ExchangeOrderID: o.OrdID,
		Status:          okxStatusToCanonical(o.State),
		FilledQuantity:  qty,
		AveragePrice:    avg,
	}
}

func okxStatusToCanonical(raw string) domain.CanonicalStatus {
	switch strings.ToLower(raw) {
	case "live":
		return domain.StatusNew
	case "partially_filled":
		return domain.StatusPartiallyFilled
	case "filled":
		return domain.StatusFilled
	case "canceled":
		return domain.StatusCancelled
	case "mmp_canceled":
		return domain.StatusCancelled
	default:
		return domain.StatusNew
	}
}

func (a *Adapter) FetchOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	path := fmt.Sprintf("/api/v5/trade/order?instId=%s&ordId=%s", symbol, exchangeOrderID)
	data, err := a.doRequest(ctx, http.MethodGet, path, "")
	if err != nil {
		return exchange.OrderResult{}, err
	}
	var orders []okxOrder
	if err := json.Unmarshal(data, &orders); err != nil || len(orders) == 0 {
		return exchange.OrderResult{}, fmt.Errorf("okx: order %s not found", exchangeOrderID)
	}
	return okxOrderToResult(orders[0]), nil
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	path := fmt.Sprintf("/api/v5/trade/orders-pending?instId=%s", symbol)
	data, err := a.doRequest(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	var orders []okxOrder
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("okx: parse open orders: %w", err)
	}
	out := make([]exchange.OrderResult, 0, len(orders))
	for _, o := range orders {
		out = append(out, okxOrderToResult(o))
	}
	return out, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/api/v5/market/ticker?instId=%s", instIDFor(market, symbol))
	data, err := a.doRequest(ctx, http.MethodGet, path, "")
	if err != nil {
		return decimal.Zero, err
	}
	var tickers []struct {
		Last string `json:"last"`
	}
	if err := json.Unmarshal(data, &tickers); err != nil || len(tickers) == 0 {
		return decimal.Zero, fmt.Errorf("okx: ticker for %s not found", symbol)
	}
	return decimal.NewFromString(tickers[0].Last)
}

func (a *Adapter) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	data, err := a.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", "")
	if err != nil {
		return decimal.Zero, err
	}
	var balances []struct {
		TotalEq string `json:"totalEq"`
	}
	if err := json.Unmarshal(data, &balances); err != nil || len(balances) == 0 {
		return decimal.Zero, fmt.Errorf("okx: balance unavailable")
	}
	return decimal.NewFromString(balances[0].TotalEq)
}

// CreateBatchOrders uses OKX's native batch-orders endpoint, which
// accepts up to 20 orders per call and reports each element's success or
// failure independently — matching this system's partial-success
// contract natively rather than needing a client-side loop.
func (a *Adapter) CreateBatchOrders(ctx context.Context, reqs []exchange.OrderRequest) ([]exchange.BatchOrderOutcome, error) {
	const chunkSize = 20
	out := make([]exchange.BatchOrderOutcome, 0, len(reqs))
	for i := 0; i < len(reqs); i += chunkSize {
		end := i + chunkSize
		if end > len(reqs) {
			end = len(reqs)
		}
		batch := make([]map[string]interface{}, 0, end-i)
		for _, req := range reqs[i:end] {
			orderType, err := orderTypeString(req.OrderType)
			if err != nil {
				out = append(out, exchange.BatchOrderOutcome{Err: err})
				continue
			}
			row := map[string]interface{}{
				"instId":  instIDFor(req.Market, req.Symbol),
				"tdMode":  tdModeFor(req.Market),
				"side":    sideString(req.Side),
				"ordType": orderType,
				"sz":      req.Quantity.String(),
			}
			if req.OrderType.RequiresPrice() {
				row["px"] = req.Price.String()
			}
			batch = append(batch, row)
		}
		payload, _ := json.Marshal(batch)
		data, err := a.doRequest(ctx, http.MethodPost, "/api/v5/trade/batch-orders", string(payload))
		if err != nil {
			for range batch {
				out = append(out, exchange.BatchOrderOutcome{Err: err})
			}
			continue
		}
		var results []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		}
		if err := json.Unmarshal(data, &results); err != nil {
			out = append(out, exchange.BatchOrderOutcome{Err: fmt.Errorf("okx: parse batch response: %w", err)})
			continue
		}
		for _, r := range results {
			if r.SCode != "0" {
				out = append(out, exchange.BatchOrderOutcome{Err: fmt.Errorf("okx: %s: %s", r.SCode, r.SMsg)})
				continue
			}
			out = append(out, exchange.BatchOrderOutcome{Result: exchange.OrderResult{ExchangeOrderID: r.OrdID, Status: domain.StatusNew}})
		}
	}
	return out, nil
}

func (a *Adapter) GetPrecision(ctx context.Context, market domain.MarketType, symbol string) (exchange.Precision, error) {
	instType := "SPOT"
	if market == domain.MarketFutures {
		instType = "SWAP"
	}
	path := fmt.Sprintf("/api/v5/public/instruments?instType=%s&instId=%s", instType, instIDFor(market, symbol))
	data, err := a.doRequest(ctx, http.MethodGet, path, "")
	if err != nil {
		return exchange.Precision{}, err
	}
	var instruments []struct {
		LotSz  string `json:"lotSz"`
		MinSz  string `json:"minSz"`
		TickSz string `json:"tickSz"`
	}
	if err := json.Unmarshal(data, &instruments); err != nil || len(instruments) == 0 {
		return exchange.Precision{}, fmt.Errorf("okx: instrument %s not found", symbol)
	}
	row := instruments[0]
	p := exchange.Precision{}
	p.StepSize, _ = decimal.NewFromString(row.LotSz)
	p.MinQuantity, _ = decimal.NewFromString(row.MinSz)
	p.TickSize, _ = decimal.NewFromString(row.TickSz)
	return p, nil
}
