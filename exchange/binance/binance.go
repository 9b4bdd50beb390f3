// Package binance wraps github.com/adshao/go-binance/v2 behind the
// exchange.Adapter interface. Grounded on the NewCreateOrderService /
// NewCancelOrderService / NewExchangeInfoService call pattern observed
// in the pack's predator_engine.go (the only example repo actually
// importing adshao/go-binance/v2), generalized from its futures-only
// scalping use to both SPOT and FUTURES per spec.md §6's limits table.
package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/exchange"
)

// Adapter implements exchange.Adapter for one Binance account, dispatching
// to either the spot or futures go-binance client depending on the
// request's MarketType.
type Adapter struct {
	spot       *binance.Client
	futures    *futures.Client
	rateLimiter *rate.Limiter
}

func New(apiKey, secretKey string) *Adapter {
	return &Adapter{
		spot:        binance.NewClient(apiKey, secretKey),
		futures:     futures.NewClient(apiKey, secretKey),
		rateLimiter: exchange.NewLimiter(10, 20),
	}
}

func (a *Adapter) Exchange() domain.Exchange { return domain.Binance }

func futuresSide(s domain.Side) futures.SideType {
	if s == domain.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func spotSide(s domain.Side) binance.SideType {
	if s == domain.Sell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func (a *Adapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return exchange.OrderResult{}, err
	}
	if req.Market == domain.MarketFutures {
		return a.createFuturesOrder(ctx, req)
	}
	return a.createSpotOrder(ctx, req)
}

func (a *Adapter) createFuturesOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	svc := a.futures.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futuresSide(req.Side)).
		Quantity(req.Quantity.String())

	switch req.OrderType {
	case domain.OrderMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	case domain.OrderLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(req.Price.String())
	case domain.OrderStopMarket:
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(req.StopPrice.String()).
			WorkingType(futures.WorkingTypeMarkPrice)
	case domain.OrderStopLimit:
		svc = svc.Type(futures.OrderTypeStop).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(req.Price.String()).
			StopPrice(req.StopPrice.String()).
			WorkingType(futures.WorkingTypeMarkPrice)
	default:
		return exchange.OrderResult{}, fmt.Errorf("binance: unsupported futures order type %s", req.OrderType)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance: futures create order: %w", err)
	}
	return futuresOrderToResult(res), nil
}

func (a *Adapter) createSpotOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	svc := a.spot.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(spotSide(req.Side)).
		Quantity(req.Quantity.String())

	switch req.OrderType {
	case domain.OrderMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	case domain.OrderLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	case domain.OrderStopLimit:
		svc = svc.Type(binance.OrderTypeStopLossLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String()).
			StopPrice(req.StopPrice.String())
	default:
		return exchange.OrderResult{}, fmt.Errorf("binance: unsupported spot order type %s", req.OrderType)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance: spot create order: %w", err)
	}
	return spotOrderToResult(res), nil
}

func futuresOrderToResult(res *futures.CreateOrderResponse) exchange.OrderResult {
	qty, _ := decimal.NewFromString(res.ExecutedQuantity)
	avg, _ := decimal.NewFromString(res.AvgPrice)
	return exchange.OrderResult{
		ExchangeOrderID: fmt.Sprintf("%d", res.OrderID),
		Status:          futuresStatusToCanonical(string(res.Status)),
		FilledQuantity:  qty,
		AveragePrice:    avg,
	}
}

func spotOrderToResult(res *binance.CreateOrderResponse) exchange.OrderResult {
	qty, _ := decimal.NewFromString(res.ExecutedQuantity)
	avg := decimal.Zero
	if qty.IsPositive() && res.CummulativeQuoteQuantity != "" {
		cum, err := decimal.NewFromString(res.CummulativeQuoteQuantity)
		if err == nil {
			avg = cum.Div(qty)
		}
	}
	return exchange.OrderResult{
		ExchangeOrderID: fmt.Sprintf("%d", res.OrderID),
		Status:          futuresStatusToCanonical(string(res.Status)),
		FilledQuantity:  qty,
		AveragePrice:    avg,
	}
}

// futuresStatusToCanonical maps Binance's raw order status (spot and
// futures share the vocabulary) with a local table; it does not call
// status.Transform. PENDING_CANCEL maps to CANCELLED and any value not
// listed maps to NEW.
func futuresStatusToCanonical(raw string) domain.CanonicalStatus {
	switch strings.ToUpper(raw) {
	case "NEW":
		return domain.StatusNew
	case "PARTIALLY_FILLED":
		return domain.StatusPartiallyFilled
	case "FILLED":
		return domain.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return domain.StatusCancelled
	case "REJECTED":
		return domain.StatusRejected
	case "EXPIRED":
		return domain.StatusExpired
	default:
		return domain.StatusNew
	}
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	var id int64
	fmt.Sscanf(exchangeOrderID, "%d", &id)
	_, err := a.futures.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		_, err2 := a.spot.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		if err2 != nil {
			return fmt.Errorf("binance: cancel order %s/%s: futures=%v spot=%v", symbol, exchangeOrderID, err, err2)
		}
	}
	return nil
}

func (a *Adapter) FetchOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	var id int64
	fmt.Sscanf(exchangeOrderID, "%d", &id)
	res, err := a.futures.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err == nil {
		qty, _ := decimal.NewFromString(res.ExecutedQuantity)
		avg, _ := decimal.NewFromString(res.AvgPrice)
		return exchange.OrderResult{
			ExchangeOrderID: exchangeOrderID,
			Status:          futuresStatusToCanonical(string(res.Status)),
			FilledQuantity:  qty,
			AveragePrice:    avg,
		}, nil
	}
	spotRes, err2 := a.spot.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err2 != nil {
		return exchange.OrderResult{}, fmt.Errorf("binance: fetch order %s/%s: futures=%v spot=%v", symbol, exchangeOrderID, err, err2)
	}
	qty, _ := decimal.NewFromString(spotRes.ExecutedQuantity)
	return exchange.OrderResult{
		ExchangeOrderID: exchangeOrderID,
		Status:          futuresStatusToCanonical(string(spotRes.Status)),
		FilledQuantity:  qty,
	}, nil
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	res, err := a.futures.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: list open orders: %w", err)
	}
	out := make([]exchange.OrderResult, 0, len(res))
	for _, o := range res {
		qty, _ := decimal.NewFromString(o.ExecutedQuantity)
		out = append(out, exchange.OrderResult{
			ExchangeOrderID: fmt.Sprintf("%d", o.OrderID),
			Status:          futuresStatusToCanonical(string(o.Status)),
			FilledQuantity:  qty,
		})
	}
	return out, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	if market == domain.MarketFutures {
		res, err := a.futures.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil || len(res) == 0 {
			return decimal.Zero, fmt.Errorf("binance: futures ticker for %s: %w", symbol, err)
		}
		return decimal.NewFromString(res[0].Price)
	}
	res, err := a.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil || len(res) == 0 {
		return decimal.Zero, fmt.Errorf("binance: spot ticker for %s: %w", symbol, err)
	}
	return decimal.NewFromString(res[0].Price)
}

func (a *Adapter) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	res, err := a.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: futures balance: %w", err)
	}
	total := decimal.Zero
	for _, b := range res {
		bal, err := decimal.NewFromString(b.Balance)
		if err == nil {
			total = total.Add(bal)
		}
	}
	return total, nil
}

// CreateBatchOrders has no native futures batch endpoint exposed by
// go-binance/v2 for every order type this system supports, so orders are
// placed sequentially with independent error isolation (spec.md §4.2).
func (a *Adapter) CreateBatchOrders(ctx context.Context, reqs []exchange.OrderRequest) ([]exchange.BatchOrderOutcome, error) {
	out := make([]exchange.BatchOrderOutcome, 0, len(reqs))
	for _, req := range reqs {
		res, err := a.CreateOrder(ctx, req)
		out = append(out, exchange.BatchOrderOutcome{Result: res, Err: err})
	}
	return out, nil
}

func (a *Adapter) GetPrecision(ctx context.Context, market domain.MarketType, symbol string) (exchange.Precision, error) {
	if market == domain.MarketFutures {
		info, err := a.futures.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return exchange.Precision{}, fmt.Errorf("binance: futures exchange info: %w", err)
		}
		for _, s := range info.Symbols {
			if s.Symbol != symbol {
				continue
			}
			return futuresSymbolPrecision(s), nil
		}
		return exchange.Precision{}, fmt.Errorf("binance: unknown futures symbol %s", symbol)
	}

	info, err := a.spot.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.Precision{}, fmt.Errorf("binance: spot exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		return spotSymbolPrecision(s), nil
	}
	return exchange.Precision{}, fmt.Errorf("binance: unknown spot symbol %s", symbol)
}

func futuresSymbolPrecision(s *futures.Symbol) exchange.Precision {
	p := exchange.Precision{}
	if lot := s.LotSizeFilter(); lot != nil {
		p.StepSize, _ = decimal.NewFromString(lot.StepSize)
		p.MinQuantity, _ = decimal.NewFromString(lot.MinQuantity)
	}
	if pf := s.PriceFilter(); pf != nil {
		p.TickSize, _ = decimal.NewFromString(pf.TickSize)
	}
	if mn := s.MinNotionalFilter(); mn != nil {
		p.MinNotional, _ = decimal.NewFromString(mn.Notional)
	}
	return p
}

func spotSymbolPrecision(s binance.Symbol) exchange.Precision {
	p := exchange.Precision{}
	if lot := s.LotSizeFilter(); lot != nil {
		p.StepSize, _ = decimal.NewFromString(lot.StepSize)
		p.MinQuantity, _ = decimal.NewFromString(lot.MinQty)
	}
	if pf := s.PriceFilter(); pf != nil {
		p.TickSize, _ = decimal.NewFromString(pf.TickSize)
	}
	if mn := s.MinNotionalFilter(); mn != nil {
		p.MinNotional, _ = decimal.NewFromString(mn.MinNotional)
	}
	return p
}
