// Package trading implements the Trading Core (spec.md §4.7): the signal
// execution orchestrator wiring the Quantity Calculator, Symbol Validator,
// Order Queue Manager, Exchange Adapters, Position/Record/Order Managers,
// and Event Emitter into the per-account worker pool the webhook handler
// drives.
//
// Grounded on the teacher's auto_trader.go dispatch loop: one goroutine per
// target (there, per running bot; here, per StrategyAccount), coordinated
// with a sync.WaitGroup and a buffered channel used as a concurrency
// semaphore, never a generic worker-pool library.
package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/config"
	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/events"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/openorder"
	"github.com/synapsetrade/core/orderqueue"
	"github.com/synapsetrade/core/position"
	"github.com/synapsetrade/core/pricecache"
	"github.com/synapsetrade/core/quantity"
	"github.com/synapsetrade/core/quantize"
	"github.com/synapsetrade/core/record"
	"github.com/synapsetrade/core/status"
)

// maxAccountWorkers bounds per-signal concurrency (spec.md §5: "≤10
// workers by default, capped by number of target accounts").
const maxAccountWorkers = 10

// WSSubscriber is the minimal capability the Trading Core needs from the
// WebSocket Pool: attempting a private-feed symbol subscription after a
// LIMIT/STOP order is accepted (spec.md §4.7 step e). *wspool.Pool
// satisfies this.
type WSSubscriber interface {
	SubscribeSymbol(accountID int64, symbol string, subscribeFn func() error) error
}

// EntitySource is the narrow persistence capability the Trading Core
// needs from the catalog store. *store.EntityStore satisfies this
// directly; tests substitute an in-memory fake.
type EntitySource interface {
	GetStrategyByGroupName(ctx context.Context, groupName string) (*domain.Strategy, error)
	ValidTokensForStrategy(ctx context.Context, ownerUserID int64, strategyID int64, isPublic bool) (map[string]bool, error)
	ListActiveStrategyAccounts(ctx context.Context, strategyID int64) ([]*domain.StrategyAccount, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetStrategyCapital(ctx context.Context, strategyAccountID int64) (*domain.StrategyCapital, error)
	InsertTradeExecution(ctx context.Context, e *domain.TradeExecution) error
}

// AdapterSource resolves an Account's Exchange Adapter. *AdapterResolver
// satisfies this directly; tests substitute a fake that never dials a
// real exchange.
type AdapterSource interface {
	AdapterForAccount(ctx context.Context, accountID int64) (exchange.Adapter, error)
}

// Core is the Trading Core (spec.md §4.7).
type Core struct {
	entities   EntitySource
	adapters   AdapterSource
	precision  *PrecisionCache
	priceCache *pricecache.Cache
	queue      *orderqueue.Manager
	positions  *position.Manager
	records    *record.Manager
	openOrders *openorder.Manager
	emitter    *events.Emitter
	ws         WSSubscriber
	cfg        *config.Config
}

func New(
	entities EntitySource,
	adapters AdapterSource,
	precision *PrecisionCache,
	priceCache *pricecache.Cache,
	queue *orderqueue.Manager,
	positions *position.Manager,
	records *record.Manager,
	openOrders *openorder.Manager,
	emitter *events.Emitter,
	ws WSSubscriber,
	cfg *config.Config,
) *Core {
	return &Core{
		entities:   entities,
		adapters:   adapters,
		precision:  precision,
		priceCache: priceCache,
		queue:      queue,
		positions:  positions,
		records:    records,
		openOrders: openOrders,
		emitter:    emitter,
		ws:         ws,
		cfg:        cfg,
	}
}

// SignalInput is one order within a webhook request (spec.md §6); a
// non-batch webhook is exactly one of these.
type SignalInput struct {
	Symbol    string
	Side      domain.Side
	OrderType domain.OrderType
	Qty       *decimal.Decimal
	QtyPer    *decimal.Decimal
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
	OrderID   string // CANCEL
}

// SignalRequest is the full webhook envelope (spec.md §6); Orders has
// exactly one element for a non-batch request.
type SignalRequest struct {
	GroupName string
	Token     string
	TestMode  bool
	Orders    []SignalInput
}

// AccountActionResult is one results[i] element of the webhook response
// (spec.md §6).
type AccountActionResult struct {
	AccountID       int64
	Symbol          string
	OrderType       domain.OrderType
	Success         bool
	Error           string
	ErrorType       errkind.Kind
	ExchangeOrderID string
	Status          domain.CanonicalStatus
	Queued          bool
	Priority        int
}

// Summary mirrors spec.md §6's summary object.
type Summary struct {
	TotalAccounts     int
	ExecutedAccounts  int
	SuccessfulTrades  int
	FailedTrades      int
	InactiveAccounts  int
}

// PerformanceMetrics mirrors spec.md §6's performance_metrics object.
// Neither Execute nor api/webhook.go uses this type; the webhook handler
// builds its own performancePayload for the response.
type PerformanceMetrics struct {
	ValidationTimeMS     int64
	PreprocessingTimeMS  int64
	TotalProcessingTimeMS int64
}

// SignalResult is the full webhook response shape (spec.md §6).
type SignalResult struct {
	Action     string
	Strategy   string
	MarketType domain.MarketType
	Success    bool
	Results    []AccountActionResult
	Summary    Summary
}

// Execute implements spec.md §4.7's signal execution algorithm for a
// (possibly batched) webhook request.
func (c *Core) Execute(ctx context.Context, req SignalRequest) (SignalResult, error) {
	strategy, accounts, err := c.resolve(ctx, req)
	if err != nil {
		return SignalResult{}, err
	}

	action := "signal"
	if len(req.Orders) > 1 {
		action = "batch_signal"
	}
	result := SignalResult{Action: action, Strategy: req.GroupName, MarketType: strategy.MarketType, Success: true}
	result.Summary.TotalAccounts = len(accounts)

	batchSummary := map[string]*events.BatchSummary{}
	var successfulAccounts int

	for _, order := range req.Orders {
		perOrder := c.executeOrderAcrossAccounts(ctx, strategy, accounts, order)
		result.Results = append(result.Results, perOrder...)
		for _, r := range perOrder {
			result.Summary.ExecutedAccounts++
			if r.Success {
				result.Summary.SuccessfulTrades++
				successfulAccounts++
			} else {
				result.Summary.FailedTrades++
			}
			key := string(order.OrderType)
			bs, ok := batchSummary[key]
			if !ok {
				bs = &events.BatchSummary{OrderType: order.OrderType}
				batchSummary[key] = bs
			}
			if r.Success {
				if order.OrderType == domain.OrderCancel || order.OrderType == domain.OrderCancelAll {
					bs.Cancelled++
				} else {
					bs.Created++
				}
			}
		}
	}

	if successfulAccounts == 0 && len(accounts) > 0 {
		result.Success = false
	}

	if successfulAccounts > 1 {
		summaries := make([]events.BatchSummary, 0, len(batchSummary))
		for _, bs := range batchSummary {
			summaries = append(summaries, *bs)
		}
		c.emitter.EmitOrderBatchUpdate(ctx, events.OrderBatchEvent{
			Summaries:  summaries,
			StrategyID: strategy.ID,
			UserID:     strategy.UserID,
			Timestamp:  time.Now(),
		})
	}

	return result, nil
}

// resolve implements spec.md §4.7 steps 1-2: strategy lookup + auth, then
// enumerate active StrategyAccounts with active Accounts.
func (c *Core) resolve(ctx context.Context, req SignalRequest) (*domain.Strategy, []*domain.StrategyAccount, error) {
	strategy, err := c.entities.GetStrategyByGroupName(ctx, req.GroupName)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.InternalError, "failed to look up strategy", err)
	}
	if strategy == nil || !strategy.IsActive {
		return nil, nil, errkind.New(errkind.AuthError, "unknown or inactive strategy")
	}

	if !req.TestMode {
		valid, err := c.entities.ValidTokensForStrategy(ctx, strategy.UserID, strategy.ID, strategy.IsPublic)
		if err != nil {
			return nil, nil, errkind.Wrap(errkind.InternalError, "failed to validate token", err)
		}
		if !valid[req.Token] {
			return nil, nil, errkind.New(errkind.AuthError, "invalid token")
		}
	}

	links, err := c.entities.ListActiveStrategyAccounts(ctx, strategy.ID)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.InternalError, "failed to list strategy accounts", err)
	}

	active := make([]*domain.StrategyAccount, 0, len(links))
	for _, sa := range links {
		acct, err := c.entities.GetAccount(ctx, sa.AccountID)
		if err != nil {
			logger.Warnf("trading: failed to load account %d for strategy %d: %v", sa.AccountID, strategy.ID, err)
			continue
		}
		if acct == nil || !acct.IsActive {
			continue
		}
		active = append(active, sa)
	}

	return strategy, active, nil
}

// executeOrderAcrossAccounts implements spec.md §4.7 step 3: a bounded
// worker per StrategyAccount, sequential within the account.
func (c *Core) executeOrderAcrossAccounts(ctx context.Context, strategy *domain.Strategy, accounts []*domain.StrategyAccount, order SignalInput) []AccountActionResult {
	results := make([]AccountActionResult, len(accounts))
	sem := make(chan struct{}, maxAccountWorkers)
	var wg sync.WaitGroup

	for i, sa := range accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sa *domain.StrategyAccount) {
			defer wg.Done()
			defer func() { <-sem }()

			acctCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchAccountTimeout)
			defer cancel()

			results[i] = c.executeForAccount(acctCtx, strategy, sa, order)
		}(i, sa)
	}
	wg.Wait()
	return results
}

// executeForAccount implements spec.md §4.7 step 3(a-f) for one account.
func (c *Core) executeForAccount(ctx context.Context, strategy *domain.Strategy, sa *domain.StrategyAccount, order SignalInput) AccountActionResult {
	res := AccountActionResult{AccountID: sa.AccountID, Symbol: order.Symbol, OrderType: order.OrderType}

	if ctx.Err() != nil {
		res.Error = "account task deadline exceeded"
		res.ErrorType = errkind.TimeoutError
		return res
	}

	adapter, err := c.adapters.AdapterForAccount(ctx, sa.AccountID)
	if err != nil {
		res.Error = err.Error()
		res.ErrorType = errkind.ExchangeError
		return res
	}

	switch order.OrderType {
	case domain.OrderCancel:
		return c.executeCancel(ctx, strategy, sa, order, res)
	case domain.OrderCancelAll:
		return c.executeCancelAll(ctx, strategy, sa, order, res)
	}

	precision, err := c.precision.Get(ctx, adapter, strategy.MarketType, order.Symbol)
	if err != nil {
		res.Error = err.Error()
		res.ErrorType = errkind.ExchangeError
		return res
	}

	capital, err := c.entities.GetStrategyCapital(ctx, sa.ID)
	if err != nil {
		res.Error = "failed to load allocated capital"
		res.ErrorType = errkind.InternalError
		return res
	}
	allocated := decimal.Zero
	if capital != nil {
		allocated = capital.AllocatedCapital
	}

	currentPosition, err := c.positions.CurrentQuantity(ctx, sa.ID, order.Symbol)
	if err != nil {
		res.Error = "failed to load current position"
		res.ErrorType = errkind.InternalError
		return res
	}

	qr := quantity.Request{
		Exchange:        adapter.Exchange(),
		Market:          strategy.MarketType,
		Symbol:          order.Symbol,
		OrderType:       order.OrderType,
		Side:            order.Side,
		Qty:             order.Qty,
		QtyPer:          order.QtyPer,
		Price:           order.Price,
		StopPrice:       order.StopPrice,
		AllocatedCapital: allocated,
		Leverage:        sa.Leverage,
		CurrentPosition: currentPosition,
		Precision: quantize.Precision{
			StepSize: precision.StepSize, TickSize: precision.TickSize,
			MinQuantity: precision.MinQuantity, MinNotional: precision.MinNotional,
		},
	}

	priceSrc := &tickerPriceSource{cache: c.priceCache, adapter: adapter}
	qty, err := quantity.Calculate(ctx, priceSrc, qr)
	if err != nil {
		return qtyErrorResult(res, err)
	}

	validated := quantize.ValidateOrderParams(precision, qty.Quantity, qty.EffectivePrice)
	if !validated.Success {
		res.Error = validated.Error
		res.ErrorType = errkind.QuantityCalculationError
		return res
	}

	if order.OrderType.IsQueued() {
		return c.executeQueued(ctx, strategy, sa, order, validated, res)
	}

	return c.executeMarket(ctx, strategy, sa, adapter, order, validated, res)
}

func qtyErrorResult(res AccountActionResult, err error) AccountActionResult {
	if ee, ok := errkind.As(err); ok {
		res.Error = ee.Message
		res.ErrorType = ee.Kind
	} else {
		res.Error = err.Error()
		res.ErrorType = errkind.QuantityCalculationError
	}
	return res
}

func (c *Core) executeCancel(ctx context.Context, strategy *domain.Strategy, sa *domain.StrategyAccount, order SignalInput, res AccountActionResult) AccountActionResult {
	if order.OrderID == "" {
		res.Error = "order_id is required for CANCEL"
		res.ErrorType = errkind.ValidationError
		return res
	}
	if err := c.openOrders.CancelOrder(ctx, sa.AccountID, order.Symbol, order.OrderID); err != nil {
		res.Error = err.Error()
		res.ErrorType = errkind.ExchangeError
		return res
	}
	res.Success = true
	res.ExchangeOrderID = order.OrderID
	res.Status = domain.StatusCancelled
	return res
}

func (c *Core) executeCancelAll(ctx context.Context, strategy *domain.Strategy, sa *domain.StrategyAccount, order SignalInput, res AccountActionResult) AccountActionResult {
	filter := openorder.ListFilter{UserID: strategy.UserID, StrategyID: strategy.ID, AccountID: &sa.AccountID}
	if order.Symbol != "" {
		filter.Symbol = &order.Symbol
	}
	if order.Side != "" {
		filter.Side = &order.Side
	}
	out, err := c.openOrders.CancelAllOrdersByUser(ctx, sa.AccountID, filter)
	if err != nil {
		res.Error = err.Error()
		res.ErrorType = errkind.InternalError
		return res
	}
	res.Success = out.Success
	if !out.Success && len(out.Failed) > 0 {
		res.Error = fmt.Sprintf("%d cancellations failed", len(out.Failed))
		res.ErrorType = errkind.ExchangeError
	}
	return res
}

// executeQueued implements spec.md §4.7 step 3b: enqueue under
// commit=false, never touching the exchange.
func (c *Core) executeQueued(ctx context.Context, strategy *domain.Strategy, sa *domain.StrategyAccount, order SignalInput, validated quantize.Result, res AccountActionResult) AccountActionResult {
	pending := &domain.PendingOrder{
		StrategyAccountID: sa.ID,
		Symbol:            order.Symbol,
		Side:              order.Side,
		OrderType:         order.OrderType,
		Quantity:          validated.AdjustedQuantity,
		Price:             validated.AdjustedPrice,
		Reason:            "enqueued by signal",
	}
	if order.StopPrice != nil {
		pending.StopPrice = *order.StopPrice
	}

	if err := c.queue.Enqueue(pending, orderqueue.EnqueueOptions{Commit: false}); err != nil {
		res.Error = err.Error()
		res.ErrorType = errkind.InternalError
		return res
	}

	res.Success = true
	res.Queued = true
	res.Priority = pending.Priority
	res.Status = domain.StatusPending

	c.emitter.EmitPendingOrderEvent(ctx, events.OrderEvent{
		OrderID: fmt.Sprintf("pending:%d", pending.ID), Symbol: order.Symbol, StrategyID: strategy.ID,
		UserID: strategy.UserID, Side: order.Side, Quantity: validated.AdjustedQuantity,
		Price: validated.AdjustedPrice, Status: domain.StatusPending, OrderType: order.OrderType,
		Account: events.AccountRef{AccountID: sa.AccountID},
	})
	return res
}

// executeMarket implements spec.md §4.7 steps 3c/3d/3f for MARKET orders:
// direct submission, immediate-fill polling, then Position/Record Manager
// application.
func (c *Core) executeMarket(ctx context.Context, strategy *domain.Strategy, sa *domain.StrategyAccount, adapter exchange.Adapter, order SignalInput, validated quantize.Result, res AccountActionResult) AccountActionResult {
	submitted, err := adapter.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: order.Symbol, Market: strategy.MarketType, Side: order.Side, OrderType: order.OrderType,
		Quantity: validated.AdjustedQuantity, Price: validated.AdjustedPrice,
	})
	if err != nil {
		res.Error = err.Error()
		res.ErrorType = errkind.ExchangeError
		return res
	}
	submitted.Status = status.Transform(string(submitted.Status), adapter.Exchange())
	res.ExchangeOrderID = submitted.ExchangeOrderID

	final := c.pollMarketFill(ctx, adapter, order.Symbol, submitted)

	if !final.Status.IsTerminal() || final.Status != domain.StatusFilled {
		if final.FilledQuantity.Sign() <= 0 {
			if err := c.openOrders.CreateOpenOrderRecord(ctx, &domain.OpenOrder{
				ExchangeOrderID: submitted.ExchangeOrderID, StrategyAccountID: sa.ID, Symbol: order.Symbol,
				Side: order.Side, OrderType: order.OrderType, Quantity: validated.AdjustedQuantity,
				FilledQuantity: final.FilledQuantity, Price: validated.AdjustedPrice, Status: final.Status,
				MarketType: strategy.MarketType,
			}); err != nil {
				logger.Warnf("trading: failed to persist unfilled MARKET order %s: %v", submitted.ExchangeOrderID, err)
			}
			res.Success = true
			res.Status = final.Status
			return res
		}
	}

	if err := c.applyFill(ctx, strategy, sa, adapter, order, final); err != nil {
		res.Error = err.Error()
		if ee, ok := errkind.As(err); ok {
			res.ErrorType = ee.Kind
		} else {
			res.ErrorType = errkind.InternalError
		}
		return res
	}

	res.Success = true
	res.Status = domain.StatusFilled
	return res
}

// pollMarketFill implements spec.md §4.7 step 3d's retry schedule.
func (c *Core) pollMarketFill(ctx context.Context, adapter exchange.Adapter, symbol string, submitted exchange.OrderResult) exchange.OrderResult {
	if submitted.Status == domain.StatusFilled {
		return submitted
	}
	if c.cfg.MarketOrderDelay > 0 {
		sleepOrDone(ctx, c.cfg.MarketOrderDelay)
	}

	current := submitted
	delays := c.cfg.MarketOrderRetryDelays
	maxRetries := c.cfg.MaxMarketOrderRetries
	if maxRetries > 0 && maxRetries < len(delays) {
		delays = delays[:maxRetries]
	}

	for attempt, delay := range delays {
		if ctx.Err() != nil {
			return current
		}
		sleepOrDone(ctx, delay)

		result, err := adapter.FetchOrder(ctx, symbol, submitted.ExchangeOrderID)
		if err != nil {
			logger.Warnf("trading: fetch_order poll failed for %s (attempt %d): %v", submitted.ExchangeOrderID, attempt+1, err)
			continue
		}
		result.Status = status.Transform(string(result.Status), adapter.Exchange())
		current = result
		if current.Status == domain.StatusFilled {
			return current
		}
		if attempt+1 >= 4 {
			logger.Warnf("trading: MARKET order %s still unfilled after %d polls", submitted.ExchangeOrderID, attempt+1)
		}
	}
	return current
}

func sleepOrDone(ctx context.Context, d time.Duration) {
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

// applyFill implements spec.md §4.8 process_order_fill steps 1-6.
func (c *Core) applyFill(ctx context.Context, strategy *domain.Strategy, sa *domain.StrategyAccount, adapter exchange.Adapter, order SignalInput, result exchange.OrderResult) error {
	price := result.AveragePrice
	if price.Sign() <= 0 {
		detail, err := c.priceCache.Get(ctx, adapter, adapter.Exchange(), strategy.MarketType, order.Symbol, true)
		if err != nil {
			return errkind.New(errkind.ExecutionPriceUnavailable, "no execution price and ticker fallback failed")
		}
		price = detail.Price
	}
	if price.Sign() <= 0 {
		return errkind.New(errkind.ExecutionPriceUnavailable, "no resolvable execution price")
	}

	orderPrice := result.AdjustedPrice
	if orderPrice.IsZero() && order.Price != nil {
		orderPrice = *order.Price
	}

	outcome, err := c.records.CreateTradeRecord(ctx, record.CreateTradeRecordInput{
		StrategyAccountID: sa.ID, ExchangeOrderID: result.ExchangeOrderID, Symbol: order.Symbol,
		Side: order.Side, Quantity: result.FilledQuantity, Price: price, OrderPrice: orderPrice,
		OrderType: order.OrderType,
	})
	if err != nil {
		return err
	}

	var positionOutcome position.Outcome
	if outcome.QuantityDelta.Sign() > 0 {
		precision, _ := c.precision.Get(ctx, adapter, strategy.MarketType, order.Symbol)
		positionOutcome, err = c.positions.UpdatePosition(ctx, sa.ID, order.Symbol, order.Side, outcome.QuantityDelta, price, quantize.Precision{
			StepSize: precision.StepSize, TickSize: precision.TickSize,
			MinQuantity: precision.MinQuantity, MinNotional: precision.MinNotional,
		}, domain.PositionEventMeta{
			StrategyID: strategy.ID, UserID: strategy.UserID,
			AccountID: sa.AccountID, Exchange: adapter.Exchange(),
		})
		if err != nil {
			return err
		}
	}

	if outcome.Trade != nil {
		if err := c.entities.InsertTradeExecution(ctx, &domain.TradeExecution{
			TradeID: outcome.Trade.ID, VenueTradeID: result.ExchangeOrderID,
			Quantity: result.FilledQuantity, Price: price,
		}); err != nil {
			logger.Warnf("trading: failed to persist trade execution for %s: %v", result.ExchangeOrderID, err)
		}
	}

	if !outcome.DuplicatePrevented {
		c.emitter.EmitOrderEventsSmart(ctx, events.FillContext{
			WasPersistedLocally: false,
			Order: events.OrderEvent{
				OrderID: result.ExchangeOrderID, Symbol: order.Symbol, StrategyID: strategy.ID, UserID: strategy.UserID,
				Side: order.Side, Quantity: result.FilledQuantity, Price: price, Status: domain.StatusFilled,
				Timestamp: time.Now(), OrderType: order.OrderType, Account: events.AccountRef{AccountID: sa.AccountID, Exchange: adapter.Exchange()},
			},
		})
	}

	if positionOutcome.Skipped {
		logger.Warnf("trading: position update skipped for account=%d symbol=%s reason=%s (fill %s already recorded)", sa.ID, order.Symbol, positionOutcome.SkipReason, result.ExchangeOrderID)
	}
	return nil
}
