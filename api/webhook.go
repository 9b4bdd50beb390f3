package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/metrics"
	"github.com/synapsetrade/core/store"
	"github.com/synapsetrade/core/trading"
)

// orderPayload is one element of a webhook's order/batch payload
// (spec.md §6).
type orderPayload struct {
	Symbol    string           `json:"symbol"`
	Side      domain.Side      `json:"side"`
	OrderType domain.OrderType `json:"order_type"`
	Qty       *decimal.Decimal `json:"qty"`
	QtyPer    *decimal.Decimal `json:"qty_per"`
	Price     *decimal.Decimal `json:"price"`
	StopPrice *decimal.Decimal `json:"stop_price"`
	OrderID   string           `json:"order_id"`
}

// webhookPayload is the full inbound envelope (spec.md §6): either a
// single order inline, or a batch under "orders".
type webhookPayload struct {
	GroupName string         `json:"group_name"`
	Token     string         `json:"token"`
	TestMode  bool           `json:"test_mode"`
	Orders    []orderPayload `json:"orders"`
	orderPayload
}

// resultPayload mirrors trading.AccountActionResult for the JSON response.
type resultPayload struct {
	AccountID       int64  `json:"account_id"`
	Symbol          string `json:"symbol"`
	OrderType       string `json:"order_type"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	ErrorType       string `json:"error_type,omitempty"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
	Status          string `json:"status,omitempty"`
	Queued          bool   `json:"queued,omitempty"`
	Priority        int    `json:"priority,omitempty"`
}

type summaryPayload struct {
	TotalAccounts    int `json:"total_accounts"`
	ExecutedAccounts int `json:"executed_accounts"`
	SuccessfulTrades int `json:"successful_trades"`
	FailedTrades     int `json:"failed_trades"`
	InactiveAccounts int `json:"inactive_accounts"`
}

type performancePayload struct {
	ValidationTimeMS      int64 `json:"validation_time_ms"`
	PreprocessingTimeMS   int64 `json:"preprocessing_time_ms"`
	TotalProcessingTimeMS int64 `json:"total_processing_time_ms"`
}

type webhookResponse struct {
	Action             string             `json:"action"`
	Strategy           string             `json:"strategy"`
	MarketType         string             `json:"market_type"`
	Success            bool               `json:"success"`
	Results            []resultPayload    `json:"results"`
	Summary            summaryPayload     `json:"summary"`
	PerformanceMetrics performancePayload `json:"performance_metrics"`
}

// WebhookHandler wires the webhook HTTP surface (spec.md §6) onto the
// Trading Core, logging every request as a domain.WebhookLog audit row the
// way the teacher's ingest handler logs every incoming signal.
type WebhookHandler struct {
	core     *trading.Core
	entities *store.EntityStore
}

func NewWebhookHandler(core *trading.Core, entities *store.EntityStore) *WebhookHandler {
	return &WebhookHandler{core: core, entities: entities}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	start := time.Now()

	raw, err := c.GetRawData()
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("false").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read request body"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("false").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed JSON: " + err.Error()})
		return
	}
	validationElapsed := time.Since(start)

	req := toSignalRequest(payload)
	if req.GroupName == "" || len(req.Orders) == 0 {
		metrics.WebhookRequestsTotal.WithLabelValues("false").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "group_name and at least one order are required"})
		return
	}
	preprocessingElapsed := time.Since(start) - validationElapsed

	result, err := h.core.Execute(c.Request.Context(), req)
	total := time.Since(start)

	success := err == nil && result.Success
	metrics.WebhookRequestsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()

	h.logWebhook(c, payload.GroupName, raw, validationElapsed, preprocessingElapsed, total, success)

	if err != nil {
		status := http.StatusInternalServerError
		if ee, ok := errkind.As(err); ok && ee.Kind == errkind.AuthError {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toResponse(result, validationElapsed, preprocessingElapsed, total))
}

func (h *WebhookHandler) logWebhook(c *gin.Context, groupName string, raw []byte, validation, preprocessing, total time.Duration, success bool) {
	entry := &domain.WebhookLog{
		GroupName:             groupName,
		RawPayload:            string(raw),
		ValidationTimeMS:      validation.Milliseconds(),
		PreprocessingTimeMS:   preprocessing.Milliseconds(),
		TotalProcessingTimeMS: total.Milliseconds(),
		Success:               success,
		CreatedAt:             time.Now(),
	}
	if err := h.entities.InsertWebhookLog(c.Request.Context(), entry); err != nil {
		logger.Warnf("api: failed to persist webhook log for group %s: %v", groupName, err)
	}
}

// toSignalRequest normalizes the single-order and batch shapes into one
// trading.SignalRequest (spec.md §6: a non-batch webhook is exactly one
// order).
func toSignalRequest(p webhookPayload) trading.SignalRequest {
	orders := p.Orders
	if len(orders) == 0 && p.orderPayload.Symbol != "" {
		orders = []orderPayload{p.orderPayload}
	}

	inputs := make([]trading.SignalInput, 0, len(orders))
	for _, o := range orders {
		inputs = append(inputs, trading.SignalInput{
			Symbol:    o.Symbol,
			Side:      o.Side,
			OrderType: o.OrderType,
			Qty:       o.Qty,
			QtyPer:    o.QtyPer,
			Price:     o.Price,
			StopPrice: o.StopPrice,
			OrderID:   o.OrderID,
		})
	}

	return trading.SignalRequest{
		GroupName: p.GroupName,
		Token:     p.Token,
		TestMode:  p.TestMode,
		Orders:    inputs,
	}
}

func toResponse(r trading.SignalResult, validation, preprocessing, total time.Duration) webhookResponse {
	results := make([]resultPayload, 0, len(r.Results))
	for _, res := range r.Results {
		rp := resultPayload{
			AccountID:       res.AccountID,
			Symbol:          res.Symbol,
			OrderType:       string(res.OrderType),
			Success:         res.Success,
			Error:           res.Error,
			ExchangeOrderID: res.ExchangeOrderID,
			Status:          string(res.Status),
			Queued:          res.Queued,
			Priority:        res.Priority,
		}
		if res.ErrorType != "" {
			rp.ErrorType = string(res.ErrorType)
		}
		results = append(results, rp)
	}

	return webhookResponse{
		Action:     r.Action,
		Strategy:   r.Strategy,
		MarketType: string(r.MarketType),
		Success:    r.Success,
		Results:    results,
		Summary: summaryPayload{
			TotalAccounts:    r.Summary.TotalAccounts,
			ExecutedAccounts: r.Summary.ExecutedAccounts,
			SuccessfulTrades: r.Summary.SuccessfulTrades,
			FailedTrades:     r.Summary.FailedTrades,
			InactiveAccounts: r.Summary.InactiveAccounts,
		},
		PerformanceMetrics: performancePayload{
			ValidationTimeMS:      validation.Milliseconds(),
			PreprocessingTimeMS:   preprocessing.Milliseconds(),
			TotalProcessingTimeMS: total.Milliseconds(),
		},
	}
}
