package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the owner of strategies and accounts; identity only (spec.md §3).
// WebhookToken is the bearer credential spec.md §6 calls simply "token":
// valid for any strategy this user owns, and for any public strategy one
// of this user's accounts subscribes to via StrategyAccount.
type User struct {
	ID           int64
	Name         string
	WebhookToken string
}

// Account is credentials to one exchange for one user (spec.md §3).
// EncryptedPublicKey/EncryptedSecretKey are sealed with the reversible
// chacha20poly1305 AEAD in credentials.go, never stored in the clear.
type Account struct {
	ID                 int64
	UserID              int64
	Exchange            Exchange
	AccountType         AccountType
	EncryptedPublicKey  []byte
	EncryptedSecretKey  []byte
	Passphrase          *string
	IsTestnet           bool
	IsActive            bool
}

// Strategy is a logical grouping fanned out to multiple accounts (spec.md §3).
type Strategy struct {
	ID         int64
	UserID     int64
	Name       string
	GroupName  string // globally unique external webhook identifier
	MarketType MarketType
	IsActive   bool
	IsPublic   bool
}

// StrategyAccount is the many-to-many link between Strategy and Account
// (spec.md §3). A fill is always recorded against exactly one
// StrategyAccount.
type StrategyAccount struct {
	ID         int64
	StrategyID int64
	AccountID  int64
	Weight     decimal.Decimal
	Leverage   decimal.Decimal
	MaxSymbols int
	IsActive   bool
}

// StrategyCapital is one-per-StrategyAccount (spec.md §3).
type StrategyCapital struct {
	StrategyAccountID int64
	AllocatedCapital  decimal.Decimal
	CurrentPnL        decimal.Decimal
	LastUpdated       time.Time
}

// StrategyPosition is the netted signed position for (StrategyAccount,
// symbol) with a volume-weighted entry price (spec.md §3). Quantity==0 is
// never persisted — the row is deleted instead.
type StrategyPosition struct {
	ID                int64
	StrategyAccountID int64
	Symbol            string
	Quantity          decimal.Decimal // signed: positive long, negative short
	EntryPrice        decimal.Decimal
	LastUpdated       time.Time
}

// PositionEventMeta carries the identity/account context a position
// event needs for routing and display (spec.md §4.11) that the Position
// Manager cannot derive from strategy_account_id alone — the caller
// (Trading Core) already resolved the owning Strategy and Account for
// this fill, so it supplies this alongside the position math inputs.
type PositionEventMeta struct {
	StrategyID int64
	UserID     int64
	AccountID  int64
	Exchange   Exchange
}

// OpenOrder is an exchange-acknowledged order in a non-terminal state
// (spec.md §3).
type OpenOrder struct {
	ID                int64
	ExchangeOrderID   string
	StrategyAccountID int64
	Symbol            string
	Side              Side
	OrderType         OrderType
	Quantity          decimal.Decimal
	FilledQuantity    decimal.Decimal
	Price             decimal.Decimal
	StopPrice         decimal.Decimal
	Status            CanonicalStatus
	MarketType        MarketType
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PendingOrder is a queued LIMIT/STOP order not yet submitted to the
// exchange (spec.md §3).
type PendingOrder struct {
	ID                int64
	StrategyAccountID int64
	Symbol            string
	Side              Side
	OrderType         OrderType
	Quantity          decimal.Decimal
	Price             decimal.Decimal
	StopPrice         decimal.Decimal
	Priority          int
	Reason            string
	EnqueuedAt        time.Time
}

// Trade is one row per fill event, idempotent on
// (StrategyAccountID, ExchangeOrderID) (spec.md §3). Quantity is the
// cumulative filled quantity for the order, per the spec.md §9 point 4
// decision to mandate cumulative semantics.
type Trade struct {
	ID                int64
	StrategyAccountID int64
	ExchangeOrderID   string
	Symbol            string
	Side              Side
	Quantity          decimal.Decimal // cumulative filled
	Price             decimal.Decimal // execution (VWAP of fills so far)
	OrderPrice         decimal.Decimal // requested
	OrderType          OrderType
	IsEntry            bool
	PnL                *decimal.Decimal // realized, nullable
	Fee                decimal.Decimal
	Timestamp          time.Time
}

// TradeExecution is a finer-grained per-fill ledger entry than Trade
// (spec.md §3): maker/taker, commission asset, venue trade id.
type TradeExecution struct {
	ID              int64
	TradeID         int64
	VenueTradeID    string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	IsMaker         bool
	CommissionAsset string
	Commission      decimal.Decimal
	Timestamp       time.Time
}

// WebhookLog is an audit row with the normalized payload plus the timing
// breakpoints surfaced in the webhook response's performance_metrics
// (spec.md §3, §6).
type WebhookLog struct {
	ID                     int64
	GroupName              string
	RawPayload             string
	ValidationTimeMS       int64
	PreprocessingTimeMS    int64
	TotalProcessingTimeMS  int64
	Success                bool
	CreatedAt              time.Time
}

// DailyAccountSummary is a daily per-account rollup consumed by analytics
// (spec.md §3). store.EntityStore.UpsertDailySummary persists it; no code
// path in this repository produces one from balance snapshots.
type DailyAccountSummary struct {
	ID        int64
	AccountID int64
	Date      time.Time
	Equity    decimal.Decimal
	PnL       decimal.Decimal
}
