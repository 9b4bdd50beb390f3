package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
)

// EntityStore persists the remaining catalog entities (spec.md §3) that
// don't have their own package-level Store interface: User, Account,
// Strategy, StrategyAccount, StrategyCapital, WebhookLog,
// DailyAccountSummary. Grounded on the teacher's store/strategy.go
// Create/Get/List/Update method-per-table idiom.
type EntityStore struct {
	db *DB
}

func NewEntityStore(db *DB) *EntityStore { return &EntityStore{db: db} }

// --- Account ---

func (s *EntityStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO accounts (user_id, exchange, account_type, encrypted_public_key, encrypted_secret_key,
		                       passphrase, is_testnet, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.UserID, string(a.Exchange), string(a.AccountType), a.EncryptedPublicKey, a.EncryptedSecretKey,
		a.Passphrase, a.IsTestnet, a.IsActive)
	if err != nil {
		return fmt.Errorf("store: create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		a.ID = id
	}
	return nil
}

func (s *EntityStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, exchange, account_type, encrypted_public_key, encrypted_secret_key,
		       passphrase, is_testnet, is_active
		FROM accounts WHERE id = ?
	`, id)
	var a domain.Account
	var exch, acctType string
	var passphrase sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &exch, &acctType, &a.EncryptedPublicKey, &a.EncryptedSecretKey,
		&passphrase, &a.IsTestnet, &a.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get account: %w", err)
	}
	a.Exchange = domain.Exchange(exch)
	a.AccountType = domain.AccountType(acctType)
	if passphrase.Valid {
		a.Passphrase = &passphrase.String
	}
	return &a, nil
}

func (s *EntityStore) UpdateAccountActive(ctx context.Context, id int64, isActive bool) error {
	_, err := s.db.conn.ExecContext(ctx, `UPDATE accounts SET is_active = ? WHERE id = ?`, isActive, id)
	if err != nil {
		return fmt.Errorf("store: update account active: %w", err)
	}
	return nil
}

// ListActiveAccounts returns every active account id, used by the
// background open-order reconciler to know which accounts to poll
// (spec.md §4.10).
func (s *EntityStore) ListActiveAccounts(ctx context.Context) ([]int64, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id FROM accounts WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("store: list active accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan active account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- User ---

func (s *EntityStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT id, name, webhook_token FROM users WHERE id = ?`, id)
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.WebhookToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return &u, nil
}

// ValidTokensForStrategy implements the auth set webhook_service.py builds:
// the strategy owner's token always counts; when the strategy is public,
// every user who owns an Account linked to it via StrategyAccount also
// counts (spec.md §6 "owner's webhook_token or... any subscriber's token").
func (s *EntityStore) ValidTokensForStrategy(ctx context.Context, ownerUserID int64, strategyID int64, isPublic bool) (map[string]bool, error) {
	tokens := make(map[string]bool)

	owner, err := s.GetUser(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.WebhookToken != "" {
		tokens[owner.WebhookToken] = true
	}
	if !isPublic {
		return tokens, nil
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT DISTINCT u.webhook_token
		FROM strategy_accounts sa
		JOIN accounts a ON a.id = sa.account_id
		JOIN users u ON u.id = a.user_id
		WHERE sa.strategy_id = ? AND u.webhook_token != ''
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("store: list subscriber tokens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("store: scan subscriber token: %w", err)
		}
		tokens[tok] = true
	}
	return tokens, rows.Err()
}

// --- Strategy ---

func (s *EntityStore) GetStrategyByGroupName(ctx context.Context, groupName string) (*domain.Strategy, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, name, group_name, market_type, is_active, is_public
		FROM strategies WHERE group_name = ?
	`, groupName)
	var st domain.Strategy
	var marketType string
	err := row.Scan(&st.ID, &st.UserID, &st.Name, &st.GroupName, &marketType, &st.IsActive, &st.IsPublic)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get strategy by group_name: %w", err)
	}
	st.MarketType = domain.MarketType(marketType)
	return &st, nil
}

// --- StrategyAccount ---

func (s *EntityStore) ListActiveStrategyAccounts(ctx context.Context, strategyID int64) ([]*domain.StrategyAccount, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, strategy_id, account_id, weight, leverage, max_symbols, is_active
		FROM strategy_accounts WHERE strategy_id = ? AND is_active = 1
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("store: list strategy accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.StrategyAccount
	for rows.Next() {
		var sa domain.StrategyAccount
		var weight, leverage string
		if err := rows.Scan(&sa.ID, &sa.StrategyID, &sa.AccountID, &weight, &leverage, &sa.MaxSymbols, &sa.IsActive); err != nil {
			return nil, fmt.Errorf("store: scan strategy account: %w", err)
		}
		sa.Weight, _ = decimal.NewFromString(weight)
		sa.Leverage, _ = decimal.NewFromString(leverage)
		out = append(out, &sa)
	}
	return out, rows.Err()
}

// --- StrategyCapital ---

func (s *EntityStore) GetStrategyCapital(ctx context.Context, strategyAccountID int64) (*domain.StrategyCapital, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT strategy_account_id, allocated_capital, current_pnl, last_updated
		FROM strategy_capital WHERE strategy_account_id = ?
	`, strategyAccountID)
	var c domain.StrategyCapital
	var allocated, pnl string
	err := row.Scan(&c.StrategyAccountID, &allocated, &pnl, &c.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get strategy capital: %w", err)
	}
	c.AllocatedCapital, _ = decimal.NewFromString(allocated)
	c.CurrentPnL, _ = decimal.NewFromString(pnl)
	return &c, nil
}

func (s *EntityStore) SaveStrategyCapital(ctx context.Context, c *domain.StrategyCapital) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO strategy_capital (strategy_account_id, allocated_capital, current_pnl, last_updated)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(strategy_account_id) DO UPDATE SET
			allocated_capital = excluded.allocated_capital,
			current_pnl = excluded.current_pnl,
			last_updated = CURRENT_TIMESTAMP
	`, c.StrategyAccountID, c.AllocatedCapital.String(), c.CurrentPnL.String())
	if err != nil {
		return fmt.Errorf("store: save strategy capital: %w", err)
	}
	return nil
}

// --- WebhookLog ---

func (s *EntityStore) InsertWebhookLog(ctx context.Context, w *domain.WebhookLog) error {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO webhook_logs (group_name, raw_payload, validation_time_ms, preprocessing_time_ms,
		                          total_processing_time_ms, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, w.GroupName, w.RawPayload, w.ValidationTimeMS, w.PreprocessingTimeMS, w.TotalProcessingTimeMS, w.Success)
	if err != nil {
		return fmt.Errorf("store: insert webhook log: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		w.ID = id
	}
	return nil
}

// --- DailyAccountSummary ---

// UpsertDailySummary writes (or overwrites) the summary row for one
// (account, date). Nothing in the repository calls it; balance fetches do
// not produce these rows.
func (s *EntityStore) UpsertDailySummary(ctx context.Context, summary *domain.DailyAccountSummary) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO daily_account_summaries (account_id, date, equity, pnl)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, date) DO UPDATE SET
			equity = excluded.equity,
			pnl = excluded.pnl
	`, summary.AccountID, summary.Date.Format("2006-01-02"), summary.Equity.String(), summary.PnL.String())
	if err != nil {
		return fmt.Errorf("store: upsert daily summary: %w", err)
	}
	return nil
}

// --- TradeExecution ---

func (s *EntityStore) InsertTradeExecution(ctx context.Context, e *domain.TradeExecution) error {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO trade_executions (trade_id, venue_trade_id, quantity, price, is_maker,
		                              commission_asset, commission, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(trade_id, venue_trade_id) DO NOTHING
	`, e.TradeID, e.VenueTradeID, e.Quantity.String(), e.Price.String(), e.IsMaker,
		e.CommissionAsset, e.Commission.String())
	if err != nil {
		return fmt.Errorf("store: insert trade execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		e.ID = id
	}
	return nil
}

func (s *EntityStore) ListTradeExecutions(ctx context.Context, tradeID int64) ([]*domain.TradeExecution, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, trade_id, venue_trade_id, quantity, price, is_maker, commission_asset, commission, timestamp
		FROM trade_executions WHERE trade_id = ?
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("store: list trade executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeExecution
	for rows.Next() {
		var e domain.TradeExecution
		var qty, price, commission string
		if err := rows.Scan(&e.ID, &e.TradeID, &e.VenueTradeID, &qty, &price, &e.IsMaker,
			&e.CommissionAsset, &commission, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan trade execution: %w", err)
		}
		e.Quantity, _ = decimal.NewFromString(qty)
		e.Price, _ = decimal.NewFromString(price)
		e.Commission, _ = decimal.NewFromString(commission)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *EntityStore) LatestDailySummary(ctx context.Context, accountID int64) (*domain.DailyAccountSummary, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, account_id, date, equity, pnl FROM daily_account_summaries
		WHERE account_id = ? ORDER BY date DESC LIMIT 1
	`, accountID)
	var d domain.DailyAccountSummary
	var equity, pnl string
	var dateStr time.Time
	err := row.Scan(&d.ID, &d.AccountID, &dateStr, &equity, &pnl)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest daily summary: %w", err)
	}
	d.Date = dateStr
	d.Equity, _ = decimal.NewFromString(equity)
	d.PnL, _ = decimal.NewFromString(pnl)
	return &d, nil
}
