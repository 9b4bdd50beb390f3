package trading

import (
	"context"
	"fmt"
	"sync"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/store"
)

// AccountSource is the narrow persistence capability the adapter resolver
// needs: loading an Account's (still encrypted) credential material.
type AccountSource interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
}

// AdapterResolver builds (and caches) the Exchange Adapter for an Account,
// decrypting its credentials on first use. It implements
// openorder.AdapterResolver so the Order Manager can resolve adapters
// without owning account storage or key material directly.
//
// A decrypt failure disables trading on that account per the domain/
// credentials.go invariant: IsActive is flipped false and the account is
// evicted from cache so a later retry re-reads the (still broken) row
// rather than serving a stale adapter.
type AdapterResolver struct {
	accounts  AccountSource
	entities  *store.EntityStore
	cipherKey []byte

	mu    sync.RWMutex
	cache map[int64]exchange.Adapter
}

func NewAdapterResolver(accounts AccountSource, entities *store.EntityStore, cipherKey []byte) *AdapterResolver {
	return &AdapterResolver{
		accounts:  accounts,
		entities:  entities,
		cipherKey: cipherKey,
		cache:     make(map[int64]exchange.Adapter),
	}
}

func (r *AdapterResolver) AdapterForAccount(ctx context.Context, accountID int64) (exchange.Adapter, error) {
	r.mu.RLock()
	if a, ok := r.cache[accountID]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	acct, err := r.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("trading: load account %d: %w", accountID, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("trading: account %d not found", accountID)
	}
	if !acct.IsActive {
		return nil, fmt.Errorf("trading: account %d is inactive", accountID)
	}

	apiKey, err := domain.OpenCredential(r.cipherKey, acct.EncryptedPublicKey)
	if err != nil {
		r.disableAccount(ctx, acct, err)
		return nil, fmt.Errorf("trading: decrypt account %d public key: %w", accountID, err)
	}
	secretKey, err := domain.OpenCredential(r.cipherKey, acct.EncryptedSecretKey)
	if err != nil {
		r.disableAccount(ctx, acct, err)
		return nil, fmt.Errorf("trading: decrypt account %d secret key: %w", accountID, err)
	}

	creds := exchange.Credentials{APIKey: apiKey, SecretKey: secretKey, IsPaper: acct.IsTestnet}
	if acct.Passphrase != nil {
		creds.Passphrase = *acct.Passphrase
	}

	adapter, err := exchange.New(acct.Exchange, creds)
	if err != nil {
		return nil, fmt.Errorf("trading: build adapter for account %d: %w", accountID, err)
	}

	r.mu.Lock()
	r.cache[accountID] = adapter
	r.mu.Unlock()
	return adapter, nil
}

// disableAccount flips IsActive off on an unrecoverable decrypt failure,
// per domain/credentials.go's stated invariant, and never retries with a
// different key.
func (r *AdapterResolver) disableAccount(ctx context.Context, acct *domain.Account, cause error) {
	logger.Errorf("trading: account %d credential decrypt failed, disabling: %v", acct.ID, cause)
	acct.IsActive = false
	if err := r.entities.UpdateAccountActive(ctx, acct.ID, false); err != nil {
		logger.Warnf("trading: failed to persist disabled state for account %d: %v", acct.ID, err)
	}
}
