package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jayme-github/cryptex/internal/domain"
)

// Manager coordinates multiple exchange adapters and provides unified
// access to them. Fan-out operations run in parallel and are safe for
// concurrent use.
type Manager struct {
	exchanges map[string]Exchange
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewManager creates a new exchange manager with the given logger.
// If logger is nil, a no-op logger is used.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		exchanges: make(map[string]Exchange),
		logger:    logger,
	}
}

// Register adds an exchange to the manager. Returns an error if an
// exchange with the same name is already registered.
func (m *Manager) Register(ex Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ex.Name()
	if _, exists := m.exchanges[name]; exists {
		return fmt.Errorf("exchange %s already registered", name)
	}

	m.exchanges[name] = ex
	m.logger.Info("exchange registered", zap.String("exchange", name))
	return nil
}

// Unregister removes an exchange from the manager by name. Returns
// ErrExchangeNotFound if no exchange with the given name exists.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.exchanges[name]; !exists {
		return ErrExchangeNotFound
	}

	delete(m.exchanges, name)
	m.logger.Info("exchange unregistered", zap.String("exchange", name))
	return nil
}

// Get returns an exchange by name. Returns ErrExchangeNotFound if no
// exchange with the given name exists.
func (m *Manager) Get(name string) (Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ex, exists := m.exchanges[name]
	if !exists {
		return nil, ErrExchangeNotFound
	}
	return ex, nil
}

// All returns all registered exchanges. The returned slice is a copy and
// safe to iterate without locking.
func (m *Manager) All() []Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exchanges := make([]Exchange, 0, len(m.exchanges))
	for _, ex := range m.exchanges {
		exchanges = append(exchanges, ex)
	}
	return exchanges
}

// Names returns the names of all registered exchanges. The returned slice
// is a copy and safe to iterate without locking.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.exchanges))
	for name := range m.exchanges {
		names = append(names, name)
	}
	return names
}

// AllFunds fetches available balances from all registered exchanges in
// parallel. Returns a map of exchange name to balance map (currency code
// -> amount). Exchanges that fail are logged and skipped.
func (m *Manager) AllFunds(ctx context.Context) (map[string]map[string]decimal.Decimal, error) {
	exchanges := m.All()

	result := make(map[string]map[string]decimal.Decimal)
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	for _, ex := range exchanges {
		ex := ex
		g.Go(func() error {
			funds, err := ex.GetMyFunds(ctx)
			if err != nil {
				m.logger.Warn("failed to get funds",
					zap.String("exchange", ex.Name()),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			result[ex.Name()] = funds
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// AllMarkets fetches the tradeable pairs from all registered exchanges in
// parallel. Returns a map of exchange name to market list. Exchanges that
// fail are logged and skipped.
func (m *Manager) AllMarkets(ctx context.Context) (map[string][]domain.Market, error) {
	exchanges := m.All()

	result := make(map[string][]domain.Market)
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	for _, ex := range exchanges {
		ex := ex
		g.Go(func() error {
			markets, err := ex.GetMarkets(ctx)
			if err != nil {
				m.logger.Warn("failed to get markets",
					zap.String("exchange", ex.Name()),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			result[ex.Name()] = markets
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
