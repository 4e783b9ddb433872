package quote

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource serves prices from a fixed in-memory table keyed by
// "SYMBOL.MARKET". It backs demo deployments with no upstream
// credentials and is the standard oracle stand-in for tests.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]int64 // cents
}

// NewStaticSource creates a StaticSource seeded with the given prices.
// A nil map is allowed.
func NewStaticSource(prices map[string]int64) *StaticSource {
	if prices == nil {
		prices = make(map[string]int64)
	}
	return &StaticSource{prices: prices}
}

// Name returns "static".
func (s *StaticSource) Name() string {
	return "static"
}

// SetPrice installs or replaces the price for a symbol.
func (s *StaticSource) SetPrice(symbol, market string, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[key(symbol, market)] = cents
}

// Delete removes the price for a symbol, simulating a lost quote.
func (s *StaticSource) Delete(symbol, market string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, key(symbol, market))
}

// LastPrice returns the stored price or ErrNoQuote when absent.
func (s *StaticSource) LastPrice(_ context.Context, symbol, market string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[key(symbol, market)]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrNoQuote, symbol, market)
	}
	return price, nil
}

func key(symbol, market string) string {
	return symbol + "." + market
}
