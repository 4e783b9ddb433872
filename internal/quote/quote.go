// Package quote provides the price oracle: the current tradable price
// for a (symbol, market) pair. Multiple backing sources can be tried in
// priority order; the first usable price wins.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoQuote indicates that no source could produce a usable price.
// A zero or negative price from a source is treated the same way.
var ErrNoQuote = errors.New("no_quote")

// Source produces the latest trade price for a symbol in cents.
type Source interface {
	// Name returns the source identifier (e.g. "xueqiu", "static").
	Name() string

	// LastPrice returns the current price in cents, or an error when the
	// source cannot produce one. Implementations must never return a
	// non-positive price with a nil error.
	LastPrice(ctx context.Context, symbol, market string) (int64, error)
}

// Chain tries sources in order and short-circuits on the first success.
type Chain struct {
	sources []Source
	logger  *slog.Logger
}

// NewChain creates a Chain over the given sources in priority order.
func NewChain(logger *slog.Logger, sources ...Source) *Chain {
	return &Chain{sources: sources, logger: logger}
}

// Name returns "chain".
func (c *Chain) Name() string {
	return "chain"
}

// LastPrice queries each source in order and returns the first positive
// price. Source failures are logged at debug level and the next source
// is tried. When every source fails, the returned error wraps ErrNoQuote.
func (c *Chain) LastPrice(ctx context.Context, symbol, market string) (int64, error) {
	for _, s := range c.sources {
		price, err := s.LastPrice(ctx, symbol, market)
		if err != nil {
			c.logger.Debug("quote source failed",
				slog.String("source", s.Name()),
				slog.String("symbol", symbol),
				slog.String("market", market),
				slog.String("error", err.Error()),
			)
			continue
		}
		if price <= 0 {
			c.logger.Debug("quote source returned non-positive price",
				slog.String("source", s.Name()),
				slog.String("symbol", symbol),
				slog.Int64("price", price),
			)
			continue
		}
		return price, nil
	}
	return 0, fmt.Errorf("%w: %s.%s", ErrNoQuote, symbol, market)
}
