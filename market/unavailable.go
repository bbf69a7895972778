package market

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Unavailable.
var ErrNotConfigured = errors.New("market API not configured")

// Unavailable stands in for a Client when no market API is configured.
type Unavailable struct{}

func (Unavailable) ListMarkets(context.Context, string) ([]Market, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) BuyMarketOrder(context.Context, string, string, string) (*Order, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) Positions(context.Context) ([]Position, error) {
	return nil, ErrNotConfigured
}
