// Package markprice is the mark-price index (C7): the latest accepted
// tick price per asset, consulted by the risk monitor. It rejects
// non-positive prices and (optionally) stale out-of-order ticks.
package markprice

import (
	"time"

	"perpd/internal/domain"
	"perpd/internal/money"
)

type tick struct {
	price     money.Fixed
	timestamp time.Time
}

// Index holds the last accepted price per asset.
type Index struct {
	ticks map[domain.Asset]tick
}

func NewIndex() *Index {
	return &Index{ticks: make(map[domain.Asset]tick)}
}

// Apply installs price for asset at timestamp if price is positive and
// at least as recent as the last accepted tick. It reports whether the
// update was accepted.
func (idx *Index) Apply(asset domain.Asset, price money.Fixed, timestamp time.Time) bool {
	if !price.IsPositive() {
		return false
	}
	if existing, ok := idx.ticks[asset]; ok && timestamp.Before(existing.timestamp) {
		return false
	}
	idx.ticks[asset] = tick{price: price, timestamp: timestamp}
	return true
}

// Get returns the last accepted price for asset, if any.
func (idx *Index) Get(asset domain.Asset) (money.Fixed, bool) {
	t, ok := idx.ticks[asset]
	return t.price, ok
}
