// Package book implements the per-asset central limit order book: two
// price-indexed ladders (bids, asks), each a btree of price levels
// holding a FIFO queue of resting orders. It is grounded directly on the
// teacher's internal/engine/orderbook.go, generalized from a single
// equities book to one book per Asset and from float64 prices to
// money.Fixed.
//
// No locking happens inside a Book: the engine's single writer (C10)
// serialises every mutation, exactly as the teacher's comment on
// OrderBook notes ("No locking is required inside the book because the
// caller serialises all mutation").
package book

import (
	"github.com/tidwall/btree"

	"perpd/internal/domain"
	"perpd/internal/money"
)

// PriceLevel holds every resting order at one price, in arrival (FIFO)
// order.
type PriceLevel struct {
	Price  money.Fixed
	Orders []*domain.Order
}

type levels = btree.BTreeG[*PriceLevel]

// Book is one asset's two-sided ladder.
type Book struct {
	Asset domain.Asset
	Bids  *levels // sorted highest price first
	Asks  *levels // sorted lowest price first
}

// New creates an empty book for asset.
func New(asset domain.Asset) *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	return &Book{Asset: asset, Bids: bids, Asks: asks}
}

func (b *Book) ladder(side domain.Side) *levels {
	if side == domain.Buy {
		return b.Bids
	}
	return b.Asks
}

// BestLevel returns the best (highest bid / lowest ask) resting level on
// side, if any orders rest there.
func (b *Book) BestLevel(side domain.Side) (*PriceLevel, bool) {
	return b.ladder(side).Min()
}

// BestPrice returns the best resting price on side, if any.
func (b *Book) BestPrice(side domain.Side) (money.Fixed, bool) {
	lvl, ok := b.BestLevel(side)
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// Insert rests order on its own side at its limit price, creating the
// price level if necessary. Callers must not insert Market orders.
func (b *Book) Insert(order *domain.Order) {
	l := b.ladder(order.Side)
	probe := &PriceLevel{Price: order.LimitPrice}
	if existing, ok := l.GetMut(probe); ok {
		existing.Orders = append(existing.Orders, order)
		return
	}
	l.Set(&PriceLevel{Price: order.LimitPrice, Orders: []*domain.Order{order}})
}

// DeleteLevel removes a now-empty price level from side.
func (b *Book) DeleteLevel(side domain.Side, price money.Fixed) {
	b.ladder(side).Delete(&PriceLevel{Price: price})
}

// SetLevel overwrites (or inserts) the orders resting at price on side,
// used by the matcher to write back a partially-consumed level.
func (b *Book) SetLevel(side domain.Side, lvl *PriceLevel) {
	if len(lvl.Orders) == 0 {
		b.DeleteLevel(side, lvl.Price)
		return
	}
	b.ladder(side).Set(lvl)
}

// Remove deletes a single resting order (e.g. on cancel or expiry),
// returning true if it was found.
func (b *Book) Remove(side domain.Side, price money.Fixed, orderID domain.OrderID) bool {
	l := b.ladder(side)
	lvl, ok := l.GetMut(&PriceLevel{Price: price})
	if !ok {
		return false
	}
	for i, o := range lvl.Orders {
		if o.ID == orderID {
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			if len(lvl.Orders) == 0 {
				l.Delete(lvl)
			}
			return true
		}
	}
	return false
}

// Levels returns every resting level on side, best-first, for tests and
// diagnostics.
func (b *Book) Levels(side domain.Side) []*PriceLevel {
	var out []*PriceLevel
	b.ladder(side).Scan(func(lvl *PriceLevel) bool {
		out = append(out, lvl)
		return true
	})
	return out
}

// Crossed reports whether the book's own bids/asks overlap, which must
// never happen once a resting order is admitted (spec.md invariant 3 /
// property P2/P3).
func (b *Book) Crossed() bool {
	bid, bidOK := b.BestPrice(domain.Buy)
	ask, askOK := b.BestPrice(domain.Sell)
	return bidOK && askOK && bid >= ask
}
