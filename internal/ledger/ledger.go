// Package ledger holds the three cross-entity ledgers named in the data
// model: available balance per user, signed net holdings per
// (user, asset), and locked margin per order/position id. They are kept
// as separate maps, not fields on Order/Position, so that "is this user's
// balance known yet" (reference-data miss) is representable without a
// sentinel value.
package ledger

import (
	"perpd/internal/domain"
	"perpd/internal/money"
)

// Balances tracks available balance per user. Presence in the map means
// the user's balance has been learned from a BalanceSnapshot; absence
// means it must be requested from the external source of truth.
type Balances struct {
	values map[domain.UserID]money.Fixed
}

func NewBalances() *Balances {
	return &Balances{values: make(map[domain.UserID]money.Fixed)}
}

func (b *Balances) Get(u domain.UserID) (money.Fixed, bool) {
	v, ok := b.values[u]
	return v, ok
}

// Set installs amount unconditionally, per C6's "external source of
// truth wins" rule.
func (b *Balances) Set(u domain.UserID, amount money.Fixed) {
	b.values[u] = amount
}

// Add applies a signed delta to an already-known balance. It is a bug to
// call Add on a user whose balance has never been Set; callers must
// guard with Get first (admission already guarantees this, since
// unknown balances are parked rather than processed).
func (b *Balances) Add(u domain.UserID, delta money.Fixed) {
	b.values[u] += delta
}

// HoldingsKey indexes the per-asset holdings ledger.
type HoldingsKey struct {
	User  domain.UserID
	Asset domain.Asset
}

// Holdings tracks signed net quantity per (user, asset). Presence means
// the pair's holdings have been learned from a HoldingsSnapshot.
type Holdings struct {
	values map[HoldingsKey]money.Fixed
}

func NewHoldings() *Holdings {
	return &Holdings{values: make(map[HoldingsKey]money.Fixed)}
}

func (h *Holdings) Get(u domain.UserID, a domain.Asset) (money.Fixed, bool) {
	v, ok := h.values[HoldingsKey{u, a}]
	return v, ok
}

func (h *Holdings) Set(u domain.UserID, a domain.Asset, qty money.Fixed) {
	h.values[HoldingsKey{u, a}] = qty
}

func (h *Holdings) Add(u domain.UserID, a domain.Asset, delta money.Fixed) {
	h.values[HoldingsKey{u, a}] += delta
}

// Margin tracks locked collateral keyed by the owning OrderID/PositionID,
// kept distinct from Position.LockedMargin so that a partial close can be
// tracked without rewriting the position record, per spec.md §3.
type Margin struct {
	values map[domain.OrderID]money.Fixed
}

func NewMargin() *Margin {
	return &Margin{values: make(map[domain.OrderID]money.Fixed)}
}

func (m *Margin) Get(id domain.OrderID) money.Fixed {
	return m.values[id]
}

func (m *Margin) Set(id domain.OrderID, amount money.Fixed) {
	if amount.IsZero() {
		delete(m.values, id)
		return
	}
	m.values[id] = amount
}

func (m *Margin) Release(id domain.OrderID) {
	delete(m.values, id)
}
