// Package position maintains the set of open positions, indexed both by
// id and by (user, asset, side) in creation order so the netting engine
// can close positions FIFO when a user holds several in the same
// direction for one asset (allowed per spec.md §4.4 edge cases).
package position

import (
	"perpd/internal/domain"
)

type key struct {
	user  domain.UserID
	asset domain.Asset
	side  domain.Side
}

// Store is the authoritative set of open positions. It is not
// concurrency-safe by itself: all mutation happens under the engine's
// single writer lock (spec.md §4.10).
type Store struct {
	byID        map[domain.OrderID]*domain.Position
	byUserAsset map[key][]*domain.Position // FIFO, oldest first
}

func NewStore() *Store {
	return &Store{
		byID:        make(map[domain.OrderID]*domain.Position),
		byUserAsset: make(map[key][]*domain.Position),
	}
}

// Add inserts a newly opened position.
func (s *Store) Add(p *domain.Position) {
	s.byID[p.ID] = p
	k := key{p.User, p.Asset, p.Side}
	s.byUserAsset[k] = append(s.byUserAsset[k], p)
}

// Get looks up a position by id.
func (s *Store) Get(id domain.OrderID) (*domain.Position, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// List returns the positions of (user, asset, side) oldest-created first.
// The returned slice is the store's own, and Remove rewrites it in
// place, so a caller that removes positions while iterating must range
// over a copy. Mutate Quantity/LockedMargin on the position pointers
// directly, then call Remove once Quantity reaches zero.
func (s *Store) List(u domain.UserID, a domain.Asset, side domain.Side) []*domain.Position {
	return s.byUserAsset[key{u, a, side}]
}

// Remove deletes a position once its quantity has reached zero.
func (s *Store) Remove(id domain.OrderID) {
	p, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	k := key{p.User, p.Asset, p.Side}
	list := s.byUserAsset[k]
	for i, q := range list {
		if q.ID == id {
			s.byUserAsset[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.byUserAsset[k]) == 0 {
		delete(s.byUserAsset, k)
	}
}

// All returns every open position, for the risk monitor's periodic scan.
// The returned slice is a fresh snapshot copy so that a scan in progress
// is never perturbed by concurrent mutation (spec.md §4.8's
// snapshot-consistency requirement).
func (s *Store) All() []*domain.Position {
	out := make([]*domain.Position, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	return out
}

// HoldingsOf sums signed quantity across all positions of (user, asset):
// long positions contribute positively, short positions negatively. It
// gives the value the holdings ledger should hold under property P4;
// nothing in the engine calls it.
func (s *Store) HoldingsOf(u domain.UserID, a domain.Asset) int64 {
	var total int64
	for _, p := range s.List(u, a, domain.Buy) {
		total += int64(p.Quantity)
	}
	for _, p := range s.List(u, a, domain.Sell) {
		total -= int64(p.Quantity)
	}
	return total
}
