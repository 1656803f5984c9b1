package book

import "perpd/internal/domain"

// Registry owns one Book per asset, created lazily on first use — the
// engine never needs to pre-declare the asset universe.
type Registry struct {
	books map[domain.Asset]*Book
}

func NewRegistry() *Registry {
	return &Registry{books: make(map[domain.Asset]*Book)}
}

// For returns the book for asset, creating it if this is the first order
// the engine has seen for it.
func (r *Registry) For(asset domain.Asset) *Book {
	b, ok := r.books[asset]
	if !ok {
		b = New(asset)
		r.books[asset] = b
	}
	return b
}

// All returns every asset's book, for risk scans and diagnostics.
func (r *Registry) All() map[domain.Asset]*Book {
	return r.books
}
