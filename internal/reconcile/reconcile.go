// Package reconcile implements the reference-data reconciler (C6,
// spec.md §4.6): it applies balance/holdings snapshots from the
// external source of truth unconditionally, then replays any requests
// the admission controller parked for that user while the snapshot was
// missing, in their original arrival order.
package reconcile

import (
	"perpd/internal/admission"
	"perpd/internal/domain"
	"perpd/internal/ingress"
	"perpd/internal/ledger"
	"perpd/internal/money"
)

// Applier re-runs parked requests back through admission once their
// blocking snapshot arrives. It is satisfied by the engine's own Admit
// wiring so this package stays decoupled from engine internals.
type Applier interface {
	Readmit(req *ingress.CreateTradeRequest)
}

// ApplyBalanceSnapshot installs bal.Balance for the user, then replays
// every request parked for that user (some of which may re-park on a
// still-missing holdings snapshot — Readmit handles that transparently).
func ApplyBalanceSnapshot(bal *ledger.Balances, pending *admission.PendingQueue, app Applier, resp ingress.BalanceResponse) {
	user := domain.UserID(resp.UserID)
	bal.Set(user, money.FromRaw(resp.Balance))
	replay(pending, app, user)
}

// ApplyHoldingsSnapshot installs the (user, asset) holdings quantity,
// then replays that user's pending queue.
func ApplyHoldingsSnapshot(hold *ledger.Holdings, pending *admission.PendingQueue, app Applier, resp ingress.HoldingsResponse) {
	user := domain.UserID(resp.UserID)
	asset := domain.Asset(resp.Asset)
	hold.Set(user, asset, money.FromRaw(resp.Quantity))
	replay(pending, app, user)
}

func replay(pending *admission.PendingQueue, app Applier, user domain.UserID) {
	for _, req := range pending.Drain(user) {
		app.Readmit(req)
	}
}
