package engine

import (
	"perpd/internal/ingress"
	"perpd/internal/money"
	"perpd/internal/reconcile"
)

func priceFixed(raw int64) money.Fixed {
	return money.FromRaw(raw)
}

func applyBalanceLocked(e *Engine, resp ingress.BalanceResponse) {
	reconcile.ApplyBalanceSnapshot(e.balances, e.pending, e, resp)
}

func applyHoldingsLocked(e *Engine, resp ingress.HoldingsResponse) {
	reconcile.ApplyHoldingsSnapshot(e.holdings, e.pending, e, resp)
}
