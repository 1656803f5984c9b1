// Package netting implements the position & netting engine of spec.md
// §4.4: every execution first closes opposite exposure (realising PnL
// and returning pro-rated margin), then opens any residual quantity as
// new exposure. The same NetFill entry point serves both the taker's own
// side and, once per matcher Fill, the counterparty's side — the two
// call sites differ only in which (qty, price, requested qty/margin)
// they pass in.
package netting

import (
	"time"

	"perpd/internal/domain"
	"perpd/internal/ledger"
	"perpd/internal/money"
	"perpd/internal/position"
)

// Input bundles one side's execution context for NetFill.
type Input struct {
	OrderID domain.OrderID
	// PositionID is the id a newly opened position takes. Callers set it
	// to OrderID only when the order has no quantity left to execute
	// later (it is retiring); otherwise a fresh id is required, since
	// OrderID remains a live margin-ledger key for the order's
	// still-resting remainder.
	PositionID      domain.OrderID
	User            domain.UserID
	Asset           domain.Asset
	Side            domain.Side // side of the order being netted (taker's or counterparty's)
	ExecQty         money.Fixed
	ExecPrice       money.Fixed
	RequestedQty    money.Fixed // the order's total requested quantity
	RequestedMargin money.Fixed // the order's total requested/locked margin
	Leverage        int64
	StopLossPercent *int64
	TakeProfitPercent *int64
	Now             time.Time
}

// ClosedLeg records one existing position that was partially or fully
// closed by a NetFill call.
type ClosedLeg struct {
	PositionID domain.OrderID
	Qty        money.Fixed
	EntryPrice money.Fixed
	PnL        money.Fixed
	Removed    bool
}

// Result is everything that happened during one NetFill call.
type Result struct {
	ClosedQty    money.Fixed
	OpenedQty    money.Fixed
	RealizedPnL  money.Fixed
	Closed       []ClosedLeg
	OpenedPosition *domain.Position
}

// NetFill realises PnL against any existing opposite-side positions of
// (in.User, in.Asset) FIFO by creation order, then opens a new position
// for whatever quantity remains, per spec.md §4.4 points 1-4.
func NetFill(store *position.Store, bal *ledger.Balances, hold *ledger.Holdings, margin *ledger.Margin, in Input) Result {
	var res Result
	opposite := in.Side.Opposite()
	remaining := in.ExecQty

	for _, pos := range append([]*domain.Position(nil), store.List(in.User, in.Asset, opposite)...) {
		if remaining.IsZero() {
			break
		}
		closeQty := money.Min(remaining, pos.Quantity)
		pnl := closePositionPortion(bal, hold, margin, pos, closeQty, in.ExecPrice)

		res.Closed = append(res.Closed, ClosedLeg{
			PositionID: pos.ID,
			Qty:        closeQty,
			EntryPrice: pos.EntryPrice,
			PnL:        pnl,
			Removed:    pos.Quantity.IsZero(),
		})
		if pos.Quantity.IsZero() {
			store.Remove(pos.ID)
			margin.Release(pos.ID)
		}

		res.RealizedPnL += pnl
		res.ClosedQty += closeQty
		remaining -= closeQty
	}

	if remaining.IsPositive() {
		marginNew := money.ProRate(in.RequestedMargin, remaining, in.RequestedQty)
		hold.Add(in.User, in.Asset, signedQty(in.Side, remaining))

		if in.PositionID != in.OrderID {
			// The order lives on under OrderID (still resting, or a
			// Market residual pending release); carve this position's
			// share out of its reserve rather than overwriting it.
			margin.Set(in.OrderID, margin.Get(in.OrderID)-marginNew)
		}

		p := &domain.Position{
			ID:                in.PositionID,
			User:              in.User,
			Asset:             in.Asset,
			Side:              in.Side,
			EntryPrice:        in.ExecPrice,
			Quantity:          remaining,
			LockedMargin:      marginNew,
			Leverage:          in.Leverage,
			StopLossPercent:   in.StopLossPercent,
			TakeProfitPercent: in.TakeProfitPercent,
			CreatedAt:         in.Now,
		}
		store.Add(p)
		margin.Set(p.ID, marginNew)

		res.OpenedQty = remaining
		res.OpenedPosition = p
	}

	return res
}

// closePositionPortion realises PnL on closeQty of pos at execPrice,
// returns pro-rated margin to the user's balance, adjusts holdings, and
// shrinks pos in place (the caller removes pos from the store if its
// quantity reaches zero). It returns the PnL realised on this portion.
func closePositionPortion(bal *ledger.Balances, hold *ledger.Holdings, margin *ledger.Margin, pos *domain.Position, closeQty, execPrice money.Fixed) money.Fixed {
	priceDelta := execPrice - pos.EntryPrice
	if pos.Side == domain.Sell {
		priceDelta = -priceDelta
	}
	pnl := money.MulLeveraged(priceDelta, closeQty, pos.Leverage)

	lockedBefore := margin.Get(pos.ID)
	marginReturn := money.ProRate(lockedBefore, closeQty, pos.Quantity)

	bal.Add(pos.User, pnl+marginReturn)
	hold.Add(pos.User, pos.Asset, signedQty(pos.Side, closeQty).Neg())

	pos.Quantity -= closeQty
	newLocked := lockedBefore - marginReturn
	margin.Set(pos.ID, newLocked)
	pos.LockedMargin = newLocked

	return pnl
}

// ClosePositionFully closes an entire position at execPrice (used by the
// risk monitor for SL/TP/liquidation closes, which always fully close).
// It returns the realised PnL and the margin released to balance.
func ClosePositionFully(store *position.Store, bal *ledger.Balances, hold *ledger.Holdings, margin *ledger.Margin, pos *domain.Position, execPrice money.Fixed) money.Fixed {
	pnl := closePositionPortion(bal, hold, margin, pos, pos.Quantity, execPrice)
	store.Remove(pos.ID)
	margin.Release(pos.ID)
	return pnl
}

// ProspectiveOpenQty answers, without mutating anything, how much of a
// prospective order of (side, qty) against (user, asset) would close
// existing opposite exposure versus open new exposure. The admission
// controller uses this to compute required_margin before debiting
// balance (spec.md §4.5 point 3).
func ProspectiveOpenQty(store *position.Store, user domain.UserID, asset domain.Asset, side domain.Side, qty money.Fixed) (closeQty, openQty money.Fixed) {
	opposite := side.Opposite()
	remaining := qty
	for _, pos := range store.List(user, asset, opposite) {
		if remaining.IsZero() {
			break
		}
		c := money.Min(remaining, pos.Quantity)
		closeQty += c
		remaining -= c
	}
	return closeQty, remaining
}

func signedQty(side domain.Side, qty money.Fixed) money.Fixed {
	if side == domain.Sell {
		return qty.Neg()
	}
	return qty
}
