// Package matching implements the price-time matching algorithm of
// spec.md §4.3: an incoming order sweeps the opposite ladder, consuming
// resting orders FIFO within each crossing price level, pro-rating their
// locked margin as they're partially consumed, and skipping same-user
// counterparties to prevent self-trades.
package matching

import (
	"perpd/internal/book"
	"perpd/internal/domain"
	"perpd/internal/ledger"
	"perpd/internal/money"
)

// Fill is one executed child: a taker order consuming quantity Qty of a
// resting counterparty order C at Price. ExecMargin is C's pro-rated
// share of locked margin freed by this execution — the amount the
// netting engine has to work with when it nets C's side of the trade.
type Fill struct {
	CounterpartyID     domain.OrderID
	CounterpartyUser   domain.UserID
	CounterpartySide   domain.Side
	CounterpartyLeverage int64
	CounterpartySL     *int64
	CounterpartyTP     *int64
	CounterpartyQty    money.Fixed // counterparty's original total requested quantity
	CounterpartyMargin money.Fixed // counterparty's original total requested margin
	Qty                money.Fixed
	Price              money.Fixed
	ExecMargin         money.Fixed
	CounterpartyFilled bool
}

// Result is the matcher's output for one incoming order.
type Result struct {
	ExecutedQty money.Fixed
	VWAPPrice   money.Fixed
	Fills       []Fill
}

// Match sweeps b's ladder opposite incoming.Side, filling incoming as far
// as crossing liquidity (and, for Market orders, all liquidity) permits.
// The sweep stops at the first level that holds only incoming.User's own
// orders; levels behind it are not reached.
// incoming.Filled and the resting counterparties' Filled/Status fields
// are updated in place; margin is debited for every consumed
// counterparty quantity. Match never inserts incoming into the book —
// that is the caller's job once Match returns, if any quantity remains.
func Match(b *book.Book, margin *ledger.Margin, incoming *domain.Order) Result {
	opposite := incoming.Side.Opposite()
	var res Result

	for incoming.Remaining().IsPositive() {
		lvl, ok := b.BestLevel(opposite)
		if !ok {
			break
		}
		if incoming.Type == domain.Limit && !crosses(incoming.Side, incoming.LimitPrice, lvl.Price) {
			break
		}

		matchedAny := false
		i := 0
		for i < len(lvl.Orders) && incoming.Remaining().IsPositive() {
			c := lvl.Orders[i]

			// Self-match prevention: never match the same user's resting
			// order. Leave it in place and look past it.
			if c.User == incoming.User {
				i++
				continue
			}

			available := c.Remaining()
			if !available.IsPositive() {
				lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
				continue
			}

			matchQty := money.Min(incoming.Remaining(), available)
			execMargin := money.ProRate(margin.Get(c.ID), matchQty, c.Quantity)
			margin.Set(c.ID, margin.Get(c.ID)-execMargin)

			c.ApplyFill(matchQty)
			incoming.ApplyFill(matchQty)

			res.Fills = append(res.Fills, Fill{
				CounterpartyID:       c.ID,
				CounterpartyUser:     c.User,
				CounterpartySide:     c.Side,
				CounterpartyLeverage: c.Leverage,
				CounterpartySL:       c.StopLossPercent,
				CounterpartyTP:       c.TakeProfitPercent,
				CounterpartyQty:      c.Quantity,
				CounterpartyMargin:   c.RequestedMargin,
				Qty:                  matchQty,
				Price:                lvl.Price,
				ExecMargin:           execMargin,
				CounterpartyFilled:   c.Remaining().IsZero(),
			})

			res.ExecutedQty += matchQty
			matchedAny = true

			if c.Remaining().IsZero() {
				lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
				continue // don't advance i; next order shifted into position i
			}
			// Partially filled: the incoming order's remaining quantity
			// must have hit zero, so the outer loop exits next iteration.
			i++
		}

		b.SetLevel(opposite, lvl)

		if !matchedAny {
			// Every order at this level belonged to incoming.User: self-
			// match prevention skipped the whole level without consuming
			// anything, so re-fetching BestLevel would just hand us the
			// same level again. Stop sweeping rather than spin forever.
			break
		}
	}

	if res.ExecutedQty.IsPositive() {
		res.VWAPPrice = vwap(res.Fills)
	}
	return res
}

// crosses reports whether a resting level at levelPrice crosses a Limit
// order's own limit price, per spec.md §4.3 (Buy: level <= limit, Sell:
// level >= limit).
func crosses(side domain.Side, limitPrice, levelPrice money.Fixed) bool {
	if side == domain.Buy {
		return levelPrice <= limitPrice
	}
	return levelPrice >= limitPrice
}

// vwap recomputes the quantity-weighted average execution price directly
// from the fill list, avoiding any intermediate rescaling subtleties.
func vwap(fills []Fill) money.Fixed {
	var qty, notional money.Fixed
	for _, f := range fills {
		qty += f.Qty
		notional += money.ProRate(f.Price, f.Qty, money.Fixed(money.Scale))
	}
	if qty.IsZero() {
		return 0
	}
	return money.ProRate(notional, money.Fixed(money.Scale), qty)
}
