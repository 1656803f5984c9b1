// Package domain defines the entities named in the engine's data model:
// assets, users, orders and positions. It carries no behaviour beyond
// small helpers on the structs themselves — matching, netting and risk
// logic live in their own packages so each can be grounded on its own
// invariants independently.
package domain

import (
	"time"

	"perpd/internal/money"
)

// Asset is an interned market identifier, e.g. "BTC_USDC". It is wrapped
// rather than a bare string so the three ledgers (balance, holdings,
// locked margin) can't be indexed with the wrong kind of key by mistake.
type Asset string

// UserID identifies a trading account.
type UserID string

// OrderID is engine-minted; it is never supplied by a client. An order
// retired by a fill (nothing left to execute later) hands its id to the
// Position it opens, so the two never need a foreign key between them.
// An order that still has quantity resting keeps its own id live in the
// margin ledger and the book, so any position opened from its executed
// portion is minted a distinct id instead.
type OrderID string

// Side is the direction of an order or a position.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes resting (Limit) from immediate (Market) orders.
type OrderType int

const (
	Market OrderType = iota
	Limit
)

func (t OrderType) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

// OrderStatus is the order's position in its state machine: Open ->
// PartiallyFilled -> Filled as fills accumulate, and Open/PartiallyFilled
// -> Cancelled when a resting order expires.
type OrderStatus int

const (
	Open OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
	Liquidated
)

func (s OrderStatus) String() string {
	switch s {
	case Open:
		return "open"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Liquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Order is a resting or in-flight trade instruction. LimitPrice is only
// meaningful when Type == Limit. RequestedMargin and Quantity are fixed
// at admission time and never change; Filled accumulates as the matcher
// consumes the order.
type Order struct {
	ID                OrderID
	CorrelationID     string
	User              UserID
	Asset             Asset
	Side              Side
	Type              OrderType
	LimitPrice        money.Fixed
	Quantity          money.Fixed
	Filled            money.Fixed
	Status            OrderStatus
	RequestedMargin   money.Fixed
	LockedMargin      money.Fixed // margin reserved at admission; the live reserve is the margin ledger entry under ID
	Leverage          int64
	StopLossPercent   *int64
	TakeProfitPercent *int64
	CreatedAt         time.Time
	Expiry            *time.Time
}

// Remaining is the quantity yet to be filled.
func (o *Order) Remaining() money.Fixed {
	return o.Quantity - o.Filled
}

// ApplyFill records an execution of qty against the order and refreshes
// its Status per the state machine in spec.md §3.6.
func (o *Order) ApplyFill(qty money.Fixed) {
	o.Filled += qty
	switch {
	case o.Filled >= o.Quantity:
		o.Status = Filled
	case o.Filled > 0:
		o.Status = PartiallyFilled
	}
}

// IsExpired reports whether the order's expiry has passed as of now.
func (o *Order) IsExpired(now time.Time) bool {
	return o.Expiry != nil && now.After(*o.Expiry)
}

// Position is open trade exposure. Its ID equals the OrderID that
// originated it only when that order retired on the fill that opened
// it; a position opened from an order that still rests afterwards gets
// its own, separately minted id (see OrderID).
type Position struct {
	ID                OrderID
	User              UserID
	Asset             Asset
	Side              Side
	EntryPrice        money.Fixed
	Quantity          money.Fixed
	LockedMargin      money.Fixed
	Leverage          int64
	StopLossPercent   *int64
	TakeProfitPercent *int64
	CreatedAt         time.Time
}

// UnrealizedPnL computes the position's mark-to-market PnL at the given
// mark price, per spec.md §4.8.
func (p *Position) UnrealizedPnL(mark money.Fixed) money.Fixed {
	if p.Side == Buy {
		return money.MulLeveraged(mark-p.EntryPrice, p.Quantity, p.Leverage)
	}
	return money.MulLeveraged(p.EntryPrice-mark, p.Quantity, p.Leverage)
}
