// Package risk implements the periodic risk monitor (spec.md §4.8): for
// every open position it checks, in order, liquidation against a tiered
// maintenance-margin table, then take-profit, then stop-loss. A scan
// first snapshots the position set (position.Store.All already does
// this), decides every action to take, and only then applies them —
// so an action taken on position N never perturbs the inputs already
// read for position N-1.
package risk

import (
	"time"

	"perpd/internal/book"
	"perpd/internal/domain"
	"perpd/internal/events"
	"perpd/internal/ledger"
	"perpd/internal/markprice"
	"perpd/internal/metrics"
	"perpd/internal/money"
	"perpd/internal/netting"
	"perpd/internal/position"
)

// Tier is one row of the maintenance-margin table: positions whose
// locked margin is strictly below Below pay Percent maintenance margin.
type Tier struct {
	Below   money.Fixed
	Percent int64
}

// TierTable is ordered ascending by Below; a position that exceeds every
// row's Below falls through to Default.
type TierTable struct {
	Tiers   []Tier
	Default int64
}

// DefaultTiers is a reasonable four-tier table, grounded on the kind of
// notional-banded maintenance schedule real perpetual exchanges publish.
func DefaultTiers() TierTable {
	return TierTable{
		Tiers: []Tier{
			{Below: money.FromWhole(100), Percent: 1},
			{Below: money.FromWhole(1_000), Percent: 2},
			{Below: money.FromWhole(10_000), Percent: 3},
			{Below: money.FromWhole(100_000), Percent: 4},
		},
		Default: 5,
	}
}

// PercentFor returns the maintenance-margin percent applicable to a
// position with the given locked margin.
func (t TierTable) PercentFor(lockedMargin money.Fixed) int64 {
	for _, tier := range t.Tiers {
		if lockedMargin.Cmp(tier.Below) < 0 {
			return tier.Percent
		}
	}
	return t.Default
}

// Kind distinguishes why a position is being closed.
type Kind string

const (
	Liquidate  Kind = "liquidate"
	TakeProfit Kind = "take_profit"
	StopLoss   Kind = "stop_loss"
)

// action is a decided-but-not-yet-applied close.
type action struct {
	positionID domain.OrderID
	kind       Kind
	mark       money.Fixed
}

// Monitor periodically evaluates every open position against the mark
// price index and closes out liquidations, take-profits and stop-losses.
type Monitor struct {
	Tiers TierTable
}

// NewMonitor builds a Monitor with the default maintenance-margin table.
func NewMonitor() *Monitor {
	return &Monitor{Tiers: DefaultTiers()}
}

// Scan decides the set of actions to take against the current snapshot
// of open positions. It never mutates engine state — Apply does that.
func (m *Monitor) Scan(positions *position.Store, prices *markprice.Index) []action {
	var actions []action
	openPerAsset := make(map[domain.Asset]int)

	for _, pos := range positions.All() {
		openPerAsset[pos.Asset]++

		mark, ok := prices.Get(pos.Asset)
		if !ok {
			continue // no mark price yet for this asset: nothing to evaluate
		}

		if m.liquidates(pos, mark) {
			actions = append(actions, action{pos.ID, Liquidate, mark})
			continue
		}
		if hitsTakeProfit(pos, mark) {
			actions = append(actions, action{pos.ID, TakeProfit, mark})
			continue
		}
		if hitsStopLoss(pos, mark) {
			actions = append(actions, action{pos.ID, StopLoss, mark})
			continue
		}
	}

	for asset, n := range openPerAsset {
		metrics.OpenPositions.WithLabelValues(string(asset)).Set(float64(n))
	}

	return actions
}

// liquidates reports whether pos's equity (locked margin + unrealized
// PnL) has fallen below its tiered maintenance-margin requirement.
func (m *Monitor) liquidates(pos *domain.Position, mark money.Fixed) bool {
	equity := pos.LockedMargin + pos.UnrealizedPnL(mark)
	maintenance := money.PercentOf(pos.LockedMargin, m.Tiers.PercentFor(pos.LockedMargin))
	return equity.Cmp(maintenance) < 0
}

func hitsTakeProfit(pos *domain.Position, mark money.Fixed) bool {
	if pos.TakeProfitPercent == nil {
		return false
	}
	delta := money.PercentOf(pos.EntryPrice, *pos.TakeProfitPercent)
	if pos.Side == domain.Buy {
		return mark.Cmp(pos.EntryPrice+delta) >= 0
	}
	return mark.Cmp(pos.EntryPrice-delta) <= 0
}

func hitsStopLoss(pos *domain.Position, mark money.Fixed) bool {
	if pos.StopLossPercent == nil {
		return false
	}
	delta := money.PercentOf(pos.EntryPrice, *pos.StopLossPercent)
	if pos.Side == domain.Buy {
		return mark.Cmp(pos.EntryPrice-delta) <= 0
	}
	return mark.Cmp(pos.EntryPrice+delta) >= 0
}

// Apply executes every decided action against engine state and emits a
// TradeOutcome for each, in the order Scan decided them.
func (m *Monitor) Apply(actions []action, positions *position.Store, bal *ledger.Balances, hold *ledger.Holdings, margin *ledger.Margin, sink *events.Sink, now time.Time) {
	for _, a := range actions {
		pos, ok := positions.Get(a.positionID)
		if !ok {
			continue // already closed by an earlier action in this same scan (shouldn't happen: one action per position id)
		}

		qty, entry, leverage, lockedMargin := pos.Quantity, pos.EntryPrice, pos.Leverage, pos.LockedMargin
		side, user, asset := pos.Side, pos.User, pos.Asset

		pnl := netting.ClosePositionFully(positions, bal, hold, margin, pos, a.mark)

		status := events.OutcomeClosed
		switch a.kind {
		case Liquidate:
			status = events.OutcomeLiquidated
			metrics.Liquidations.WithLabelValues(string(asset)).Inc()
		case TakeProfit:
			metrics.TakeProfitCloses.WithLabelValues(string(asset)).Inc()
		case StopLoss:
			metrics.StopLossCloses.WithLabelValues(string(asset)).Inc()
		}

		newBalance, _ := bal.Get(user)
		newHoldings, _ := hold.Get(user, asset)

		sink.Emit(events.TradeOutcome{
			TradeID:         a.positionID,
			UserID:          user,
			Asset:           asset,
			Side:            side,
			Quantity:        qty,
			EntryPrice:      entry,
			ClosePrice:      a.mark,
			PnL:             pnl,
			Status:          status,
			Timestamp:       now,
			Margin:          lockedMargin,
			Leverage:        leverage,
			UpdatedBalance:  newBalance,
			UpdatedHoldings: newHoldings,
		})
	}
}

// Run performs one full scan-then-apply cycle over open positions, then
// cancels any resting book order whose expiry has passed (spec.md §5).
func (m *Monitor) Run(positions *position.Store, books *book.Registry, prices *markprice.Index, bal *ledger.Balances, hold *ledger.Holdings, margin *ledger.Margin, sink *events.Sink, now time.Time) {
	actions := m.Scan(positions, prices)
	m.Apply(actions, positions, bal, hold, margin, sink, now)
	expireOrders(books, margin, bal, hold, sink, now)
}

// expiredOrder is one resting order decided, during the snapshot pass, to
// have passed its expiry.
type expiredOrder struct {
	asset domain.Asset
	side  domain.Side
	price money.Fixed
	order *domain.Order
}

// expireOrders cancels every resting order across every asset's book
// whose Expiry has passed as of now, releasing its still-reserved margin
// back to balance (domain.Order's Open/PartiallyFilled -> Cancelled
// transition). It snapshots the expired set before mutating any book, the
// same scan-then-apply discipline Scan/Apply use for positions, then
// reports the post-sweep book depth per asset and side.
func expireOrders(books *book.Registry, margin *ledger.Margin, bal *ledger.Balances, hold *ledger.Holdings, sink *events.Sink, now time.Time) {
	var due []expiredOrder
	for asset, b := range books.All() {
		for _, side := range [...]domain.Side{domain.Buy, domain.Sell} {
			for _, lvl := range b.Levels(side) {
				for _, o := range lvl.Orders {
					if o.IsExpired(now) {
						due = append(due, expiredOrder{asset, side, lvl.Price, o})
					}
				}
			}
		}
	}

	for _, e := range due {
		b := books.For(e.asset)
		if !b.Remove(e.side, e.price, e.order.ID) {
			continue // already gone, e.g. matched away between snapshot and here
		}

		e.order.Status = domain.Cancelled
		unused := margin.Get(e.order.ID)
		margin.Release(e.order.ID)
		bal.Add(e.order.User, unused)

		newBalance, _ := bal.Get(e.order.User)
		newHoldings, _ := hold.Get(e.order.User, e.asset)

		sink.Emit(events.TradeOutcome{
			TradeID:         e.order.ID,
			UserID:          e.order.User,
			Asset:           e.asset,
			Side:            e.side,
			Quantity:        e.order.Remaining(),
			EntryPrice:      e.order.LimitPrice,
			Status:          events.OutcomeCancelled,
			Timestamp:       now,
			Margin:          unused,
			Leverage:        e.order.Leverage,
			UpdatedBalance:  newBalance,
			UpdatedHoldings: newHoldings,
			OrderType:       e.order.Type,
			LimitPrice:      e.order.LimitPrice,
		})
	}

	for asset, b := range books.All() {
		for _, side := range [...]domain.Side{domain.Buy, domain.Sell} {
			depth := 0
			for _, lvl := range b.Levels(side) {
				depth += len(lvl.Orders)
			}
			metrics.BookDepth.WithLabelValues(string(asset), side.String()).Set(float64(depth))
		}
	}
}
