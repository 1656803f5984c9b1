// Package engine is the single-writer state container (C10, spec.md
// §4.10): one Engine value owns every mutable structure — the order
// books, the position store, the three ledgers, the mark-price index
// and the parked-request queue — behind one mutex, so every operation
// that touches state runs to completion before the next one starts.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"perpd/internal/admission"
	"perpd/internal/book"
	"perpd/internal/config"
	"perpd/internal/domain"
	"perpd/internal/events"
	"perpd/internal/ingress"
	"perpd/internal/ledger"
	"perpd/internal/markprice"
	"perpd/internal/matching"
	"perpd/internal/money"
	"perpd/internal/netting"
	"perpd/internal/position"
	"perpd/internal/risk"
)

// Engine bundles every piece of mutable state named in spec.md's data
// model and serialises all access to it with mu.
type Engine struct {
	mu sync.Mutex

	books     *book.Registry
	positions *position.Store
	balances  *ledger.Balances
	holdings  *ledger.Holdings
	margin    *ledger.Margin
	prices    *markprice.Index
	pending   *admission.PendingQueue
	sink      *events.Sink
	monitor   *risk.Monitor

	now func() time.Time
}

// New builds an empty Engine with the default maintenance-margin table.
// sinkCapacity bounds the outbound event queue (spec.md §5/§9); now is
// injected so tests can control time.
func New(sinkCapacity int, now func() time.Time) *Engine {
	return NewWithTiers(sinkCapacity, risk.DefaultTiers(), now)
}

// NewWithTiers builds an empty Engine whose risk monitor uses tiers
// (typically loaded from config.Config.MaintenanceTiers) instead of the
// built-in default table.
func NewWithTiers(sinkCapacity int, tiers risk.TierTable, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		books:     book.NewRegistry(),
		positions: position.NewStore(),
		balances:  ledger.NewBalances(),
		holdings:  ledger.NewHoldings(),
		margin:    ledger.NewMargin(),
		prices:    markprice.NewIndex(),
		pending:   admission.NewPendingQueue(),
		sink:      events.NewSink(sinkCapacity),
		monitor:   &risk.Monitor{Tiers: tiers},
		now:       now,
	}
}

// TiersFromConfig converts the whole-unit maintenance-margin table read
// from config.Config into the scaled risk.TierTable the engine needs.
func TiersFromConfig(cfg config.Config) risk.TierTable {
	tiers := make([]risk.Tier, len(cfg.MaintenanceTiers))
	for i, row := range cfg.MaintenanceTiers {
		tiers[i] = risk.Tier{Below: money.FromWhole(row.BelowWhole), Percent: row.Percent}
	}
	return risk.TierTable{Tiers: tiers, Default: cfg.MaintenanceDefault}
}

// Sink exposes the outbound event queue for the delivery task to drain.
func (e *Engine) Sink() *events.Sink {
	return e.sink
}

func (e *Engine) mintID() domain.OrderID {
	return domain.OrderID(uuid.NewString())
}

func (e *Engine) deps() admission.Deps {
	return admission.Deps{
		Positions: e.positions,
		Balances:  e.balances,
		Holdings:  e.holdings,
		Margin:    e.margin,
		Pending:   e.pending,
		Sink:      e.sink,
		IDs:       e.mintID,
		Now:       e.now,
	}
}

// SubmitTrade runs one inbound request through admission and, if
// accepted, through matching and netting, under the single writer lock.
func (e *Engine) SubmitTrade(req *ingress.CreateTradeRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitLocked(req)
}

// Readmit satisfies reconcile.Applier: it re-runs a previously parked
// request through admission, called while already holding mu from
// ApplyBalanceSnapshot/ApplyHoldingsSnapshot.
func (e *Engine) Readmit(req *ingress.CreateTradeRequest) {
	e.submitLocked(req)
}

func (e *Engine) submitLocked(req *ingress.CreateTradeRequest) {
	order, outcome := admission.Admit(e.deps(), req)
	if outcome != admission.Accepted {
		return
	}

	b := e.books.For(order.Asset)
	res := matching.Match(b, e.margin, order)

	if res.ExecutedQty.IsPositive() {
		// A leg's position only takes its order's own id once that order
		// has nothing left to execute later; otherwise the order goes on
		// living (resting on the book, or pending a Market residual
		// release below) under that id, so the position needs a fresh one.
		takerPositionID := order.ID
		if order.Remaining().IsPositive() {
			takerPositionID = e.mintID()
		}

		in := netting.Input{
			OrderID:           order.ID,
			PositionID:        takerPositionID,
			User:              order.User,
			Asset:             order.Asset,
			Side:              order.Side,
			ExecQty:           res.ExecutedQty,
			ExecPrice:         res.VWAPPrice,
			RequestedQty:      order.Quantity,
			RequestedMargin:   order.RequestedMargin,
			Leverage:          order.Leverage,
			StopLossPercent:   order.StopLossPercent,
			TakeProfitPercent: order.TakeProfitPercent,
			Now:               e.now(),
		}
		netting.NetFill(e.positions, e.balances, e.holdings, e.margin, in)
		e.emitFilled(order, res)

		for _, fill := range res.Fills {
			// Match already took ExecMargin out of the counterparty's
			// reserve; put it back so NetFill's carve below is the only
			// deduction this leg makes from it.
			e.margin.Set(fill.CounterpartyID, e.margin.Get(fill.CounterpartyID)+fill.ExecMargin)

			counterpartyPositionID := fill.CounterpartyID
			if !fill.CounterpartyFilled {
				counterpartyPositionID = e.mintID()
			}

			cIn := netting.Input{
				OrderID:           fill.CounterpartyID,
				PositionID:        counterpartyPositionID,
				User:              fill.CounterpartyUser,
				Asset:             order.Asset,
				Side:              fill.CounterpartySide,
				ExecQty:           fill.Qty,
				ExecPrice:         fill.Price,
				RequestedQty:      fill.CounterpartyQty,
				RequestedMargin:   fill.CounterpartyMargin,
				Leverage:          fill.CounterpartyLeverage,
				StopLossPercent:   fill.CounterpartySL,
				TakeProfitPercent: fill.CounterpartyTP,
				Now:               e.now(),
			}
			netting.NetFill(e.positions, e.balances, e.holdings, e.margin, cIn)
		}
	}

	if order.Type == domain.Limit && order.Remaining().IsPositive() {
		b.Insert(order)
	} else if order.Remaining().IsPositive() {
		// Unfilled remainder of a Market order: no liquidity to fill it.
		// Whatever share of the reserve NetFill didn't just carve off to
		// an opened position is this remainder's own, so read it back
		// from the ledger rather than refunding the order's original
		// total (which may have already been partly spent above).
		unused := e.margin.Get(order.ID)
		e.margin.Release(order.ID)
		e.balances.Add(order.User, unused)
	}
}

func (e *Engine) emitFilled(order *domain.Order, res matching.Result) {
	bal, _ := e.balances.Get(order.User)
	hold, _ := e.holdings.Get(order.User, order.Asset)
	e.sink.Emit(events.TradeOutcome{
		TradeID:         order.ID,
		UserID:          order.User,
		Asset:           order.Asset,
		Side:            order.Side,
		Quantity:        res.ExecutedQty,
		EntryPrice:      res.VWAPPrice,
		Status:          events.OutcomeFilled,
		Timestamp:       e.now(),
		Margin:          order.RequestedMargin,
		Leverage:        order.Leverage,
		UpdatedBalance:  bal,
		UpdatedHoldings: hold,
		OrderType:       order.Type,
		LimitPrice:      order.LimitPrice,
	})
}

// ApplyPriceUpdate installs a new mark price for asset.
func (e *Engine) ApplyPriceUpdate(upd ingress.PriceUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset := domain.Asset(upd.Asset)
	ts := time.UnixMilli(upd.Timestamp)
	if !e.prices.Apply(asset, priceFixed(upd.Price), ts) {
		log.Debug().Str("asset", upd.Asset).Msg("rejected stale or non-positive price update")
	}
}

// ApplyBalanceSnapshot installs a balance snapshot and replays any
// requests parked awaiting it.
func (e *Engine) ApplyBalanceSnapshot(resp ingress.BalanceResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()

	applyBalanceLocked(e, resp)
}

// ApplyHoldingsSnapshot installs a holdings snapshot and replays any
// requests parked awaiting it.
func (e *Engine) ApplyHoldingsSnapshot(resp ingress.HoldingsResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()

	applyHoldingsLocked(e, resp)
}

// RunRiskScan performs one scan-then-apply cycle of the risk monitor.
func (e *Engine) RunRiskScan() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.monitor.Run(e.positions, e.books, e.prices, e.balances, e.holdings, e.margin, e.sink, e.now())
}
