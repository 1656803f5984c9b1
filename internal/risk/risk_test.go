package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpd/internal/book"
	"perpd/internal/domain"
	"perpd/internal/events"
	"perpd/internal/ledger"
	"perpd/internal/markprice"
	"perpd/internal/money"
	"perpd/internal/position"
)

func TestTierTable_PercentFor(t *testing.T) {
	tiers := DefaultTiers()
	assert.Equal(t, int64(1), tiers.PercentFor(money.FromWhole(50)))
	assert.Equal(t, int64(2), tiers.PercentFor(money.FromWhole(500)))
	assert.Equal(t, int64(5), tiers.PercentFor(money.FromWhole(1_000_000)))
}

func TestScan_LiquidatesUnderwaterPosition(t *testing.T) {
	store := position.NewStore()
	prices := markprice.NewIndex()
	m := NewMonitor()

	pos := &domain.Position{
		ID: "p1", User: "dave", Asset: "BTC_USDC", Side: domain.Buy,
		EntryPrice: money.FromWhole(100), Quantity: money.FromWhole(1),
		LockedMargin: money.FromWhole(10), Leverage: 10,
	}
	store.Add(pos)
	prices.Apply("BTC_USDC", money.FromWhole(91), time.Unix(1, 0))

	actions := m.Scan(store, prices)
	require.Len(t, actions, 1)
	assert.Equal(t, Liquidate, actions[0].kind)
}

func TestScan_TakeProfitBeforeStopLoss(t *testing.T) {
	store := position.NewStore()
	prices := markprice.NewIndex()
	m := NewMonitor()

	tp := int64(10)
	sl := int64(50)
	pos := &domain.Position{
		ID: "p2", User: "erin", Asset: "BTC_USDC", Side: domain.Buy,
		EntryPrice: money.FromWhole(100), Quantity: money.FromWhole(1),
		LockedMargin: money.FromWhole(100), Leverage: 1,
		TakeProfitPercent: &tp, StopLossPercent: &sl,
	}
	store.Add(pos)
	prices.Apply("BTC_USDC", money.FromWhole(111), time.Unix(1, 0))

	actions := m.Scan(store, prices)
	require.Len(t, actions, 1)
	assert.Equal(t, TakeProfit, actions[0].kind)
}

func TestApply_EmitsLiquidatedOutcome(t *testing.T) {
	store := position.NewStore()
	prices := markprice.NewIndex()
	bal := ledger.NewBalances()
	hold := ledger.NewHoldings()
	margin := ledger.NewMargin()
	sink := events.NewSink(0)
	m := NewMonitor()

	bal.Set("dave", 0)
	pos := &domain.Position{
		ID: "p1", User: "dave", Asset: "BTC_USDC", Side: domain.Buy,
		EntryPrice: money.FromWhole(100), Quantity: money.FromWhole(1),
		LockedMargin: money.FromWhole(10), Leverage: 10,
	}
	store.Add(pos)
	margin.Set(pos.ID, pos.LockedMargin)
	prices.Apply("BTC_USDC", money.FromWhole(91), time.Unix(1, 0))

	m.Run(store, book.NewRegistry(), prices, bal, hold, margin, sink, time.Unix(2, 0))

	_, ok := store.Get("p1")
	assert.False(t, ok)

	emitted := sink.DrainAll()
	require.Len(t, emitted, 1)
}

func TestRun_CancelsExpiredRestingOrder(t *testing.T) {
	store := position.NewStore()
	prices := markprice.NewIndex()
	bal := ledger.NewBalances()
	hold := ledger.NewHoldings()
	margin := ledger.NewMargin()
	sink := events.NewSink(0)
	m := NewMonitor()

	books := book.NewRegistry()
	b := books.For("BTC_USDC")
	expiry := time.Unix(1, 0)
	resting := &domain.Order{
		ID: "o1", User: "frank", Asset: "BTC_USDC", Side: domain.Sell,
		Type: domain.Limit, LimitPrice: money.FromWhole(100), Quantity: money.FromWhole(5),
		RequestedMargin: money.FromWhole(25), Leverage: 1, Expiry: &expiry,
	}
	b.Insert(resting)
	margin.Set(resting.ID, resting.RequestedMargin)
	bal.Set("frank", 0)

	m.Run(store, books, prices, bal, hold, margin, sink, time.Unix(2, 0))

	_, ok := b.BestLevel(domain.Sell)
	assert.False(t, ok, "expired order must be removed from the book")
	assert.Equal(t, domain.Cancelled, resting.Status)
	assert.Equal(t, money.Fixed(0), margin.Get(resting.ID))

	newBal, _ := bal.Get("frank")
	assert.Equal(t, money.FromWhole(25), newBal, "locked margin must be refunded")

	emitted := sink.DrainAll()
	require.Len(t, emitted, 1)
	outcome, ok := emitted[0].(events.TradeOutcome)
	require.True(t, ok)
	assert.Equal(t, events.OutcomeCancelled, outcome.Status)
}
