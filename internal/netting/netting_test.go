package netting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpd/internal/domain"
	"perpd/internal/ledger"
	"perpd/internal/money"
	"perpd/internal/position"
)

func TestNetFill_OpensNewPositionWhenNoOppositeExposure(t *testing.T) {
	store := position.NewStore()
	bal := ledger.NewBalances()
	hold := ledger.NewHoldings()
	margin := ledger.NewMargin()
	bal.Set("alice", money.FromWhole(1000))
	hold.Set("alice", "BTC_USDC", 0)

	res := NetFill(store, bal, hold, margin, Input{
		OrderID:         "o1",
		PositionID:      "o1",
		User:            "alice",
		Asset:           "BTC_USDC",
		Side:            domain.Buy,
		ExecQty:         money.FromWhole(10),
		ExecPrice:       money.FromWhole(100),
		RequestedQty:    money.FromWhole(10),
		RequestedMargin: money.FromWhole(100),
		Leverage:        2,
		Now:             time.Unix(0, 0),
	})

	assert.True(t, res.ClosedQty.IsZero())
	assert.Equal(t, money.FromWhole(10), res.OpenedQty)
	require.NotNil(t, res.OpenedPosition)
	assert.Equal(t, money.FromWhole(100), res.OpenedPosition.EntryPrice)
	assert.Equal(t, money.FromWhole(100), res.OpenedPosition.LockedMargin)

	got, ok := hold.Get("alice", "BTC_USDC")
	require.True(t, ok)
	assert.Equal(t, money.FromWhole(10), got)
}

func TestNetFill_ClosesOppositeBeforeOpening(t *testing.T) {
	store := position.NewStore()
	bal := ledger.NewBalances()
	hold := ledger.NewHoldings()
	margin := ledger.NewMargin()
	bal.Set("alice", money.FromWhole(0))
	hold.Set("alice", "BTC_USDC", money.FromWhole(10))

	existing := &domain.Position{
		ID: "p1", User: "alice", Asset: "BTC_USDC", Side: domain.Buy,
		EntryPrice: money.FromWhole(100), Quantity: money.FromWhole(10),
		LockedMargin: money.FromWhole(100), Leverage: 1, CreatedAt: time.Unix(0, 0),
	}
	store.Add(existing)
	margin.Set(existing.ID, existing.LockedMargin)

	// Sell 6 at 110: closes 6 of the long at a 10-per-unit gain.
	res := NetFill(store, bal, hold, margin, Input{
		OrderID:         "o2",
		User:            "alice",
		Asset:           "BTC_USDC",
		Side:            domain.Sell,
		ExecQty:         money.FromWhole(6),
		ExecPrice:       money.FromWhole(110),
		RequestedQty:    money.FromWhole(6),
		RequestedMargin: money.FromWhole(60),
		Leverage:        1,
		Now:             time.Unix(0, 0),
	})

	assert.Equal(t, money.FromWhole(6), res.ClosedQty)
	assert.True(t, res.OpenedQty.IsZero())
	assert.Equal(t, money.FromWhole(60), res.RealizedPnL) // 10 * 6 * 1
	require.Len(t, res.Closed, 1)
	assert.False(t, res.Closed[0].Removed)

	remaining, ok := store.Get("p1")
	require.True(t, ok)
	assert.Equal(t, money.FromWhole(4), remaining.Quantity)
	assert.Equal(t, money.FromWhole(40), remaining.LockedMargin) // 100 * 4/10

	newBalance, _ := bal.Get("alice")
	// pnl 60 + margin return (100*6/10=60) = 120
	assert.Equal(t, money.FromWhole(120), newBalance)
}

func TestNetFill_OpeningWithFreshPositionIDPreservesOrderReserve(t *testing.T) {
	store := position.NewStore()
	bal := ledger.NewBalances()
	hold := ledger.NewHoldings()
	margin := ledger.NewMargin()
	bal.Set("dave", money.FromWhole(0))
	hold.Set("dave", "BTC_USDC", 0)

	// Order "o1" reserved 100 margin for qty 10 at admission, then
	// immediately matched 4 and will keep resting for the other 6 — so
	// the position opened for the matched 4 must NOT take "o1"'s own id.
	margin.Set("o1", money.FromWhole(100))

	res := NetFill(store, bal, hold, margin, Input{
		OrderID:         "o1",
		PositionID:      "fresh1",
		User:            "dave",
		Asset:           "BTC_USDC",
		Side:            domain.Buy,
		ExecQty:         money.FromWhole(4),
		ExecPrice:       money.FromWhole(100),
		RequestedQty:    money.FromWhole(10),
		RequestedMargin: money.FromWhole(100),
		Leverage:        1,
		Now:             time.Unix(0, 0),
	})

	require.NotNil(t, res.OpenedPosition)
	assert.Equal(t, domain.OrderID("fresh1"), res.OpenedPosition.ID)
	assert.Equal(t, money.FromWhole(40), margin.Get("fresh1"))
	// The order's own reserve shrinks by exactly what the new position
	// took, leaving the correct amount for its still-resting remainder —
	// nothing is overwritten away or double-counted.
	assert.Equal(t, money.FromWhole(60), margin.Get("o1"))

	_, stillThere := store.Get("o1")
	assert.False(t, stillThere, "no position should ever be keyed by the still-resting order's id")
}

func TestClosePositionFully_RemovesFromStore(t *testing.T) {
	store := position.NewStore()
	bal := ledger.NewBalances()
	hold := ledger.NewHoldings()
	margin := ledger.NewMargin()
	bal.Set("bob", money.FromWhole(0))

	pos := &domain.Position{
		ID: "p2", User: "bob", Asset: "ETH_USDC", Side: domain.Sell,
		EntryPrice: money.FromWhole(50), Quantity: money.FromWhole(4),
		LockedMargin: money.FromWhole(20), Leverage: 1,
	}
	store.Add(pos)
	margin.Set(pos.ID, pos.LockedMargin)

	pnl := ClosePositionFully(store, bal, hold, margin, pos, money.FromWhole(40))

	assert.Equal(t, money.FromWhole(40), pnl) // short gains on a price drop: (50-40)*4
	_, ok := store.Get("p2")
	assert.False(t, ok)
	assert.Equal(t, money.Fixed(0), margin.Get("p2"))
}

func TestProspectiveOpenQty_SplitsAgainstExistingOpposite(t *testing.T) {
	store := position.NewStore()
	existing := &domain.Position{
		ID: "p3", User: "carol", Asset: "BTC_USDC", Side: domain.Buy,
		Quantity: money.FromWhole(5), LockedMargin: money.FromWhole(50), Leverage: 1,
	}
	store.Add(existing)

	closeQty, openQty := ProspectiveOpenQty(store, "carol", "BTC_USDC", domain.Sell, money.FromWhole(8))
	assert.Equal(t, money.FromWhole(5), closeQty)
	assert.Equal(t, money.FromWhole(3), openQty)
}
