package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpd/internal/book"
	"perpd/internal/domain"
	"perpd/internal/ledger"
	"perpd/internal/money"
)

func restingOrder(id domain.OrderID, user domain.UserID, side domain.Side, price, qty, reqMargin money.Fixed) *domain.Order {
	return &domain.Order{
		ID:              id,
		User:            user,
		Asset:           "BTC_USDC",
		Side:            side,
		Type:            domain.Limit,
		LimitPrice:      price,
		Quantity:        qty,
		RequestedMargin: reqMargin,
		Leverage:        1,
		Status:          domain.Open,
	}
}

func TestMatch_FullyConsumesOneRestingOrder(t *testing.T) {
	b := book.New("BTC_USDC")
	margin := ledger.NewMargin()

	resting := restingOrder("c1", "alice", domain.Sell, money.FromWhole(100), money.FromWhole(10), money.FromWhole(50))
	margin.Set(resting.ID, resting.RequestedMargin)
	b.Insert(resting)

	taker := &domain.Order{
		ID: "t1", User: "bob", Asset: "BTC_USDC", Side: domain.Buy,
		Type: domain.Market, Quantity: money.FromWhole(10), Leverage: 1,
	}

	res := Match(b, margin, taker)

	require.Equal(t, money.FromWhole(10), res.ExecutedQty)
	assert.Equal(t, money.FromWhole(100), res.VWAPPrice)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, money.FromWhole(50), res.Fills[0].ExecMargin) // fully consumed: all margin freed
	assert.True(t, taker.Remaining().IsZero())
	_, ok := b.BestLevel(domain.Sell)
	assert.False(t, ok, "fully consumed level should be removed")
}

func TestMatch_PartialFillLeavesRemainderResting(t *testing.T) {
	b := book.New("BTC_USDC")
	margin := ledger.NewMargin()

	resting := restingOrder("c1", "alice", domain.Sell, money.FromWhole(100), money.FromWhole(10), money.FromWhole(50))
	margin.Set(resting.ID, resting.RequestedMargin)
	b.Insert(resting)

	taker := &domain.Order{
		ID: "t1", User: "bob", Asset: "BTC_USDC", Side: domain.Buy,
		Type: domain.Market, Quantity: money.FromWhole(4), Leverage: 1,
	}

	res := Match(b, margin, taker)

	assert.Equal(t, money.FromWhole(4), res.ExecutedQty)
	assert.Equal(t, money.FromWhole(20), res.Fills[0].ExecMargin) // 50 * 4/10
	lvl, ok := b.BestLevel(domain.Sell)
	require.True(t, ok)
	assert.Equal(t, money.FromWhole(6), lvl.Orders[0].Remaining())
	assert.Equal(t, money.FromWhole(30), margin.Get(resting.ID))
}

func TestMatch_SkipsSameUserOrder(t *testing.T) {
	b := book.New("BTC_USDC")
	margin := ledger.NewMargin()

	ownResting := restingOrder("c1", "bob", domain.Sell, money.FromWhole(100), money.FromWhole(5), money.FromWhole(25))
	otherResting := restingOrder("c2", "alice", domain.Sell, money.FromWhole(100), money.FromWhole(5), money.FromWhole(25))
	margin.Set(ownResting.ID, ownResting.RequestedMargin)
	margin.Set(otherResting.ID, otherResting.RequestedMargin)
	b.Insert(ownResting)
	b.Insert(otherResting)

	taker := &domain.Order{
		ID: "t1", User: "bob", Asset: "BTC_USDC", Side: domain.Buy,
		Type: domain.Market, Quantity: money.FromWhole(5), Leverage: 1,
	}

	res := Match(b, margin, taker)

	require.Len(t, res.Fills, 1)
	assert.Equal(t, domain.OrderID("c2"), res.Fills[0].CounterpartyID)
	assert.True(t, ownResting.Remaining().Cmp(money.FromWhole(5)) == 0, "bob's own order must never match")
}

func TestMatch_AllSameUserLevelStopsWithoutSpinning(t *testing.T) {
	b := book.New("BTC_USDC")
	margin := ledger.NewMargin()

	ownResting := restingOrder("c1", "bob", domain.Sell, money.FromWhole(100), money.FromWhole(5), money.FromWhole(25))
	margin.Set(ownResting.ID, ownResting.RequestedMargin)
	b.Insert(ownResting)

	taker := &domain.Order{
		ID: "t1", User: "bob", Asset: "BTC_USDC", Side: domain.Buy,
		Type: domain.Market, Quantity: money.FromWhole(5), Leverage: 1,
	}

	res := Match(b, margin, taker)

	assert.True(t, res.ExecutedQty.IsZero(), "self-only level must not match")
	assert.Empty(t, res.Fills)
	assert.True(t, taker.Remaining().Cmp(money.FromWhole(5)) == 0, "taker must be left fully unfilled, not hung")
	lvl, ok := b.BestLevel(domain.Sell)
	require.True(t, ok)
	assert.Len(t, lvl.Orders, 1, "the self-order must be left resting untouched")
}

func TestMatch_LimitOrderDoesNotCrossAwayFromLimit(t *testing.T) {
	b := book.New("BTC_USDC")
	margin := ledger.NewMargin()

	resting := restingOrder("c1", "alice", domain.Sell, money.FromWhole(105), money.FromWhole(10), money.FromWhole(50))
	margin.Set(resting.ID, resting.RequestedMargin)
	b.Insert(resting)

	taker := &domain.Order{
		ID: "t1", User: "bob", Asset: "BTC_USDC", Side: domain.Buy,
		Type: domain.Limit, LimitPrice: money.FromWhole(100), Quantity: money.FromWhole(10), Leverage: 1,
	}

	res := Match(b, margin, taker)
	assert.True(t, res.ExecutedQty.IsZero())
}
