package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpd/internal/domain"
	"perpd/internal/events"
	"perpd/internal/ingress"
	"perpd/internal/ledger"
	"perpd/internal/position"
)

func newDeps() Deps {
	return Deps{
		Positions: position.NewStore(),
		Balances:  ledger.NewBalances(),
		Holdings:  ledger.NewHoldings(),
		Margin:    ledger.NewMargin(),
		Pending:   NewPendingQueue(),
		Sink:      events.NewSink(0),
		IDs:       func() domain.OrderID { return "minted-id" },
		Now:       func() time.Time { return time.Unix(100, 0) },
	}
}

func TestAdmit_ParksOnUnknownBalance(t *testing.T) {
	d := newDeps()
	req := &ingress.CreateTradeRequest{UserID: "alice", Asset: "BTC_USDC", Side: "buy", Margin: 100, Quantity: 10, Leverage: 1}

	order, outcome := Admit(d, req)

	assert.Nil(t, order)
	assert.Equal(t, Parked, outcome)
	assert.True(t, d.Pending.Has("alice"))
	require.Equal(t, 1, d.Sink.Len())
}

func TestAdmit_RejectsInsufficientBalance(t *testing.T) {
	d := newDeps()
	d.Balances.Set("alice", 0)
	d.Holdings.Set("alice", "BTC_USDC", 0)
	req := &ingress.CreateTradeRequest{UserID: "alice", Asset: "BTC_USDC", Side: "buy", Margin: 100, Quantity: 10, Leverage: 1}

	order, outcome := Admit(d, req)

	assert.Nil(t, order)
	assert.Equal(t, Rejected, outcome)
	emitted := d.Sink.DrainAll()
	require.Len(t, emitted, 1)
	resp, ok := emitted[0].(events.TradeResponse)
	require.True(t, ok)
	assert.Equal(t, events.Rejected, resp.Status)
	assert.Equal(t, ReasonInsufficient, resp.Reason)
}

func TestAdmit_AcceptsAndDebitsMargin(t *testing.T) {
	d := newDeps()
	d.Balances.Set("alice", 1000*1e8) // money.FromWhole(1000) as a raw int64 literal
	d.Holdings.Set("alice", "BTC_USDC", 0)
	req := &ingress.CreateTradeRequest{UserID: "alice", Asset: "BTC_USDC", Side: "buy", Margin: 100 * 1e8, Quantity: 10 * 1e8, Leverage: 1}

	order, outcome := Admit(d, req)

	require.Equal(t, Accepted, outcome)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderID("minted-id"), order.ID)

	balance, _ := d.Balances.Get("alice")
	assert.Equal(t, int64(900*1e8), int64(balance))
}
