// Package admission implements the admission controller (spec.md §4.5):
// every incoming trade request must clear a balance and holdings
// presence check before it is allowed to mint an OrderID and debit
// margin. Requests that hit a reference-data cache miss are parked and
// replayed once the reconciler applies the missing snapshot.
package admission

import (
	"time"

	"perpd/internal/domain"
	"perpd/internal/events"
	"perpd/internal/ingress"
	"perpd/internal/ledger"
	"perpd/internal/metrics"
	"perpd/internal/money"
	"perpd/internal/netting"
	"perpd/internal/position"
)

// Reason strings used on TradeResponse rejections.
const (
	ReasonMalformed   = "malformed request"
	ReasonInsufficient = "insufficient balance"
	ReasonExpired      = "order already expired"
)

// PendingQueue parks requests awaiting a reference-data snapshot, per
// user, in arrival order — spec.md §4.5 point 2 / §4.6.
type PendingQueue struct {
	byUser map[domain.UserID][]*ingress.CreateTradeRequest
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{byUser: make(map[domain.UserID][]*ingress.CreateTradeRequest)}
}

// Park appends req to user's pending queue.
func (q *PendingQueue) Park(user domain.UserID, req *ingress.CreateTradeRequest) {
	q.byUser[user] = append(q.byUser[user], req)
	metrics.ParkedQueueDepth.Inc()
}

// Drain removes and returns every request parked for user, oldest
// first, so the caller can replay them in original arrival order.
func (q *PendingQueue) Drain(user domain.UserID) []*ingress.CreateTradeRequest {
	reqs := q.byUser[user]
	delete(q.byUser, user)
	metrics.ParkedQueueDepth.Sub(float64(len(reqs)))
	return reqs
}

// Has reports whether user has any parked requests.
func (q *PendingQueue) Has(user domain.UserID) bool {
	return len(q.byUser[user]) > 0
}

// Deps bundles the engine state the admission controller reads and
// mutates. IDs mints a fresh OrderID; Now returns the current time —
// both are injected so admission stays deterministic for tests.
type Deps struct {
	Positions *position.Store
	Balances  *ledger.Balances
	Holdings  *ledger.Holdings
	Margin    *ledger.Margin
	Pending   *PendingQueue
	Sink      *events.Sink
	IDs       func() domain.OrderID
	Now       func() time.Time
}

// Outcome is what Admit decided to do with one request.
type Outcome int

const (
	// Parked means the request was queued awaiting a snapshot; no
	// response has been emitted yet (the client is still pending).
	Parked Outcome = iota
	// Rejected means a TradeResponse{Rejected,...} has been emitted.
	Rejected
	// Accepted means the request cleared admission and order is ready
	// for the matcher.
	Accepted
)

// Admit runs one request through admission (spec.md §4.5). On Accepted
// it returns the newly minted order with its margin already debited
// from balance and reserved in the margin ledger; the caller must then
// run it through matching/netting. On Parked or Rejected it has already
// emitted whatever event is appropriate and returns a nil order.
func Admit(d Deps, req *ingress.CreateTradeRequest) (*domain.Order, Outcome) {
	user := domain.UserID(req.UserID)
	asset := domain.Asset(req.Asset)

	if _, ok := d.Balances.Get(user); !ok {
		d.Sink.Emit(events.BalanceRequest{UserID: user})
		d.Pending.Park(user, req)
		return nil, Parked
	}
	if _, ok := d.Holdings.Get(user, asset); !ok {
		d.Sink.Emit(events.HoldingsRequest{UserID: user, Asset: asset})
		d.Pending.Park(user, req)
		return nil, Parked
	}

	order, err := req.ToOrder()
	if err != nil {
		reject(d, req, ReasonMalformed, err.Error())
		return nil, Rejected
	}

	now := d.Now()
	if req.ExpiryTimestamp != nil {
		exp := time.UnixMilli(*req.ExpiryTimestamp)
		order.Expiry = &exp
		if order.IsExpired(now) {
			reject(d, req, ReasonExpired, "")
			return nil, Rejected
		}
	}

	closeQty, openQty := netting.ProspectiveOpenQty(d.Positions, user, asset, order.Side, order.Quantity)
	_ = closeQty
	requiredMargin := money.ProRate(order.RequestedMargin, openQty, order.Quantity)

	balance, _ := d.Balances.Get(user)
	if balance.Cmp(requiredMargin) < 0 {
		reject(d, req, ReasonInsufficient, "")
		return nil, Rejected
	}

	order.ID = d.IDs()
	order.CreatedAt = now
	order.RequestedMargin = requiredMargin
	order.LockedMargin = requiredMargin

	d.Balances.Add(user, requiredMargin.Neg())
	d.Margin.Set(order.ID, requiredMargin)

	d.Sink.Emit(events.TradeResponse{
		CorrelationID: req.CorrelationID,
		OrderID:       order.ID,
		UserID:        user,
		Status:        events.Accepted,
	})

	return order, Accepted
}

func reject(d Deps, req *ingress.CreateTradeRequest, reason, details string) {
	metrics.TradesRejected.WithLabelValues(reason).Inc()
	d.Sink.Emit(events.TradeResponse{
		CorrelationID: req.CorrelationID,
		UserID:        domain.UserID(req.UserID),
		Status:        events.Rejected,
		Reason:        reason,
		Details:       details,
	})
}
