// Package ingress defines the wire-level schemas the core accepts on its
// four consumer topics (spec.md §6) and the boundary conversion from raw
// wire integers into the internal money.Fixed / domain types. Unknown
// JSON fields are rejected here, per the design note in spec.md §9.
package ingress

import (
	"bytes"
	"encoding/json"
	"fmt"

	"perpd/internal/domain"
	"perpd/internal/money"
)

// CreateTradeRequest is the trade-create-request topic schema.
type CreateTradeRequest struct {
	UserID            string `json:"userId"`
	CorrelationID     string `json:"correlationId,omitempty"`
	Asset             string `json:"asset"`
	Side              string `json:"side"`
	Margin            int64  `json:"margin"`
	Leverage          int64  `json:"leverage"`
	Quantity          int64  `json:"quantity"`
	OrderType         string `json:"orderType,omitempty"`
	LimitPrice        *int64 `json:"limitPrice,omitempty"`
	StopLossPercent   *int64 `json:"stopLossPercent,omitempty"`
	TakeProfitPercent *int64 `json:"takeProfitPercent,omitempty"`
	ExpiryTimestamp   *int64 `json:"expiryTimestamp,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// side decodes the wire side string into domain.Side.
func (r *CreateTradeRequest) side() (domain.Side, error) {
	switch r.Side {
	case "buy":
		return domain.Buy, nil
	case "sell":
		return domain.Sell, nil
	default:
		return 0, fmt.Errorf("ingress: invalid side %q", r.Side)
	}
}

func (r *CreateTradeRequest) orderType() (domain.OrderType, error) {
	switch r.OrderType {
	case "", "market":
		return domain.Market, nil
	case "limit":
		return domain.Limit, nil
	default:
		return 0, fmt.Errorf("ingress: invalid orderType %q", r.OrderType)
	}
}

// ToOrder converts the wire request into a domain.Order, minus ID and
// CreatedAt/Expiry which the admission controller fills in. It does not
// validate business rules (balance, holdings) — only shape.
func (r *CreateTradeRequest) ToOrder() (*domain.Order, error) {
	side, err := r.side()
	if err != nil {
		return nil, err
	}
	typ, err := r.orderType()
	if err != nil {
		return nil, err
	}
	if typ == domain.Limit && r.LimitPrice == nil {
		return nil, fmt.Errorf("ingress: limit order missing limitPrice")
	}
	if r.Quantity <= 0 {
		return nil, fmt.Errorf("ingress: non-positive quantity")
	}
	var limitPrice money.Fixed
	if r.LimitPrice != nil {
		limitPrice = money.FromRaw(*r.LimitPrice)
	}
	o := &domain.Order{
		CorrelationID:     r.CorrelationID,
		User:              domain.UserID(r.UserID),
		Asset:             domain.Asset(r.Asset),
		Side:              side,
		Type:              typ,
		LimitPrice:        limitPrice,
		Quantity:          money.FromRaw(r.Quantity),
		RequestedMargin:   money.FromRaw(r.Margin),
		Leverage:          r.Leverage,
		StopLossPercent:   r.StopLossPercent,
		TakeProfitPercent: r.TakeProfitPercent,
		Status:            domain.Open,
	}
	return o, nil
}

// PriceUpdate is the price-updates topic schema.
type PriceUpdate struct {
	Asset     string `json:"asset"`
	Price     int64  `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// BalanceResponse is the balance-response topic schema.
type BalanceResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

// HoldingsResponse is the holdings-response topic schema.
type HoldingsResponse struct {
	UserID   string `json:"userId"`
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

// Decode unmarshals raw into v, rejecting any field not present in v's
// schema, matching spec.md §9's "reject unknown fields on ingress".
func Decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
