// Package broker holds the account and order types shared by the
// backtest, paper and live pipelines.
package broker

import "fmt"

// Side of an order or trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Signal is a strategy's directional intent, not yet sized into an order.
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "hold"
	}
}

// OrderKind discriminates market vs limit orders.
type OrderKind string

const (
	Market OrderKind = "market"
	Limit  OrderKind = "limit"
)

// OrderRequest is a fully sized order. It is immutable after
// construction; LimitPrice is only meaningful when Kind == Limit.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Kind          OrderKind
	LimitPrice    float64
	Quantity      float64
}

// Price resolves the order's execution reference: the limit price for
// limit orders, the supplied reference price for market orders.
func (o OrderRequest) Price(reference float64) float64 {
	if o.Kind == Limit {
		return o.LimitPrice
	}
	return reference
}

// OrderStatus is the exchange-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
)

// OrderAck is the exchange's acknowledgement of a submitted order.
type OrderAck struct {
	ClientOrderID   string
	ExchangeOrderID string
	Status          OrderStatus
}

// NewOrderAck builds the default acknowledgement for a just-submitted order.
func NewOrderAck(order OrderRequest) OrderAck {
	return OrderAck{ClientOrderID: order.ClientOrderID, Status: StatusNew}
}

// Trade is the realized result of a fill. Appended to an ordered trade
// log and never mutated.
type Trade struct {
	Time     int64
	Symbol   string
	Side     Side
	Price    float64
	Quantity float64
	Fee      float64
}

// Balance is one asset entry from an exchange account snapshot.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// NewBalance validates and constructs a Balance.
func NewBalance(asset string, free, locked float64) (Balance, error) {
	if free < 0 || locked < 0 {
		return Balance{}, fmt.Errorf("balance %s: values must be non-negative", asset)
	}
	return Balance{Asset: asset, Free: free, Locked: locked}, nil
}
