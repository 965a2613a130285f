package orderbook

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned by Cancel when no resting order has the id.
var ErrOrderNotFound = errors.New("order not found")

// Side of an order: Buy rests in bids, Sell rests in asks.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide parses the wire representation ("buy"/"sell").
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

// Order is a limit order. Price is in quote-asset ticks, Qty/Filled in
// base-asset lots. An order rests in exactly one book side and is removed
// when Filled == Qty or on cancellation.
type Order struct {
	ID     string `json:"orderId"`
	Owner  string `json:"userId"`
	Side   Side   `json:"side"`
	Price  int64  `json:"price"`
	Qty    int64  `json:"quantity"`
	Filled int64  `json:"filled"`

	// arrival is the book-local submission sequence, used to keep
	// OpenOrders output deterministic. Not serialized.
	arrival uint64
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Fill is one unit of matched quantity. Price is always the resting
// (maker) order's price. Immutable once produced.
type Fill struct {
	TradeID      int64  `json:"tradeId"`
	Price        int64  `json:"price"`
	Qty          int64  `json:"quantity"`
	MakerOrderID string `json:"makerOrderId"`
	MakerOwner   string `json:"makerOwnerId"`
	TakerOwner   string `json:"takerOwnerId"`
	Timestamp    int64  `json:"timestamp"`
}

// QuoteQty returns the quote-asset value of the fill.
func (f Fill) QuoteQty() int64 {
	return f.Qty * f.Price
}

// Level is an aggregated price level for depth queries.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"quantity"`
}
