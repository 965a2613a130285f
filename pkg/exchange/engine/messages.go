package engine

import "matchbook/pkg/exchange/orderbook"

// Request is the closed set of operations the engine processes. The tagged
// union is matched exhaustively in Apply, so adding a request kind is a
// compile-time-checked change.
type Request interface {
	isRequest()
}

// CreateOrder places a limit order.
type CreateOrder struct {
	Market string
	Price  int64
	Qty    int64
	Side   orderbook.Side
	Owner  string
}

// CancelOrder removes a resting order and unlocks its remainder.
type CancelOrder struct {
	Market  string
	OrderID string
}

// GetOpenOrders lists an owner's resting orders in one market.
type GetOpenOrders struct {
	Market string
	Owner  string
}

// GetDepth reads the aggregated book for one market.
type GetDepth struct {
	Market string
}

// TakeSnapshot asks the engine for a consistent copy of its full state.
// Enqueued by the snapshot scheduler so the copy happens on the sequential
// path, never interleaved with a mutation.
type TakeSnapshot struct{}

func (CreateOrder) isRequest()   {}
func (CancelOrder) isRequest()   {}
func (GetOpenOrders) isRequest() {}
func (GetDepth) isRequest()      {}
func (TakeSnapshot) isRequest()  {}

// Reply is the closed set of successful engine responses. Failures travel
// as errors alongside, classified by the sentinel they wrap.
type Reply interface {
	isReply()
}

// OrderPlaced answers CreateOrder.
type OrderPlaced struct {
	OrderID     string           `json:"orderId"`
	ExecutedQty int64            `json:"executedQuantity"`
	Fills       []orderbook.Fill `json:"fills"`
}

// OrderCancelled answers CancelOrder with the order's final fill state.
type OrderCancelled struct {
	OrderID      string `json:"orderId"`
	ExecutedQty  int64  `json:"executedQuantity"`
	RemainingQty int64  `json:"remainingQuantity"`
}

// OpenOrders answers GetOpenOrders.
type OpenOrders struct {
	Orders []orderbook.Order `json:"orders"`
}

// Depth answers GetDepth.
type Depth struct {
	Bids            []orderbook.Level `json:"bids"`
	Asks            []orderbook.Level `json:"asks"`
	LastTradedPrice int64             `json:"lastTradedPrice"`
}

// SnapshotTaken answers TakeSnapshot.
type SnapshotTaken struct {
	State *State
}

func (OrderPlaced) isReply()    {}
func (OrderCancelled) isReply() {}
func (OpenOrders) isReply()     {}
func (Depth) isReply()          {}
func (SnapshotTaken) isReply()  {}
