package engine

// Event is a fan-out notification emitted by the engine. Events are
// uncorrelated and fire-and-forget: downstream consumers (trade archive,
// websocket hub) must never block the processing path.
type Event interface {
	isEvent()
}

// TradeAdded is emitted once per fill.
type TradeAdded struct {
	Market       string `json:"market"`
	TradeID      int64  `json:"tradeId"`
	Price        int64  `json:"price"`
	Qty          int64  `json:"quantity"`
	QuoteQty     int64  `json:"quoteQuantity"`
	Timestamp    int64  `json:"timestamp"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// OrderUpdate is emitted for the taker order's final fill state and once
// per resting maker order whose fill state changed. Maker updates carry
// only the order id and the executed delta, as the book owns the rest.
type OrderUpdate struct {
	OrderID     string `json:"orderId"`
	ExecutedQty int64  `json:"executedQuantity"`
	Market      string `json:"market,omitempty"`
	Price       int64  `json:"price,omitempty"`
	Qty         int64  `json:"quantity,omitempty"`
	Side        string `json:"side,omitempty"`
}

func (TradeAdded) isEvent()  {}
func (OrderUpdate) isEvent() {}
