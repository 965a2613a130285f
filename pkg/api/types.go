package api

import (
	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/orderbook"
)

// Request bodies.

// CreateOrderRequest is the POST /api/v1/order body.
type CreateOrderRequest struct {
	Market   string `json:"market"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
	Side     string `json:"side"` // "buy" | "sell"
	UserID   string `json:"userId"`
}

// CancelOrderRequest is the DELETE /api/v1/order body.
type CancelOrderRequest struct {
	Market  string `json:"market"`
	OrderID string `json:"orderId"`
}

// Reply envelopes, correlated by the HTTP request itself. Type tags follow
// the engine's message contract.

type OrderPlacedResponse struct {
	Type     string           `json:"type"` // "ORDER_PLACED"
	OrderID  string           `json:"orderId"`
	Executed int64            `json:"executedQuantity"`
	Fills    []orderbook.Fill `json:"fills"`
}

type OrderCancelledResponse struct {
	Type      string `json:"type"` // "ORDER_CANCELLED"
	OrderID   string `json:"orderId"`
	Executed  int64  `json:"executedQuantity"`
	Remaining int64  `json:"remainingQuantity"`
}

type OpenOrdersResponse struct {
	Type   string            `json:"type"` // "OPEN_ORDERS"
	Orders []orderbook.Order `json:"orders"`
}

type DepthResponse struct {
	Market          string            `json:"market"`
	Bids            []orderbook.Level `json:"bids"`
	Asks            []orderbook.Level `json:"asks"`
	LastTradedPrice int64             `json:"lastTradedPrice"`
}

type BalancesResponse struct {
	UserID   string                    `json:"userId"`
	Balances map[string]ledger.Balance `json:"balances"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage is the server -> client stream envelope.
type WSMessage struct {
	Stream string `json:"stream"`
	Data   any    `json:"data"`
}
