package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/market"
	"matchbook/pkg/exchange/orderbook"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *[]Event) {
	t.Helper()

	registry := market.NewRegistry()
	m, err := market.New("TATA", "INR")
	require.NoError(t, err)
	require.NoError(t, registry.Register(m))

	led := ledger.NewLedger()
	for _, owner := range []string{"u001", "u002", "u003"} {
		require.NoError(t, led.Deposit(owner, "INR", 1_000_000))
		require.NoError(t, led.Deposit(owner, "TATA", 1_000_000))
	}

	var events []Event
	eng := New(cfg, registry, led, func(ev Event) { events = append(events, ev) }, nil)
	return eng, &events
}

func placeOrder(t *testing.T, e *Engine, owner string, side orderbook.Side, price, qty int64) OrderPlaced {
	t.Helper()
	reply, err := e.Apply(CreateOrder{Market: "TATA_INR", Price: price, Qty: qty, Side: side, Owner: owner})
	require.NoError(t, err)
	placed, ok := reply.(OrderPlaced)
	require.True(t, ok)
	return placed
}

func TestCreateOrderLocksAndRests(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placed := placeOrder(t, e, "u001", orderbook.Buy, 100, 10)
	assert.NotEmpty(t, placed.OrderID)
	assert.Equal(t, int64(0), placed.ExecutedQty)
	assert.Empty(t, placed.Fills)

	b := e.Ledger().Balances("u001")["INR"]
	assert.Equal(t, ledger.Balance{Available: 999_000, Locked: 1000}, b)
}

func TestCreateOrderMatchesAndSettles(t *testing.T) {
	e, events := newTestEngine(t, Config{})

	placeOrder(t, e, "u001", orderbook.Sell, 100, 10)
	placed := placeOrder(t, e, "u002", orderbook.Buy, 100, 15)

	assert.Equal(t, int64(10), placed.ExecutedQty)
	require.Len(t, placed.Fills, 1)
	assert.Equal(t, int64(100), placed.Fills[0].Price)

	// Seller gave 10 TATA, received 1000 INR.
	assert.Equal(t, ledger.Balance{Available: 999_990, Locked: 0}, e.Ledger().Balances("u001")["TATA"])
	assert.Equal(t, ledger.Balance{Available: 1_001_000, Locked: 0}, e.Ledger().Balances("u001")["INR"])
	// Buyer gave 1000 INR, received 10 TATA, keeps 500 locked for the rest.
	assert.Equal(t, ledger.Balance{Available: 1_000_010, Locked: 0}, e.Ledger().Balances("u002")["TATA"])
	assert.Equal(t, ledger.Balance{Available: 998_500, Locked: 500}, e.Ledger().Balances("u002")["INR"])

	// One trade plus taker and maker order updates.
	var trades, updates int
	for _, ev := range *events {
		switch ev.(type) {
		case TradeAdded:
			trades++
		case OrderUpdate:
			updates++
		}
	}
	assert.Equal(t, 1, trades)
	assert.Equal(t, 3, updates) // u001's resting, taker, maker
}

func TestBuyTakerPriceImprovementRefund(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placeOrder(t, e, "u001", orderbook.Sell, 100, 5)
	placed := placeOrder(t, e, "u002", orderbook.Buy, 110, 5)

	require.Len(t, placed.Fills, 1)
	assert.Equal(t, int64(100), placed.Fills[0].Price)

	// Buyer paid the maker price, not their own limit: only 500 left the
	// account even though 550 was locked.
	assert.Equal(t, ledger.Balance{Available: 999_500, Locked: 0}, e.Ledger().Balances("u002")["INR"])
}

func TestCreateOrderInsufficientFundsLeavesBookUntouched(t *testing.T) {
	e, events := newTestEngine(t, Config{})

	_, err := e.Apply(CreateOrder{Market: "TATA_INR", Price: 100, Qty: 100_000, Side: orderbook.Buy, Owner: "u001"})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	reply, err := e.Apply(GetDepth{Market: "TATA_INR"})
	require.NoError(t, err)
	depth := reply.(Depth)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
	assert.Empty(t, *events)
}

func TestCreateOrderValidation(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	tests := []struct {
		name string
		req  CreateOrder
	}{
		{"zero price", CreateOrder{Market: "TATA_INR", Price: 0, Qty: 1, Side: orderbook.Buy, Owner: "u001"}},
		{"negative price", CreateOrder{Market: "TATA_INR", Price: -5, Qty: 1, Side: orderbook.Buy, Owner: "u001"}},
		{"zero qty", CreateOrder{Market: "TATA_INR", Price: 100, Qty: 0, Side: orderbook.Buy, Owner: "u001"}},
		{"missing owner", CreateOrder{Market: "TATA_INR", Price: 100, Qty: 1, Side: orderbook.Buy}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Apply(tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUnknownMarket(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	_, err := e.Apply(CreateOrder{Market: "DOGE_INR", Price: 1, Qty: 1, Side: orderbook.Buy, Owner: "u001"})
	assert.ErrorIs(t, err, market.ErrMarketNotFound)

	_, err = e.Apply(CancelOrder{Market: "DOGE_INR", OrderID: "x"})
	assert.ErrorIs(t, err, market.ErrMarketNotFound)

	_, err = e.Apply(GetDepth{Market: "DOGE_INR"})
	assert.ErrorIs(t, err, market.ErrMarketNotFound)
}

func TestCancelBuyUnlocksQuote(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placed := placeOrder(t, e, "u001", orderbook.Buy, 100, 10)

	reply, err := e.Apply(CancelOrder{Market: "TATA_INR", OrderID: placed.OrderID})
	require.NoError(t, err)
	cancelled := reply.(OrderCancelled)
	assert.Equal(t, int64(0), cancelled.ExecutedQty)
	assert.Equal(t, int64(10), cancelled.RemainingQty)

	assert.Equal(t, ledger.Balance{Available: 1_000_000, Locked: 0}, e.Ledger().Balances("u001")["INR"])
}

func TestCancelSellUnlocksBase(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placed := placeOrder(t, e, "u001", orderbook.Sell, 100, 10)

	_, err := e.Apply(CancelOrder{Market: "TATA_INR", OrderID: placed.OrderID})
	require.NoError(t, err)

	// The base asset comes back, and the quote asset is untouched.
	assert.Equal(t, ledger.Balance{Available: 1_000_000, Locked: 0}, e.Ledger().Balances("u001")["TATA"])
	assert.Equal(t, ledger.Balance{Available: 1_000_000, Locked: 0}, e.Ledger().Balances("u001")["INR"])
}

func TestCancelPartiallyFilledUnlocksRemainderOnly(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placed := placeOrder(t, e, "u001", orderbook.Buy, 100, 10)
	placeOrder(t, e, "u002", orderbook.Sell, 100, 4)

	reply, err := e.Apply(CancelOrder{Market: "TATA_INR", OrderID: placed.OrderID})
	require.NoError(t, err)
	cancelled := reply.(OrderCancelled)
	assert.Equal(t, int64(4), cancelled.ExecutedQty)
	assert.Equal(t, int64(6), cancelled.RemainingQty)

	// 400 spent on the fill, 600 unlocked on cancel.
	assert.Equal(t, ledger.Balance{Available: 999_600, Locked: 0}, e.Ledger().Balances("u001")["INR"])
}

func TestCancelUnknownOrder(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	_, err := e.Apply(CancelOrder{Market: "TATA_INR", OrderID: "missing"})
	assert.ErrorIs(t, err, orderbook.ErrOrderNotFound)
}

func TestGetOpenOrders(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	p1 := placeOrder(t, e, "u001", orderbook.Buy, 90, 1)
	placeOrder(t, e, "u002", orderbook.Buy, 91, 1)
	p3 := placeOrder(t, e, "u001", orderbook.Sell, 120, 2)

	reply, err := e.Apply(GetOpenOrders{Market: "TATA_INR", Owner: "u001"})
	require.NoError(t, err)
	open := reply.(OpenOrders)
	require.Len(t, open.Orders, 2)
	assert.Equal(t, p1.OrderID, open.Orders[0].ID)
	assert.Equal(t, p3.OrderID, open.Orders[1].ID)
}

func TestRejectSelfTrade(t *testing.T) {
	e, _ := newTestEngine(t, Config{RejectSelfTrade: true})

	placeOrder(t, e, "u001", orderbook.Sell, 100, 10)

	_, err := e.Apply(CreateOrder{Market: "TATA_INR", Price: 100, Qty: 5, Side: orderbook.Buy, Owner: "u001"})
	assert.ErrorIs(t, err, ErrValidation)

	// A different owner still matches.
	placed := placeOrder(t, e, "u002", orderbook.Buy, 100, 5)
	assert.Equal(t, int64(5), placed.ExecutedQty)
}

func TestSelfTradeAllowedByDefault(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placeOrder(t, e, "u001", orderbook.Sell, 100, 10)
	placed := placeOrder(t, e, "u001", orderbook.Buy, 100, 10)

	assert.Equal(t, int64(10), placed.ExecutedQty)
	// Wash trade: the owner's totals end where they started.
	assert.Equal(t, ledger.Balance{Available: 1_000_000, Locked: 0}, e.Ledger().Balances("u001")["INR"])
	assert.Equal(t, ledger.Balance{Available: 1_000_000, Locked: 0}, e.Ledger().Balances("u001")["TATA"])
}

func TestSnapshotStateRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	placeOrder(t, e, "u001", orderbook.Sell, 100, 10)
	placeOrder(t, e, "u002", orderbook.Buy, 100, 4)
	placeOrder(t, e, "u003", orderbook.Buy, 95, 3)

	reply, err := e.Apply(TakeSnapshot{})
	require.NoError(t, err)
	st := reply.(SnapshotTaken).State

	registry := market.NewRegistry()
	m, err := market.New("TATA", "INR")
	require.NoError(t, err)
	require.NoError(t, registry.Register(m))
	restored := NewFromState(Config{}, registry, st, nil, nil)

	// Identical follow-up behaviour: the restored engine continues the
	// trade-id sequence and sees the same book and balances.
	placed := placeOrder(t, restored, "u003", orderbook.Buy, 100, 2)
	require.Len(t, placed.Fills, 1)
	assert.Equal(t, int64(2), placed.Fills[0].TradeID)

	assert.Equal(t, e.Ledger().Balances("u002"), restored.Ledger().Balances("u002"))

	reply, err = restored.Apply(GetDepth{Market: "TATA_INR"})
	require.NoError(t, err)
	depth := reply.(Depth)
	assert.Equal(t, int64(100), depth.LastTradedPrice)
}
