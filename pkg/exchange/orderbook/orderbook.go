package orderbook

import (
	"container/heap"
	"sort"
	"time"
)

// OrderBook is the price-time-priority book for one market.
//
// Bids and asks are FIFO queues per price level, with heaps tracking the
// best price on each side for O(1) peek. An order index (id -> price)
// gives O(1) cancellation lookup.
//
// The book is not safe for concurrent use: every mutation and read happens
// on the engine's single sequential processing path.
type OrderBook struct {
	bidHeap *maxPriceHeap
	askHeap *minPriceHeap

	bids map[int64][]*Order // price -> FIFO queue
	asks map[int64][]*Order

	orderIndex map[string]int64 // order id -> resting price

	lastTradeID int64 // strictly increasing per market, survives restarts
	lastPrice   int64 // most recent fill price

	arrivals uint64 // submission sequence for deterministic owner queries
}

func NewOrderBook() *OrderBook {
	bidHeap := &maxPriceHeap{}
	askHeap := &minPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)

	return &OrderBook{
		bidHeap:    bidHeap,
		askHeap:    askHeap,
		bids:       make(map[int64][]*Order),
		asks:       make(map[int64][]*Order),
		orderIndex: make(map[string]int64),
	}
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (ob *OrderBook) bestBid() (int64, bool) {
	if ob.bidHeap.Len() == 0 {
		return 0, false
	}
	return ob.bidHeap.Peek(), true
}

func (ob *OrderBook) bestAsk() (int64, bool) {
	if ob.askHeap.Len() == 0 {
		return 0, false
	}
	return ob.askHeap.Peek(), true
}

// rest inserts an order at the tail of its price level's FIFO queue.
func (ob *OrderBook) rest(o *Order) {
	ob.arrivals++
	o.arrival = ob.arrivals

	levels := ob.bids
	if o.Side == Sell {
		levels = ob.asks
	}
	if len(levels[o.Price]) == 0 {
		// New price level.
		if o.Side == Buy {
			heap.Push(ob.bidHeap, o.Price)
		} else {
			heap.Push(ob.askHeap, o.Price)
		}
	}
	levels[o.Price] = append(levels[o.Price], o)
	ob.orderIndex[o.ID] = o.Price
}

func (ob *OrderBook) removeLevelIfEmpty(side Side, price int64) {
	if side == Buy {
		if len(ob.bids[price]) == 0 {
			delete(ob.bids, price)
			removeFromHeap(ob.bidHeap, price)
		}
	} else {
		if len(ob.asks[price]) == 0 {
			delete(ob.asks, price)
			removeFromHeap(ob.askHeap, price)
		}
	}
}

func removeFromHeap(h heap.Interface, price int64) {
	switch hp := h.(type) {
	case *maxPriceHeap:
		for i := 0; i < hp.Len(); i++ {
			if (*hp)[i] == price {
				heap.Remove(hp, i)
				return
			}
		}
	case *minPriceHeap:
		for i := 0; i < hp.Len(); i++ {
			if (*hp)[i] == price {
				heap.Remove(hp, i)
				return
			}
		}
	}
}

// Submit matches the incoming order against the counter side and rests any
// unfilled remainder. Returns the executed quantity and the fills produced,
// each at the resting (maker) order's price.
//
// The caller validates price > 0 and qty > 0 before submission.
func (ob *OrderBook) Submit(o *Order) (int64, []Fill) {
	var fills []Fill
	now := time.Now().UnixMilli()

	if o.Side == Buy {
		for o.Remaining() > 0 {
			askP, ok := ob.bestAsk()
			if !ok || askP > o.Price {
				break
			}
			level := ob.asks[askP]
			maker := level[0]

			match := min(o.Remaining(), maker.Remaining())
			o.Filled += match
			maker.Filled += match

			ob.lastTradeID++
			ob.lastPrice = askP
			fills = append(fills, Fill{
				TradeID:      ob.lastTradeID,
				Price:        askP,
				Qty:          match,
				MakerOrderID: maker.ID,
				MakerOwner:   maker.Owner,
				TakerOwner:   o.Owner,
				Timestamp:    now,
			})

			if maker.Remaining() == 0 {
				ob.asks[askP] = level[1:]
				delete(ob.orderIndex, maker.ID)
				ob.removeLevelIfEmpty(Sell, askP)
			}
		}
	} else {
		for o.Remaining() > 0 {
			bidP, ok := ob.bestBid()
			if !ok || bidP < o.Price {
				break
			}
			level := ob.bids[bidP]
			maker := level[0]

			match := min(o.Remaining(), maker.Remaining())
			o.Filled += match
			maker.Filled += match

			ob.lastTradeID++
			ob.lastPrice = bidP
			fills = append(fills, Fill{
				TradeID:      ob.lastTradeID,
				Price:        bidP,
				Qty:          match,
				MakerOrderID: maker.ID,
				MakerOwner:   maker.Owner,
				TakerOwner:   o.Owner,
				Timestamp:    now,
			})

			if maker.Remaining() == 0 {
				ob.bids[bidP] = level[1:]
				delete(ob.orderIndex, maker.ID)
				ob.removeLevelIfEmpty(Buy, bidP)
			}
		}
	}

	if o.Remaining() > 0 {
		ob.rest(o)
	}
	return o.Filled, fills
}

// Cancel removes a resting order and returns a copy of it so the caller can
// unlock the remaining funds in the correct asset.
func (ob *OrderBook) Cancel(id string) (Order, error) {
	price, ok := ob.orderIndex[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}

	for _, side := range []Side{Buy, Sell} {
		levels := ob.bids
		if side == Sell {
			levels = ob.asks
		}
		arr, exists := levels[price]
		if !exists {
			continue
		}
		for i, o := range arr {
			if o.ID == id {
				levels[price] = append(arr[:i], arr[i+1:]...)
				ob.removeLevelIfEmpty(side, price)
				delete(ob.orderIndex, id)
				return *o, nil
			}
		}
	}
	return Order{}, ErrOrderNotFound
}

// Lookup returns a copy of a resting order.
func (ob *OrderBook) Lookup(id string) (Order, bool) {
	price, ok := ob.orderIndex[id]
	if !ok {
		return Order{}, false
	}
	for _, arr := range [][]*Order{ob.bids[price], ob.asks[price]} {
		for _, o := range arr {
			if o.ID == id {
				return *o, true
			}
		}
	}
	return Order{}, false
}

// OpenOrders returns copies of all resting orders for an owner, in
// submission order.
func (ob *OrderBook) OpenOrders(owner string) []Order {
	var out []Order
	for _, levels := range []map[int64][]*Order{ob.bids, ob.asks} {
		for _, arr := range levels {
			for _, o := range arr {
				if o.Owner == owner {
					out = append(out, *o)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].arrival < out[j].arrival })
	return out
}

// HasCrossing reports whether the owner has a resting order on the counter
// side that an incoming (side, price) order would match against. Used by
// the engine's optional self-trade filter.
func (ob *OrderBook) HasCrossing(owner string, side Side, price int64) bool {
	if side == Buy {
		for p, arr := range ob.asks {
			if p > price {
				continue
			}
			for _, o := range arr {
				if o.Owner == owner {
					return true
				}
			}
		}
	} else {
		for p, arr := range ob.bids {
			if p < price {
				continue
			}
			for _, o := range arr {
				if o.Owner == owner {
					return true
				}
			}
		}
	}
	return false
}

// Depth returns aggregated bid levels (price descending) and ask levels
// (price ascending) plus the last traded price.
func (ob *OrderBook) Depth() ([]Level, []Level, int64) {
	bids := aggregate(ob.bids)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	asks := aggregate(ob.asks)
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	return bids, asks, ob.lastPrice
}

func aggregate(levels map[int64][]*Order) []Level {
	out := make([]Level, 0, len(levels))
	for price, arr := range levels {
		if len(arr) == 0 {
			continue
		}
		var qty int64
		for _, o := range arr {
			qty += o.Remaining()
		}
		out = append(out, Level{Price: price, Qty: qty})
	}
	return out
}

// LastTradeID returns the id of the most recent fill.
func (ob *OrderBook) LastTradeID() int64 { return ob.lastTradeID }

// LastPrice returns the price of the most recent fill, 0 before any trade.
func (ob *OrderBook) LastPrice() int64 { return ob.lastPrice }

// State is the serializable form of a book, used by snapshots. Bids hold
// price-descending, FIFO-within-level order; asks price-ascending.
type State struct {
	Bids        []Order `json:"bids"`
	Asks        []Order `json:"asks"`
	LastTradeID int64   `json:"lastTradeId"`
	LastPrice   int64   `json:"lastTradedPrice"`
}

// State captures the book for serialization.
func (ob *OrderBook) State() State {
	st := State{LastTradeID: ob.lastTradeID, LastPrice: ob.lastPrice}

	bidPrices := sortedPrices(ob.bids, true)
	for _, p := range bidPrices {
		for _, o := range ob.bids[p] {
			st.Bids = append(st.Bids, *o)
		}
	}
	askPrices := sortedPrices(ob.asks, false)
	for _, p := range askPrices {
		for _, o := range ob.asks[p] {
			st.Asks = append(st.Asks, *o)
		}
	}
	return st
}

func sortedPrices(levels map[int64][]*Order, desc bool) []int64 {
	prices := make([]int64, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if desc {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})
	return prices
}

// Restore rebuilds a book from a snapshot state. Orders are rested directly,
// preserving the serialized FIFO order, and the trade-id sequence resumes
// where the snapshot left it.
func Restore(st State) *OrderBook {
	ob := NewOrderBook()
	ob.lastTradeID = st.LastTradeID
	ob.lastPrice = st.LastPrice

	for i := range st.Bids {
		o := st.Bids[i]
		ob.rest(&o)
	}
	for i := range st.Asks {
		o := st.Asks[i]
		ob.rest(&o)
	}
	return ob
}
