// Package engine owns all order books and the balance ledger and applies
// the order lifecycle: resolve market, lock funds, match, settle, emit
// events. All mutations happen on a single sequential path; see pkg/router.
package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/market"
	"matchbook/pkg/exchange/orderbook"
)

// ErrValidation covers malformed price, quantity, or side.
var ErrValidation = errors.New("validation error")

// Config carries the engine's explicit policy switches.
type Config struct {
	// RejectSelfTrade, when set, refuses an incoming order that would
	// match the owner's own resting order. Off by default: self-matching
	// is a configuration decision, not a hidden invariant.
	RejectSelfTrade bool
}

// Engine mutates books and ledger strictly one request at a time.
type Engine struct {
	cfg      Config
	registry *market.Registry
	books    map[string]*orderbook.OrderBook
	ledger   *ledger.Ledger
	publish  func(Event)
	log      *zap.Logger
}

// New builds an engine over the configured markets with empty books.
// publish may be nil when no fan-out consumer is wired (tests).
func New(cfg Config, registry *market.Registry, led *ledger.Ledger, publish func(Event), log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	books := make(map[string]*orderbook.OrderBook, registry.Count())
	for _, m := range registry.List() {
		books[m.Symbol] = orderbook.NewOrderBook()
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		books:    books,
		ledger:   led,
		publish:  publish,
		log:      log,
	}
}

// NewFromState builds an engine whose books and ledger resume from a
// snapshot. Trade-id sequences continue exactly where the snapshot left
// them. Markets present in the registry but absent from the snapshot start
// with empty books.
func NewFromState(cfg Config, registry *market.Registry, st *State, publish func(Event), log *zap.Logger) *Engine {
	e := New(cfg, registry, ledger.Restore(st.Ledger), publish, log)
	for _, ms := range st.Markets {
		if _, err := registry.Get(ms.Symbol); err != nil {
			e.log.Warn("snapshot market not configured, dropping its book",
				zap.String("market", ms.Symbol))
			continue
		}
		e.books[ms.Symbol] = orderbook.Restore(ms.Book)
	}
	return e
}

// Ledger exposes the balance ledger for read-side wiring (seeding, API).
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Apply processes one request and returns its direct reply. Business
// failures come back as errors wrapping the taxonomy sentinels; they never
// leave partial side effects behind.
func (e *Engine) Apply(req Request) (Reply, error) {
	switch r := req.(type) {
	case CreateOrder:
		return e.createOrder(r)
	case CancelOrder:
		return e.cancelOrder(r)
	case GetOpenOrders:
		return e.openOrders(r)
	case GetDepth:
		return e.depth(r)
	case TakeSnapshot:
		return SnapshotTaken{State: e.State()}, nil
	default:
		// Unreachable: Request is a closed sum.
		return nil, fmt.Errorf("unknown request type %T", req)
	}
}

func (e *Engine) createOrder(r CreateOrder) (Reply, error) {
	if r.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %d", ErrValidation, r.Price)
	}
	if r.Qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, r.Qty)
	}
	if r.Side != orderbook.Buy && r.Side != orderbook.Sell {
		return nil, fmt.Errorf("%w: invalid side", ErrValidation)
	}
	if r.Owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrValidation)
	}

	m, err := e.registry.Get(r.Market)
	if err != nil {
		return nil, err
	}
	book := e.books[m.Symbol]

	if e.cfg.RejectSelfTrade && book.HasCrossing(r.Owner, r.Side, r.Price) {
		return nil, fmt.Errorf("%w: order would match own resting order", ErrValidation)
	}

	// Lock before touching the book: a failed lock leaves no side effect.
	lockAsset, lockAmount := m.QuoteAsset, r.Price*r.Qty
	if r.Side == orderbook.Sell {
		lockAsset, lockAmount = m.BaseAsset, r.Qty
	}
	if err := e.ledger.LockFunds(r.Owner, lockAsset, lockAmount); err != nil {
		return nil, err
	}

	o := &orderbook.Order{
		ID:    uuid.NewString(),
		Owner: r.Owner,
		Side:  r.Side,
		Price: r.Price,
		Qty:   r.Qty,
	}
	executed, fills := book.Submit(o)

	for _, f := range fills {
		buyOwner, sellOwner := r.Owner, f.MakerOwner
		if r.Side == orderbook.Sell {
			buyOwner, sellOwner = f.MakerOwner, r.Owner
		}
		err := e.ledger.SettleFill(
			buyOwner, sellOwner, m.BaseAsset, m.QuoteAsset,
			f.Qty, f.Price,
			r.Side == orderbook.Buy, r.Price,
		)
		if err != nil {
			// Funds were locked up front and fills never exceed locked
			// amounts, so this only fires on corrupted accounting.
			e.log.Error("fill settlement failed",
				zap.String("market", m.Symbol),
				zap.Int64("tradeId", f.TradeID),
				zap.Error(err))
			return nil, err
		}
	}

	e.emitFillEvents(m.Symbol, o, executed, fills)

	return OrderPlaced{OrderID: o.ID, ExecutedQty: executed, Fills: fills}, nil
}

func (e *Engine) emitFillEvents(symbol string, taker *orderbook.Order, executed int64, fills []orderbook.Fill) {
	if e.publish == nil {
		return
	}
	for _, f := range fills {
		e.publish(TradeAdded{
			Market:       symbol,
			TradeID:      f.TradeID,
			Price:        f.Price,
			Qty:          f.Qty,
			QuoteQty:     f.QuoteQty(),
			Timestamp:    f.Timestamp,
			IsBuyerMaker: taker.Side == orderbook.Sell,
		})
	}
	e.publish(OrderUpdate{
		OrderID:     taker.ID,
		ExecutedQty: executed,
		Market:      symbol,
		Price:       taker.Price,
		Qty:         taker.Qty,
		Side:        taker.Side.String(),
	})
	for _, f := range fills {
		e.publish(OrderUpdate{OrderID: f.MakerOrderID, ExecutedQty: f.Qty})
	}
}

func (e *Engine) cancelOrder(r CancelOrder) (Reply, error) {
	m, err := e.registry.Get(r.Market)
	if err != nil {
		return nil, err
	}
	book := e.books[m.Symbol]

	o, err := book.Cancel(r.OrderID)
	if err != nil {
		return nil, err
	}

	// Unlock the exact unfilled remainder in the asset that was locked at
	// placement: quote for a buy, base for a sell.
	remaining := o.Remaining()
	unlockAsset, unlockAmount := m.QuoteAsset, remaining*o.Price
	if o.Side == orderbook.Sell {
		unlockAsset, unlockAmount = m.BaseAsset, remaining
	}
	if err := e.ledger.UnlockFunds(o.Owner, unlockAsset, unlockAmount); err != nil {
		e.log.Error("cancel unlock failed",
			zap.String("market", m.Symbol),
			zap.String("orderId", o.ID),
			zap.Error(err))
		return nil, err
	}

	return OrderCancelled{
		OrderID:      o.ID,
		ExecutedQty:  o.Filled,
		RemainingQty: remaining,
	}, nil
}

func (e *Engine) openOrders(r GetOpenOrders) (Reply, error) {
	m, err := e.registry.Get(r.Market)
	if err != nil {
		return nil, err
	}
	return OpenOrders{Orders: e.books[m.Symbol].OpenOrders(r.Owner)}, nil
}

func (e *Engine) depth(r GetDepth) (Reply, error) {
	m, err := e.registry.Get(r.Market)
	if err != nil {
		return nil, err
	}
	bids, asks, last := e.books[m.Symbol].Depth()
	return Depth{Bids: bids, Asks: asks, LastTradedPrice: last}, nil
}
