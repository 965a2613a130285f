// Package storage archives emitted trades in Pebble. The archive is a
// fan-out consumer: it sits downstream of the engine's event stream and is
// never on the request processing path.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"matchbook/pkg/exchange/engine"
)

// Key schema:
//   trade:{market}:{timestamp:020d}:{tradeID:020d} → TradeAdded (JSON)
// Zero-padded numbers keep lexicographic order equal to time order, so a
// reverse prefix scan yields most-recent-first.
const prefixTrade = "trade:"

func tradeKey(market string, timestamp, tradeID int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, market, timestamp, tradeID))
}

func tradePrefix(market string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, market))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// TradeArchive persists TRADE_ADDED events and serves recent-trades reads.
type TradeArchive struct {
	db  *pebble.DB
	log *zap.Logger
}

func NewTradeArchive(path string, log *zap.Logger) (*TradeArchive, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open trade archive: %w", err)
	}
	return &TradeArchive{db: db, log: log}, nil
}

func (a *TradeArchive) Close() error { return a.db.Close() }

// SaveTrade persists one trade. NoSync: losing the tail of the archive on
// crash is acceptable for history, matching the snapshot durability model.
func (a *TradeArchive) SaveTrade(t engine.TradeAdded) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	key := tradeKey(t.Market, t.Timestamp, t.TradeID)
	if err := a.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades for a market, most recent first.
func (a *TradeArchive) RecentTrades(market string, limit int) ([]engine.TradeAdded, error) {
	prefix := tradePrefix(market)
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade iterator: %w", err)
	}
	defer iter.Close()

	trades := make([]engine.TradeAdded, 0, limit)
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t engine.TradeAdded
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			a.log.Warn("skipping undecodable trade record", zap.Error(err))
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Consume archives trades from the event stream until ctx is cancelled or
// the channel closes. Non-trade events pass through untouched.
func (a *TradeArchive) Consume(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t, isTrade := ev.(engine.TradeAdded)
			if !isTrade {
				continue
			}
			if err := a.SaveTrade(t); err != nil {
				a.log.Warn("trade archive write failed",
					zap.String("market", t.Market),
					zap.Int64("tradeId", t.TradeID),
					zap.Error(err))
			}
		}
	}
}
