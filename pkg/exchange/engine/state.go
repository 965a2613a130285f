package engine

import (
	"sort"

	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/orderbook"
)

// MarketState is one market's book in the persisted snapshot document.
type MarketState struct {
	Symbol     string          `json:"symbol"`
	BaseAsset  string          `json:"baseAsset"`
	QuoteAsset string          `json:"quoteAsset"`
	Book       orderbook.State `json:"book"`
}

// State is the aggregate of all order books plus the full ledger — exactly
// what snapshot/recovery persists and restores.
type State struct {
	Markets []MarketState  `json:"markets"`
	Ledger  []ledger.Entry `json:"balances"`
}

// State copies the engine's full state. Must run on the sequential
// processing path (via TakeSnapshot) so the copy is a consistent
// point-in-time view.
func (e *Engine) State() *State {
	st := &State{Ledger: e.ledger.State()}
	for symbol, book := range e.books {
		m, err := e.registry.Get(symbol)
		if err != nil {
			continue
		}
		st.Markets = append(st.Markets, MarketState{
			Symbol:     m.Symbol,
			BaseAsset:  m.BaseAsset,
			QuoteAsset: m.QuoteAsset,
			Book:       book.State(),
		})
	}
	sort.Slice(st.Markets, func(i, j int) bool {
		return st.Markets[i].Symbol < st.Markets[j].Symbol
	})
	return st
}
