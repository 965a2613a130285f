package market

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMarketNotFound is returned by Registry lookups for unknown tickers.
var ErrMarketNotFound = errors.New("market not found")

// Market is one tradable pair. The ticker is derived from the assets
// (e.g. "TATA_INR" for base TATA quoted in INR).
type Market struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// Ticker derives the market symbol from an asset pair.
func Ticker(baseAsset, quoteAsset string) string {
	return baseAsset + "_" + quoteAsset
}

// New creates a market with validation.
func New(baseAsset, quoteAsset string) (*Market, error) {
	if baseAsset == "" || quoteAsset == "" {
		return nil, fmt.Errorf("market assets must be non-empty: base=%q quote=%q", baseAsset, quoteAsset)
	}
	if baseAsset == quoteAsset {
		return nil, fmt.Errorf("base and quote asset must differ: %q", baseAsset)
	}
	return &Market{
		Symbol:     Ticker(baseAsset, quoteAsset),
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
	}, nil
}

// ParseTicker splits a "BASE_QUOTE" symbol back into its assets.
func ParseTicker(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(symbol, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed market ticker %q", symbol)
	}
	return parts[0], parts[1], nil
}

// Registry holds the markets configured at startup. Dynamic market creation
// is not supported; the set is fixed once wiring completes.
type Registry struct {
	markets map[string]*Market
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register adds a market. Returns an error on duplicate symbols.
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	if _, exists := r.markets[m.Symbol]; exists {
		return fmt.Errorf("market %s already registered", m.Symbol)
	}
	r.markets[m.Symbol] = m
	return nil
}

// Get retrieves a market by symbol.
func (r *Registry) Get(symbol string) (*Market, error) {
	m, exists := r.markets[symbol]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, symbol)
	}
	return m, nil
}

// List returns all registered markets.
func (r *Registry) List() []*Market {
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}

// Count returns the number of registered markets.
func (r *Registry) Count() int { return len(r.markets) }
