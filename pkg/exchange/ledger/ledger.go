// Package ledger tracks per-user, per-asset available and locked balances.
//
// Every balance change goes through one of three operations: locking funds
// when an order is placed, unlocking the unfilled remainder when an order is
// cancelled, and settling a fill between the two matched owners. Nothing may
// drive available or locked below zero.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInsufficientFunds is returned by LockFunds when available < amount.
// The ledger is left untouched.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvariantViolation signals corrupted accounting (e.g. an unlock that
// would drive locked negative). It is fatal to the operation that triggered
// it and must never be silently continued from.
var ErrInvariantViolation = errors.New("ledger invariant violation")

// Balance is the spendable vs reserved split of one (owner, asset) holding.
type Balance struct {
	Available int64 `json:"available"`
	Locked    int64 `json:"locked"`
}

// Ledger is safe for concurrent use; the check-then-mutate in LockFunds is
// one atomic step under the mutex.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]map[string]*Balance // owner -> asset -> balance
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]map[string]*Balance)}
}

// balance materializes the (owner, asset) entry before any read or
// mutation. Callers must hold l.mu.
func (l *Ledger) balance(owner, asset string) *Balance {
	assets, ok := l.accounts[owner]
	if !ok {
		assets = make(map[string]*Balance)
		l.accounts[owner] = assets
	}
	b, ok := assets[asset]
	if !ok {
		b = &Balance{}
		assets[asset] = b
	}
	return b
}

// Deposit credits available funds. Used for seeding configured balances.
func (l *Ledger) Deposit(owner, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative deposit %d", ErrInvariantViolation, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance(owner, asset).Available += amount
	return nil
}

// LockFunds moves amount from available to locked. On insufficient funds
// no state changes.
func (l *Ledger) LockFunds(owner, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative lock %d", ErrInvariantViolation, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balance(owner, asset)
	if b.Available < amount {
		return fmt.Errorf("%w: %s/%s has %d available, need %d",
			ErrInsufficientFunds, owner, asset, b.Available, amount)
	}
	b.Available -= amount
	b.Locked += amount
	return nil
}

// UnlockFunds moves amount from locked back to available. Used on
// cancellation for the unfilled remainder.
func (l *Ledger) UnlockFunds(owner, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative unlock %d", ErrInvariantViolation, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balance(owner, asset)
	if b.Locked < amount {
		return fmt.Errorf("%w: unlock %d exceeds locked %d for %s/%s",
			ErrInvariantViolation, amount, b.Locked, owner, asset)
	}
	b.Locked -= amount
	b.Available += amount
	return nil
}

// SettleFill transfers value between the two matched owners for one fill of
// qty at the maker's price.
//
// Seller side: base locked decreases by qty, quote available increases by
// qty*price. Buyer side: quote locked decreases, base available increases
// by qty.
//
// When the taker is the buyer, funds were locked at the taker's own limit
// price but execution happens at the (possibly better) maker price; the
// difference (takerLimitPrice-price)*qty is refunded from locked back to
// available. Sell takers lock the base asset, which is price-independent,
// so no refund arises.
func (l *Ledger) SettleFill(
	buyOwner, sellOwner, baseAsset, quoteAsset string,
	qty, price int64,
	takerIsBuyer bool, takerLimitPrice int64,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	quoteAmt := qty * price

	buyerQuoteRelease := quoteAmt
	if takerIsBuyer {
		if takerLimitPrice < price {
			return fmt.Errorf("%w: taker limit %d below fill price %d",
				ErrInvariantViolation, takerLimitPrice, price)
		}
		buyerQuoteRelease = qty * takerLimitPrice
	}

	sellerBase := l.balance(sellOwner, baseAsset)
	buyerQuote := l.balance(buyOwner, quoteAsset)

	if sellerBase.Locked < qty {
		return fmt.Errorf("%w: seller %s has %d %s locked, fill needs %d",
			ErrInvariantViolation, sellOwner, sellerBase.Locked, baseAsset, qty)
	}
	if buyerQuote.Locked < buyerQuoteRelease {
		return fmt.Errorf("%w: buyer %s has %d %s locked, fill needs %d",
			ErrInvariantViolation, buyOwner, buyerQuote.Locked, quoteAsset, buyerQuoteRelease)
	}

	// Seller: give base, receive quote.
	sellerBase.Locked -= qty
	l.balance(sellOwner, quoteAsset).Available += quoteAmt

	// Buyer: give quote, receive base. Any price improvement over the
	// taker's limit goes back to available rather than being kept locked.
	buyerQuote.Locked -= buyerQuoteRelease
	buyerQuote.Available += buyerQuoteRelease - quoteAmt
	l.balance(buyOwner, baseAsset).Available += qty

	return nil
}

// Balances returns a copy of all asset balances for one owner.
func (l *Ledger) Balances(owner string) map[string]Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Balance)
	for asset, b := range l.accounts[owner] {
		out[asset] = *b
	}
	return out
}

// Entry is one (owner, asset) row in the serialized ledger.
type Entry struct {
	Owner   string  `json:"ownerId"`
	Asset   string  `json:"asset"`
	Balance Balance `json:"balance"`
}

// State captures the full ledger for serialization, sorted deterministically
// by (owner, asset).
func (l *Ledger) State() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for owner, assets := range l.accounts {
		for asset, b := range assets {
			out = append(out, Entry{Owner: owner, Asset: asset, Balance: *b})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

// Restore rebuilds a ledger from serialized entries.
func Restore(entries []Entry) *Ledger {
	l := NewLedger()
	for _, e := range entries {
		b := l.balance(e.Owner, e.Asset)
		b.Available = e.Balance.Available
		b.Locked = e.Balance.Locked
	}
	return l
}
