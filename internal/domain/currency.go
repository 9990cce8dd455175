// Package domain defines the core types shared across the forexbot: currencies,
// quotes, detected opportunities, sentinel errors, and the interfaces that the
// cache, store, and blob layers implement.
package domain

// Currency is an ISO-4217 style currency code (e.g. "USD"). It is an opaque
// comparable identifier; the engine never interprets its contents.
type Currency string

// Pair is a directed currency pair in the orientation the provider quoted it:
// one unit of Base costs Rate units of Quote.
type Pair struct {
	Base  Currency
	Quote Currency
}

// String renders the pair in the conventional "USD/EUR" form.
func (p Pair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// Market is the canonical unordered form of a pair, used as the key of the
// staleness registry so that one entry covers both directed edges. A is always
// the lexicographically smaller code.
type Market struct {
	A Currency
	B Currency
}

// Market returns the canonical unordered market for the pair.
func (p Pair) Market() Market {
	if p.Quote < p.Base {
		return Market{A: p.Quote, B: p.Base}
	}
	return Market{A: p.Base, B: p.Quote}
}

// String renders the market in "EUR/USD" form (lexicographic order).
func (m Market) String() string {
	return string(m.A) + "/" + string(m.B)
}
