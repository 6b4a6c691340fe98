// Package domain holds the exchange's core value types: prices, tradables,
// orders, quotes and the messages the engine emits about them.
package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Price is an immutable fixed-point money value: either a LIMIT price
// expressed in integer cents, or the MKT sentinel. Two LIMIT Prices for the
// same number of cents are the same *Price instance (see PriceFactory) so
// callers may compare by pointer as well as by value.
type Price struct {
	cents  int64
	market bool
}

var stripPriceChars = regexp.MustCompile(`[$ ,]`)

// PriceFactory is a flyweight cache of Price values, keyed by cents, plus
// the single MKT singleton. The zero value is not usable; use NewPriceFactory.
type PriceFactory struct {
	mu       sync.Mutex
	byCents  map[int64]*Price
	marketPx *Price
}

// NewPriceFactory creates an empty flyweight cache.
func NewPriceFactory() *PriceFactory {
	return &PriceFactory{
		byCents: make(map[int64]*Price),
	}
}

// MakeLimitCents returns the canonical Price for the given number of cents,
// creating and caching it on first use.
func (f *PriceFactory) MakeLimitCents(cents int64) *Price {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.byCents[cents]; ok {
		return p
	}
	p := &Price{cents: cents}
	f.byCents[cents] = p
	return p
}

// MakeLimitString parses an optionally "$"-prefixed, comma-grouped decimal
// amount such as "$1,234.50" into a canonical LIMIT Price. Rounding is
// half-away-from-zero to the nearest cent.
func (f *PriceFactory) MakeLimitString(s string) (*Price, error) {
	stripped := stripPriceChars.ReplaceAllString(s, "")
	if stripped == "" {
		return nil, fmt.Errorf("price: empty amount")
	}
	amount, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return nil, fmt.Errorf("price: invalid amount %q: %w", s, err)
	}
	cents := int64(math.Round(amount * 100))
	return f.MakeLimitCents(cents), nil
}

// MakeMarket returns the canonical MKT singleton.
func (f *PriceFactory) MakeMarket() *Price {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.marketPx == nil {
		f.marketPx = &Price{market: true}
	}
	return f.marketPx
}

// IsMarket reports whether p is the MKT sentinel.
func (p *Price) IsMarket() bool {
	return p != nil && p.market
}

// Cents returns the raw cents value. Meaningless (0) for a MKT price.
func (p *Price) Cents() int64 {
	return p.cents
}

// IsNegative reports whether p represents a negative amount. MKT is never negative.
func (p *Price) IsNegative() bool {
	if p.IsMarket() {
		return false
	}
	return p.cents < 0
}

// CompareTo returns -1, 0, or +1 comparing p to other by raw cents value.
// Unlike Greater/Less/Equal below, CompareTo does not special-case MKT: it
// is used internally for total ordering once callers have already excluded
// MKT from the comparison (mirrors the original PriceFactory's Price.compareTo).
func (p *Price) CompareTo(other *Price) int {
	switch {
	case p.cents < other.cents:
		return -1
	case p.cents > other.cents:
		return 1
	default:
		return 0
	}
}

// Equal reports value equality. Returns false whenever either operand is MKT.
func (p *Price) Equal(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents == other.cents
}

// GreaterThan reports whether p > other. Returns false whenever either operand is MKT.
func (p *Price) GreaterThan(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents > other.cents
}

// LessThan reports whether p < other. Returns false whenever either operand is MKT.
func (p *Price) LessThan(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents < other.cents
}

// GreaterOrEqual reports whether p >= other. Returns false whenever either operand is MKT.
func (p *Price) GreaterOrEqual(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents >= other.cents
}

// LessOrEqual reports whether p <= other. Returns false whenever either operand is MKT.
func (p *Price) LessOrEqual(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents <= other.cents
}

// Add returns a new Price via the factory representing p+other. Fails if either is MKT.
func (p *Price) Add(f *PriceFactory, other *Price) (*Price, error) {
	if p.IsMarket() || other.IsMarket() {
		return nil, ErrInvalidPriceOperation
	}
	return f.MakeLimitCents(p.cents + other.cents), nil
}

// Subtract returns a new Price via the factory representing p-other. Fails if either is MKT.
func (p *Price) Subtract(f *PriceFactory, other *Price) (*Price, error) {
	if p.IsMarket() || other.IsMarket() {
		return nil, ErrInvalidPriceOperation
	}
	return f.MakeLimitCents(p.cents - other.cents), nil
}

// Multiply returns a new Price via the factory representing p*n. Fails if the receiver is MKT.
func (p *Price) Multiply(f *PriceFactory, n int64) (*Price, error) {
	if p.IsMarket() {
		return nil, ErrInvalidPriceOperation
	}
	return f.MakeLimitCents(p.cents * n), nil
}

// String renders a LIMIT price as "$#,##0.00" and MKT as "MKT".
func (p *Price) String() string {
	if p.IsMarket() {
		return "MKT"
	}

	neg := p.cents < 0
	abs := p.cents
	if neg {
		abs = -abs
	}
	whole := abs / 100
	frac := abs % 100

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(groupThousands(whole))
	b.WriteByte('.')
	fmt.Fprintf(&b, "%02d", frac)
	return b.String()
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
