package handler

import (
	"fmt"
	"strings"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// priceToJSON renders p as a decimal string for JSON responses ("123.45"),
// or the literal "MKT" for a market price. decimal is confined to this HTTP
// boundary; the engine's own Price never uses it.
func priceToJSON(p *domain.Price) string {
	if p == nil {
		return ""
	}
	if p.IsMarket() {
		return "MKT"
	}
	return decimal.New(p.Cents(), -2).StringFixed(2)
}

// parsePriceJSON parses a request price field, either the literal "MKT" or a
// decimal amount such as "123.45", into a *domain.Price via f.
func parsePriceJSON(f *domain.PriceFactory, s string) (*domain.Price, error) {
	if strings.EqualFold(strings.TrimSpace(s), "MKT") {
		return f.MakeMarket(), nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", s, err)
	}
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return f.MakeLimitCents(cents), nil
}
