package service

import (
	"sort"
	"sync"

	"github.com/pswantek/exchange/internal/domain"
)

// Position is one user's per-process cost and holdings ledger. It is
// updated by the user's observer as fills and last-sale prints arrive;
// grounded on the teacher's Broker/Holding per-entity-mutex pattern
// (internal/service/broker.go's broker.Mu.Lock()), generalized from a
// single cash+reserved-quantity ledger to the spec's accountCosts/holdings
// model.
type Position struct {
	mu sync.Mutex

	accountCosts *domain.Price
	holdings     map[string]int64
	lastSale     map[string]*domain.Price

	factory *domain.PriceFactory
}

// NewPosition constructs an empty Position with zero accountCosts.
func NewPosition(factory *domain.PriceFactory) *Position {
	return &Position{
		accountCosts: factory.MakeLimitCents(0),
		holdings:     make(map[string]int64),
		lastSale:     make(map[string]*domain.Price),
		factory:      factory,
	}
}

// UpdatePosition applies one fill to the ledger: BUY adds shares and
// subtracts price*vol from accountCosts, SELL subtracts shares and adds.
// A holding that reaches zero is removed entirely.
func (p *Position) UpdatePosition(product string, price *domain.Price, side domain.Side, vol int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	notional, _ := price.Multiply(p.factory, vol)

	if side == domain.SideBuy {
		p.holdings[product] += vol
		p.accountCosts, _ = p.accountCosts.Subtract(p.factory, notional)
	} else {
		p.holdings[product] -= vol
		p.accountCosts, _ = p.accountCosts.Add(p.factory, notional)
	}

	if p.holdings[product] == 0 {
		delete(p.holdings, product)
	}
}

// UpdateLastSale records the latest sale price observed for product, used
// by GetStockPositionValue and GetAllStockValue.
func (p *Position) UpdateLastSale(product string, price *domain.Price) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSale[product] = price
}

// GetHoldings returns every currently-held product symbol, sorted.
func (p *Position) GetHoldings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.holdings))
	for symbol := range p.holdings {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// GetStockPositionVolume returns the held volume for product, or 0 if not held.
func (p *Position) GetStockPositionVolume(product string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.holdings[product]
}

// GetStockPositionValue returns holdings(product) * lastSale(product), or
// $0.00 if product isn't held or has no last-sale on record. This is a
// zero-valued result, not an error, matching the original Position's
// behavior for unknown products.
func (p *Position) GetStockPositionValue(product string) *domain.Price {
	p.mu.Lock()
	defer p.mu.Unlock()

	vol := p.holdings[product]
	if vol == 0 {
		return p.factory.MakeLimitCents(0)
	}
	sale, ok := p.lastSale[product]
	if !ok {
		return p.factory.MakeLimitCents(0)
	}
	value, _ := sale.Multiply(p.factory, vol)
	return value
}

// GetAllStockValue sums GetStockPositionValue over every held product.
func (p *Position) GetAllStockValue() *domain.Price {
	p.mu.Lock()
	holdings := make(map[string]int64, len(p.holdings))
	for k, v := range p.holdings {
		holdings[k] = v
	}
	lastSale := make(map[string]*domain.Price, len(p.lastSale))
	for k, v := range p.lastSale {
		lastSale[k] = v
	}
	p.mu.Unlock()

	total := p.factory.MakeLimitCents(0)
	for symbol, vol := range holdings {
		sale, ok := lastSale[symbol]
		if !ok || vol == 0 {
			continue
		}
		value, _ := sale.Multiply(p.factory, vol)
		total, _ = total.Add(p.factory, value)
	}
	return total
}

// GetNetAccountValue returns accountCosts + GetAllStockValue().
func (p *Position) GetNetAccountValue() *domain.Price {
	p.mu.Lock()
	costs := p.accountCosts
	p.mu.Unlock()

	stockValue := p.GetAllStockValue()
	total, _ := costs.Add(p.factory, stockValue)
	return total
}
