package store

import (
	"sync"

	"github.com/pswantek/exchange/internal/domain"
)

// TradePrint is one recorded execution, kept for the admin/demo "recent
// trades" endpoint. It is a flattened view of one leg of a fill.
type TradePrint struct {
	Product string
	Price   *domain.Price
	Volume  int64
	User    string
	Side    domain.Side
}

// TradeStore is a thread-safe, append-only, in-memory log of executions,
// keyed by symbol. It has no bearing on matching; it exists purely to
// back the admin surface's trade history query.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string][]TradePrint
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string][]TradePrint),
	}
}

// RecordFill appends a print derived from fm to the symbol's chronological log.
func (s *TradeStore) RecordFill(fm *domain.FillMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[fm.Product] = append(s.trades[fm.Product], TradePrint{
		Product: fm.Product,
		Price:   fm.Price,
		Volume:  fm.Volume,
		User:    fm.User,
		Side:    fm.Side,
	})
}

// GetBySymbol returns every recorded print for symbol, in chronological
// order. Returns an empty slice if none exist.
func (s *TradeStore) GetBySymbol(symbol string) []TradePrint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	result := make([]TradePrint, len(trades))
	copy(result, trades)
	return result
}
