package store

import (
	"sync"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/engine"
)

// ProductStore is a thread-safe in-memory registry of every product's
// ProductBook, keyed by symbol.
type ProductStore struct {
	mu      sync.RWMutex
	books   map[string]*engine.ProductBook
	symbols []string
}

// NewProductStore creates an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		books: make(map[string]*engine.ProductBook),
	}
}

// Create registers a new book for symbol. Returns
// domain.ErrProductAlreadyExists if the symbol is already registered.
func (s *ProductStore) Create(symbol string, book *engine.ProductBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[symbol]; exists {
		return domain.ErrProductAlreadyExists
	}
	s.books[symbol] = book
	s.symbols = append(s.symbols, symbol)
	return nil
}

// Get retrieves the book for symbol. Returns domain.ErrNoSuchProduct if
// symbol isn't registered.
func (s *ProductStore) Get(symbol string) (*engine.ProductBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	if !ok {
		return nil, domain.ErrNoSuchProduct
	}
	return b, nil
}

// Exists reports whether symbol is registered.
func (s *ProductStore) Exists(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.books[symbol]
	return ok
}

// All returns every registered book, keyed by symbol.
func (s *ProductStore) All() map[string]*engine.ProductBook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*engine.ProductBook, len(s.books))
	for k, v := range s.books {
		out[k] = v
	}
	return out
}

// Symbols returns every registered symbol, in registration order.
func (s *ProductStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}
