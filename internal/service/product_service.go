package service

import (
	"log/slog"
	"sync"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/engine"
	"github.com/pswantek/exchange/internal/store"
)

// MarketState is the process-wide market state, per spec.md §4.6's
// CLOSED -> PREOPEN -> OPEN -> CLOSED state machine.
type MarketState string

const (
	MarketClosed  MarketState = "CLOSED"
	MarketPreOpen MarketState = "PREOPEN"
	MarketOpen    MarketState = "OPEN"
)

var validTransitions = map[MarketState]MarketState{
	MarketClosed:  MarketPreOpen,
	MarketPreOpen: MarketOpen,
	MarketOpen:    MarketClosed,
}

// ProductService is the singleton owning the symbol -> ProductBook mapping
// and the process-wide market state. Grounded on the teacher's
// StockService (query gateway over a book manager), generalized here to
// also own the state machine spec.md places on ProductService rather than
// leaving it implicit.
type ProductService struct {
	mu sync.Mutex

	products *store.ProductStore
	factory  *domain.PriceFactory
	messages *MessagePublisher
	market   *CurrentMarketPublisher
	lastSale *LastSalePublisher
	logger   *slog.Logger
	trades   *store.TradeStore

	state MarketState
}

// NewProductService constructs a ProductService starting in CLOSED state.
func NewProductService(products *store.ProductStore, factory *domain.PriceFactory, messages *MessagePublisher, market *CurrentMarketPublisher, lastSale *LastSalePublisher, logger *slog.Logger) *ProductService {
	return &ProductService{
		products: products,
		factory:  factory,
		messages: messages,
		market:   market,
		lastSale: lastSale,
		logger:   logger,
		state:    MarketClosed,
	}
}

// CreateProduct registers a new empty book for symbol.
func (s *ProductService) CreateProduct(symbol string) error {
	symbol = domain.NormalizeUpper(symbol)
	if err := domain.RequireNonEmpty(symbol, "stock symbol can't be null or empty"); err != nil {
		return err
	}

	book := engine.NewProductBook(symbol, s.factory, s.messages, s.market, s.lastSale)
	return s.products.Create(symbol, book)
}

// GetProducts returns every registered symbol.
func (s *ProductService) GetProducts() []string {
	return s.products.Symbols()
}

// SetTradeStore attaches the trade tape backing GetTrades. Optional: with
// no store attached GetTrades returns nil for every symbol.
func (s *ProductService) SetTradeStore(trades *store.TradeStore) {
	s.trades = trades
}

// GetTrades returns the recorded execution tape for product, oldest first.
func (s *ProductService) GetTrades(product string) []store.TradePrint {
	if s.trades == nil {
		return nil
	}
	return s.trades.GetBySymbol(domain.NormalizeUpper(product))
}

// GetMarketState returns the current market state.
func (s *ProductService) GetMarketState() MarketState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// SetMarketState attempts the transition to newState. Only
// CLOSED->PREOPEN, PREOPEN->OPEN, and OPEN->CLOSED succeed; any other
// request fails with domain.ErrInvalidMarketStateTransition. On entering
// OPEN, every book's OpenMarket runs; on entering CLOSED, every book's
// CloseMarket runs. After a successful transition a MarketMessage
// carrying newState is published to every message subscriber.
func (s *ProductService) SetMarketState(newState MarketState) error {
	s.mu.Lock()
	if validTransitions[s.state] != newState {
		s.mu.Unlock()
		return domain.ErrInvalidMarketStateTransition
	}
	s.state = newState
	s.mu.Unlock()

	books := s.products.All()
	switch newState {
	case MarketOpen:
		for _, book := range books {
			book.OpenMarket()
		}
	case MarketClosed:
		for _, book := range books {
			book.CloseMarket()
		}
	}

	s.logger.Info("market state changed", "state", string(newState))
	s.messages.PublishMarketMessage(&domain.MarketMessage{State: string(newState)})
	return nil
}

func (s *ProductService) bookFor(symbol string) (*engine.ProductBook, error) {
	symbol = domain.NormalizeUpper(symbol)
	return s.products.Get(symbol)
}

// SubmitOrder validates market state, constructs an Order and submits it
// to symbol's book. Fails with InvalidMarketState if CLOSED, InvalidData
// if MKT while PREOPEN.
func (s *ProductService) SubmitOrder(user, product string, price *domain.Price, vol int64, side domain.Side) (string, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == MarketClosed {
		return "", domain.ErrInvalidMarketState
	}

	book, err := s.bookFor(product)
	if err != nil {
		return "", err
	}

	if state == MarketPreOpen && price.IsMarket() {
		return "", &domain.ValidationError{Message: "MKT orders are not accepted during PREOPEN"}
	}

	o, err := domain.NewOrder(user, product, price, vol, side)
	if err != nil {
		return "", err
	}

	book.SubmitOrder(o, engine.MarketState(state))
	return o.ID(), nil
}

// SubmitOrderCancel cancels orderID on symbol/side. Permitted whenever the
// market is not CLOSED.
func (s *ProductService) SubmitOrderCancel(product string, side domain.Side, orderID string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == MarketClosed {
		return domain.ErrInvalidMarketState
	}

	book, err := s.bookFor(product)
	if err != nil {
		return err
	}
	return book.CancelOrder(side, orderID)
}

// SubmitQuote validates and submits a two-sided quote for user on symbol.
func (s *ProductService) SubmitQuote(user, product string, buyPrice *domain.Price, buyVol int64, sellPrice *domain.Price, sellVol int64) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == MarketClosed {
		return domain.ErrInvalidMarketState
	}

	book, err := s.bookFor(product)
	if err != nil {
		return err
	}

	q, err := domain.NewQuote(user, product, buyPrice, buyVol, sellPrice, sellVol)
	if err != nil {
		return err
	}

	book.SubmitQuote(q, engine.MarketState(state))
	return nil
}

// SubmitQuoteCancel cancels user's standing quote on symbol.
func (s *ProductService) SubmitQuoteCancel(user, product string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == MarketClosed {
		return domain.ErrInvalidMarketState
	}

	book, err := s.bookFor(product)
	if err != nil {
		return err
	}
	book.CancelQuote(user)
	return nil
}

// GetBookDepth returns the top depth price-level rows per side for
// product, best price first. depth must be between 1 and 50, matching the
// teacher's admin surface cap (internal/handler/stock.go's ?depth= param).
func (s *ProductService) GetBookDepth(product string, depth int) ([]string, []string, error) {
	book, err := s.bookFor(product)
	if err != nil {
		return nil, nil, err
	}
	if depth < 1 || depth > 50 {
		return nil, nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}

	buy, sell := book.GetBookDepth()
	return capDepth(buy, depth), capDepth(sell, depth), nil
}

func capDepth(rows []string, depth int) []string {
	if len(rows) > depth {
		return rows[:depth]
	}
	return rows
}

// GetOrdersWithRemainingQty returns user's still-working entries on symbol.
func (s *ProductService) GetOrdersWithRemainingQty(user, product string) ([]*domain.TradableDTO, error) {
	book, err := s.bookFor(product)
	if err != nil {
		return nil, err
	}
	return book.GetOrdersWithRemainingQty(user), nil
}
