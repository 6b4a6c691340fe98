package service

import (
	"sync"
	"time"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/store"
)

// UserCommandService is the gateway for clients: it authenticates every
// request against the connected-session table and proxies to
// ProductService or the appropriate publisher. Grounded on the teacher's
// OrderService request-validation-then-delegate shape
// (internal/service/order.go), generalized from order placement alone to
// the full command surface spec.md §4.8/§6 lists.
type UserCommandService struct {
	sessions *store.SessionStore
	products *ProductService
	market   *CurrentMarketPublisher
	lastSale *LastSalePublisher
	ticker   *TickerPublisher
	messages *MessagePublisher
	factory  *domain.PriceFactory

	mu        sync.Mutex
	positions map[string]*Position
}

// NewUserCommandService wires a UserCommandService to its collaborators.
func NewUserCommandService(sessions *store.SessionStore, products *ProductService, market *CurrentMarketPublisher, lastSale *LastSalePublisher, ticker *TickerPublisher, messages *MessagePublisher, factory *domain.PriceFactory) *UserCommandService {
	return &UserCommandService{
		sessions:  sessions,
		products:  products,
		market:    market,
		lastSale:  lastSale,
		ticker:    ticker,
		messages:  messages,
		factory:   factory,
		positions: make(map[string]*Position),
	}
}

// positionFor returns user's ledger, creating an empty one on first use.
// Positions outlive a single session: reconnecting under the same user
// name resumes the same account.
func (s *UserCommandService) positionFor(user string) *Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[user]
	if !ok {
		pos = NewPosition(s.factory)
		s.positions[user] = pos
	}
	return pos
}

// positionTrackingObserver wraps a client's own store.UserObserver so every
// fill and last-sale print this user receives also updates their Position
// ledger, per spec.md §4.8's "updated by the user's observer as fills and
// last-sale prints arrive."
type positionTrackingObserver struct {
	store.UserObserver
	position *Position
}

func (o *positionTrackingObserver) AcceptFill(fm *domain.FillMessage) {
	o.position.UpdatePosition(fm.Product, fm.Price, fm.Side, fm.Volume)
	o.UserObserver.AcceptFill(fm)
}

func (o *positionTrackingObserver) AcceptLastSale(product string, price *domain.Price, volume int64) {
	o.position.UpdateLastSale(product, price)
	o.UserObserver.AcceptLastSale(product, price, volume)
}

// Connect registers user with observer and returns a new connection id.
// The observer is wrapped so fills and last-sale prints also update the
// user's Position ledger.
func (s *UserCommandService) Connect(user string, observer store.UserObserver) (string, error) {
	user = domain.NormalizeUpper(user)
	tracked := &positionTrackingObserver{UserObserver: observer, position: s.positionFor(user)}
	return s.sessions.Connect(user, tracked, time.Now())
}

// Disconnect ends user's session.
func (s *UserCommandService) Disconnect(user, connID string) error {
	user = domain.NormalizeUpper(user)
	if err := s.sessions.Verify(user, connID); err != nil {
		return err
	}
	s.sessions.Disconnect(user)
	return nil
}

func (s *UserCommandService) verify(user, connID string) (string, error) {
	user = domain.NormalizeUpper(user)
	if err := s.sessions.Verify(user, connID); err != nil {
		return "", err
	}
	return user, nil
}

// SubmitOrder proxies to ProductService.SubmitOrder after verifying the session.
func (s *UserCommandService) SubmitOrder(user, connID, product string, price *domain.Price, vol int64, side domain.Side) (string, error) {
	user, err := s.verify(user, connID)
	if err != nil {
		return "", err
	}
	return s.products.SubmitOrder(user, product, price, vol, side)
}

// SubmitOrderCancel proxies to ProductService.SubmitOrderCancel.
func (s *UserCommandService) SubmitOrderCancel(user, connID, product string, side domain.Side, orderID string) error {
	if _, err := s.verify(user, connID); err != nil {
		return err
	}
	return s.products.SubmitOrderCancel(product, side, orderID)
}

// SubmitQuote proxies to ProductService.SubmitQuote.
func (s *UserCommandService) SubmitQuote(user, connID, product string, buyPrice *domain.Price, buyVol int64, sellPrice *domain.Price, sellVol int64) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.products.SubmitQuote(user, product, buyPrice, buyVol, sellPrice, sellVol)
}

// SubmitQuoteCancel proxies to ProductService.SubmitQuoteCancel.
func (s *UserCommandService) SubmitQuoteCancel(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.products.SubmitQuoteCancel(user, product)
}

// SubscribeCurrentMarket subscribes user to product's current-market stream.
func (s *UserCommandService) SubscribeCurrentMarket(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.market.Subscribe(user, product)
}

// UnsubscribeCurrentMarket unsubscribes user from product's current-market stream.
func (s *UserCommandService) UnsubscribeCurrentMarket(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.market.Unsubscribe(user, product)
}

// SubscribeLastSale subscribes user to product's last-sale stream.
func (s *UserCommandService) SubscribeLastSale(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.lastSale.Subscribe(user, product)
}

// UnsubscribeLastSale unsubscribes user from product's last-sale stream.
func (s *UserCommandService) UnsubscribeLastSale(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.lastSale.Unsubscribe(user, product)
}

// SubscribeTicker subscribes user to product's ticker stream.
func (s *UserCommandService) SubscribeTicker(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.ticker.Subscribe(user, product)
}

// UnsubscribeTicker unsubscribes user from product's ticker stream.
func (s *UserCommandService) UnsubscribeTicker(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.ticker.Unsubscribe(user, product)
}

// SubscribeMessages subscribes user to product's fill/cancel/market-message stream.
func (s *UserCommandService) SubscribeMessages(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.messages.Subscribe(user, product)
}

// UnsubscribeMessages unsubscribes user from product's message stream.
func (s *UserCommandService) UnsubscribeMessages(user, connID, product string) error {
	user, err := s.verify(user, connID)
	if err != nil {
		return err
	}
	return s.messages.Unsubscribe(user, product)
}

// GetBookDepth proxies to ProductService.GetBookDepth.
func (s *UserCommandService) GetBookDepth(user, connID, product string, depth int) ([]string, []string, error) {
	if _, err := s.verify(user, connID); err != nil {
		return nil, nil, err
	}
	return s.products.GetBookDepth(product, depth)
}

// GetMarketState proxies to ProductService.GetMarketState.
func (s *UserCommandService) GetMarketState(user, connID string) (MarketState, error) {
	if _, err := s.verify(user, connID); err != nil {
		return "", err
	}
	return s.products.GetMarketState(), nil
}

// GetOrdersWithRemainingQty proxies to ProductService.GetOrdersWithRemainingQty.
func (s *UserCommandService) GetOrdersWithRemainingQty(user, connID, product string) ([]*domain.TradableDTO, error) {
	verified, err := s.verify(user, connID)
	if err != nil {
		return nil, err
	}
	return s.products.GetOrdersWithRemainingQty(verified, product)
}

// GetProducts proxies to ProductService.GetProducts.
func (s *UserCommandService) GetProducts(user, connID string) ([]string, error) {
	if _, err := s.verify(user, connID); err != nil {
		return nil, err
	}
	return s.products.GetProducts(), nil
}

// GetHoldings returns user's currently-held product symbols.
func (s *UserCommandService) GetHoldings(user, connID string) ([]string, error) {
	verified, err := s.verify(user, connID)
	if err != nil {
		return nil, err
	}
	return s.positionFor(verified).GetHoldings(), nil
}

// GetStockPositionVolume returns user's held volume of product, 0 if unheld.
func (s *UserCommandService) GetStockPositionVolume(user, connID, product string) (int64, error) {
	verified, err := s.verify(user, connID)
	if err != nil {
		return 0, err
	}
	return s.positionFor(verified).GetStockPositionVolume(domain.NormalizeUpper(product)), nil
}

// GetStockPositionValue returns user's holding of product marked to the
// last observed sale price, $0.00 if unheld or never priced.
func (s *UserCommandService) GetStockPositionValue(user, connID, product string) (*domain.Price, error) {
	verified, err := s.verify(user, connID)
	if err != nil {
		return nil, err
	}
	return s.positionFor(verified).GetStockPositionValue(domain.NormalizeUpper(product)), nil
}

// GetNetAccountValue returns user's cash plus the mark-to-market value of
// every held product.
func (s *UserCommandService) GetNetAccountValue(user, connID string) (*domain.Price, error) {
	verified, err := s.verify(user, connID)
	if err != nil {
		return nil, err
	}
	return s.positionFor(verified).GetNetAccountValue(), nil
}
