package service

import (
	"log/slog"
	"sync"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/store"
)

// subscriberRegistry is one product-keyed subscription table, shared by
// the Ticker and Message publishers per original_source's
// PublisherDataTracker (dropped by the distillation but present in the
// original object graph — Ticker and Message subscribe/unsubscribe
// against one underlying tracker, while CurrentMarket and LastSale each
// own an independent, unshared registry).
type subscriberRegistry struct {
	mu   sync.Mutex
	subs map[string]map[string]bool // product -> user -> true
}

func newSubscriberRegistry() *subscriberRegistry {
	return &subscriberRegistry{subs: make(map[string]map[string]bool)}
}

func (r *subscriberRegistry) subscribe(user, product string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[product] == nil {
		r.subs[product] = make(map[string]bool)
	}
	if r.subs[product][user] {
		return domain.ErrAlreadySubscribed
	}
	r.subs[product][user] = true
	return nil
}

func (r *subscriberRegistry) unsubscribe(user, product string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.subs[product][user] {
		return domain.ErrNotSubscribed
	}
	delete(r.subs[product], user)
	return nil
}

func (r *subscriberRegistry) isSubscribed(user, product string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.subs[product][user]
}

func (r *subscriberRegistry) usersFor(product string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.subs[product]))
	for u := range r.subs[product] {
		out = append(out, u)
	}
	return out
}

func (r *subscriberRegistry) allSubscriptions() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string, len(r.subs))
	for product, users := range r.subs {
		list := make([]string, 0, len(users))
		for u := range users {
			list = append(list, u)
		}
		out[product] = list
	}
	return out
}

// resolver looks up a connected user's observer. Publishers deliver
// synchronously on the calling goroutine; each copies its subscriber list
// under its own lock and releases that lock before delivering, so observer
// callbacks do not run with the publisher's lock held. Publishers never
// re-enter the engine. Satisfied by *store.SessionStore.
type resolver interface {
	Observer(user string) (store.UserObserver, bool)
}

func deliverSafely(logger *slog.Logger, user, kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("publisher delivery panic", "user", user, "kind", kind, "recovered", r)
		}
	}()
	fn()
}

// CurrentMarketPublisher fans out top-of-book snapshots. Its subscriber
// registry is private and unshared, unlike Ticker/Message's.
type CurrentMarketPublisher struct {
	mu      sync.Mutex
	reg     *subscriberRegistry
	users   resolver
	factory *domain.PriceFactory
	logger  *slog.Logger
}

// NewCurrentMarketPublisher constructs an empty CurrentMarketPublisher.
func NewCurrentMarketPublisher(users resolver, factory *domain.PriceFactory, logger *slog.Logger) *CurrentMarketPublisher {
	return &CurrentMarketPublisher{reg: newSubscriberRegistry(), users: users, factory: factory, logger: logger}
}

func (p *CurrentMarketPublisher) Subscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.subscribe(user, product)
}

func (p *CurrentMarketPublisher) Unsubscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.unsubscribe(user, product)
}

// PublishCurrentMarket delivers md to every subscriber of md.Product. Nil
// tops are already normalized to $0.00 by the caller (ProductBook).
func (p *CurrentMarketPublisher) PublishCurrentMarket(md *domain.MarketData) {
	p.mu.Lock()
	users := p.reg.usersFor(md.Product)
	p.mu.Unlock()

	for _, u := range users {
		observer, ok := p.users.Observer(u)
		if !ok {
			continue
		}
		deliverSafely(p.logger, u, "current_market", func() { observer.AcceptCurrentMarket(md) })
	}
}

// LastSalePublisher fans out last-sale prints and cascades into Ticker.
type LastSalePublisher struct {
	mu      sync.Mutex
	reg     *subscriberRegistry
	users   resolver
	ticker  *TickerPublisher
	factory *domain.PriceFactory
	logger  *slog.Logger
}

// NewLastSalePublisher constructs an empty LastSalePublisher wired to ticker.
func NewLastSalePublisher(users resolver, ticker *TickerPublisher, factory *domain.PriceFactory, logger *slog.Logger) *LastSalePublisher {
	return &LastSalePublisher{reg: newSubscriberRegistry(), users: users, ticker: ticker, factory: factory, logger: logger}
}

func (p *LastSalePublisher) Subscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.subscribe(user, product)
}

func (p *LastSalePublisher) Unsubscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.unsubscribe(user, product)
}

// PublishLastSale delivers (product, price, volume) to every subscriber of
// product, replacing a nil price with $0.00, then cascades into
// Ticker.PublishTicker for the same (product, price).
func (p *LastSalePublisher) PublishLastSale(product string, price *domain.Price, volume int64) {
	if price == nil {
		price = p.factory.MakeLimitCents(0)
	}

	p.mu.Lock()
	users := p.reg.usersFor(product)
	p.mu.Unlock()

	for _, u := range users {
		observer, ok := p.users.Observer(u)
		if !ok {
			continue
		}
		deliverSafely(p.logger, u, "last_sale", func() { observer.AcceptLastSale(product, price, volume) })
	}

	p.ticker.PublishTicker(product, price)
}

// TickerPublisher fans out a direction character (space/=/↓/↑) computed
// from the previous last-seen price for each product. Shares its
// subscriber registry with MessagePublisher, per original_source's
// PublisherDataTracker.
type TickerPublisher struct {
	mu      sync.Mutex
	reg     *subscriberRegistry
	users   resolver
	lastSeen map[string]*domain.Price
	logger  *slog.Logger
}

// NewTickerPublisher constructs an empty TickerPublisher sharing reg with
// the MessagePublisher.
func NewTickerPublisher(reg *subscriberRegistry, users resolver, logger *slog.Logger) *TickerPublisher {
	return &TickerPublisher{reg: reg, users: users, lastSeen: make(map[string]*domain.Price), logger: logger}
}

func (p *TickerPublisher) Subscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.subscribe(user, product)
}

func (p *TickerPublisher) Unsubscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.unsubscribe(user, product)
}

// PublishTicker compares price against product's last-seen price and
// delivers the resulting direction character to every subscriber, then
// updates the stored last-seen price. The mapping is verbatim from
// spec.md §4.7: space on first observation, '=' when equal, U+2193 when
// the previous price compared greater than the new one (previous.CompareTo(new) == +1),
// U+2191 otherwise.
func (p *TickerPublisher) PublishTicker(product string, price *domain.Price) {
	p.mu.Lock()
	previous, seen := p.lastSeen[product]
	p.lastSeen[product] = price
	users := p.reg.usersFor(product)
	p.mu.Unlock()

	var direction rune
	switch {
	case !seen:
		direction = ' '
	case previous.Equal(price):
		direction = '='
	case previous.CompareTo(price) == 1:
		direction = '↓'
	default:
		direction = '↑'
	}

	for _, u := range users {
		observer, ok := p.users.Observer(u)
		if !ok {
			continue
		}
		deliverSafely(p.logger, u, "ticker", func() { observer.AcceptTicker(product, price, direction) })
	}
}

// MessagePublisher fans out FillMessage/CancelMessage (only to the
// message's own user) and MarketMessage (to every known subscriber across
// every product registry). Shares its subscriber registry with
// TickerPublisher.
type MessagePublisher struct {
	mu       sync.Mutex
	reg      *subscriberRegistry
	users    resolver
	logger   *slog.Logger
	recorder *store.TradeStore
}

// NewMessagePublisher constructs a MessagePublisher sharing reg with the
// TickerPublisher (see newSharedRegistry).
func NewMessagePublisher(reg *subscriberRegistry, users resolver, logger *slog.Logger) *MessagePublisher {
	return &MessagePublisher{reg: reg, users: users, logger: logger}
}

// SetRecorder attaches a trade tape that every fill is appended to,
// independent of who is subscribed to the fill's product. Optional: a
// MessagePublisher with no recorder simply skips the append.
func (p *MessagePublisher) SetRecorder(ts *store.TradeStore) {
	p.recorder = ts
}

// newSharedRegistry constructs the registry TickerPublisher and
// MessagePublisher must share.
func newSharedRegistry() *subscriberRegistry {
	return newSubscriberRegistry()
}

// NewSharedRegistry is newSharedRegistry's exported form, for callers
// outside this package (cmd/exchange) that need to wire TickerPublisher
// and MessagePublisher against the same registry.
func NewSharedRegistry() *subscriberRegistry {
	return newSharedRegistry()
}

func (p *MessagePublisher) Subscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.subscribe(user, product)
}

func (p *MessagePublisher) Unsubscribe(user, product string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.unsubscribe(user, product)
}

// PublishFill delivers fm only to a subscriber whose user name matches
// fm.User and who is subscribed to fm.Product.
func (p *MessagePublisher) PublishFill(fm *domain.FillMessage) {
	if p.recorder != nil {
		p.recorder.RecordFill(fm)
	}

	p.mu.Lock()
	subscribed := p.reg.isSubscribed(fm.User, fm.Product)
	p.mu.Unlock()

	if !subscribed {
		return
	}
	observer, ok := p.users.Observer(fm.User)
	if !ok {
		return
	}
	deliverSafely(p.logger, fm.User, "fill", func() { observer.AcceptFill(fm) })
}

// PublishCancel delivers cm only to a subscriber whose user name matches
// cm.User and who is subscribed to cm.Product.
func (p *MessagePublisher) PublishCancel(cm *domain.CancelMessage) {
	p.mu.Lock()
	subscribed := p.reg.isSubscribed(cm.User, cm.Product)
	p.mu.Unlock()

	if !subscribed {
		return
	}
	observer, ok := p.users.Observer(cm.User)
	if !ok {
		return
	}
	deliverSafely(p.logger, cm.User, "cancel", func() { observer.AcceptCancel(cm) })
}

// PublishMarketMessage delivers mm to every known subscriber across every
// product registry; a user subscribed under several products receives one
// delivery per subscription, per spec.md §4.7's default (de-duplication is
// permitted but not required).
func (p *MessagePublisher) PublishMarketMessage(mm *domain.MarketMessage) {
	p.mu.Lock()
	all := p.reg.allSubscriptions()
	p.mu.Unlock()

	for _, users := range all {
		for _, u := range users {
			observer, ok := p.users.Observer(u)
			if !ok {
				continue
			}
			deliverSafely(p.logger, u, "market_message", func() { observer.AcceptMarketMessage(mm) })
		}
	}
}
