package domain

import (
	"strconv"
	"sync/atomic"
)

// TradableKind distinguishes a resting Order from one leg of a Quote. Both
// share the same Tradable representation; only id generation and the
// IsQuote flag differ between them (see the "Delegation for tradables"
// design note).
type TradableKind int

const (
	KindOrder TradableKind = iota
	KindQuoteSide
)

// idCounter guarantees id uniqueness even when two tradables are created in
// the same nanosecond, which System.nanoTime()-based ids in the original
// implementation rely on but Go's coarser clock cannot.
var idCounter atomic.Int64

// Tradable is a unit of working interest that can rest on a book side or be
// matched: an Order, or one side (buy or sell) of a Quote.
type Tradable struct {
	kind TradableKind
	id   string

	user    string
	product string
	side    Side
	price   *Price

	originalVolume  int64
	remainingVolume int64
	cancelledVolume int64
}

func newTradable(kind TradableKind, user, product string, side Side, price *Price, originalVolume int64) (*Tradable, error) {
	user = NormalizeUpper(user)
	product = NormalizeUpper(product)
	side = Side(NormalizeUpper(string(side)))

	if err := RequireNonEmpty(user, "user name can't be null or empty"); err != nil {
		return nil, err
	}
	if err := RequireNonEmpty(product, "stock symbol can't be null or empty"); err != nil {
		return nil, err
	}
	if side != SideBuy && side != SideSell {
		return nil, &ValidationError{Message: "side must be BUY or SELL"}
	}
	if price == nil {
		return nil, &ValidationError{Message: "a null price was passed in"}
	}
	if originalVolume <= 0 {
		return nil, &ValidationError{Message: "volume was less than or equal to 0"}
	}

	return &Tradable{
		kind:            kind,
		user:            user,
		product:         product,
		side:            side,
		price:           price,
		originalVolume:  originalVolume,
		remainingVolume: originalVolume,
	}, nil
}

// NewOrder constructs an Order-kind Tradable whose id has the form
// <user><product><price> followed by the next value of idCounter.
func NewOrder(user, product string, price *Price, originalVolume int64, side Side) (*Tradable, error) {
	t, err := newTradable(KindOrder, user, product, side, price, originalVolume)
	if err != nil {
		return nil, err
	}
	t.id = t.user + t.product + t.price.String() + strconv.FormatInt(idCounter.Add(1), 10)
	return t, nil
}

// NewQuoteSide constructs a QuoteSide-kind Tradable whose id has the form
// <user><product> followed by the next value of idCounter (no price component, mirroring
// domain.QuoteSide.setOrderId in the original).
func NewQuoteSide(user, product string, price *Price, originalVolume int64, side Side) (*Tradable, error) {
	t, err := newTradable(KindQuoteSide, user, product, side, price, originalVolume)
	if err != nil {
		return nil, err
	}
	t.id = t.user + t.product + strconv.FormatInt(idCounter.Add(1), 10)
	return t, nil
}

// Copy returns a fresh QuoteSide-kind Tradable with the same user, product,
// price, side and original volume as t, but a new id — the equivalent of
// the original QuoteSide copy constructor used when handing out a snapshot.
func (t *Tradable) Copy() *Tradable {
	cp, _ := NewQuoteSide(t.user, t.product, t.price, t.originalVolume, t.side)
	return cp
}

func (t *Tradable) ID() string      { return t.id }
func (t *Tradable) User() string    { return t.user }
func (t *Tradable) Product() string { return t.product }
func (t *Tradable) Side() Side      { return t.side }
func (t *Tradable) Price() *Price   { return t.price }
func (t *Tradable) IsQuote() bool   { return t.kind == KindQuoteSide }

func (t *Tradable) OriginalVolume() int64  { return t.originalVolume }
func (t *Tradable) RemainingVolume() int64 { return t.remainingVolume }
func (t *Tradable) CancelledVolume() int64 { return t.cancelledVolume }

// SetRemainingVolume fails if newRemaining < 0 or newRemaining+cancelled > original.
func (t *Tradable) SetRemainingVolume(newRemaining int64) error {
	if newRemaining < 0 || newRemaining+t.cancelledVolume > t.originalVolume {
		return &ValidationError{Message: "remaining volume was either less than 0 or set to be greater than the original volume"}
	}
	t.remainingVolume = newRemaining
	return nil
}

// SetCancelledVolume fails if newCancelled < 0 or newCancelled+remaining > original.
func (t *Tradable) SetCancelledVolume(newCancelled int64) error {
	if newCancelled < 0 || newCancelled+t.remainingVolume > t.originalVolume {
		return &ValidationError{Message: "cancelled volume was either less than 0 or set to be greater than the original volume"}
	}
	t.cancelledVolume = newCancelled
	return nil
}

// String renders a Tradable for logs, matching the original's toString shapes.
func (t *Tradable) String() string {
	if t.kind == KindQuoteSide {
		return t.price.String() + " x " + strconv.FormatInt(t.remainingVolume, 10) +
			" (Original Vol: " + strconv.FormatInt(t.originalVolume, 10) +
			", CXL'd Vol: " + strconv.FormatInt(t.cancelledVolume, 10) + ") [" + t.id + "]"
	}
	return t.user + " order: " + string(t.side) + " " + strconv.FormatInt(t.remainingVolume, 10) +
		" " + t.product + " at " + t.price.String() +
		" (Original Vol: " + strconv.FormatInt(t.originalVolume, 10) +
		", CXL'd Vol: " + strconv.FormatInt(t.cancelledVolume, 10) + "), ID: " + t.id
}

// Quote pairs a BUY and a SELL Tradable (both QuoteSide-kind) for the same
// user/symbol. Submitting a new Quote for a user atomically replaces any
// prior quote by that user on both sides (see ProductBook.SubmitQuote).
type Quote struct {
	User    string
	Product string
	Buy     *Tradable
	Sell    *Tradable
}

// NewQuote validates and constructs a two-sided Quote: sellPrice must exceed
// buyPrice, both prices must be positive LIMIT prices, and both volumes must
// be positive.
func NewQuote(user, product string, buyPrice *Price, buyVolume int64, sellPrice *Price, sellVolume int64) (*Quote, error) {
	user = NormalizeUpper(user)
	product = NormalizeUpper(product)
	if err := RequireNonEmpty(user, "user name for a quote can't be null or empty"); err != nil {
		return nil, err
	}
	if err := RequireNonEmpty(product, "stock symbol for a quote can't be null or empty"); err != nil {
		return nil, err
	}
	if buyPrice == nil || sellPrice == nil {
		return nil, &ValidationError{Message: "quote prices can't be null"}
	}
	if buyPrice.IsMarket() || sellPrice.IsMarket() || buyPrice.Cents() <= 0 || sellPrice.Cents() <= 0 {
		return nil, &ValidationError{Message: "quote prices must be positive limit prices"}
	}
	if !sellPrice.GreaterThan(buyPrice) {
		return nil, &ValidationError{Message: "quote sell price must exceed buy price"}
	}
	if buyVolume <= 0 || sellVolume <= 0 {
		return nil, &ValidationError{Message: "quote volumes must be positive"}
	}

	buy, err := NewQuoteSide(user, product, buyPrice, buyVolume, SideBuy)
	if err != nil {
		return nil, err
	}
	sell, err := NewQuoteSide(user, product, sellPrice, sellVolume, SideSell)
	if err != nil {
		return nil, err
	}

	return &Quote{User: user, Product: product, Buy: buy, Sell: sell}, nil
}

// Side returns the Buy or Sell leg for the given side.
func (q *Quote) Side(side Side) *Tradable {
	if side == SideBuy {
		return q.Buy
	}
	return q.Sell
}
