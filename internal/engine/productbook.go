package engine

import (
	"strconv"
	"sync"

	"github.com/pswantek/exchange/internal/domain"
)

// MarketState mirrors the state names owned by the service layer's market
// state machine; ProductBook receives it as a parameter on every operation
// whose behavior differs between PREOPEN and OPEN — it does not itself track
// or validate market state (that belongs to ProductService).
type MarketState string

const (
	StatePreOpen MarketState = "PREOPEN"
	StateOpen    MarketState = "OPEN"
	StateClosed  MarketState = "CLOSED"
)

// MessagePublisher delivers fill and cancel events produced by a ProductBook.
type MessagePublisher interface {
	PublishFill(fm *domain.FillMessage)
	PublishCancel(cm *domain.CancelMessage)
}

// CurrentMarketPublisher delivers top-of-book snapshots.
type CurrentMarketPublisher interface {
	PublishCurrentMarket(md *domain.MarketData)
}

// LastSalePublisher delivers last-sale prints.
type LastSalePublisher interface {
	PublishLastSale(product string, price *domain.Price, volume int64)
}

// ProductBook owns the BUY and SELL sides of one symbol, the price-time
// matching algorithm they run, and the symbol's old-entries archive. It is
// the unit of locking the service layer serializes against per the
// service → book → side → publisher → user ordering.
type ProductBook struct {
	mu      sync.Mutex
	symbol  string
	factory *domain.PriceFactory

	buy  *BookSide
	sell *BookSide

	liveQuoteUsers map[string]bool

	archiveByPrice map[string][]*domain.Tradable
	archiveByID    map[string]*domain.Tradable

	lastFingerprint string

	messages MessagePublisher
	market   CurrentMarketPublisher
	lastSale LastSalePublisher
}

// NewProductBook constructs an empty book for symbol. All three publishers
// must be non-nil.
func NewProductBook(symbol string, factory *domain.PriceFactory, messages MessagePublisher, market CurrentMarketPublisher, lastSale LastSalePublisher) *ProductBook {
	pb := &ProductBook{
		symbol:         symbol,
		factory:        factory,
		liveQuoteUsers: make(map[string]bool),
		archiveByPrice: make(map[string][]*domain.Tradable),
		archiveByID:    make(map[string]*domain.Tradable),
		messages:       messages,
		market:         market,
		lastSale:       lastSale,
	}
	hooks := Hooks{
		Archive:       pb.addOldEntry,
		PublishFill:   pb.messages.PublishFill,
		PublishCancel: pb.messages.PublishCancel,
	}
	pb.buy = NewBookSide(domain.SideBuy, hooks)
	pb.sell = NewBookSide(domain.SideSell, hooks)
	return pb
}

func (pb *ProductBook) sideFor(side domain.Side) *BookSide {
	if side == domain.SideBuy {
		return pb.buy
	}
	return pb.sell
}

func (pb *ProductBook) oppositeSideFor(side domain.Side) *BookSide {
	if side == domain.SideBuy {
		return pb.sell
	}
	return pb.buy
}

// addOldEntry retires t: its remaining volume is zeroed and cancelledVol is
// recorded as its cancelled volume (remaining is zeroed first, since
// SetCancelledVolume validates against the already-updated remaining), and t
// is recorded in the symbol's old-entries archive under its price and its
// id. cancelledVol is supplied by the caller rather than read off t, since a
// trade-out archives t after its remaining volume has already been consumed
// to zero.
func (pb *ProductBook) addOldEntry(t *domain.Tradable, cancelledVol int64) {
	_ = t.SetRemainingVolume(0)
	_ = t.SetCancelledVolume(cancelledVol)

	key := t.Price().String()
	pb.archiveByPrice[key] = append(pb.archiveByPrice[key], t)
	pb.archiveByID[t.ID()] = t
}

// checkTooLateToCancel reports whether orderID has already been fully
// retired (traded out or previously cancelled), in which case a late
// cancel request should be answered with a diagnostic rather than silently
// dropped or reported as not-found.
func (pb *ProductBook) checkTooLateToCancel(orderID string) (*domain.Tradable, bool) {
	t, ok := pb.archiveByID[orderID]
	return t, ok
}

// SubmitOrder adds an order to the book. During PREOPEN it is appended to
// its own side unconditionally; during OPEN it is run through the matching
// algorithm first, per submitTradable.
func (pb *ProductBook) SubmitOrder(o *domain.Tradable, state MarketState) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.submitTradable(o, state)
	pb.updateCurrentMarket()
}

// SubmitQuote replaces user's standing two-sided quote, if any, with a new
// one: any existing BUY and SELL quote-side entries for user are cancelled
// first, then the new BUY and SELL legs are each run through submitTradable
// exactly as an order would be.
func (pb *ProductBook) SubmitQuote(q *domain.Quote, state MarketState) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.liveQuoteUsers[q.Buy.User()] {
		pb.buy.SubmitQuoteCancel(q.Buy.User())
		pb.sell.SubmitQuoteCancel(q.Sell.User())
	}

	pb.submitTradable(q.Buy, state)
	pb.submitTradable(q.Sell, state)
	pb.liveQuoteUsers[q.Buy.User()] = true

	pb.updateCurrentMarket()
}

// submitTradable runs the shared order-submission algorithm used both for
// plain orders and for each leg of a quote: PREOPEN appends unconditionally;
// OPEN matches against the opposite side first, publishes a last-sale print
// derived from the incoming's own total fill (price of the lowest-priced
// fill, volume = original − remaining of the incoming — this differs from
// the general last-sale rule used during the opening cross, see OpenMarket),
// then either cancels a still-live MKT remainder or rests the remainder on
// t's own side.
func (pb *ProductBook) submitTradable(t *domain.Tradable, state MarketState) {
	if state == StatePreOpen {
		pb.sideFor(t.Side()).AddToBook(t)
		return
	}

	opposite := pb.oppositeSideFor(t.Side())
	fills := opposite.TryTrade(t)
	if len(fills) > 0 {
		lf := lowestPricedFill(fills)
		volume := t.OriginalVolume() - t.RemainingVolume()
		pb.lastSale.PublishLastSale(pb.symbol, lf.Price, volume)
	}

	if t.RemainingVolume() <= 0 {
		return
	}

	if t.Price().IsMarket() {
		vol := t.RemainingVolume()
		_ = t.SetRemainingVolume(0)
		_ = t.SetCancelledVolume(vol)
		pb.messages.PublishCancel(&domain.CancelMessage{
			User: t.User(), Product: t.Product(), Price: t.Price(),
			Volume: vol, Details: "Cancelled", Side: t.Side(), ID: t.ID(),
		})
		return
	}

	pb.sideFor(t.Side()).AddToBook(t)
}

// lowestPricedFill returns the fill with the smallest price in fills.
// Iteration order over a map is unspecified, so ties are broken arbitrarily,
// matching the fact that coalesced fills sharing a key are already merged.
func lowestPricedFill(fills map[string]*domain.FillMessage) *domain.FillMessage {
	var lowest *domain.FillMessage
	for _, fm := range fills {
		if lowest == nil || fm.Price.CompareTo(lowest.Price) < 0 {
			lowest = fm
		}
	}
	return lowest
}

// CancelOrder cancels orderID on side. If the order is no longer resting, it
// checks the archive: an order that was already traded out or cancelled
// answers with a "too late to cancel" diagnostic rather than ErrOrderNotFound.
func (pb *ProductBook) CancelOrder(side domain.Side, orderID string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.sideFor(side).SubmitOrderCancel(orderID) {
		pb.updateCurrentMarket()
		return nil
	}

	t, ok := pb.checkTooLateToCancel(orderID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	pb.messages.PublishCancel(&domain.CancelMessage{
		User: t.User(), Product: t.Product(), Price: t.Price(),
		Volume: t.CancelledVolume(), Details: "Too late to cancel.",
		Side: t.Side(), ID: t.ID(),
	})
	pb.updateCurrentMarket()
	return nil
}

// CancelQuote cancels user's standing quote on both sides, if any. It is a
// no-op if user has no live quote.
func (pb *ProductBook) CancelQuote(user string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.buy.SubmitQuoteCancel(user)
	pb.sell.SubmitQuoteCancel(user)
	delete(pb.liveQuoteUsers, user)
	pb.updateCurrentMarket()
}

// OpenMarket runs the opening cross: while both sides have a best price and
// the book crosses (either side is MKT, or BUY top ≥ SELL top), the entries
// resting at the BUY side's best price are matched, one at a time in arrival
// order, against the SELL side. Entries fully consumed in the round are
// removed from the BUY side. The last-sale print for the round is derived
// only from the fills produced by matching the LAST entry in that round's
// snapshot — not the fills accumulated across the whole round — matching the
// original implementation's ProductBook.openMarket behavior exactly.
func (pb *ProductBook) OpenMarket() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	for {
		buyTop, buyOK := pb.buy.TopOfBookPrice()
		sellTop, sellOK := pb.sell.TopOfBookPrice()
		if !buyOK || !sellOK {
			break
		}
		if !(buyTop.IsMarket() || sellTop.IsMarket() || buyTop.GreaterOrEqual(sellTop)) {
			break
		}

		entries := pb.buy.TopEntries()
		var lastFills map[string]*domain.FillMessage
		for _, entry := range entries {
			lastFills = pb.sell.TryTrade(entry)
		}
		for _, entry := range entries {
			if entry.RemainingVolume() <= 0 {
				pb.buy.RemoveTradable(entry)
			}
		}

		pb.updateCurrentMarket()

		if len(lastFills) > 0 {
			lf := lowestPricedFill(lastFills)
			pb.lastSale.PublishLastSale(pb.symbol, lf.Price, lf.Volume)
		}
	}
}

// CloseMarket cancels every resting order and quote on both sides.
func (pb *ProductBook) CloseMarket() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.buy.CancelAll()
	pb.sell.CancelAll()
	pb.updateCurrentMarket()
}

// GetBookDepth returns the BUY and SELL side depth renderings.
func (pb *ProductBook) GetBookDepth() (buy, sell []string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	return pb.buy.GetBookDepth(), pb.sell.GetBookDepth()
}

// GetOrdersWithRemainingQty returns every entry belonging to user, on either
// side, that still has remaining volume.
func (pb *ProductBook) GetOrdersWithRemainingQty(user string) []*domain.TradableDTO {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	out := pb.buy.EntriesWithRemainingForUser(user)
	out = append(out, pb.sell.EntriesWithRemainingForUser(user)...)
	return out
}

// GetMarketData returns the current top-of-book snapshot.
func (pb *ProductBook) GetMarketData() *domain.MarketData {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	return pb.currentMarketData()
}

func (pb *ProductBook) currentMarketData() *domain.MarketData {
	buyPrice, buyOK := pb.buy.TopOfBookPrice()
	sellPrice, sellOK := pb.sell.TopOfBookPrice()

	zero := pb.factory.MakeLimitCents(0)
	md := &domain.MarketData{Product: pb.symbol, BuyPrice: zero, SellPrice: zero}
	if buyOK {
		md.BuyPrice = buyPrice
		md.BuyVolume = pb.buy.TopOfBookVolume()
	}
	if sellOK {
		md.SellPrice = sellPrice
		md.SellVolume = pb.sell.TopOfBookVolume()
	}
	return md
}

// updateCurrentMarket publishes the current top-of-book snapshot if it has
// changed since the last publish, deduping on a fingerprint of its fields so
// unchanged book state never produces redundant publishes.
func (pb *ProductBook) updateCurrentMarket() {
	md := pb.currentMarketData()
	fingerprint := md.Product + "|" + md.BuyPrice.String() + "|" + strconv.FormatInt(md.BuyVolume, 10) +
		"|" + md.SellPrice.String() + "|" + strconv.FormatInt(md.SellVolume, 10)

	if fingerprint == pb.lastFingerprint {
		return
	}
	pb.lastFingerprint = fingerprint
	pb.market.PublishCurrentMarket(md)
}
