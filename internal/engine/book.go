// Package engine implements one symbol's order book: the two BookSides,
// the price-time matching algorithm, and the ProductBook that owns them.
package engine

import (
	"strconv"

	"github.com/google/btree"
	"github.com/pswantek/exchange/internal/domain"
)

// Hooks lets a BookSide reach back into its owning ProductBook without the
// engine package depending on it directly (see the "cyclic ownership"
// design note: the side holds only a back-handle supplied at construction).
type Hooks struct {
	// Archive retires t: it is expected to zero t's remaining volume, set
	// t's cancelled volume to cancelledVol, and record t in the symbol's
	// old-entries log. cancelledVol is passed explicitly by the caller
	// rather than read back off t, since by the time some callers archive
	// t its remaining volume no longer reflects the amount being retired.
	Archive func(t *domain.Tradable, cancelledVol int64)
	// PublishFill delivers one FillMessage to the message publisher.
	PublishFill func(fm *domain.FillMessage)
	// PublishCancel delivers one CancelMessage to the message publisher.
	PublishCancel func(cm *domain.CancelMessage)
}

// bookLevel holds every Tradable resting at one price, in arrival order.
type bookLevel struct {
	price   *domain.Price
	entries []*domain.Tradable
}

func bidLevelLess(a, b *bookLevel) bool {
	if a.price.IsMarket() != b.price.IsMarket() {
		return a.price.IsMarket()
	}
	if a.price.IsMarket() {
		return false
	}
	return a.price.Cents() > b.price.Cents()
}

func askLevelLess(a, b *bookLevel) bool {
	if a.price.IsMarket() != b.price.IsMarket() {
		return a.price.IsMarket()
	}
	if a.price.IsMarket() {
		return false
	}
	return a.price.Cents() < b.price.Cents()
}

// BookSide is one price-sorted side (BUY or SELL) of one symbol's book. It
// holds no lock of its own: callers (ProductBook) serialize access under
// the side's parent lock, per the service → book → side → publisher → user
// ordering the concurrency model requires.
type BookSide struct {
	side   domain.Side
	tree   *btree.BTreeG[*bookLevel]
	byID   map[string]*bookLevel
	hooks  Hooks
}

// NewBookSide constructs an empty side. hooks must be fully populated.
func NewBookSide(side domain.Side, hooks Hooks) *BookSide {
	less := askLevelLess
	if side == domain.SideBuy {
		less = bidLevelLess
	}
	return &BookSide{
		side:  side,
		tree:  btree.NewG[*bookLevel](8, less),
		byID:  make(map[string]*bookLevel),
		hooks: hooks,
	}
}

func (s *BookSide) levelAt(price *domain.Price) (*bookLevel, bool) {
	found, ok := s.tree.Get(&bookLevel{price: price})
	return found, ok
}

// IsEmpty reports whether the side has no resting interest at all.
func (s *BookSide) IsEmpty() bool {
	return s.tree.Len() == 0
}

// TopOfBookPrice returns the best price on this side, or (nil, false) if empty.
func (s *BookSide) TopOfBookPrice() (*domain.Price, bool) {
	lvl, ok := s.tree.Min()
	if !ok {
		return nil, false
	}
	return lvl.price, true
}

// TopOfBookVolume returns the sum of remaining volume at the best price, or 0 if empty.
func (s *BookSide) TopOfBookVolume() int64 {
	lvl, ok := s.tree.Min()
	if !ok {
		return 0
	}
	return levelVolume(lvl)
}

func levelVolume(lvl *bookLevel) int64 {
	var total int64
	for _, t := range lvl.entries {
		total += t.RemainingVolume()
	}
	return total
}

// TopEntries returns a snapshot of the entries resting at the best price, in
// arrival order. Callers may safely trade against or remove these entries
// while iterating, since the returned slice is a copy.
func (s *BookSide) TopEntries() []*domain.Tradable {
	lvl, ok := s.tree.Min()
	if !ok {
		return nil
	}
	cp := make([]*domain.Tradable, len(lvl.entries))
	copy(cp, lvl.entries)
	return cp
}

// EntriesWithRemainingForUser returns a snapshot of every entry belonging to
// user with remaining volume greater than zero, across all price levels.
func (s *BookSide) EntriesWithRemainingForUser(user string) []*domain.TradableDTO {
	var out []*domain.TradableDTO
	s.tree.Ascend(func(lvl *bookLevel) bool {
		for _, e := range lvl.entries {
			if e.User() == user && e.RemainingVolume() > 0 {
				out = append(out, domain.SnapshotTradable(e))
			}
		}
		return true
	})
	return out
}

// GetBookDepth renders every price level in side order as "<price> x <volume>",
// or ["<Empty>"] if the side has nothing resting.
func (s *BookSide) GetBookDepth() []string {
	if s.IsEmpty() {
		return []string{"<Empty>"}
	}
	rows := make([]string, 0, s.tree.Len())
	s.tree.Ascend(func(lvl *bookLevel) bool {
		rows = append(rows, lvl.price.String()+" x "+strconv.FormatInt(levelVolume(lvl), 10))
		return true
	})
	return rows
}

// AddToBook appends t to the per-price bucket at t.Price(), creating the
// bucket if it doesn't already exist.
func (s *BookSide) AddToBook(t *domain.Tradable) {
	lvl, ok := s.levelAt(t.Price())
	if !ok {
		lvl = &bookLevel{price: t.Price()}
		s.tree.ReplaceOrInsert(lvl)
	}
	lvl.entries = append(lvl.entries, t)
	s.byID[t.ID()] = lvl
}

// RemoveTradable removes the first entry equal to t (by id), dropping the
// bucket if it becomes empty.
func (s *BookSide) RemoveTradable(t *domain.Tradable) {
	lvl, ok := s.byID[t.ID()]
	if !ok {
		return
	}
	s.removeFromLevel(lvl, t.ID())
}

func (s *BookSide) removeFromLevel(lvl *bookLevel, id string) {
	for i, e := range lvl.entries {
		if e.ID() == id {
			lvl.entries = append(lvl.entries[:i], lvl.entries[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
	s.ClearIfEmpty(lvl.price)
}

// ClearIfEmpty drops the bucket at price if it has become empty. The book
// invariant is that an empty bucket is never observable via
// TopOfBookPrice or GetBookDepth.
func (s *BookSide) ClearIfEmpty(price *domain.Price) {
	lvl, ok := s.levelAt(price)
	if ok && len(lvl.entries) == 0 {
		s.tree.Delete(lvl)
	}
}

// RemoveQuote finds and removes this user's QuoteSide entry on this side
// (there is at most one, per the quote-replaces invariant) and returns a
// snapshot of it.
func (s *BookSide) RemoveQuote(user string) (*domain.TradableDTO, bool) {
	var found *domain.Tradable
	var foundLevel *bookLevel
	s.tree.Ascend(func(lvl *bookLevel) bool {
		for _, e := range lvl.entries {
			if e.IsQuote() && e.User() == user {
				found = e
				foundLevel = lvl
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	dto := domain.SnapshotTradable(found)
	s.removeFromLevel(foundLevel, found.ID())
	return dto, true
}

// SubmitOrderCancel removes the order by id, publishes a CancelMessage
// ("<SIDE> Order Cancelled") and archives the retired entry. Returns false
// if no such order rests on this side (the caller then checks the archive
// for a too-late-to-cancel diagnosis).
func (s *BookSide) SubmitOrderCancel(orderID string) bool {
	lvl, ok := s.byID[orderID]
	if !ok {
		return false
	}
	var t *domain.Tradable
	for _, e := range lvl.entries {
		if e.ID() == orderID {
			t = e
			break
		}
	}
	if t == nil {
		return false
	}

	cancelledVol := t.RemainingVolume()
	s.removeFromLevel(lvl, orderID)
	s.hooks.Archive(t, cancelledVol)
	s.hooks.PublishCancel(&domain.CancelMessage{
		User: t.User(), Product: t.Product(), Price: t.Price(),
		Volume: cancelledVol, Details: string(s.side) + " Order Cancelled",
		Side: t.Side(), ID: t.ID(),
	})
	return true
}

// SubmitQuoteCancel removes user's quote entry on this side, if present,
// and publishes a CancelMessage ("Quote <SIDE>-Side Cancelled"). No-op if
// the user has no live quote on this side.
func (s *BookSide) SubmitQuoteCancel(user string) {
	dto, ok := s.RemoveQuote(user)
	if !ok {
		return
	}
	s.hooks.PublishCancel(&domain.CancelMessage{
		User: dto.User, Product: dto.Product, Price: dto.Price,
		Volume: dto.RemainingVolume, Details: "Quote " + string(s.side) + "-Side Cancelled",
		Side: dto.Side, ID: dto.ID,
	})
}

// CancelAll cancels every entry resting on the side: quotes via
// SubmitQuoteCancel, orders via SubmitOrderCancel. It snapshots the
// entries before iterating so cancellation (which mutates the tree) never
// invalidates the walk.
func (s *BookSide) CancelAll() {
	var quoteUsers []string
	var orderIDs []string
	s.tree.Ascend(func(lvl *bookLevel) bool {
		for _, e := range lvl.entries {
			if e.IsQuote() {
				quoteUsers = append(quoteUsers, e.User())
			} else {
				orderIDs = append(orderIDs, e.ID())
			}
		}
		return true
	})
	for _, u := range quoteUsers {
		s.SubmitQuoteCancel(u)
	}
	for _, id := range orderIDs {
		s.SubmitOrderCancel(id)
	}
}
