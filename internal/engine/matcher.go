package engine

import (
	"strconv"

	"github.com/pswantek/exchange/internal/domain"
)

// crosses reports whether incoming, aggressing against this (resting) side,
// would trade against the current top of book: true whenever either leg is
// MKT, or the aggressor's limit price reaches across the resting best price.
func (s *BookSide) crosses(incoming *domain.Tradable) bool {
	top, ok := s.TopOfBookPrice()
	if !ok {
		return false
	}
	if incoming.Price().IsMarket() || top.IsMarket() {
		return true
	}
	if incoming.Side() == domain.SideBuy {
		return incoming.Price().GreaterOrEqual(top)
	}
	return incoming.Price().LessOrEqual(top)
}

// doTrade executes one round of matching: it walks the resting bucket at
// this side's current best price, in arrival order, consuming incoming's
// remaining volume against each resting entry until either is exhausted.
// Fills for the same (user, id, price) produced within this call are
// coalesced: volume is summed and details are overwritten with the latest
// (see the fill aggregation rule).
func (s *BookSide) doTrade(incoming *domain.Tradable) map[string]*domain.FillMessage {
	fills := make(map[string]*domain.FillMessage)

	top, ok := s.TopOfBookPrice()
	if !ok {
		return fills
	}
	lvl, ok := s.levelAt(top)
	if !ok {
		return fills
	}

	var consumedIDs []string
	for _, resting := range lvl.entries {
		if incoming.RemainingVolume() <= 0 {
			break
		}

		tradePrice := resting.Price()
		if resting.Price().IsMarket() {
			tradePrice = incoming.Price()
		}

		if incoming.RemainingVolume() >= resting.RemainingVolume() {
			vol := resting.RemainingVolume()
			addFill(fills, resting, tradePrice, vol, "leaving 0")
			_ = resting.SetRemainingVolume(0)
			s.hooks.Archive(resting, vol)
			consumedIDs = append(consumedIDs, resting.ID())

			remainingAfterIncoming := incoming.RemainingVolume() - vol
			_ = incoming.SetRemainingVolume(remainingAfterIncoming)
			addFill(fills, incoming, tradePrice, vol, "leaving "+strconv.FormatInt(remainingAfterIncoming, 10))
			if remainingAfterIncoming <= 0 {
				// incoming is also fully consumed by this leg: archive it
				// with the amount it was just filled for, not its
				// already-zeroed remaining volume.
				s.hooks.Archive(incoming, vol)
			}
		} else {
			vol := incoming.RemainingVolume()
			_ = resting.SetRemainingVolume(resting.RemainingVolume() - vol)
			addFill(fills, resting, tradePrice, vol, "leaving "+strconv.FormatInt(resting.RemainingVolume(), 10))
			_ = incoming.SetRemainingVolume(0)
			addFill(fills, incoming, tradePrice, vol, "leaving 0")
			s.hooks.Archive(incoming, vol)
			break
		}
	}

	for _, id := range consumedIDs {
		s.removeFromLevel(lvl, id)
	}
	s.ClearIfEmpty(top)

	return fills
}

// addFill records a fill for t, coalescing with any existing fill sharing
// the same user+id+price key produced earlier in this doTrade call: volume
// sums, details are overwritten with the latest.
func addFill(fills map[string]*domain.FillMessage, t *domain.Tradable, price *domain.Price, vol int64, details string) {
	fm := &domain.FillMessage{
		User: t.User(), Product: t.Product(), Price: price,
		Volume: vol, Details: details, Side: t.Side(), ID: t.ID(),
	}
	key := fm.FillKey()
	if existing, ok := fills[key]; ok {
		existing.Volume += vol
		existing.Details = details
		return
	}
	fills[key] = fm
}

// TryTrade repeatedly invokes doTrade while incoming still has remaining
// volume, this side is non-empty, and incoming crosses the current best
// price. Fills from successive doTrade calls are merged by the same key:
// a key already present is fully overwritten (not summed) by the later
// call's fill — this asymmetry versus the sum-within-one-doTrade rule is
// intentional (see the mergeFills open question) and must not be altered.
// Every fill in the merged result is published before TryTrade returns.
func (s *BookSide) TryTrade(incoming *domain.Tradable) map[string]*domain.FillMessage {
	merged := make(map[string]*domain.FillMessage)

	for incoming.RemainingVolume() > 0 && !s.IsEmpty() && s.crosses(incoming) {
		round := s.doTrade(incoming)
		for k, v := range round {
			merged[k] = v
		}
	}

	for _, fm := range merged {
		s.hooks.PublishFill(fm)
	}

	return merged
}
