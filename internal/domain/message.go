package domain

import "strconv"

// FillMessage records that some volume of a Tradable has traded at a given
// price. Note the toString rendering deliberately omits Id — fills carry no
// order-id in their textual form, unlike cancels (mirrors messages.FillMessage
// in the original implementation).
type FillMessage struct {
	User    string
	Product string
	Price   *Price
	Volume  int64
	Details string
	Side    Side
	ID      string
}

func (m *FillMessage) String() string {
	return "User: " + m.User + ", Product: " + m.Product + ", Price: " + m.Price.String() +
		", Volume: " + strconv.FormatInt(m.Volume, 10) + ", Details: " + m.Details +
		", Side: " + string(m.Side)
}

// FillKey identifies fills that must be coalesced within one matching round:
// same user, same tradable id, same price.
func (m *FillMessage) FillKey() string {
	return m.User + m.ID + m.Price.String()
}

// CancelMessage records the removal of outstanding volume from a Tradable.
// Unlike FillMessage, its toString includes the Id.
type CancelMessage struct {
	User    string
	Product string
	Price   *Price
	Volume  int64
	Details string
	Side    Side
	ID      string
}

func (m *CancelMessage) String() string {
	return "User: " + m.User + ", Product: " + m.Product + ", Price: " + m.Price.String() +
		", Volume: " + strconv.FormatInt(m.Volume, 10) + ", Details: " + m.Details +
		", Side: " + string(m.Side) + ", Id: " + m.ID
}

// MarketMessage announces a market-state transition.
type MarketMessage struct {
	State string
}

func (m *MarketMessage) String() string {
	return "[" + m.State + "]"
}

// MarketData is the current top-of-book snapshot for one symbol.
type MarketData struct {
	Product    string
	BuyPrice   *Price
	BuyVolume  int64
	SellPrice  *Price
	SellVolume int64
}

// TradableDTO is an immutable snapshot of a Tradable's public fields, safe
// to hand to callers outside the book's lock.
type TradableDTO struct {
	Product         string
	Price           *Price
	OriginalVolume  int64
	RemainingVolume int64
	CancelledVolume int64
	User            string
	Side            Side
	IsQuote         bool
	ID              string
}

// SnapshotTradable copies t's public fields into a TradableDTO.
func SnapshotTradable(t *Tradable) *TradableDTO {
	return &TradableDTO{
		Product:         t.Product(),
		Price:           t.Price(),
		OriginalVolume:  t.OriginalVolume(),
		RemainingVolume: t.RemainingVolume(),
		CancelledVolume: t.CancelledVolume(),
		User:            t.User(),
		Side:            t.Side(),
		IsQuote:         t.IsQuote(),
		ID:              t.ID(),
	}
}
