package service

import (
	"log/slog"
	"testing"
	"time"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/store"
)

type fakeObserver struct {
	fills     []*domain.FillMessage
	cancels   []*domain.CancelMessage
	markets   []*domain.MarketMessage
	lastSales []int64
	tickers   []rune
	current   []*domain.MarketData
}

func (o *fakeObserver) AcceptFill(fm *domain.FillMessage)     { o.fills = append(o.fills, fm) }
func (o *fakeObserver) AcceptCancel(cm *domain.CancelMessage) { o.cancels = append(o.cancels, cm) }
func (o *fakeObserver) AcceptMarketMessage(mm *domain.MarketMessage) {
	o.markets = append(o.markets, mm)
}
func (o *fakeObserver) AcceptLastSale(product string, price *domain.Price, volume int64) {
	o.lastSales = append(o.lastSales, volume)
}
func (o *fakeObserver) AcceptTicker(product string, price *domain.Price, direction rune) {
	o.tickers = append(o.tickers, direction)
}
func (o *fakeObserver) AcceptCurrentMarket(md *domain.MarketData) {
	o.current = append(o.current, md)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestMessagePublisher_DeliversOnlyToMatchingUserAndSubscription(t *testing.T) {
	sessions := store.NewSessionStore()
	obs := &fakeObserver{}
	if _, err := sessions.Connect("A", obs, time.Now()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	reg := newSharedRegistry()
	messages := NewMessagePublisher(reg, sessions, testLogger())

	f := domain.NewPriceFactory()
	fm := &domain.FillMessage{User: "A", Product: "IBM", Price: f.MakeLimitCents(1000), Volume: 10}

	messages.PublishFill(fm)
	if len(obs.fills) != 0 {
		t.Fatalf("expected no delivery before subscribing, got %d", len(obs.fills))
	}

	if err := messages.Subscribe("A", "IBM"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	messages.PublishFill(fm)
	if len(obs.fills) != 1 {
		t.Fatalf("expected 1 delivery after subscribing, got %d", len(obs.fills))
	}

	otherFill := &domain.FillMessage{User: "B", Product: "IBM", Price: f.MakeLimitCents(1000), Volume: 5}
	messages.PublishFill(otherFill)
	if len(obs.fills) != 1 {
		t.Fatalf("expected fill for a different user to not be delivered, got %d", len(obs.fills))
	}
}

func TestMessagePublisher_SubscribeTwiceFails(t *testing.T) {
	sessions := store.NewSessionStore()
	reg := newSharedRegistry()
	messages := NewMessagePublisher(reg, sessions, testLogger())

	if err := messages.Subscribe("A", "IBM"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := messages.Subscribe("A", "IBM"); err != domain.ErrAlreadySubscribed {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
	if err := messages.Unsubscribe("A", "IBM"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := messages.Unsubscribe("A", "IBM"); err != domain.ErrNotSubscribed {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestTickerPublisher_DirectionSequence(t *testing.T) {
	sessions := store.NewSessionStore()
	obs := &fakeObserver{}
	sessions.Connect("X", obs, time.Now())

	reg := newSharedRegistry()
	ticker := NewTickerPublisher(reg, sessions, testLogger())
	ticker.Subscribe("X", "IBM")

	f := domain.NewPriceFactory()
	ticker.PublishTicker("IBM", f.MakeLimitCents(1000))
	ticker.PublishTicker("IBM", f.MakeLimitCents(1000))
	ticker.PublishTicker("IBM", f.MakeLimitCents(900))
	ticker.PublishTicker("IBM", f.MakeLimitCents(1100))

	want := []rune{' ', '=', '↓', '↑'}
	if len(obs.tickers) != len(want) {
		t.Fatalf("expected %d directions, got %d: %v", len(want), len(obs.tickers), obs.tickers)
	}
	for i, d := range want {
		if obs.tickers[i] != d {
			t.Errorf("direction[%d] = %q, want %q", i, obs.tickers[i], d)
		}
	}
}

func TestLastSalePublisher_CascadesToTicker(t *testing.T) {
	sessions := store.NewSessionStore()
	obs := &fakeObserver{}
	sessions.Connect("X", obs, time.Now())

	f := domain.NewPriceFactory()
	reg := newSharedRegistry()
	ticker := NewTickerPublisher(reg, sessions, testLogger())
	lastSale := NewLastSalePublisher(sessions, ticker, f, testLogger())

	lastSale.Subscribe("X", "IBM")
	ticker.Subscribe("X", "IBM")

	lastSale.PublishLastSale("IBM", f.MakeLimitCents(1000), 100)

	if len(obs.lastSales) != 1 || obs.lastSales[0] != 100 {
		t.Fatalf("expected one last-sale delivery of volume 100, got %v", obs.lastSales)
	}
	if len(obs.tickers) != 1 || obs.tickers[0] != ' ' {
		t.Fatalf("expected ticker cascade with first-observation space, got %v", obs.tickers)
	}
}

func TestCurrentMarketPublisher_DeliversOnlyToSubscribedProduct(t *testing.T) {
	sessions := store.NewSessionStore()
	obs := &fakeObserver{}
	sessions.Connect("X", obs, time.Now())

	f := domain.NewPriceFactory()
	market := NewCurrentMarketPublisher(sessions, f, testLogger())
	market.Subscribe("X", "IBM")

	market.PublishCurrentMarket(&domain.MarketData{Product: "AAPL"})
	if len(obs.current) != 0 {
		t.Fatalf("expected no delivery for unsubscribed product, got %d", len(obs.current))
	}

	market.PublishCurrentMarket(&domain.MarketData{Product: "IBM"})
	if len(obs.current) != 1 {
		t.Fatalf("expected one delivery, got %d", len(obs.current))
	}
}
