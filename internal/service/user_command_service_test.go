package service

import (
	"testing"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/store"
)

func newTestUserCommandService() (*UserCommandService, *store.SessionStore, *ProductService) {
	logger := testLogger()
	f := domain.NewPriceFactory()
	products := store.NewProductStore()
	sessions := store.NewSessionStore()

	sharedReg := newSharedRegistry()
	messages := NewMessagePublisher(sharedReg, sessions, logger)
	ticker := NewTickerPublisher(sharedReg, sessions, logger)
	lastSale := NewLastSalePublisher(sessions, ticker, f, logger)
	market := NewCurrentMarketPublisher(sessions, f, logger)

	ps := NewProductService(products, f, messages, market, lastSale, logger)
	ucs := NewUserCommandService(sessions, ps, market, lastSale, ticker, messages, f)
	return ucs, sessions, ps
}

func TestUserCommandService_ConnectDisconnect(t *testing.T) {
	ucs, _, _ := newTestUserCommandService()
	obs := &fakeObserver{}

	connID, err := ucs.Connect("alice", obs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if connID == "" {
		t.Fatal("expected a non-empty connection id")
	}

	if _, err := ucs.Connect("alice", obs); err != domain.ErrAlreadyConnected {
		t.Fatalf("expected ErrAlreadyConnected on double-connect, got %v", err)
	}

	if err := ucs.Disconnect("alice", connID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if err := ucs.Disconnect("alice", connID); err != domain.ErrUserNotConnected {
		t.Fatalf("expected ErrUserNotConnected after disconnect, got %v", err)
	}
}

func TestUserCommandService_VerifyRejectsUnknownOrStaleConn(t *testing.T) {
	ucs, _, ps := newTestUserCommandService()
	if err := ps.CreateProduct("IBM"); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if _, err := ucs.SubmitOrder("bob", "bogus-conn-id", "IBM", nil, 10, domain.SideBuy); err != domain.ErrUserNotConnected {
		t.Fatalf("expected ErrUserNotConnected for a never-connected user, got %v", err)
	}

	obs := &fakeObserver{}
	connID, err := ucs.Connect("bob", obs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	f := domain.NewPriceFactory()
	if _, err := ucs.SubmitOrder("bob", "wrong-conn-id", "IBM", f.MakeLimitCents(1000), 10, domain.SideBuy); err != domain.ErrInvalidConnectionID {
		t.Fatalf("expected ErrInvalidConnectionID for a stale conn id, got %v", err)
	}

	if err := ps.SetMarketState(MarketPreOpen); err != nil {
		t.Fatalf("SetMarketState: %v", err)
	}
	if err := ps.SetMarketState(MarketOpen); err != nil {
		t.Fatalf("SetMarketState: %v", err)
	}

	if _, err := ucs.SubmitOrder("bob", connID, "IBM", f.MakeLimitCents(1000), 10, domain.SideBuy); err != nil {
		t.Fatalf("expected the verified order to succeed, got %v", err)
	}
}

func TestUserCommandService_SubscribeProxiesToPublishers(t *testing.T) {
	ucs, _, ps := newTestUserCommandService()
	if err := ps.CreateProduct("IBM"); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	obs := &fakeObserver{}
	connID, err := ucs.Connect("carol", obs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := ucs.SubscribeMessages("carol", connID, "IBM"); err != nil {
		t.Fatalf("SubscribeMessages: %v", err)
	}
	if err := ucs.SubscribeMessages("carol", connID, "IBM"); err != domain.ErrAlreadySubscribed {
		t.Fatalf("expected ErrAlreadySubscribed on double-subscribe, got %v", err)
	}
	if err := ucs.UnsubscribeMessages("carol", connID, "IBM"); err != nil {
		t.Fatalf("UnsubscribeMessages: %v", err)
	}
	if err := ucs.UnsubscribeMessages("carol", connID, "IBM"); err != domain.ErrNotSubscribed {
		t.Fatalf("expected ErrNotSubscribed on double-unsubscribe, got %v", err)
	}
}

func TestUserCommandService_ConnectTracksPositionOnFill(t *testing.T) {
	ucs, _, ps := newTestUserCommandService()
	if err := ps.CreateProduct("IBM"); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	buyerObs := &fakeObserver{}
	buyerConn, err := ucs.Connect("buyer", buyerObs)
	if err != nil {
		t.Fatalf("Connect buyer: %v", err)
	}
	sellerObs := &fakeObserver{}
	sellerConn, err := ucs.Connect("seller", sellerObs)
	if err != nil {
		t.Fatalf("Connect seller: %v", err)
	}

	if err := ucs.SubscribeMessages("buyer", buyerConn, "IBM"); err != nil {
		t.Fatalf("SubscribeMessages buyer: %v", err)
	}
	if err := ucs.SubscribeMessages("seller", sellerConn, "IBM"); err != nil {
		t.Fatalf("SubscribeMessages seller: %v", err)
	}

	if err := ps.SetMarketState(MarketPreOpen); err != nil {
		t.Fatal(err)
	}
	if err := ps.SetMarketState(MarketOpen); err != nil {
		t.Fatal(err)
	}

	f := domain.NewPriceFactory()
	price := f.MakeLimitCents(1000)
	if _, err := ucs.SubmitOrder("buyer", buyerConn, "IBM", price, 100, domain.SideBuy); err != nil {
		t.Fatalf("SubmitOrder buyer: %v", err)
	}
	if _, err := ucs.SubmitOrder("seller", sellerConn, "IBM", price, 100, domain.SideSell); err != nil {
		t.Fatalf("SubmitOrder seller: %v", err)
	}

	holdings, err := ucs.GetHoldings("buyer", buyerConn)
	if err != nil {
		t.Fatalf("GetHoldings: %v", err)
	}
	if len(holdings) != 1 || holdings[0] != "IBM" {
		t.Fatalf("buyer holdings = %v, want [IBM]", holdings)
	}

	vol, err := ucs.GetStockPositionVolume("buyer", buyerConn, "ibm")
	if err != nil {
		t.Fatalf("GetStockPositionVolume: %v", err)
	}
	if vol != 100 {
		t.Fatalf("buyer volume = %d, want 100", vol)
	}

	sellerHoldings, err := ucs.GetHoldings("seller", sellerConn)
	if err != nil {
		t.Fatalf("GetHoldings seller: %v", err)
	}
	if len(sellerHoldings) != 1 || sellerHoldings[0] != "IBM" {
		t.Fatalf("seller holdings = %v, want [IBM] (a short position of 0-100=-100 is kept)", sellerHoldings)
	}
}

func TestUserCommandService_GetProductsAndBookDepthRequireSession(t *testing.T) {
	ucs, _, ps := newTestUserCommandService()
	if err := ps.CreateProduct("IBM"); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if _, err := ucs.GetProducts("dave", "no-session"); err != domain.ErrUserNotConnected {
		t.Fatalf("expected ErrUserNotConnected, got %v", err)
	}

	obs := &fakeObserver{}
	connID, err := ucs.Connect("dave", obs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	products, err := ucs.GetProducts("dave", connID)
	if err != nil {
		t.Fatalf("GetProducts: %v", err)
	}
	if len(products) != 1 || products[0] != "IBM" {
		t.Fatalf("expected [IBM], got %v", products)
	}

	buy, sell, err := ucs.GetBookDepth("dave", connID, "IBM", 10)
	if err != nil {
		t.Fatalf("GetBookDepth: %v", err)
	}
	if len(buy) != 1 || buy[0] != "<Empty>" || len(sell) != 1 || sell[0] != "<Empty>" {
		t.Fatalf("expected an empty book, got buy=%v sell=%v", buy, sell)
	}
}
