package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/service"
	"github.com/pswantek/exchange/internal/store"
)

// testDeps bundles the wiring every handler test needs, built the same way
// cmd/exchange/main.go builds it: stores, shared/private publisher
// registries, then services on top.
type testDeps struct {
	factory  *domain.PriceFactory
	products *service.ProductService
	ucs      *service.UserCommandService
}

func newTestDeps() *testDeps {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	factory := domain.NewPriceFactory()
	productStore := store.NewProductStore()
	sessions := store.NewSessionStore()

	sharedReg := service.NewSharedRegistry()
	messages := service.NewMessagePublisher(sharedReg, sessions, logger)
	ticker := service.NewTickerPublisher(sharedReg, sessions, logger)
	lastSale := service.NewLastSalePublisher(sessions, ticker, factory, logger)
	market := service.NewCurrentMarketPublisher(sessions, factory, logger)

	products := service.NewProductService(productStore, factory, messages, market, lastSale, logger)
	ucs := service.NewUserCommandService(sessions, products, market, lastSale, ticker, messages, factory)

	return &testDeps{factory: factory, products: products, ucs: ucs}
}

const testDeliveryTimeout = 50 * time.Millisecond

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withChiCtx attaches a chi route context to req, so a handler under test
// can read chi.URLParam without going through the full router.
func withChiCtx(req *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
}
