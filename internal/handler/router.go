package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(
	products *service.ProductService,
	ucs *service.UserCommandService,
	factory *domain.PriceFactory,
	deliveryTimeout time.Duration,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	productH := NewProductHandler(products)
	orderH := NewOrderHandler(ucs, factory)
	sessionH := NewSessionHandler(ucs, deliveryTimeout, logger)
	positionH := NewPositionHandler(ucs)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Admin/product routes (no session required).
	r.Post("/products", productH.CreateProduct)
	r.Get("/products", productH.GetProducts)
	r.Get("/products/{symbol}/book", productH.GetBookDepth)
	r.Get("/products/{symbol}/trades", productH.GetTrades)
	r.Post("/market-state", productH.SetMarketState)
	r.Get("/market-state", productH.GetMarketState)

	// Session lifecycle and streaming.
	r.Post("/sessions", sessionH.Connect)
	r.Delete("/sessions/{conn_id}", sessionH.Disconnect)
	r.Get("/sessions/{stream_id}/stream", sessionH.Stream)
	r.Post("/sessions/{conn_id}/subscriptions", sessionH.Subscribe)
	r.Delete("/sessions/{conn_id}/subscriptions", sessionH.Unsubscribe)

	// Order and quote entry, scoped to a connected session.
	r.Post("/sessions/{conn_id}/orders", orderH.SubmitOrder)
	r.Delete("/sessions/{conn_id}/orders/{order_id}", orderH.CancelOrder)
	r.Get("/sessions/{conn_id}/orders", orderH.GetOrders)
	r.Post("/sessions/{conn_id}/quotes", orderH.SubmitQuote)
	r.Delete("/sessions/{conn_id}/quotes/{product}", orderH.CancelQuote)

	// Account/position queries, scoped to a connected session.
	r.Get("/sessions/{conn_id}/position", positionH.GetPosition)
	r.Get("/sessions/{conn_id}/position/{product}", positionH.GetStockPosition)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
