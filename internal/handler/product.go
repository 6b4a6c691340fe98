package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/service"
)

// ProductHandler exposes the admin/read surface backed directly by
// service.ProductService: product registration, market-state transitions,
// and book-depth queries that don't require an authenticated session.
// Grounded on the teacher's StockHandler shape (internal/handler/stock.go):
// one wrapped service, one mapError helper, GET-heavy read endpoints.
type ProductHandler struct {
	products *service.ProductService
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(products *service.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

type createProductRequest struct {
	Symbol string `json:"symbol"`
}

// CreateProduct registers a new, empty order book.
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.products.CreateProduct(req.Symbol); err != nil {
		h.mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"symbol": domain.NormalizeUpper(req.Symbol)})
}

// GetProducts lists every registered symbol.
func (h *ProductHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"products": h.products.GetProducts()})
}

type setMarketStateRequest struct {
	State string `json:"state"`
}

// SetMarketState attempts the process-wide market state transition.
func (h *ProductHandler) SetMarketState(w http.ResponseWriter, r *http.Request) {
	var req setMarketStateRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	newState := service.MarketState(domain.NormalizeUpper(req.State))
	if err := h.products.SetMarketState(newState); err != nil {
		h.mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"state": string(newState)})
}

// GetMarketState returns the current process-wide market state.
func (h *ProductHandler) GetMarketState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"state": string(h.products.GetMarketState())})
}

type bookDepthResponse struct {
	Symbol string   `json:"symbol"`
	Buy    []string `json:"buy"`
	Sell   []string `json:"sell"`
}

// GetBookDepth renders a symbol's book, best price first. The ?depth= query
// param caps the rows returned per side (default 10, 1-50); an out-of-range
// value is rejected by the service as invalid_request.
func (h *ProductHandler) GetBookDepth(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	depth := 10
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "depth must be an integer")
			return
		}
		depth = parsed
	}

	buy, sell, err := h.products.GetBookDepth(symbol, depth)
	if err != nil {
		h.mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, bookDepthResponse{Symbol: domain.NormalizeUpper(symbol), Buy: buy, Sell: sell})
}

type tradePrintResponse struct {
	Price  string `json:"price"`
	Volume int64  `json:"volume"`
	User   string `json:"user"`
	Side   string `json:"side"`
}

// GetTrades renders a symbol's execution tape, oldest first.
func (h *ProductHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	prints := h.products.GetTrades(symbol)
	out := make([]tradePrintResponse, 0, len(prints))
	for _, p := range prints {
		out = append(out, tradePrintResponse{
			Price:  priceToJSON(p.Price),
			Volume: p.Volume,
			User:   p.User,
			Side:   string(p.Side),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"symbol": domain.NormalizeUpper(symbol), "trades": out})
}

func (h *ProductHandler) mapError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrNoSuchProduct:
		WriteError(w, http.StatusNotFound, "no_such_product", err.Error())
	case domain.ErrProductAlreadyExists:
		WriteError(w, http.StatusConflict, "product_already_exists", err.Error())
	case domain.ErrInvalidMarketStateTransition:
		WriteError(w, http.StatusConflict, "invalid_market_state_transition", err.Error())
	case domain.ErrInvalidMarketState:
		WriteError(w, http.StatusConflict, "invalid_market_state", err.Error())
	default:
		if ve, ok := err.(*domain.ValidationError); ok {
			WriteError(w, http.StatusBadRequest, "invalid_request", ve.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
