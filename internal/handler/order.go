package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/service"
)

// OrderHandler exposes order and quote entry/cancellation for a connected
// session. Grounded on the teacher's OrderHandler shape: submit/get/cancel
// verbs over one wrapped service, rebuilt against Tradable/Quote instead of
// the teacher's broker-settled Order.
type OrderHandler struct {
	ucs     *service.UserCommandService
	factory *domain.PriceFactory
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(ucs *service.UserCommandService, factory *domain.PriceFactory) *OrderHandler {
	return &OrderHandler{ucs: ucs, factory: factory}
}

type submitOrderRequest struct {
	User     string `json:"user"`
	Product  string `json:"product"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Side     string `json:"side"`
}

type submitOrderResponse struct {
	OrderID string `json:"order_id"`
}

// SubmitOrder places a limit or market order for the connected user.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")

	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		h.mapError(w, err)
		return
	}
	price, err := parsePriceJSON(h.factory, req.Price)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	orderID, err := h.ucs.SubmitOrder(req.User, connID, req.Product, price, req.Quantity, side)
	if err != nil {
		h.mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, submitOrderResponse{OrderID: orderID})
}

type cancelOrderRequest struct {
	User    string `json:"user"`
	Product string `json:"product"`
	Side    string `json:"side"`
}

// CancelOrder cancels a resting order by id.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")
	orderID := chi.URLParam(r, "order_id")

	var req cancelOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		h.mapError(w, err)
		return
	}

	if err := h.ucs.SubmitOrderCancel(req.User, connID, req.Product, side, orderID); err != nil {
		h.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitQuoteRequest struct {
	User       string `json:"user"`
	Product    string `json:"product"`
	BuyPrice   string `json:"buy_price"`
	BuyVolume  int64  `json:"buy_volume"`
	SellPrice  string `json:"sell_price"`
	SellVolume int64  `json:"sell_volume"`
}

// SubmitQuote places a two-sided quote for the connected user, replacing
// any quote the user already has resting on the product.
func (h *OrderHandler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")

	var req submitQuoteRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	buyPrice, err := parsePriceJSON(h.factory, req.BuyPrice)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sellPrice, err := parsePriceJSON(h.factory, req.SellPrice)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.ucs.SubmitQuote(req.User, connID, req.Product, buyPrice, req.BuyVolume, sellPrice, req.SellVolume); err != nil {
		h.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type cancelQuoteRequest struct {
	User string `json:"user"`
}

// CancelQuote cancels the connected user's standing quote on a product.
func (h *OrderHandler) CancelQuote(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")
	product := chi.URLParam(r, "product")

	var req cancelQuoteRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.ucs.SubmitQuoteCancel(req.User, connID, product); err != nil {
		h.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tradableResponse struct {
	ID              string `json:"id"`
	Product         string `json:"product"`
	Price           string `json:"price"`
	OriginalVolume  int64  `json:"original_volume"`
	RemainingVolume int64  `json:"remaining_volume"`
	CancelledVolume int64  `json:"cancelled_volume"`
	Side            string `json:"side"`
	IsQuote         bool   `json:"is_quote"`
}

// GetOrders returns the connected user's still-working entries on a
// product.
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")
	user := r.URL.Query().Get("user")
	product := r.URL.Query().Get("product")

	entries, err := h.ucs.GetOrdersWithRemainingQty(user, connID, product)
	if err != nil {
		h.mapError(w, err)
		return
	}

	out := make([]tradableResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, tradableResponse{
			ID:              e.ID,
			Product:         e.Product,
			Price:           priceToJSON(e.Price),
			OriginalVolume:  e.OriginalVolume,
			RemainingVolume: e.RemainingVolume,
			CancelledVolume: e.CancelledVolume,
			Side:            string(e.Side),
			IsQuote:         e.IsQuote,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrderHandler) mapError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrUserNotConnected:
		WriteError(w, http.StatusUnauthorized, "user_not_connected", err.Error())
	case domain.ErrInvalidConnectionID:
		WriteError(w, http.StatusUnauthorized, "invalid_connection_id", err.Error())
	case domain.ErrNoSuchProduct:
		WriteError(w, http.StatusNotFound, "no_such_product", err.Error())
	case domain.ErrOrderNotFound:
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
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
