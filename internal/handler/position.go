package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/service"
)

// PositionHandler exposes a connected user's account ledger:
// holdings, per-product mark-to-market value, and net account value.
// Grounded on the same thin wrapped-service shape as OrderHandler,
// backed by UserCommandService's Position query methods (spec.md §4.8).
type PositionHandler struct {
	ucs *service.UserCommandService
}

// NewPositionHandler constructs a PositionHandler.
func NewPositionHandler(ucs *service.UserCommandService) *PositionHandler {
	return &PositionHandler{ucs: ucs}
}

type positionResponse struct {
	Holdings        []string `json:"holdings"`
	NetAccountValue string   `json:"net_account_value"`
}

// GetPosition returns the connected user's held symbols and net account value.
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")
	user := r.URL.Query().Get("user")

	holdings, err := h.ucs.GetHoldings(user, connID)
	if err != nil {
		h.mapError(w, err)
		return
	}
	netValue, err := h.ucs.GetNetAccountValue(user, connID)
	if err != nil {
		h.mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, positionResponse{Holdings: holdings, NetAccountValue: priceToJSON(netValue)})
}

type stockPositionResponse struct {
	Product string `json:"product"`
	Volume  int64  `json:"volume"`
	Value   string `json:"value"`
}

// GetStockPosition returns the connected user's holding of one product.
func (h *PositionHandler) GetStockPosition(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "conn_id")
	user := r.URL.Query().Get("user")
	product := chi.URLParam(r, "product")

	vol, err := h.ucs.GetStockPositionVolume(user, connID, product)
	if err != nil {
		h.mapError(w, err)
		return
	}
	value, err := h.ucs.GetStockPositionValue(user, connID, product)
	if err != nil {
		h.mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stockPositionResponse{
		Product: domain.NormalizeUpper(product),
		Volume:  vol,
		Value:   priceToJSON(value),
	})
}

func (h *PositionHandler) mapError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrUserNotConnected:
		WriteError(w, http.StatusUnauthorized, "user_not_connected", err.Error())
	case domain.ErrInvalidConnectionID:
		WriteError(w, http.StatusUnauthorized, "invalid_connection_id", err.Error())
	default:
		if ve, ok := err.(*domain.ValidationError); ok {
			WriteError(w, http.StatusBadRequest, "invalid_request", ve.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
