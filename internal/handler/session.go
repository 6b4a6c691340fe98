package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/service"
	"github.com/pswantek/exchange/internal/store"
)

// sseEvent is one named payload queued for delivery over a stream connection.
type sseEvent struct {
	name string
	data any
}

// sseHub is the store.UserObserver every SSE connection registers with the
// publishers it subscribes to. It never blocks a publisher's lock: delivery
// onto the buffered channel is bounded by deliveryTimeout, and a slow or
// vanished reader loses events rather than stalling the exchange, mirroring
// the fire-and-forget discipline the teacher's webhook dispatcher used for
// its HTTP callbacks.
type sseHub struct {
	streamID        string
	user            string
	events          chan sseEvent
	deliveryTimeout time.Duration
	logger          *slog.Logger
}

func newSSEHub(user string, deliveryTimeout time.Duration, logger *slog.Logger) *sseHub {
	return &sseHub{
		streamID:        uuid.NewString(),
		user:            user,
		events:          make(chan sseEvent, 64),
		deliveryTimeout: deliveryTimeout,
		logger:          logger,
	}
}

func (h *sseHub) push(name string, data any) {
	select {
	case h.events <- sseEvent{name: name, data: data}:
	case <-time.After(h.deliveryTimeout):
		h.logger.Warn("sse delivery dropped", "user", h.user, "stream_id", h.streamID, "event", name)
	}
}

type fillEvent struct {
	User    string `json:"user"`
	Product string `json:"product"`
	Price   string `json:"price"`
	Volume  int64  `json:"volume"`
	Details string `json:"details"`
	Side    string `json:"side"`
}

type cancelEvent struct {
	User    string `json:"user"`
	Product string `json:"product"`
	Price   string `json:"price"`
	Volume  int64  `json:"volume"`
	Details string `json:"details"`
	Side    string `json:"side"`
	ID      string `json:"id"`
}

type marketMessageEvent struct {
	State string `json:"state"`
}

type lastSaleEvent struct {
	Product string `json:"product"`
	Price   string `json:"price"`
	Volume  int64  `json:"volume"`
}

type tickerEvent struct {
	Product   string `json:"product"`
	Price     string `json:"price"`
	Direction string `json:"direction"`
}

type currentMarketEvent struct {
	Product    string `json:"product"`
	BuyPrice   string `json:"buy_price"`
	BuyVolume  int64  `json:"buy_volume"`
	SellPrice  string `json:"sell_price"`
	SellVolume int64  `json:"sell_volume"`
}

func (h *sseHub) AcceptFill(fm *domain.FillMessage) {
	h.push("fill", fillEvent{User: fm.User, Product: fm.Product, Price: priceToJSON(fm.Price), Volume: fm.Volume, Details: fm.Details, Side: string(fm.Side)})
}

func (h *sseHub) AcceptCancel(cm *domain.CancelMessage) {
	h.push("cancel", cancelEvent{User: cm.User, Product: cm.Product, Price: priceToJSON(cm.Price), Volume: cm.Volume, Details: cm.Details, Side: string(cm.Side), ID: cm.ID})
}

func (h *sseHub) AcceptMarketMessage(mm *domain.MarketMessage) {
	h.push("market_state", marketMessageEvent{State: mm.State})
}

func (h *sseHub) AcceptLastSale(product string, price *domain.Price, volume int64) {
	h.push("last_sale", lastSaleEvent{Product: product, Price: priceToJSON(price), Volume: volume})
}

func (h *sseHub) AcceptTicker(product string, price *domain.Price, direction rune) {
	h.push("ticker", tickerEvent{Product: product, Price: priceToJSON(price), Direction: string(direction)})
}

func (h *sseHub) AcceptCurrentMarket(md *domain.MarketData) {
	h.push("current_market", currentMarketEvent{
		Product:    md.Product,
		BuyPrice:   priceToJSON(md.BuyPrice),
		BuyVolume:  md.BuyVolume,
		SellPrice:  priceToJSON(md.SellPrice),
		SellVolume: md.SellVolume,
	})
}

var _ store.UserObserver = (*sseHub)(nil)

// sessionRegistry maps a stream id (the uuid handed to clients as the SSE
// URL segment) to the hub backing it. Keeping this separate from the
// connection id SessionStore hands back means the token clients use to place
// orders is never the same token that opens the event stream.
type sessionRegistry struct {
	mu   sync.Mutex
	hubs map[string]*sseHub
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{hubs: make(map[string]*sseHub)}
}

func (r *sessionRegistry) put(h *sseHub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hubs[h.streamID] = h
}

func (r *sessionRegistry) get(streamID string) (*sseHub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[streamID]
	return h, ok
}

func (r *sessionRegistry) remove(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hubs, streamID)
}

// SessionHandler exposes the connect/disconnect, subscription, and SSE
// stream surface backed by service.UserCommandService. Grounded on the
// teacher's per-resource handler shape (internal/handler/broker.go,
// internal/handler/webhook.go): a thin struct wrapping one service, JSON
// request/response DTOs, and a mapError helper.
type SessionHandler struct {
	ucs             *service.UserCommandService
	registry        *sessionRegistry
	deliveryTimeout time.Duration
	logger          *slog.Logger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(ucs *service.UserCommandService, deliveryTimeout time.Duration, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		ucs:             ucs,
		registry:        newSessionRegistry(),
		deliveryTimeout: deliveryTimeout,
		logger:          logger,
	}
}

type connectRequest struct {
	User string `json:"user"`
}

type connectResponse struct {
	ConnID   string `json:"conn_id"`
	StreamID string `json:"stream_id"`
}

// Connect registers a new session for the requesting user and returns both
// the connection id (used to authenticate every subsequent command) and the
// stream id (used to open the SSE stream at GET /sessions/{stream_id}/stream).
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	hub := newSSEHub(domain.NormalizeUpper(req.User), h.deliveryTimeout, h.logger)
	connID, err := h.ucs.Connect(req.User, hub)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.registry.put(hub)

	WriteJSON(w, http.StatusCreated, connectResponse{ConnID: connID, StreamID: hub.streamID})
}

// Disconnect ends a session. It does not remove the session's SSE stream
// registration; that is removed when the stream's connection ends.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	connID := chi.URLParam(r, "conn_id")

	if err := h.ucs.Disconnect(user, connID); err != nil {
		h.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream opens a Server-Sent Events connection for a previously created
// hub, keyed by the stream id issued from Connect. One connection here is
// exactly one store.UserObserver, per spec.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	hub, ok := h.registry.get(streamID)
	if !ok {
		WriteError(w, http.StatusNotFound, "stream_not_found", "no such stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "response does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer h.registry.remove(streamID)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-hub.events:
			payload, err := json.Marshal(ev.data)
			if err != nil {
				h.logger.Warn("sse encode failed", "event", ev.name, "error", err.Error())
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, payload)
			flusher.Flush()
		}
	}
}

type subscriptionRequest struct {
	User    string `json:"user"`
	Product string `json:"product"`
	Channel string `json:"channel"`
}

// Subscribe attaches a connected user's session to one of the four
// publisher channels for a product: current_market, last_sale, ticker, or
// messages.
func (h *SessionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.dispatchSubscription(w, r, false)
}

// Unsubscribe detaches a connected user's session from a publisher channel.
func (h *SessionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.dispatchSubscription(w, r, true)
}

func (h *SessionHandler) dispatchSubscription(w http.ResponseWriter, r *http.Request, unsubscribe bool) {
	connID := chi.URLParam(r, "conn_id")
	var req subscriptionRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var err error
	switch domain.NormalizeUpper(req.Channel) {
	case "CURRENT_MARKET":
		if unsubscribe {
			err = h.ucs.UnsubscribeCurrentMarket(req.User, connID, req.Product)
		} else {
			err = h.ucs.SubscribeCurrentMarket(req.User, connID, req.Product)
		}
	case "LAST_SALE":
		if unsubscribe {
			err = h.ucs.UnsubscribeLastSale(req.User, connID, req.Product)
		} else {
			err = h.ucs.SubscribeLastSale(req.User, connID, req.Product)
		}
	case "TICKER":
		if unsubscribe {
			err = h.ucs.UnsubscribeTicker(req.User, connID, req.Product)
		} else {
			err = h.ucs.SubscribeTicker(req.User, connID, req.Product)
		}
	case "MESSAGES":
		if unsubscribe {
			err = h.ucs.UnsubscribeMessages(req.User, connID, req.Product)
		} else {
			err = h.ucs.SubscribeMessages(req.User, connID, req.Product)
		}
	default:
		WriteError(w, http.StatusBadRequest, "invalid_request", "channel must be one of current_market, last_sale, ticker, messages")
		return
	}

	if err != nil {
		h.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) mapError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrAlreadyConnected:
		WriteError(w, http.StatusConflict, "already_connected", err.Error())
	case domain.ErrUserNotConnected:
		WriteError(w, http.StatusUnauthorized, "user_not_connected", err.Error())
	case domain.ErrInvalidConnectionID:
		WriteError(w, http.StatusUnauthorized, "invalid_connection_id", err.Error())
	case domain.ErrAlreadySubscribed:
		WriteError(w, http.StatusConflict, "already_subscribed", err.Error())
	case domain.ErrNotSubscribed:
		WriteError(w, http.StatusConflict, "not_subscribed", err.Error())
	case domain.ErrNoSuchProduct:
		WriteError(w, http.StatusNotFound, "no_such_product", err.Error())
	default:
		if ve, ok := err.(*domain.ValidationError); ok {
			WriteError(w, http.StatusBadRequest, "invalid_request", ve.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
