package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestPositionHandler_GetPositionAfterFill(t *testing.T) {
	deps := newTestDeps()
	buyerConn := setupOpenMarket(t, deps)

	sellerConn, err := deps.ucs.Connect("seller", discardObserver{})
	if err != nil {
		t.Fatalf("Connect seller: %v", err)
	}
	if err := deps.ucs.SubscribeMessages("alice", buyerConn, "ACME"); err != nil {
		t.Fatalf("SubscribeMessages alice: %v", err)
	}

	orderH := NewOrderHandler(deps.ucs, deps.factory)
	buy := withOrderChiCtx(
		newOrderRequest(t, http.MethodPost, "/sessions/"+buyerConn+"/orders",
			`{"user":"alice","product":"ACME","price":"10.00","quantity":100,"side":"buy"}`),
		map[string]string{"conn_id": buyerConn},
	)
	orderH.SubmitOrder(httptest.NewRecorder(), buy)

	sell := withOrderChiCtx(
		newOrderRequest(t, http.MethodPost, "/sessions/"+sellerConn+"/orders",
			`{"user":"seller","product":"ACME","price":"10.00","quantity":100,"side":"sell"}`),
		map[string]string{"conn_id": sellerConn},
	)
	orderH.SubmitOrder(httptest.NewRecorder(), sell)

	posH := NewPositionHandler(deps.ucs)
	req := withOrderChiCtx(
		httptest.NewRequest(http.MethodGet, "/sessions/"+buyerConn+"/position?user=alice", nil),
		map[string]string{"conn_id": buyerConn},
	)
	rec := httptest.NewRecorder()
	posH.GetPosition(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp positionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Holdings) != 1 || resp.Holdings[0] != "ACME" {
		t.Fatalf("holdings = %v, want [ACME]", resp.Holdings)
	}

	stockReq := httptest.NewRequest(http.MethodGet, "/sessions/"+buyerConn+"/position/ACME?user=alice", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("conn_id", buyerConn)
	rctx.URLParams.Add("product", "ACME")
	stockReq = stockReq.WithContext(withChiCtx(stockReq, rctx))

	rec = httptest.NewRecorder()
	posH.GetStockPosition(rec, stockReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var stockResp stockPositionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stockResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stockResp.Volume != 100 {
		t.Fatalf("volume = %d, want 100", stockResp.Volume)
	}
}

func TestPositionHandler_GetPosition_UnknownSession(t *testing.T) {
	deps := newTestDeps()
	posH := NewPositionHandler(deps.ucs)

	req := withOrderChiCtx(
		httptest.NewRequest(http.MethodGet, "/sessions/bogus/position?user=alice", nil),
		map[string]string{"conn_id": "bogus"},
	)
	rec := httptest.NewRecorder()
	posH.GetPosition(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
