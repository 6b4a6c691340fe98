package service

import (
	"testing"

	"github.com/pswantek/exchange/internal/domain"
)

func TestPosition_UpdatePositionBuyAndSell(t *testing.T) {
	f := domain.NewPriceFactory()
	p := NewPosition(f)

	p.UpdatePosition("IBM", f.MakeLimitCents(1000), domain.SideBuy, 100)
	if vol := p.GetStockPositionVolume("IBM"); vol != 100 {
		t.Fatalf("expected 100 shares, got %d", vol)
	}

	p.UpdatePosition("IBM", f.MakeLimitCents(1100), domain.SideSell, 100)
	if vol := p.GetStockPositionVolume("IBM"); vol != 0 {
		t.Fatalf("expected holding to be removed at zero, got %d", vol)
	}

	holdings := p.GetHoldings()
	if len(holdings) != 0 {
		t.Fatalf("expected no holdings, got %v", holdings)
	}

	want := f.MakeLimitCents(10000) // sell proceeds $1100 - buy cost $1000 = $100 net
	if !p.accountCosts.Equal(want) {
		t.Errorf("accountCosts = %s, want %s", p.accountCosts, want)
	}
}

func TestPosition_GetStockPositionValue_NoHoldingIsZero(t *testing.T) {
	f := domain.NewPriceFactory()
	p := NewPosition(f)

	v := p.GetStockPositionValue("IBM")
	if !v.Equal(f.MakeLimitCents(0)) {
		t.Errorf("expected $0.00 for unheld product, got %s", v)
	}
}

func TestPosition_GetAllStockValueAndNetAccountValue(t *testing.T) {
	f := domain.NewPriceFactory()
	p := NewPosition(f)

	p.UpdatePosition("IBM", f.MakeLimitCents(1000), domain.SideBuy, 10)
	p.UpdateLastSale("IBM", f.MakeLimitCents(1200))

	stockValue := p.GetAllStockValue()
	if !stockValue.Equal(f.MakeLimitCents(12000)) {
		t.Errorf("GetAllStockValue = %s, want $120.00", stockValue)
	}

	net := p.GetNetAccountValue()
	want := f.MakeLimitCents(-10000 + 12000)
	if !net.Equal(want) {
		t.Errorf("GetNetAccountValue = %s, want %s", net, want)
	}
}
