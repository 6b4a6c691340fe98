package domain

import "testing"

func TestFillMessage_StringOmitsID(t *testing.T) {
	f := NewPriceFactory()
	m := &FillMessage{
		User: "A", Product: "IBM", Price: f.MakeLimitCents(1000),
		Volume: 100, Details: "leaving 0", Side: SideBuy, ID: "abc123",
	}
	s := m.String()
	if want := "User: A, Product: IBM, Price: $10.00, Volume: 100, Details: leaving 0, Side: BUY"; s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}

func TestCancelMessage_StringIncludesID(t *testing.T) {
	f := NewPriceFactory()
	m := &CancelMessage{
		User: "A", Product: "IBM", Price: f.MakeLimitCents(1000),
		Volume: 50, Details: "Cancelled", Side: SideBuy, ID: "abc123",
	}
	s := m.String()
	if want := "User: A, Product: IBM, Price: $10.00, Volume: 50, Details: Cancelled, Side: BUY, Id: abc123"; s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}

func TestMarketMessage_String(t *testing.T) {
	m := &MarketMessage{State: "OPEN"}
	if got := m.String(); got != "[OPEN]" {
		t.Errorf("String() = %q, want [OPEN]", got)
	}
}

func TestFillMessage_FillKeyIdentifiesUserOrderPrice(t *testing.T) {
	f := NewPriceFactory()
	a := &FillMessage{User: "A", ID: "1", Price: f.MakeLimitCents(1000)}
	b := &FillMessage{User: "A", ID: "1", Price: f.MakeLimitCents(1000)}
	c := &FillMessage{User: "A", ID: "1", Price: f.MakeLimitCents(999)}

	if a.FillKey() != b.FillKey() {
		t.Error("identical user/id/price should produce the same fill key")
	}
	if a.FillKey() == c.FillKey() {
		t.Error("different price should produce a different fill key")
	}
}
