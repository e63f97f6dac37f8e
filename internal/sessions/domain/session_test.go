package domain

import "testing"

func TestCanTransitionForwardOnly(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusCreated, StatusAnalyzing},
		{StatusAnalyzing, StatusCalling},
		{StatusAnalyzing, StatusFailed},
		{StatusCalling, StatusSummarizing},
		{StatusCalling, StatusFailed},
		{StatusSummarizing, StatusDone},
		{StatusSummarizing, StatusFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusCreated, StatusCalling},
		{StatusCreated, StatusFailed},
		{StatusCalling, StatusAnalyzing},
		{StatusSummarizing, StatusCalling},
		{StatusDone, StatusFailed},
		{StatusFailed, StatusAnalyzing},
		{StatusDone, StatusDone},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusDone) || !IsTerminal(StatusFailed) {
		t.Fatalf("DONE and FAILED must be terminal")
	}
	for _, s := range []Status{StatusCreated, StatusAnalyzing, StatusCalling, StatusSummarizing} {
		if IsTerminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestShopByID(t *testing.T) {
	session := Session{Shops: []Shop{
		{ID: "shop-a", Name: "A Body Works"},
		{ID: "shop-b", Name: "B Collision"},
	}}

	shop, ok := session.ShopByID("shop-b")
	if !ok || shop.Name != "B Collision" {
		t.Fatalf("expected to find shop-b, got %+v ok=%v", shop, ok)
	}
	if _, ok := session.ShopByID("shop-z"); ok {
		t.Fatalf("expected shop-z to be absent")
	}
}
