package trading

import "testing"

func TestCalcCommission_FloorsAtMinFee(t *testing.T) {
	if got := calcCommission(100, 0.001, 0.1); got != 0.1 {
		t.Fatalf("want min fee 0.1, got %v", got)
	}
	if got := calcCommission(100000, 0.001, 0.1); got != 100 {
		t.Fatalf("want rate-based fee 100, got %v", got)
	}
}

func TestRoundQty_FloorsTinyPositiveToMinimum(t *testing.T) {
	if got := roundQty(0.0000001); got != 1e-6 {
		t.Fatalf("want 1e-6 floor, got %v", got)
	}
	if got := roundQty(0); got != 0 {
		t.Fatalf("want 0 for non-positive input, got %v", got)
	}
	if got := roundQty(1.23456789); got != 1.234568 {
		t.Fatalf("want rounded to 6dp, got %v", got)
	}
}

func TestSellQty_ClampsToAvailable(t *testing.T) {
	if got := sellQty(10, 1.0); got != 10 {
		t.Fatalf("want full available on portion=1, got %v", got)
	}
	if got := sellQty(10, 1.5); got != 10 {
		t.Fatalf("want clamp to available, got %v", got)
	}
	if got := sellQty(10, 0.0000001); got != 1e-6 {
		t.Fatalf("want floor at 1e-6, got %v", got)
	}
}
