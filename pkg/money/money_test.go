package money

import "testing"

func TestArithmetic(t *testing.T) {
	a := MustParse("500")
	b := MustParse("300")

	if got := a.Add(b).String(); got != "800" {
		t.Errorf("Add = %s, want 800", got)
	}
	if got := a.Sub(b).String(); got != "200" {
		t.Errorf("Sub = %s, want 200", got)
	}
	if got := MustParse("12.50").MulInt(3).String(); got != "37.5" {
		t.Errorf("MulInt = %s, want 37.5", got)
	}
}

func TestGSTSurcharge(t *testing.T) {
	// 18% of 100 must be exactly 18, not 17.999...
	total := MustParse("100")
	gst := total.MulRat(18, 100)
	if !gst.Equal(MustParse("18")) {
		t.Errorf("18%% of 100 = %s, want 18", gst)
	}
}

func TestRupees(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"500", "₹500"},
		{"499.5", "₹499.50"},
		{"0", "₹0"},
		{"12000", "₹12000"},
		// Banker's rounding: .125 rounds to even .12.
		{"10.125", "₹10.12"},
		{"10.135", "₹10.14"},
	}
	for _, tt := range tests {
		if got := MustParse(tt.in).Rupees(); got != tt.want {
			t.Errorf("Rupees(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// recordPayment then addCredit of the same amount restores the balance.
	balance := MustParse("800")
	amt := MustParse("300")
	after := balance.Sub(amt).Add(amt)
	if !after.Equal(balance) {
		t.Errorf("round trip = %s, want %s", after, balance)
	}
}

func TestComparisons(t *testing.T) {
	if !MustParse("5000.01").GreaterThan(MustParse("5000")) {
		t.Error("5000.01 should be greater than 5000")
	}
	if Zero.IsPositive() || Zero.IsNegative() || !Zero.IsZero() {
		t.Error("zero value must be zero")
	}
	if MustParse("500.00").Cmp(MustParse("500")) != 0 {
		t.Error("scale must not affect comparison")
	}
}
