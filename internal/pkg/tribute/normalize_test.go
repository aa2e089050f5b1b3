package tribute

import "testing"

func TestLinkHeuristicResolver(t *testing.T) {
	r := LinkHeuristicResolver{Links: map[int]string{
		1:  "https://t.me/tribute/app?startapp=p10",
		3:  "https://t.me/tribute/app?startapp=p11",
		12: "https://tribute.tg/p/12345",
	}}

	tests := []struct {
		productID int64
		want      int
	}{
		{productID: 10, want: 1},
		{productID: 11, want: 3},
		{productID: 12345, want: 12},
		{productID: 999, want: 1}, // unknown falls back to one month
	}
	for _, tt := range tests {
		if got := r.MonthsForProduct(tt.productID); got != tt.want {
			t.Fatalf("MonthsForProduct(%d) = %d, want %d", tt.productID, got, tt.want)
		}
	}
}

func TestLinkHeuristicResolver_NoLinks(t *testing.T) {
	r := LinkHeuristicResolver{}
	if got := r.MonthsForProduct(10); got != 1 {
		t.Fatalf("expected fallback 1 month, got %d", got)
	}
}

func TestMonthsForPeriod(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "monthly", want: 1},
		{in: "MONTHLY", want: 1},
		{in: "weekly", want: 1},
		{in: "quarterly", want: 3},
		{in: "half-yearly", want: 6},
		{in: "halfYearly", want: 6},
		{in: "yearly", want: 12},
		{in: " annual ", want: 12},
		{in: "decennial", want: 1},
		{in: "", want: 1},
	}
	for _, tt := range tests {
		if got := MonthsForPeriod(tt.in); got != tt.want {
			t.Fatalf("MonthsForPeriod(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAmount(t *testing.T) {
	minor := map[string]struct{}{"USD": {}, "EUR": {}}

	tests := []struct {
		amount   int64
		currency string
		want     float64
	}{
		{amount: 500, currency: "EUR", want: 5.00},
		{amount: 500, currency: "eur", want: 5.00},
		{amount: 1999, currency: "USD", want: 19.99},
		{amount: 500, currency: "RUB", want: 500},
		{amount: 0, currency: "USD", want: 0},
	}
	for _, tt := range tests {
		if got := NormalizeAmount(tt.amount, tt.currency, minor); got != tt.want {
			t.Fatalf("NormalizeAmount(%d, %q) = %v, want %v", tt.amount, tt.currency, got, tt.want)
		}
	}
}
