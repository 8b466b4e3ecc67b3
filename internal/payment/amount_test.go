package payment

import "testing"

func TestIsZeroDecimalCurrency(t *testing.T) {
	if !IsZeroDecimalCurrency("JPY") {
		t.Fatalf("JPY should be zero decimal")
	}
	if !IsZeroDecimalCurrency("krw") {
		t.Fatalf("currency check should be case insensitive")
	}
	if IsZeroDecimalCurrency("USD") {
		t.Fatalf("USD should not be zero decimal")
	}
	if IsZeroDecimalCurrency("") {
		t.Fatalf("empty currency should not be zero decimal")
	}
}

func TestFormatMinorUnits(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{1990, "CNY", "19.90"},
		{1990, "USD", "19.90"},
		{5, "USD", "0.05"},
		{100, "EUR", "1.00"},
		{1990, "JPY", "1990"},
		{500, "KRW", "500"},
		{0, "USD", "0.00"},
	}
	for _, tc := range cases {
		if got := FormatMinorUnits(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("%d %s: want %s got %s", tc.amount, tc.currency, tc.want, got)
		}
	}
}

func TestCurrencyScale(t *testing.T) {
	if got := CurrencyScale("JPY"); got != 0 {
		t.Fatalf("unexpected scale for JPY: %d", got)
	}
	if got := CurrencyScale("CNY"); got != 2 {
		t.Fatalf("unexpected scale for CNY: %d", got)
	}
}
