package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

func TestNormalizePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain integer", "1299", "1299"},
		{"rouble with nbsp", "1 299 ₽", "1299"},
		{"thin space grouping", "12 499,90 ₽", "12499.9"},
		{"narrow nbsp", "3 990 руб.", "3990"},
		{"dollar with grouping", "$1,299.99", "1299.99"},
		{"euro continental", "1.234.567,89 €", "1234567.89"},
		{"lone comma is decimal", "12,50", "12.5"},
		{"repeated comma is grouping", "1,234,567", "1234567"},
		{"repeated dot is grouping", "1.299.000", "1299000"},
		{"swiss apostrophe", "CHF 1'299.50", "1299.5"},
		{"trailing dash", "1299.-", "1299"},
		{"prefix abbreviation", "Rs. 450", "450"},
		{"zero", "0,00", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizePrice(tt.in)
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNormalizePriceRejectsNonPrices(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "нет в наличии", "€", "-15.00", "100 - 200", "1,2.3.4"} {
		_, err := NormalizePrice(in)
		require.ErrorIs(t, err, alert.ErrFieldMissing, "input %q", in)
	}
}

func TestNormalizePriceIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"1 299 ₽", "$1,299.99", "1.234.567,89 €", "12,50", "0.5", "1299", "1,299", "99.990",
	}
	for _, in := range inputs {
		first, err := NormalizePrice(in)
		require.NoError(t, err, in)
		second, err := NormalizePrice(first.String())
		require.NoError(t, err, in)
		require.True(t, first.Equal(second), "%q: %s != %s", in, first, second)
	}
}

func FuzzNormalizePrice(f *testing.F) {
	for _, seed := range []string{"1 299 ₽", "$1,299.99", "12,50", "abc", "1.2.3,4"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		price, err := NormalizePrice(in)
		if err != nil {
			return
		}
		if price.IsNegative() {
			t.Fatalf("NormalizePrice(%q) = %s, want non-negative", in, price)
		}
		again, err := NormalizePrice(price.String())
		if err != nil || !again.Equal(price) {
			t.Fatalf("NormalizePrice not idempotent for %q: %s then %s (%v)", in, price, again, err)
		}
	})
}
