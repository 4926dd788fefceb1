package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

func TestDomainMatcher(t *testing.T) {
	t.Parallel()

	m := Domain("example.com")
	require.True(t, m("example.com"))
	require.True(t, m("www.example.com"))
	require.True(t, m("shop.eu.example.com"))
	require.False(t, m("notexample.com"))
	require.False(t, m("example.com.evil.io"))
}

func TestRegistrySelect(t *testing.T) {
	t.Parallel()

	reg := Default()
	tests := []struct {
		url  string
		shop string
	}{
		{"https://www.citilink.ru/product/smartfon-123/", "Citilink"},
		{"https://WWW.DNS-SHOP.RU/product/abc/", "DNS"},
		{"https://www.mvideo.ru/products/400123", "M.Video"},
		{"https://www.ozon.ru/product/kofe-123/", "Ozon"},
		{"https://www.wildberries.ru/catalog/1/detail.aspx", "Wildberries"},
		{"https://www.amazon.com:443/dp/B000", "Amazon"},
	}
	for _, tt := range tests {
		ex, ok := reg.Select(tt.url)
		require.True(t, ok, tt.url)
		require.Equal(t, tt.shop, ex.Shop())
	}

	for _, miss := range []string{"https://unknown-shop.example/x", "not a url", "", "/relative/path"} {
		_, ok := reg.Select(miss)
		require.False(t, ok, miss)
	}
}

func TestRegistryFirstMatchWins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(Domain("shop.example"), NewRetailer("Specific"))
	reg.Register(Domain("example"), NewRetailer("Catch-all"))

	ex, ok := reg.Select("https://shop.example/item")
	require.True(t, ok)
	require.Equal(t, "Specific", ex.Shop())
	require.Equal(t, []string{"Specific", "Catch-all"}, reg.Shops())
}

func TestRegistryExtractUnknownOrigin(t *testing.T) {
	t.Parallel()

	_, err := Default().Extract("https://unknown-shop.example/x", []byte("<html></html>"))
	require.ErrorIs(t, err, alert.ErrNoExtractor)
	require.NotErrorIs(t, err, alert.ErrFieldMissing)
}
