package extract

// Default returns the registry of supported retailers in match order.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Domain("citilink.ru"), NewRetailer("Citilink",
		Selectors(
			[]Field{Text(`h1[data-meta-name="ProductHeaderLayout__title"]`), Text("h1")},
			[]Field{
				Attr("[data-meta-price]", "data-meta-price"),
				Text(`[data-meta-name="PriceBlock__price"] span`),
			},
		),
		JSONLD(),
	))
	r.Register(Domain("dns-shop.ru"), NewRetailer("DNS",
		Selectors(
			[]Field{Text(".product-card-top__title"), Attr(`meta[itemprop="name"]`, "content")},
			[]Field{
				Attr(`meta[itemprop="price"]`, "content"),
				Text(".product-buy__price"),
			},
		),
	))
	r.Register(Domain("mvideo.ru"), NewRetailer("M.Video",
		JSONLD(),
		Selectors(
			[]Field{Text("h1.title")},
			[]Field{Text(".price__main-value")},
		),
	))
	r.Register(Domain("ozon.ru"), NewRetailer("Ozon",
		JSONLD(),
		Selectors(
			[]Field{Text(`[data-widget="webProductHeading"] h1`)},
			[]Field{Text(`[data-widget="webPrice"] span`)},
		),
	))
	r.Register(Domain("wildberries.ru"), NewRetailer("Wildberries",
		Selectors(
			[]Field{Text("h1.product-page__title"), Attr(`meta[property="og:title"]`, "content")},
			[]Field{
				Text("ins.price-block__final-price"),
				Attr(`meta[itemprop="price"]`, "content"),
			},
		),
	))
	r.Register(Domain("amazon.com"), NewRetailer("Amazon",
		Selectors(
			[]Field{Text("#productTitle")},
			[]Field{
				Text("#corePrice_feature_div .a-price .a-offscreen"),
				Text(".a-price .a-offscreen"),
				Text("#priceblock_ourprice"),
			},
		),
	))
	return r
}
