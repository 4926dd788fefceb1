package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

// Strategy pulls a product name and price out of a parsed page.
type Strategy interface {
	Apply(doc *goquery.Document) (name string, price decimal.Decimal, err error)
}

// Field locates one value in a document. An empty Attr reads the element text.
type Field struct {
	Selector string
	Attr     string
}

// Text is a Field reading the text of the first element matching selector.
func Text(selector string) Field {
	return Field{Selector: selector}
}

// Attr is a Field reading an attribute of the first element matching selector.
func Attr(selector, attr string) Field {
	return Field{Selector: selector, Attr: attr}
}

func (f Field) lookup(doc *goquery.Document) string {
	sel := doc.Find(f.Selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if f.Attr == "" {
		return collapseSpace(sel.Text())
	}
	v, _ := sel.Attr(f.Attr)
	return collapseSpace(v)
}

// Selectors builds a Strategy that tries each name and price field in order.
func Selectors(name []Field, price []Field) Strategy {
	return selectorStrategy{name: name, price: price}
}

type selectorStrategy struct {
	name  []Field
	price []Field
}

func (s selectorStrategy) Apply(doc *goquery.Document) (string, decimal.Decimal, error) {
	name := ""
	for _, f := range s.name {
		if name = f.lookup(doc); name != "" {
			break
		}
	}
	if name == "" {
		return "", decimal.Zero, fmt.Errorf("%w: product name", alert.ErrFieldMissing)
	}

	lastErr := fmt.Errorf("%w: price", alert.ErrFieldMissing)
	for _, f := range s.price {
		raw := f.lookup(doc)
		if raw == "" {
			continue
		}
		price, err := NormalizePrice(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return name, price, nil
	}
	return "", decimal.Zero, lastErr
}

// JSONLD builds a Strategy reading a schema.org Product from
// <script type="application/ld+json"> blocks.
func JSONLD() Strategy {
	return jsonLDStrategy{}
}

type jsonLDStrategy struct{}

func (jsonLDStrategy) Apply(doc *goquery.Document) (string, decimal.Decimal, error) {
	var (
		name  string
		price decimal.Decimal
	)
	lastErr := fmt.Errorf("%w: json-ld product", alert.ErrFieldMissing)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		dec := json.NewDecoder(strings.NewReader(s.Text()))
		dec.UseNumber()
		var payload any
		if err := dec.Decode(&payload); err != nil {
			return true
		}
		product, ok := findProduct(payload)
		if !ok {
			return true
		}
		n, _ := product["name"].(string)
		if n = collapseSpace(n); n == "" {
			lastErr = fmt.Errorf("%w: json-ld product name", alert.ErrFieldMissing)
			return true
		}
		p, err := offerPrice(product["offers"])
		if err != nil {
			lastErr = err
			return true
		}
		name, price, lastErr = n, p, nil
		return false
	})
	if lastErr != nil {
		return "", decimal.Zero, lastErr
	}
	return name, price, nil
}

// findProduct walks a JSON-LD payload (object, array or @graph) for the first
// node typed Product.
func findProduct(node any) (map[string]any, bool) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if p, ok := findProduct(item); ok {
				return p, true
			}
		}
	case map[string]any:
		if isType(v["@type"], "Product") {
			return v, true
		}
		if graph, ok := v["@graph"]; ok {
			return findProduct(graph)
		}
	}
	return nil, false
}

func isType(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, want)
	case []any:
		for _, item := range v {
			if isType(item, want) {
				return true
			}
		}
	}
	return false
}

// offerPrice reads price from an Offer, an AggregateOffer or a list of offers.
func offerPrice(offers any) (decimal.Decimal, error) {
	missing := fmt.Errorf("%w: json-ld offer price", alert.ErrFieldMissing)
	switch v := offers.(type) {
	case []any:
		for _, item := range v {
			if p, err := offerPrice(item); err == nil {
				return p, nil
			}
		}
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			switch raw := v[key].(type) {
			case json.Number:
				return numberPrice(raw)
			case string:
				if strings.TrimSpace(raw) != "" {
					return NormalizePrice(raw)
				}
			}
		}
		if spec, ok := v["priceSpecification"]; ok {
			return offerPrice(spec)
		}
	}
	return decimal.Zero, missing
}

// numberPrice parses a bare JSON number, which may use exponent notation.
func numberPrice(n json.Number) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: json-ld price %q: %v", alert.ErrFieldMissing, n, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: json-ld price %q is negative", alert.ErrFieldMissing, n)
	}
	return price, nil
}

func parseDocument(body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty page", alert.ErrFieldMissing)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", alert.ErrFieldMissing, err)
	}
	return doc, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
