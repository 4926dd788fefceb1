// Package extract turns retailer product pages into price snapshots.
//
// A Registry holds an ordered list of (host matcher, extractor) pairs and is
// consulted once per URL. Each retailer is a Retailer built from one or more
// strategies (CSS selectors, schema.org JSON-LD) that are tried in order
// against a single parsed document. Extraction performs no I/O and never
// panics on malformed markup: any structural miss is reported as
// alert.ErrFieldMissing so callers can tell layout drift apart from network
// trouble.
package extract
