package monitor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/pricewatch/internal/alert"
)

const archiveContentType = "text/html; charset=utf-8"

// DriftArchive keeps the page body of every extraction that failed with
// site drift, so selectors can be fixed against the markup that broke them.
type DriftArchive struct {
	blobs  alert.BlobStore
	hasher alert.Hasher
	clock  alert.Clock
	prefix string
}

// NewDriftArchive builds an archive writing under prefix.
func NewDriftArchive(blobs alert.BlobStore, hasher alert.Hasher, clock alert.Clock, prefix string) *DriftArchive {
	return &DriftArchive{
		blobs:  blobs,
		hasher: hasher,
		clock:  clock,
		prefix: prefix,
	}
}

// Archive stores body and returns the blob URI.
func (a *DriftArchive) Archive(ctx context.Context, rule alert.Rule, body []byte) (string, error) {
	hash, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	path := a.buildPath(rule, hash)
	uri, err := a.blobs.PutObject(ctx, path, archiveContentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (a *DriftArchive) buildPath(rule alert.Rule, hash string) string {
	shop := strings.ToLower(strings.ReplaceAll(rule.Shop, " ", "-"))
	if shop == "" {
		shop = "unknown"
	}
	day := a.clock.Now().UTC().Format("2006-01-02")
	prefix := strings.Trim(a.prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s/%s.html", shop, day, rule.ID, hash)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s.html", prefix, shop, day, rule.ID, hash)
}
