package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/jsonrepair"
	"github.com/sells-group/insights-cli/internal/model"
)

// CachedExtractor memoizes successful extractions for identical payloads.
type CachedExtractor struct {
	next  Extractor
	cache *expirable.LRU[string, *Result]
}

// NewCachedExtractor wraps next with an LRU cache of size entries whose
// entries expire after ttl.
func NewCachedExtractor(next Extractor, size int, ttl time.Duration) *CachedExtractor {
	if size <= 0 {
		size = 512
	}
	return &CachedExtractor{
		next:  next,
		cache: expirable.NewLRU[string, *Result](size, nil, ttl),
	}
}

func (c *CachedExtractor) Name() string { return c.next.Name() }

// Extract returns a cached result when available. Hits report zero token
// usage since no call was made. Failed and unrecoverable results are not
// stored.
func (c *CachedExtractor) Extract(ctx context.Context, payload, modelID string) (*Result, error) {
	key := cacheKey(c.next.Name(), modelID, payload)
	if hit, ok := c.cache.Get(key); ok {
		zap.L().Debug("extract: cache hit", zap.String("provider", c.next.Name()), zap.String("key", key[:12]))
		return &Result{Records: records(hit.Records), Outcome: hit.Outcome}, nil
	}

	res, err := c.next.Extract(ctx, payload, modelID)
	if err != nil {
		return nil, err
	}
	if res.Outcome != jsonrepair.OutcomeUnrecoverable {
		c.cache.Add(key, res)
	}
	return res, nil
}

// Len returns the number of cached entries.
func (c *CachedExtractor) Len() int { return c.cache.Len() }

// Close closes the wrapped extractor when it holds resources.
func (c *CachedExtractor) Close() error {
	if cl, ok := c.next.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}

func cacheKey(provider, modelID, payload string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

var _ Extractor = (*CachedExtractor)(nil)

// records copies a record slice header so callers cannot grow the cached one.
func records(in []model.RawRecord) []model.RawRecord {
	out := make([]model.RawRecord, len(in))
	copy(out, in)
	return out
}
