// Package cache keeps recently resolved candidate URL lists so repeated
// searches for the same keyword skip the search provider.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/use-agent/shopscout/models"
)

// Cache is an expiring LRU of keyword → candidate URLs. It is safe for
// concurrent use.
type Cache struct {
	lru *expirable.LRU[string, []models.CandidateURL]
}

// New creates a cache holding at most maxEntries lists for ttl each.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{lru: expirable.NewLRU[string, []models.CandidateURL](maxEntries, nil, ttl)}
}

// Key normalizes a keyword and region into a cache key.
func Key(keyword, region string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " ")) + "|" + strings.ToLower(region)
}

// Get returns a copy of the cached list.
func (c *Cache) Get(key string) ([]models.CandidateURL, bool) {
	if c == nil {
		return nil, false
	}
	urls, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return append([]models.CandidateURL(nil), urls...), true
}

// Set stores urls. Empty lists are not cached, so a transient provider
// failure is retried on the next search.
func (c *Cache) Set(key string, urls []models.CandidateURL) {
	if c == nil || len(urls) == 0 {
		return
	}
	c.lru.Add(key, append([]models.CandidateURL(nil), urls...))
}

// Len reports how many lists are cached.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
