package cache

import (
	"testing"
	"time"

	"github.com/use-agent/shopscout/models"
)

func TestCacheRoundTrip(t *testing.T) {
	c := New(2, time.Minute)
	urls := []models.CandidateURL{{URL: "https://a.example"}, {URL: "https://b.example", Priority: true}}

	key := Key("  Fridge   Magnets ", "AU")
	if key != "fridge magnets|au" {
		t.Fatalf("Key = %q", key)
	}
	c.Set(key, urls)

	got, ok := c.Get(Key("fridge magnets", "au"))
	if !ok || len(got) != 2 || !got[1].Priority {
		t.Fatalf("Get = %v, %v", got, ok)
	}

	got[0].URL = "mutated"
	again, _ := c.Get(key)
	if again[0].URL != "https://a.example" {
		t.Error("cached list must not alias the returned slice")
	}
}

func TestCacheSkipsEmpty(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("k", nil)
	if _, ok := c.Get("k"); ok || c.Len() != 0 {
		t.Error("empty lists should not be cached")
	}
}

func TestCacheEvictsAndExpires(t *testing.T) {
	c := New(1, 30*time.Millisecond)
	c.Set("a", []models.CandidateURL{{URL: "https://a.example"}})
	c.Set("b", []models.CandidateURL{{URL: "https://b.example"}})
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted at capacity")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("b"); ok {
		t.Error("entry should expire after ttl")
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	c.Set("k", []models.CandidateURL{{URL: "x"}})
	if _, ok := c.Get("k"); ok || c.Len() != 0 {
		t.Error("nil cache should behave as always empty")
	}
}
