package engine

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const domainMemorySize = 4096

// DomainMemory remembers which engine last won for each domain. Entries
// expire after the configured TTL. It is safe for concurrent use and
// outlives individual sessions.
type DomainMemory struct {
	lru *expirable.LRU[string, string]
}

// NewDomainMemory creates a DomainMemory with the given TTL.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	return &DomainMemory{lru: expirable.NewLRU[string, string](domainMemorySize, nil, ttl)}
}

// Get returns the remembered engine name for a domain, or "".
func (dm *DomainMemory) Get(domain string) string {
	if dm == nil {
		return ""
	}
	name, _ := dm.lru.Get(domain)
	return name
}

// Set records which engine succeeded for a domain.
func (dm *DomainMemory) Set(domain, engineName string) {
	if dm == nil {
		return
	}
	dm.lru.Add(domain, engineName)
}

// Delete forgets a domain, e.g. after the remembered engine failed.
func (dm *DomainMemory) Delete(domain string) {
	if dm == nil {
		return
	}
	dm.lru.Remove(domain)
}
