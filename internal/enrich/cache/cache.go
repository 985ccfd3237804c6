// Package cache is the content-addressed store of previously computed
// enrichment results. It eliminates redundant gateway calls across rows
// and across runs.
package cache

import (
	"sync"
	"time"

	"github.com/smartetl/annotator/internal/enrich"
)

// Entry is one immutable cached result. Overwrites replace the entry
// wholesale; nothing mutates a stored result in place.
type Entry struct {
	Key       string        `json:"key"`
	Result    enrich.Result `json:"result"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store maps cache keys to enrichment results.
//
// Lookups never fail: absence is (zero, false), not an error. Put errors
// are reported so durable stores can surface write problems, but callers
// treat them as non-fatal (the result is still merged into the run output).
type Store interface {
	Get(key string) (enrich.Result, bool)
	Put(key string, result enrich.Result) error
}

// Memory is a process-local Store, safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(key string) (enrich.Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return enrich.Result{}, false
	}
	return e.Result, true
}

func (m *Memory) Put(key string, result enrich.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Key: key, Result: result, CreatedAt: time.Now().UTC()}
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
