package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spektr-org/dashspec/ir"
)

// ============================================================================
// MEMO: opt-in result cache keyed by (dashboard fingerprint, inputs, options)
// ============================================================================
// Execute never caches. A caller that knows its datasets are unchanged
// between calls can wrap it in a Memo. Cached results are shared and must
// not be modified.
// ============================================================================

var memoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/spektr-org/dashspec/memo"))

// CacheKey derives a stable key from the dashboard fingerprint, the
// canonical JSON of the inputs (object keys sorted) and the options that
// shape the result. Worker count and metrics label do not.
func CacheKey(d *ir.Dashboard, inputs map[string]any, opts ...Option) (uuid.UUID, error) {
	b, err := json.Marshal(inputs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("engine: cache key: %w", err)
	}
	cfg := applyOptions(opts)
	data := fmt.Appendf(nil, "%s\nslices=%t\n", d.FingerprintHex(), !cfg.SkipSlices)
	data = append(data, b...)
	return uuid.NewSHA1(memoNamespace, data), nil
}

// Memo caches execution results. The oldest entry is evicted once Max
// entries are held; Max 0 means unbounded.
type Memo struct {
	Max int

	mu      sync.Mutex
	entries map[uuid.UUID]*Result
	order   []uuid.UUID
	hits    int
}

// NewMemo creates a memo holding at most max results.
func NewMemo(max int) *Memo {
	return &Memo{Max: max, entries: make(map[uuid.UUID]*Result)}
}

// Execute returns the cached result for (d, inputs, opts) or executes and
// caches it. Failed executions are not cached. A cache hit records no
// metrics.
func (m *Memo) Execute(ctx context.Context, d *ir.Dashboard, inputs map[string]any, p Provider, opts ...Option) (*Result, error) {
	key, err := CacheKey(d, inputs, opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if r, ok := m.entries[key]; ok {
		m.hits++
		m.mu.Unlock()
		return r, nil
	}
	m.mu.Unlock()

	res, err := Execute(ctx, d, inputs, p, opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[uuid.UUID]*Result)
	}
	if _, ok := m.entries[key]; !ok {
		m.order = append(m.order, key)
	}
	m.entries[key] = res
	for m.Max > 0 && len(m.order) > m.Max {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
	return res, nil
}

// Len returns the number of cached results.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Hits returns how many calls were served from the cache.
func (m *Memo) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// Reset drops every cached result.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[uuid.UUID]*Result)
	m.order = nil
}
