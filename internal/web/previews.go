package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/sheet"
)

// Preview is an import run kept in memory until it is committed or evicted.
type Preview struct {
	ID        uuid.UUID    `json:"id"`
	Sheet     sheet.Info   `json:"sheet"`
	Result    *core.Result `json:"result"`
	Committed bool         `json:"committed"`
	CreatedAt time.Time    `json:"createdAt"`

	committing bool
}

// commitClaim is the outcome of claiming a preview for commit.
type commitClaim int

const (
	claimGranted commitClaim = iota
	claimCommitted
	claimBusy
	claimMissing
)

// previewCache holds the most recent previews. The oldest entry is evicted
// once capacity is reached.
type previewCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[uuid.UUID]*Preview
	order    []uuid.UUID
}

func newPreviewCache(capacity int) *previewCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &previewCache{
		capacity: capacity,
		items:    make(map[uuid.UUID]*Preview, capacity),
	}
}

func (c *previewCache) put(p *Preview) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.items[p.ID] = p
	for len(c.order) > c.capacity {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

// get returns a copy so that callers never race with commit bookkeeping.
func (c *previewCache) get(id uuid.UUID) (Preview, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.items[id]
	if !ok {
		return Preview{}, false
	}
	return *p, true
}

// claimCommit marks a preview as being committed. Only the caller that gets
// claimGranted may store it, and it must call finishCommit afterwards.
func (c *previewCache) claimCommit(id uuid.UUID) commitClaim {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	switch {
	case !ok:
		return claimMissing
	case p.Committed:
		return claimCommitted
	case p.committing:
		return claimBusy
	}
	p.committing = true
	return claimGranted
}

// finishCommit releases a claim, recording whether the import was stored.
func (c *previewCache) finishCommit(id uuid.UUID, committed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.items[id]; ok {
		p.committing = false
		p.Committed = p.Committed || committed
	}
}

// markDeleted lets a preview whose stored import was deleted be committed again.
func (c *previewCache) markDeleted(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.items[id]; ok {
		p.Committed = false
	}
}

// recent returns previews newest first.
func (c *previewCache) recent() []Preview {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Preview, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		out = append(out, *c.items[c.order[i]])
	}
	return out
}
