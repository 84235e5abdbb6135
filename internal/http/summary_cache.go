package http

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"financas/internal/core"
)

// summaryCache memoizes summary responses per date window so repeated
// dashboard polls skip the aggregation query. Writes never delete keys:
// they bump a generation counter, which makes every cached window
// unreachable at once. Stale entries fall out through TTL, LRU pressure,
// or the background sweep.
type summaryCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List

	gen atomic.Int64

	stopSweep chan struct{}
	sweepDone chan struct{}
	stopOnce  sync.Once
}

type summaryEntry struct {
	key       string
	resp      summaryResponse
	expiresAt time.Time
}

func newSummaryCache(maxSize int, ttl, sweepEvery time.Duration) *summaryCache {
	c := &summaryCache{
		maxSize:   maxSize,
		ttl:       ttl,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go c.sweepLoop(sweepEvery)
	return c
}

// key includes the current generation, so invalidate needs no locking and
// no key enumeration.
func (c *summaryCache) key(from, to core.Date) string {
	return fmt.Sprintf("%d|%s|%s", c.gen.Load(), from, to)
}

func (c *summaryCache) get(from, to core.Date) (summaryResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[c.key(from, to)]
	if !ok {
		return summaryResponse{}, false
	}
	entry := elem.Value.(*summaryEntry)
	if time.Now().After(entry.expiresAt) {
		c.remove(elem)
		return summaryResponse{}, false
	}
	c.order.MoveToFront(elem)
	return entry.resp, true
}

func (c *summaryCache) put(from, to core.Date, resp summaryResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.key(from, to)
	entry := &summaryEntry{key: key, resp: resp, expiresAt: time.Now().Add(c.ttl)}
	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(entry)
	if c.order.Len() > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

// invalidate is called on every transaction or definition write.
func (c *summaryCache) invalidate() {
	c.gen.Add(1)
}

func (c *summaryCache) remove(elem *list.Element) {
	delete(c.entries, elem.Value.(*summaryEntry).key)
	c.order.Remove(elem)
}

// sweep drops expired entries, including ones stranded under old
// generations, and reports how many it removed.
func (c *summaryCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*summaryEntry).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.remove(elem)
	}
	return len(expired)
}

func (c *summaryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *summaryCache) sweepLoop(every time.Duration) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *summaryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
		<-c.sweepDone
	})
}
