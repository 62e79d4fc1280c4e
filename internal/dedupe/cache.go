// ABOUTME: TTL- and size-bounded set of recently claimed send keys
// ABOUTME: Claim/Forget let the relay reject retransmits and roll back failed sends

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	at      time.Time
	element *list.Element
}

// Cache tracks claimed keys. Keys expire after ttl; when full, the oldest
// claim is evicted first. The order list keeps eviction O(1).
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. Expired claims are swept once per sweep interval by
// a background goroutine that stops on Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	c := &Cache{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Key joins a conversation id and a client-supplied send id.
func Key(conversationID, sendID string) string {
	return conversationID + "\x00" + sendID
}

// Claim records key and returns true if it was not already claimed within
// the ttl. A false return means the caller is looking at a retransmit.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.claims[key]; ok {
		if now.Sub(existing.at) < c.ttl {
			return false
		}
		c.order.Remove(existing.element)
		delete(c.claims, key)
	}

	if c.maxSize > 0 && len(c.claims) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.claims[key] = &claim{at: now, element: c.order.PushBack(key)}
	return true
}

// Seen reports whether key is claimed and unexpired.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.claims[key]
	return ok && c.now().Sub(existing.at) < c.ttl
}

// Forget drops a claim so the same key can be claimed again. Used when the
// claimed send failed and a retry must be allowed through.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.claims[key]; ok {
		c.order.Remove(existing.element)
		delete(c.claims, key)
	}
}

// Len returns the number of claims held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, key)
}

func (c *Cache) sweepLoop(every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep removes expired claims. Claims are ordered by time, so it stops at
// the first live one.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		entry := c.claims[key]
		if now.Sub(entry.at) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.claims, key)
		e = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
