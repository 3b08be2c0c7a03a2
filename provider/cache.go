package provider

import (
	"context"
	"sync"
	"time"
)

// InvoiceCacheName is the namespace of the pending invoice mapping
const InvoiceCacheName = "mono_invoices"

type invoiceEntry struct {
	PaymentRequestID string
	CreatedAt        time.Time
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int           `json:"size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

// MemoryInvoiceCache implements InvoiceCache in process memory
type MemoryInvoiceCache struct {
	entries map[string]*invoiceEntry
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time

	hits        int64
	misses      int64
	ttlExpiries int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryInvoiceCache creates an in-memory invoice cache. ttl <= 0 keeps entries forever.
func NewMemoryInvoiceCache(ttl time.Duration) *MemoryInvoiceCache {
	return &MemoryInvoiceCache{
		entries: make(map[string]*invoiceEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Set stores or replaces the mapping for invoiceID
func (c *MemoryInvoiceCache) Set(_ context.Context, invoiceID, paymentRequestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[invoiceID] = &invoiceEntry{
		PaymentRequestID: paymentRequestID,
		CreatedAt:        c.now(),
	}
	return nil
}

// Get returns the payment request mapped to invoiceID
func (c *MemoryInvoiceCache) Get(_ context.Context, invoiceID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[invoiceID]
	if !exists {
		c.misses++
		return "", false, nil
	}

	if c.expiredUnsafe(entry) {
		delete(c.entries, invoiceID)
		c.ttlExpiries++
		c.misses++
		return "", false, nil
	}

	c.hits++
	return entry.PaymentRequestID, true, nil
}

// Delete removes the mapping for invoiceID
func (c *MemoryInvoiceCache) Delete(_ context.Context, invoiceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, invoiceID)
	return nil
}

// CompareAndDelete removes the mapping only if it still points at paymentRequestID
func (c *MemoryInvoiceCache) CompareAndDelete(_ context.Context, invoiceID, paymentRequestID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[invoiceID]
	if !exists || entry.PaymentRequestID != paymentRequestID {
		return false, nil
	}
	if c.expiredUnsafe(entry) {
		delete(c.entries, invoiceID)
		c.ttlExpiries++
		return false, nil
	}

	delete(c.entries, invoiceID)
	return true, nil
}

// Size returns the current number of cached entries
func (c *MemoryInvoiceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stats returns cache statistics
func (c *MemoryInvoiceCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalRequests := c.hits + c.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(c.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:        len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
		TTL:         c.ttl,
	}
}

// Cleanup removes expired entries
func (c *MemoryInvoiceCache) Cleanup() {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if c.expiredUnsafe(entry) {
			delete(c.entries, key)
			c.ttlExpiries++
		}
	}
}

// StartCleanup runs Cleanup every interval until Stop is called
func (c *MemoryInvoiceCache) StartCleanup(interval time.Duration) {
	if c.ttl <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Stop ends the cleanup goroutine
func (c *MemoryInvoiceCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// expiredUnsafe must be called with lock held
func (c *MemoryInvoiceCache) expiredUnsafe(entry *invoiceEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl
}
