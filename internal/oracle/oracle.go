package oracle

import (
	"sync"

	"SynthLoans/internal/fixed"
)

// Oracle is the price capability every ratio computation converts
// through. Rates are expressed in the reference currency.
type Oracle interface {
	// Rate returns the current price for a currency. The price may be
	// stale; callers that need freshness must also consult IsInvalid.
	Rate(currency string) fixed.Dec

	// IsInvalid reports whether the price for a currency is stale or
	// has never been set.
	IsInvalid(currency string) bool
}

// Clock supplies time to the cache so staleness is testable.
type Clock interface {
	Now() int64
}

type record struct {
	price     fixed.Dec
	sequence  int64
	updatedAt int64
}

// Cache is an in-memory Oracle fed by an external price stream.
// Out-of-order updates are ignored; a price older than maxAge is
// reported invalid. The reference currency is pinned to 1.0 and is
// never invalid.
type Cache struct {
	mu        sync.RWMutex
	records   map[string]*record
	reference string
	maxAge    int64
	clock     Clock
}

func NewCache(reference string, maxAge int64, clock Clock) *Cache {
	return &Cache{
		records:   make(map[string]*record),
		reference: reference,
		maxAge:    maxAge,
		clock:     clock,
	}
}

// UpdateRate records a new price. Updates with a sequence at or below
// the last seen sequence for the currency are dropped (idempotent
// replay of the price stream).
func (c *Cache) UpdateRate(currency string, price fixed.Dec, sequence, timestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.records[currency]
	if cur != nil && sequence <= cur.sequence {
		return
	}
	c.records[currency] = &record{price: price, sequence: sequence, updatedAt: timestamp}
}

func (c *Cache) Rate(currency string) fixed.Dec {
	if currency == c.reference {
		return fixed.One()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if r := c.records[currency]; r != nil {
		return r.price
	}
	return fixed.Zero()
}

func (c *Cache) IsInvalid(currency string) bool {
	if currency == c.reference {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	r := c.records[currency]
	if r == nil {
		return true
	}
	if c.maxAge <= 0 {
		return false
	}
	return c.clock.Now()-r.updatedAt > c.maxAge
}
