package knowledge

import (
	"fmt"
	"sync"
)

// Catalog is an ordered set of entries keyed by ID.
//
// A catalog is built wholesale before the index is built and is read-only while
// serving. Add exists for the runtime-add path and is safe against concurrent Get.
type Catalog struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
}

// NewCatalog validates entries and builds a catalog. Entry order is preserved.
func NewCatalog(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if err := c.add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add validates and appends a new entry.
func (c *Catalog) Add(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(e)
}

func (c *Catalog) add(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, exists := c.byID[e.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, e.ID)
	}
	c.byID[e.ID] = len(c.entries)
	c.entries = append(c.entries, e)
	return nil
}

// Get returns the entry with the given ID.
func (c *Catalog) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// VariantCount returns the total number of question variants, which is the
// number of vectors an index built from this catalog holds.
func (c *Catalog) VariantCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		n += len(e.Variants())
	}
	return n
}

// Entries returns a copy of the entries in catalog order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
