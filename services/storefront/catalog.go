package storefront

import (
	"errors"
	"fmt"
)

// ErrProductNotFound is returned when a catalog lookup misses. Operations
// treat it as fatal: the whole call fails with no mutation.
var ErrProductNotFound = errors.New("product not found")

// ErrDuplicateProduct is returned when an appended record reuses an ID.
var ErrDuplicateProduct = errors.New("duplicate product id")

// Catalog is an ordered, append-only collection of product records with
// constant-time lookup by ID. Insertion order is preserved for listing.
// Records are never deleted; sold-out products stay visible with a zero
// supply. The catalog is not safe for concurrent use; the contract
// serializes access.
type Catalog struct {
	records []Product
	index   map[string]int // product ID -> slot
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: make(map[string]int)}
}

// Append stores a new record. The caller supplies a fresh ID.
func (c *Catalog) Append(p Product) error {
	if p.ID == "" {
		return errors.New("product id required")
	}
	if _, ok := c.index[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProduct, p.ID)
	}
	c.index[p.ID] = len(c.records)
	c.records = append(c.records, p)
	return nil
}

// Get returns the record with the given ID.
func (c *Catalog) Get(id string) (Product, error) {
	slot, ok := c.index[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return c.records[slot], nil
}

// Replace swaps the stored record for the given ID with a new snapshot in a
// single assignment. The replacement must keep the same ID.
func (c *Catalog) Replace(id string, p Product) error {
	slot, ok := c.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if p.ID != id {
		return errors.New("replacement must keep the product id")
	}
	c.records[slot] = p
	return nil
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Products returns all records in storage order. The returned slice is a
// copy; callers may range over it freely.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.records))
	copy(out, c.records)
	return out
}
