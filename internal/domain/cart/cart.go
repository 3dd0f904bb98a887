// Package cart provides the shopping cart entity with set semantics.
package cart

import (
	"time"

	"github.com/sonavia/sonavia/internal/domain/license"
)

// ItemType represents the kind of catalog item a cart entry refers to.
type ItemType string

const (
	ItemTypeTrack ItemType = "track"
	ItemTypeAlbum ItemType = "album"
)

// Key is the cart uniqueness key. Two items with the same key are the
// same cart entry regardless of display metadata or price.
type Key struct {
	CatalogItemID string
	ItemType      ItemType
	License       license.Type
}

// Item represents a single cart entry.
type Item struct {
	CatalogItemID string
	ItemType      ItemType
	License       license.Type
	UnitPrice     float64
	Title         string
	Artist        string
	ArtworkURL    string
	AddedAt       time.Time
}

// Key returns the item's uniqueness key.
func (i Item) Key() Key {
	return Key{CatalogItemID: i.CatalogItemID, ItemType: i.ItemType, License: i.License}
}

// Cart holds cart items with set membership over Key.
// Cart is not safe for concurrent use; callers serialize access.
type Cart struct {
	items []Item
}

// New creates a cart pre-populated with the given items.
// Duplicate keys in the input are collapsed, first occurrence wins.
func New(items []Item) *Cart {
	c := &Cart{items: make([]Item, 0, len(items))}
	for _, it := range items {
		c.Add(it)
	}
	return c
}

// Add inserts the item unless an item with the same key is already
// present. Adding an existing key is a no-op, not an update.
// Returns true if the cart changed.
func (c *Cart) Add(item Item) bool {
	if c.Contains(item.Key()) {
		return false
	}
	c.items = append(c.items, item)
	return true
}

// Remove deletes the item matching the catalog item ID and license type.
// Returns true if the cart changed.
func (c *Cart) Remove(catalogItemID string, lt license.Type) bool {
	for i, it := range c.items {
		if it.CatalogItemID == catalogItemID && it.License == lt {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes all items. Returns true if the cart changed.
func (c *Cart) Clear() bool {
	if len(c.items) == 0 {
		return false
	}
	c.items = c.items[:0]
	return true
}

// Contains checks whether an item with the given key is present.
func (c *Cart) Contains(k Key) bool {
	for _, it := range c.items {
		if it.Key() == k {
			return true
		}
	}
	return false
}

// Items returns a copy of the cart items.
func (c *Cart) Items() []Item {
	result := make([]Item, len(c.items))
	copy(result, c.items)
	return result
}

// Len returns the number of items in the cart.
func (c *Cart) Len() int {
	return len(c.items)
}

// Total returns the sum of unit prices.
func (c *Cart) Total() float64 {
	var total float64
	for _, it := range c.items {
		total += it.UnitPrice
	}
	return total
}
