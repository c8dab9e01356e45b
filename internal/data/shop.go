// Package data loads the static game tables authored as YAML and read at
// boot: the shop price list, job definitions, and item templates.
package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ShopEntry is one purchasable line in the general store.
type ShopEntry struct {
	ItemType     string `yaml:"item_type"`
	Price        int64  `yaml:"price"`
	DefaultStock int    `yaml:"default_stock"`
}

// ShopTable holds the configured price list, indexed by item type.
type ShopTable struct {
	entries map[string]*ShopEntry
	order   []string
}

// Get returns the shop entry for an item type, or nil if it isn't sold.
func (t *ShopTable) Get(itemType string) *ShopEntry { return t.entries[itemType] }

// Len reports how many entries the table holds.
func (t *ShopTable) Len() int { return len(t.entries) }

// All iterates entries in configured order.
func (t *ShopTable) All(fn func(*ShopEntry)) {
	for _, k := range t.order {
		fn(t.entries[k])
	}
}

type shopListFile struct {
	Items []ShopEntry `yaml:"items"`
}

// LoadShopTable loads the shop price list from a YAML file.
func LoadShopTable(path string) (*ShopTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shop table: %w", err)
	}
	var f shopListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse shop table: %w", err)
	}
	t := &ShopTable{entries: make(map[string]*ShopEntry, len(f.Items))}
	for i := range f.Items {
		e := f.Items[i]
		t.entries[e.ItemType] = &e
		t.order = append(t.order, e.ItemType)
	}
	return t, nil
}
