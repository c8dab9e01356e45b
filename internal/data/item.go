package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ItemTemplate describes a consumable or durable item type: its
// hunger/thirst restore on consumption and whether it stacks.
type ItemTemplate struct {
	Type           string  `yaml:"type"`
	HungerRestore  float64 `yaml:"hunger_restore"`
	ThirstRestore  float64 `yaml:"thirst_restore"`
	Consumable     bool    `yaml:"consumable"`
	Durability     int     `yaml:"durability"` // -1 for non-durable
}

// ItemTable holds the item template list, indexed by type.
type ItemTable struct {
	templates map[string]*ItemTemplate
}

func (t *ItemTable) Get(itemType string) *ItemTemplate { return t.templates[itemType] }

// Len reports how many entries the table holds.
func (t *ItemTable) Len() int { return len(t.templates) }

type itemListFile struct {
	Items []ItemTemplate `yaml:"items"`
}

// LoadItemTable loads item templates from a YAML file.
func LoadItemTable(path string) (*ItemTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item table: %w", err)
	}
	var f itemListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse item table: %w", err)
	}
	t := &ItemTable{templates: make(map[string]*ItemTemplate, len(f.Items))}
	for i := range f.Items {
		it := f.Items[i]
		t.templates[it.Type] = &it
	}
	return t, nil
}
