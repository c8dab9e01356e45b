package data

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadShopTable(t *testing.T) {
	path := writeFixture(t, "shop.yaml", `
items:
  - item_type: bread
    price: 4
    default_stock: 20
  - item_type: water
    price: 2
    default_stock: 30
`)
	tbl, err := LoadShopTable(path)
	if err != nil {
		t.Fatalf("LoadShopTable: %v", err)
	}
	bread := tbl.Get("bread")
	if bread == nil || bread.Price != 4 || bread.DefaultStock != 20 {
		t.Fatalf("unexpected bread entry: %+v", bread)
	}
	if tbl.Get("nonexistent") != nil {
		t.Fatal("expected nil for unknown item type")
	}
	count := 0
	tbl.All(func(*ShopEntry) { count++ })
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
}

func TestLoadJobTable(t *testing.T) {
	path := writeFixture(t, "jobs.yaml", `
jobs:
  - id: clerk
    name: Shop Clerk
    building_id: general_store
    wage: 30
    vacancies: 2
`)
	tbl, err := LoadJobTable(path)
	if err != nil {
		t.Fatalf("LoadJobTable: %v", err)
	}
	j := tbl.Get("clerk")
	if j == nil || j.Wage != 30 || j.Vacancies != 2 {
		t.Fatalf("unexpected job entry: %+v", j)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestLoadItemTable(t *testing.T) {
	path := writeFixture(t, "items.yaml", `
items:
  - type: bread
    hunger_restore: 30
    thirst_restore: 0
    consumable: true
    durability: -1
`)
	tbl, err := LoadItemTable(path)
	if err != nil {
		t.Fatalf("LoadItemTable: %v", err)
	}
	it := tbl.Get("bread")
	if it == nil || it.HungerRestore != 30 {
		t.Fatalf("unexpected item template: %+v", it)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}
