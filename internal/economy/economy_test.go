package economy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/data"
	"github.com/havenport/worldserver/internal/scripting"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
)

type fakeEvents struct{ appended []string }

func (f *fakeEvents) Append(kind, residentID string, payload map[string]any) {
	f.appended = append(f.appended, kind)
}

func testMap() *tilemap.Map {
	return &tilemap.Map{
		Width: 20, Height: 20,
		Buildings: []tilemap.Building{
			{ID: "general_store", Kind: "shop", X: 0, Y: 0, W: 2, H: 2},
			{ID: "bank", Kind: "bank", X: 5, Y: 5, W: 2, H: 2},
			{ID: "hall", Kind: "council_hall", X: 10, Y: 10, W: 2, H: 2},
		},
	}
}

func testTables(t *testing.T) (*data.ShopTable, *data.JobTable, *data.ItemTable) {
	t.Helper()
	shopPath := writeTemp(t, "shop.yaml", `
items:
  - item_type: bread
    price: 4
    default_stock: 2
`)
	jobPath := writeTemp(t, "jobs.yaml", `
jobs:
  - id: clerk
    name: Clerk
    building_id: general_store
    wage: 30
    vacancies: 1
`)
	itemPath := writeTemp(t, "items.yaml", `
items:
  - type: bread
    hunger_restore: 30
    thirst_restore: 0
    consumable: true
    durability: -1
`)
	shops, err := data.LoadShopTable(shopPath)
	if err != nil {
		t.Fatalf("LoadShopTable: %v", err)
	}
	jobs, err := data.LoadJobTable(jobPath)
	if err != nil {
		t.Fatalf("LoadJobTable: %v", err)
	}
	items, err := data.LoadItemTable(itemPath)
	if err != nil {
		t.Fatalf("LoadItemTable: %v", err)
	}
	return shops, jobs, items
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newSystem(t *testing.T) (*System, *world.State) {
	t.Helper()
	shops, jobs, items := testTables(t)
	clock := world.NewClock(60, 120, 3600, 30, 0)
	w := world.NewState(testMap(), clock)
	cfg := config.SimulationConfig{ShiftDurationSeconds: 2, UBICooldownHours: 24, UBIAmount: 20, BuildingForageRadius: 320}
	return New(w, shops, jobs, items, cfg, event.NewBus(), nil, &fakeEvents{}, nil), w
}

func TestBuySucceedsInsideShopWithFunds(t *testing.T) {
	sys, w := newSystem(t)
	r := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, Wallet: 10, X: 16, Y: 16}, true)

	if err := sys.Buy(r, "bread"); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if r.Wallet != 6 {
		t.Fatalf("expected wallet debited to 6, got %d", r.Wallet)
	}
	if !r.HasItemType("bread") {
		t.Fatal("expected bread in inventory")
	}
}

func TestBuyFailsOutsideShop(t *testing.T) {
	sys, w := newSystem(t)
	r := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, Wallet: 10, X: 300, Y: 300}, true)
	w.Move(r, 300, 300)

	if err := sys.Buy(r, "bread"); err == nil {
		t.Fatal("expected an error when buying outside the shop")
	}
}

func TestBuyFailsWhenStockDepleted(t *testing.T) {
	sys, w := newSystem(t)
	r := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, Wallet: 100, X: 16, Y: 16}, true)

	if err := sys.Buy(r, "bread"); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if err := sys.Buy(r, "bread"); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if err := sys.Buy(r, "bread"); err == nil {
		t.Fatal("expected stock to be depleted after 2 purchases of default_stock=2")
	}
}

func TestCollectUBIRespectsCooldown(t *testing.T) {
	sys, w := newSystem(t)
	r := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, X: 176, Y: 176}, true)
	w.Move(r, 176, 176)

	if err := sys.CollectUBI(r, 1000); err != nil {
		t.Fatalf("CollectUBI: %v", err)
	}
	if r.Wallet != 20 {
		t.Fatalf("expected UBI credited, got wallet %d", r.Wallet)
	}
	if err := sys.CollectUBI(r, 1001); err == nil {
		t.Fatal("expected cooldown to block a second collection")
	}
}

func TestApplyJobRespectsVacancy(t *testing.T) {
	sys, w := newSystem(t)
	r1 := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, X: 336, Y: 336}, true)
	r2 := w.Register(world.ResidentRow{ID: "r2", Passport: "OC-0000002", Type: world.TypeAgent, Status: world.StatusAlive, X: 336, Y: 336}, true)
	w.Move(r1, 336, 336)
	w.Move(r2, 336, 336)

	if err := sys.ApplyJob(r1, "clerk"); err != nil {
		t.Fatalf("ApplyJob r1: %v", err)
	}
	if err := sys.ApplyJob(r2, "clerk"); err == nil {
		t.Fatal("expected second applicant to be rejected, vacancies=1")
	}
}

func TestAdvanceShiftPaysWageOnThreshold(t *testing.T) {
	sys, w := newSystem(t)
	r := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, X: 16, Y: 16}, true)
	w.Move(r, 336, 336)
	if err := sys.ApplyJob(r, "clerk"); err != nil {
		t.Fatalf("ApplyJob: %v", err)
	}
	w.Move(r, 16, 16)

	sys.Update(100 * time.Millisecond)
	sys.Update(100 * time.Millisecond)

	if r.Wallet != 30 {
		t.Fatalf("expected wage paid after ShiftDurationSeconds=2 ticks, got wallet %d", r.Wallet)
	}
	if r.Job.ShiftSeconds != 0 {
		t.Fatalf("expected shift counter reset after payout, got %d", r.Job.ShiftSeconds)
	}
}

func TestAdvanceShiftAppliesWageMultiplierScript(t *testing.T) {
	shops, jobs, items := testTables(t)
	clock := world.NewClock(60, 120, 3600, 30, 0)
	w := world.NewState(testMap(), clock)
	cfg := config.SimulationConfig{ShiftDurationSeconds: 2, UBICooldownHours: 24, UBIAmount: 20, BuildingForageRadius: 320}

	scriptsDir := t.TempDir()
	economyDir := filepath.Join(scriptsDir, "economy")
	if err := os.MkdirAll(economyDir, 0o755); err != nil {
		t.Fatalf("mkdir economy scripts dir: %v", err)
	}
	writeScript(t, economyDir, "wage.lua", `
function wage_multiplier(ctx)
  return 2.0
end
`)
	engine, err := scripting.NewEngine(scriptsDir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	sys := New(w, shops, jobs, items, cfg, event.NewBus(), nil, &fakeEvents{}, engine)
	r := w.Register(world.ResidentRow{ID: "r1", Passport: "OC-0000001", Type: world.TypeAgent, Status: world.StatusAlive, X: 16, Y: 16}, true)
	w.Move(r, 336, 336)
	if err := sys.ApplyJob(r, "clerk"); err != nil {
		t.Fatalf("ApplyJob: %v", err)
	}
	w.Move(r, 16, 16)

	sys.Update(100 * time.Millisecond)
	sys.Update(100 * time.Millisecond)

	if r.Wallet != 60 {
		t.Fatalf("expected doubled wage 60 from the wage_multiplier script, got %d", r.Wallet)
	}
	if r.Job.ShiftsCompleted != 1 {
		t.Fatalf("expected ShiftsCompleted incremented to 1, got %d", r.Job.ShiftsCompleted)
	}
}

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
}

func TestLoadStockOverridesKnownItemsOnly(t *testing.T) {
	sys, _ := newSystem(t)
	if got := sys.Stock()["bread"]; got != 2 {
		t.Fatalf("expected default stock 2, got %d", got)
	}

	sys.LoadStock(map[string]int{"bread": 7, "unknown_item": 99})

	stock := sys.Stock()
	if stock["bread"] != 7 {
		t.Fatalf("expected loaded stock 7, got %d", stock["bread"])
	}
	if _, ok := stock["unknown_item"]; ok {
		t.Fatal("expected an item type absent from the shop table to be ignored")
	}
}

func TestStockReturnsIndependentCopy(t *testing.T) {
	sys, _ := newSystem(t)
	snapshot := sys.Stock()
	snapshot["bread"] = 999

	if sys.Stock()["bread"] == 999 {
		t.Fatal("expected Stock to return a copy, not a live reference")
	}
}
