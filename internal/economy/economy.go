// Package economy implements the shop, universal basic income,
// consumption, and employment mechanics: purchases, restocking, UBI
// collection, eating/drinking, and shift timing/wages.
package economy

import (
	"fmt"
	"time"

	"github.com/havenport/worldserver/internal/config"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/data"
	"github.com/havenport/worldserver/internal/scripting"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
)

// Webhook is the narrow interface the economy system needs from the
// dispatcher.
type Webhook interface {
	Fire(kind string, payload map[string]any)
}

// EventLog is the narrow interface the economy system needs from the
// durable event feed.
type EventLog interface {
	Append(kind, residentID string, payload map[string]any)
}

// System owns the shared shop stock table and runs the per-tick shift
// timer and restock checks.
type System struct {
	world   *world.State
	shops   *data.ShopTable
	jobs    *data.JobTable
	items   *data.ItemTable
	cfg     config.SimulationConfig
	bus     *event.Bus
	hooks   Webhook
	events  EventLog
	scripts *scripting.Engine // optional; nil falls back to static config values

	stock map[string]int
}

func New(w *world.State, shops *data.ShopTable, jobs *data.JobTable, items *data.ItemTable, cfg config.SimulationConfig, bus *event.Bus, hooks Webhook, events EventLog, scripts *scripting.Engine) *System {
	s := &System{world: w, shops: shops, jobs: jobs, items: items, cfg: cfg, bus: bus, hooks: hooks, events: events, scripts: scripts, stock: make(map[string]int)}
	shops.All(func(e *data.ShopEntry) { s.stock[e.ItemType] = e.DefaultStock })
	return s
}

func (s *System) Phase() coresys.Phase { return coresys.PhaseSimulation }

func (s *System) Update(dt time.Duration) {
	s.world.AllAlive(func(r *world.Resident) {
		s.advanceShift(r)
	})
	if s.world.Clock.RestockDue() {
		s.restock()
	}
	worldTime := s.world.Clock.WorldSeconds
	s.world.AllForage(func(n *world.ForageNode) {
		n.MaybeRegrow(worldTime)
	})
}

func (s *System) advanceShift(r *world.Resident) {
	if r.Job == nil || !r.Job.OnShift {
		return
	}
	job := s.jobs.Get(r.Job.JobID)
	if job == nil {
		return
	}
	b := s.world.Map.ByID(job.BuildingID)
	if b == nil || !withinFootprint(b, r.X, r.Y) {
		return
	}
	r.Job.ShiftSeconds++
	if r.Job.ShiftSeconds < s.cfg.ShiftDurationSeconds {
		return
	}
	r.Job.ShiftSeconds = 0
	r.Job.ShiftsCompleted++
	wage := job.Wage
	if s.scripts != nil {
		wage = s.scripts.CalcWage(scripting.WageContext{
			BaseWage:     job.Wage,
			ShiftsWorked: r.Job.ShiftsCompleted,
			HourOfDay:    int(s.world.Clock.HourOfDay()),
		})
	}
	r.Wallet += wage
	if s.bus != nil {
		event.Emit(s.bus, event.ShiftCompleted{ResidentID: r.ID, JobID: job.ID, Wage: wage})
	}
	if s.events != nil {
		s.events.Append("shift_complete", r.ID, map[string]any{"job_id": job.ID, "wage": wage})
	}
}

func withinFootprint(b *tilemap.Building, px, py float64) bool {
	tx, ty := int(px)/tilemap.TileSize, int(py)/tilemap.TileSize
	return tx >= b.X && tx < b.X+b.W && ty >= b.Y && ty < b.Y+b.H
}

// restockNotifyRadius is generous enough to reach anyone loitering near
// the storefront without requiring them to be inside.
const restockNotifyRadius = 400

func (s *System) restock() {
	s.shops.All(func(e *data.ShopEntry) { s.stock[e.ItemType] = e.DefaultStock })
	for _, b := range s.world.Map.ByKind("shop") {
		cx, cy := b.Center()
		s.world.NotifyNearby(cx, cy, restockNotifyRadius, "the general store has restocked")
	}
}

// Stock returns a copy of the current per-item shop stock, for the
// composition root to persist.
func (s *System) Stock() map[string]int {
	out := make(map[string]int, len(s.stock))
	for k, v := range s.stock {
		out[k] = v
	}
	return out
}

// LoadStock overwrites the in-memory stock with a persisted snapshot,
// for any item type the snapshot names; item types absent from the
// snapshot keep their New-time default. Called once at boot, before the
// first tick.
func (s *System) LoadStock(saved map[string]int) {
	for itemType, qty := range saved {
		if _, known := s.stock[itemType]; known {
			s.stock[itemType] = qty
		}
	}
}

// Buy validates and executes a purchase: the resident must be inside a
// shop building, afford the full price, and stock must be available.
func (s *System) Buy(r *world.Resident, itemType string) error {
	entry := s.shops.Get(itemType)
	if entry == nil {
		return fmt.Errorf("item %q is not sold here", itemType)
	}
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil || b.Kind != "shop" {
		return fmt.Errorf("must be inside the shop to buy")
	}
	if s.stock[itemType] <= 0 {
		return fmt.Errorf("%q is out of stock", itemType)
	}
	if r.Wallet < entry.Price {
		return fmt.Errorf("insufficient funds")
	}

	r.Wallet -= entry.Price
	s.stock[itemType]--
	r.AddItem(newItemID(r, itemType), itemType, 1, durabilityFor(s.items, itemType))

	if s.bus != nil {
		event.Emit(s.bus, event.PurchaseCompleted{ResidentID: r.ID, ItemType: itemType, Price: entry.Price})
	}
	if s.events != nil {
		s.events.Append("buy", r.ID, map[string]any{"item_type": itemType, "price": entry.Price})
	}
	return nil
}

// CollectUBI credits the configured amount if the resident is inside the
// bank and the cooldown has elapsed.
func (s *System) CollectUBI(r *world.Resident, worldTime int64) error {
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil || b.Kind != "bank" {
		return fmt.Errorf("must be inside the bank to collect UBI")
	}
	cooldown := int64(s.cfg.UBICooldownHours * 3600)
	if r.EverCollectedUBI && worldTime-r.LastUBIAt < cooldown {
		return fmt.Errorf("UBI already collected this cycle")
	}
	amount := s.cfg.UBIAmount
	if s.scripts != nil {
		amount = s.scripts.CalcUBIAmount(scripting.UBIContext{
			BaseAmount:    s.cfg.UBIAmount,
			ResidentCount: s.world.Count(),
		})
	}
	r.EverCollectedUBI = true
	r.LastUBIAt = worldTime
	r.Wallet += amount
	if s.events != nil {
		s.events.Append("collect_ubi", r.ID, map[string]any{"amount": amount})
	}
	return nil
}

// Consume eats or drinks an inventory item, applying its restore values
// and decrementing (or removing) the stack.
func (s *System) Consume(r *world.Resident, itemID string) error {
	idx := r.InventoryIndex(itemID)
	if idx < 0 {
		return fmt.Errorf("item not carried")
	}
	itemType := r.Inventory[idx].Type
	tmpl := s.items.Get(itemType)
	if tmpl == nil || !tmpl.Consumable {
		return fmt.Errorf("%q is not consumable", itemType)
	}
	r.Hunger = clamp100(r.Hunger + tmpl.HungerRestore)
	r.Thirst = clamp100(r.Thirst + tmpl.ThirstRestore)
	r.RemoveItem(itemID, 1)
	if s.events != nil {
		s.events.Append("consume", r.ID, map[string]any{"item_type": itemType})
	}
	return nil
}

// ApplyJob seats the resident in a vacant job, provided they are inside
// the hiring hall.
func (s *System) ApplyJob(r *world.Resident, jobID string) error {
	if r.Job != nil && r.Job.JobID != "" {
		return fmt.Errorf("already employed")
	}
	job := s.jobs.Get(jobID)
	if job == nil {
		return fmt.Errorf("no such job %q", jobID)
	}
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil || b.Kind != "council_hall" {
		return fmt.Errorf("must be inside the hiring hall to apply")
	}
	if s.occupied(jobID) >= job.Vacancies {
		return fmt.Errorf("no vacancy for %q", jobID)
	}
	r.Job = &world.Employment{JobID: jobID, OnShift: true}
	return nil
}

// QuitJob clears the resident's employment and releases any escorted
// suspect (the officer role is the only job that carries one).
func (s *System) QuitJob(r *world.Resident) error {
	if r.Job == nil {
		return fmt.Errorf("not employed")
	}
	r.Job = nil
	r.CarryingSuspectID = ""
	return nil
}

// ListJobs returns every job definition and its current occupancy.
func (s *System) ListJobs() []JobStatus {
	var out []JobStatus
	s.jobs.All(func(j *data.Job) {
		out = append(out, JobStatus{Job: j, Occupied: s.occupied(j.ID)})
	})
	return out
}

// JobStatus pairs a static job definition with its live occupancy count.
type JobStatus struct {
	Job      *data.Job
	Occupied int
}

func (s *System) occupied(jobID string) int {
	count := 0
	s.world.All(func(r *world.Resident) {
		if r.Job != nil && r.Job.JobID == jobID {
			count++
		}
	})
	return count
}

func durabilityFor(items *data.ItemTable, itemType string) int {
	if tmpl := items.Get(itemType); tmpl != nil {
		return tmpl.Durability
	}
	return -1
}

func newItemID(r *world.Resident, itemType string) string {
	return fmt.Sprintf("%s-%s-%d", r.ID, itemType, len(r.Inventory))
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
