// Package perception assembles the per-resident perception packet: self
// state, visible entities, audible messages, allowed interaction tags,
// and pending notifications/pain. It also builds the unfiltered
// spectator variant.
package perception

import (
	"math"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/data"
	"github.com/havenport/worldserver/internal/scripting"
	"github.com/havenport/worldserver/internal/spatial"
	"github.com/havenport/worldserver/internal/world"
)

// SelfState is the viewer's own state, rounded and summarised for
// transport.
type SelfState struct {
	ID, Passport, DisplayName string
	X, Y                      float64
	Facing                    int
	Hunger, Thirst, Energy, Bladder, Health, Social float64
	Wallet                    int64
	Inventory                 []world.ItemStack
	Status                    string
	JobID                     string
	OnShift                   bool
	Imprisoned                bool
	Arrested                  bool
	CarryingSuspectID         string
	CarryingBodyID            string
	AwaitingReplyFrom         []string
}

type VisibleResident struct {
	ID, DisplayName string
	X, Y            float64
	Facing          int
	Status          string
}

type VisibleBuilding struct {
	ID, Name, Kind string
	X, Y           int
}

type VisibleForage struct {
	Index int
	X, Y  float64
	Kind  string
}

type AudibleMessage struct {
	SpeakerID string
	Text      string
	Volume    string
	Directed  bool
}

// Perception is the full packet delivered to one connected resident or
// spectator for one perception tick.
type Perception struct {
	Self          *SelfState // nil for spectators
	Visible       []VisibleResident
	Buildings     []VisibleBuilding
	Forage        []VisibleForage
	Audible       []AudibleMessage
	Actions       []string
	Notifications []string
	Pain          []world.PainMessage
}

// Builder holds the static tables and config a perception build needs
// beyond the live world state.
type Builder struct {
	world   *world.State
	items   *data.ItemTable
	cfg     config.SimulationConfig
	scripts *scripting.Engine // optional; nil means no extra building tags
}

func New(w *world.State, items *data.ItemTable, cfg config.SimulationConfig, scripts *scripting.Engine) *Builder {
	return &Builder{world: w, items: items, cfg: cfg, scripts: scripts}
}

// Build produces the filtered perception packet for a connected
// resident. hour is the current in-world hour of day, in [0, 24).
func (b *Builder) Build(r *world.Resident, hour float64) Perception {
	mult := spatial.NightVisionMultiplier(hour, b.cfg.NightVisionMin)
	ambient := b.cfg.AmbientRadius * mult
	fov := b.cfg.FOVRadius * mult
	staticRadius := b.cfg.BuildingForageRadius * mult

	p := Perception{
		Self: b.buildSelf(r),
	}

	for _, other := range b.world.Nearby(r.X, r.Y, fov, r.ID) {
		if spatial.CanSeeResident(b.world.Map, r.X, r.Y, r.Facing, other.X, other.Y, ambient, fov, b.cfg.FOVAngleDegrees) {
			p.Visible = append(p.Visible, VisibleResident{ID: other.ID, DisplayName: other.DisplayName, X: other.X, Y: other.Y, Facing: other.Facing, Status: string(other.Status)})
		}
	}

	for i := range b.world.Map.Buildings {
		bld := &b.world.Map.Buildings[i]
		cx, cy := bld.Center()
		if spatial.CanSeeStatic(r.X, r.Y, cx, cy, staticRadius) {
			p.Buildings = append(p.Buildings, VisibleBuilding{ID: bld.ID, Name: bld.Name, Kind: bld.Kind, X: bld.X, Y: bld.Y})
		}
	}

	b.world.AllForage(func(f *world.ForageNode) {
		if spatial.CanSeeStatic(r.X, r.Y, f.X, f.Y, staticRadius) {
			p.Forage = append(p.Forage, VisibleForage{Index: f.Index, X: f.X, Y: f.Y, Kind: f.Kind})
		}
	})

	p.Actions = b.interactionTags(r)
	p.Notifications = r.PendingNotifications
	p.Pain = r.PendingPain
	r.PendingNotifications = nil
	r.PendingPain = nil

	return p
}

func (b *Builder) buildSelf(r *world.Resident) *SelfState {
	s := &SelfState{
		ID: r.ID, Passport: r.Passport, DisplayName: r.DisplayName,
		X: r.X, Y: r.Y, Facing: r.Facing,
		Hunger: round1(r.Hunger), Thirst: round1(r.Thirst), Energy: round1(r.Energy),
		Bladder: round1(r.Bladder), Health: round1(r.Health), Social: round1(r.Social),
		Wallet: r.Wallet, Inventory: r.Inventory, Status: string(r.Status),
		Imprisoned: r.IsImprisoned(), Arrested: r.IsArrested(),
		CarryingSuspectID: r.CarryingSuspectID, CarryingBodyID: r.CarryingBodyID,
	}
	if r.Job != nil {
		s.JobID = r.Job.JobID
		s.OnShift = r.Job.OnShift
	}
	for target := range r.AwaitingReplyFrom {
		s.AwaitingReplyFrom = append(s.AwaitingReplyFrom, target)
	}
	return s
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// interactionTags derives the allowed action tags from the resident's
// current state and surroundings.
func (b *Builder) interactionTags(r *world.Resident) []string {
	if r.IsImprisoned() {
		return []string{"speak", "inspect", "submit_feedback"}
	}

	tags := []string{"speak", "inspect"}
	awake := !r.Sleeping
	if awake && r.Energy > 0 {
		tags = append(tags, "move", "move_to")
	}
	if awake && r.Energy < 90 {
		tags = append(tags, "sleep")
	}
	if r.Sleeping {
		tags = append(tags, "wake")
	}
	for _, item := range r.Inventory {
		if item.Type == "sleeping_bag" {
			continue
		}
		if tmpl := b.items.Get(item.Type); tmpl != nil && tmpl.Consumable {
			if tmpl.HungerRestore > 0 {
				tags = append(tags, "eat:"+item.ID)
			}
			if tmpl.ThirstRestore > 0 {
				tags = append(tags, "drink:"+item.ID)
			}
		}
	}

	if current := b.world.Map.BuildingAt(r.X, r.Y); current != nil {
		tags = append(tags, "exit_building")
		if zone := current.ZoneAt(r.X, r.Y); zone != nil {
			tags = append(tags, zone.Actions...)
		}
		switch current.Kind {
		case "mortuary":
			if r.CarryingBodyID != "" {
				tags = append(tags, "process_body")
			}
		case "police_station":
			if r.CarryingSuspectID != "" {
				tags = append(tags, "book_suspect")
			}
		case "council_hall":
			tags = append(tags, "list_jobs")
		}
		if b.scripts != nil {
			tags = append(tags, b.scripts.BuildingExtraActions(current.Kind)...)
		}
	} else {
		for i := range b.world.Map.Buildings {
			bld := &b.world.Map.Buildings[i]
			if _, dist := bld.NearestDoor(r.X, r.Y); dist >= 0 && dist <= 64 {
				tags = append(tags, "enter_building:"+bld.ID)
			}
		}
	}

	return tags
}

// BuildSpectator returns the unfiltered variant: every resident,
// building, forage node, and currently buffered speech, with no range,
// cone, or LOS gating.
func (b *Builder) BuildSpectator() Perception {
	var p Perception

	b.world.All(func(r *world.Resident) {
		p.Visible = append(p.Visible, VisibleResident{ID: r.ID, DisplayName: r.DisplayName, X: r.X, Y: r.Y, Facing: r.Facing, Status: string(r.Status)})
		for _, entry := range r.PendingSpeech {
			p.Audible = append(p.Audible, AudibleMessage{SpeakerID: r.ID, Text: entry.Text, Volume: entry.Volume, Directed: entry.ToID != ""})
		}
	})
	for i := range b.world.Map.Buildings {
		bld := &b.world.Map.Buildings[i]
		p.Buildings = append(p.Buildings, VisibleBuilding{ID: bld.ID, Name: bld.Name, Kind: bld.Kind, X: bld.X, Y: bld.Y})
	}
	b.world.AllForage(func(f *world.ForageNode) {
		p.Forage = append(p.Forage, VisibleForage{Index: f.Index, X: f.X, Y: f.Y, Kind: f.Kind})
	})

	return p
}
