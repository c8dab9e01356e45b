// Package world holds the in-memory authoritative state of the simulation:
// the resident table, the foraging-node table, the world clock, and the
// train arrival queue. Owned exclusively by the tick scheduler — see
// internal/scheduler.
package world

import (
	"math"

	"github.com/havenport/worldserver/internal/tilemap"
)

// ResidentRow is the plain-value shape a persistence repository
// materialises from a stored record, independent of the table layout.
// Older rows missing newer fields are expected to arrive zero-valued; the
// caller defaults them.
type ResidentRow struct {
	ID, Passport, DisplayName string
	Type                      ResidentType
	Status                    Status
	X, Y                      float64
	Facing                    int
	Hunger, Thirst, Energy, Bladder, Health, Social float64
	Wallet                    int64
	Inventory                 []ItemStack
	JobID                     string
	JobOnShift                bool
	JobShiftSeconds           int64
	CurrentBuilding           string
	WebhookURL                string
	Bio                       string
	Offenses                  []string
	ArrestedBy                string
	PrisonSentenceEnd         int64
	CarryingSuspectID         string
	CarryingBodyID            string
	RegisteredAtMillis        int64
	LastUBIAt                 int64
	EverCollectedUBI          bool
}

// State is the mutable world: residents, forage nodes, the clock, and the
// spatial index used for proximity queries. Single-goroutine access only.
type State struct {
	Map   *tilemap.Map
	Clock *Clock

	residents map[string]*Resident
	byPassport map[string]*Resident
	aoi       *aoiGrid

	forage []ForageNode

	trainQueue []string // resident ids awaiting the next train arrival

	nextPassport int

	petitions []*Petition
	referrals map[string]*ReferralCode // code -> referral
}

func NewState(m *tilemap.Map, clock *Clock) *State {
	s := &State{
		Map:        m,
		Clock:      clock,
		residents:  make(map[string]*Resident),
		byPassport: make(map[string]*Resident),
		aoi:        newAOIGrid(),
		referrals:  make(map[string]*ReferralCode),
	}
	for i, fp := range m.Forage {
		s.forage = append(s.forage, ForageNode{
			Index:         i,
			X:             float64(fp.X*tilemap.TileSize + tilemap.TileSize/2),
			Y:             float64(fp.Y*tilemap.TileSize + tilemap.TileSize/2),
			Kind:          fp.Kind,
			UsesRemaining: defaultMaxUses(fp.Kind),
			MaxUses:       defaultMaxUses(fp.Kind),
			RegrowSeconds: defaultRegrowSeconds(fp.Kind),
		})
	}
	return s
}

func defaultMaxUses(kind string) int {
	if kind == "spring" {
		return 5
	}
	return 3
}

func defaultRegrowSeconds(kind string) int64 {
	if kind == "spring" {
		return 60
	}
	return 600
}

// addResidentFromRow materialises an in-memory resident from a persisted
// record and adds it to the world (but not the spatial index — callers
// decide whether the resident is on-platform yet via queueForTrain).
func (s *State) addResidentFromRow(row ResidentRow) *Resident {
	r := &Resident{
		ID:                 row.ID,
		Passport:           row.Passport,
		DisplayName:        row.DisplayName,
		Type:               row.Type,
		Status:             row.Status,
		X:                  row.X,
		Y:                  row.Y,
		Facing:             row.Facing,
		Hunger:             row.Hunger,
		Thirst:             row.Thirst,
		Energy:             row.Energy,
		Bladder:            row.Bladder,
		Health:             row.Health,
		Social:             row.Social,
		Wallet:             row.Wallet,
		Inventory:          row.Inventory,
		CurrentBuilding:    row.CurrentBuilding,
		WebhookURL:         row.WebhookURL,
		Bio:                row.Bio,
		Offenses:           row.Offenses,
		ArrestedBy:         row.ArrestedBy,
		PrisonSentenceEnd:  row.PrisonSentenceEnd,
		CarryingSuspectID:  row.CarryingSuspectID,
		CarryingBodyID:     row.CarryingBodyID,
		RegisteredAtMillis: row.RegisteredAtMillis,
		LastUBIAt:          row.LastUBIAt,
		EverCollectedUBI:   row.EverCollectedUBI,
		RequestDedup:       make(map[string]int64),
		AwaitingReplyFrom:  make(map[string]int64),
		Milestones:         make(map[string]bool),
		LastPainAt:         make(map[string]int64),
		// sleep_started_at is runtime-only: freshly anchored, never loaded.
		Speed: SpeedStopped,
	}
	if row.JobID != "" {
		r.Job = &Employment{JobID: row.JobID, OnShift: row.JobOnShift, ShiftSeconds: row.JobShiftSeconds}
	}
	s.residents[r.ID] = r
	s.byPassport[r.Passport] = r
	return r
}

// LoadFromStore rehydrates all alive and deceased residents from
// persistence on boot.
func (s *State) LoadFromStore(rows []ResidentRow) {
	maxSeq := 0
	for _, row := range rows {
		r := s.addResidentFromRow(row)
		if r.IsAlive() {
			s.place(r)
		}
		if seq, ok := parsePassportSeq(r.Passport); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	s.nextPassport = maxSeq + 1
}

func parsePassportSeq(passport string) (int, bool) {
	if len(passport) < 4 || passport[:3] != "OC-" {
		return 0, false
	}
	n := 0
	for _, c := range passport[3:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// LoadPetitions seeds the in-memory petition list from persisted open
// petitions on boot. Closed petitions aren't reloaded; nothing reads them
// again once ExpirePetitions has settled their status.
func (s *State) LoadPetitions(petitions []*Petition) {
	s.petitions = append(s.petitions, petitions...)
}

// LoadReferrals seeds the in-memory referral code table from persistence
// on boot.
func (s *State) LoadReferrals(referrals map[string]*ReferralCode) {
	for code, rc := range referrals {
		s.referrals[code] = rc
	}
}

// SnapshotRows flattens every resident (alive, deceased, or processed) to
// its persisted row shape, for a periodic or shutdown batch save.
func (s *State) SnapshotRows() []ResidentRow {
	rows := make([]ResidentRow, 0, len(s.residents))
	for _, r := range s.residents {
		rows = append(rows, r.ToRow())
	}
	return rows
}

// NextPassport mints the next sequential passport number in the
// `OC-NNNNNNN` format.
func (s *State) NextPassport() string {
	s.nextPassport++
	return formatPassport(s.nextPassport)
}

func formatPassport(n int) string {
	digits := "0000000"
	out := []byte(digits)
	for i := len(out) - 1; i >= 0 && n > 0; i-- {
		out[i] = byte('0' + n%10)
		n /= 10
	}
	return "OC-" + string(out)
}

// place inserts a resident into the spatial index. Called once a queued
// resident spawns onto the platform.
func (s *State) place(r *Resident) {
	s.aoi.Add(r.ID, r.X, r.Y)
}

// Register adds a brand-new resident (post successful HTTP registration)
// and queues it for the next train arrival.
func (s *State) Register(row ResidentRow, developmentMode bool) *Resident {
	r := s.addResidentFromRow(row)
	s.QueueForTrain(r.ID, developmentMode)
	return r
}

// QueueForTrain appends a resident to the arrival queue, or spawns it
// immediately in development mode.
func (s *State) QueueForTrain(id string, developmentMode bool) {
	if developmentMode {
		s.SpawnQueued(id)
		return
	}
	s.trainQueue = append(s.trainQueue, id)
}

// DrainTrainArrivals pops every queued resident, places them at the spawn
// point, and returns their ids. Called when the clock reports a train is
// due.
func (s *State) DrainTrainArrivals() []string {
	if len(s.trainQueue) == 0 {
		return nil
	}
	arrived := s.trainQueue
	s.trainQueue = nil
	for _, id := range arrived {
		s.SpawnQueued(id)
	}
	return arrived
}

// SpawnQueued places a single queued resident at the map's spawn point.
func (s *State) SpawnQueued(id string) {
	r := s.residents[id]
	if r == nil {
		return
	}
	r.X, r.Y = s.Map.SpawnX, s.Map.SpawnY
	s.place(r)
}

// Get returns a resident by id, or nil.
func (s *State) Get(id string) *Resident { return s.residents[id] }

// GetByPassport returns a resident by passport number, or nil.
func (s *State) GetByPassport(passport string) *Resident { return s.byPassport[passport] }

// Move updates a resident's position and the spatial index. Callers must
// not mutate r.X/r.Y directly once the resident is placed.
func (s *State) Move(r *Resident, newX, newY float64) {
	oldX, oldY := r.X, r.Y
	r.X, r.Y = newX, newY
	s.aoi.Move(r.ID, oldX, oldY, newX, newY)
}

// Remove takes a resident out of the world entirely (departure or
// post-processing removal).
func (s *State) Remove(id string) {
	r := s.residents[id]
	if r == nil {
		return
	}
	s.aoi.Remove(id, r.X, r.Y)
	delete(s.residents, id)
	delete(s.byPassport, r.Passport)
}

// Nearby returns every alive resident within Euclidean range of (x, y),
// excluding excludeID if non-empty.
func (s *State) Nearby(x, y, radius float64, excludeID string) []*Resident {
	ids := s.aoi.neighborhood(x, y)
	result := make([]*Resident, 0, len(ids))
	r2 := radius * radius
	for _, id := range ids {
		if id == excludeID {
			continue
		}
		r := s.residents[id]
		if r == nil || !r.IsAlive() {
			continue
		}
		dx, dy := r.X-x, r.Y-y
		if dx*dx+dy*dy <= r2 {
			result = append(result, r)
		}
	}
	return result
}

// NotifyNearby pushes a notification to every alive resident within
// Euclidean range of (x, y).
func (s *State) NotifyNearby(x, y, radius float64, message string) {
	for _, r := range s.Nearby(x, y, radius, "") {
		r.PendingNotifications = append(r.PendingNotifications, message)
	}
}

// All calls fn for every resident regardless of status.
func (s *State) All(fn func(*Resident)) {
	for _, r := range s.residents {
		fn(r)
	}
}

// AllAlive calls fn for every alive resident.
func (s *State) AllAlive(fn func(*Resident)) {
	for _, r := range s.residents {
		if r.IsAlive() {
			fn(r)
		}
	}
}

// Count returns the number of residents tracked, regardless of status.
func (s *State) Count() int { return len(s.residents) }

// Forage returns the forage node at the given index, or nil.
func (s *State) Forage(index int) *ForageNode {
	if index < 0 || index >= len(s.forage) {
		return nil
	}
	return &s.forage[index]
}

// AllForage calls fn for every forage node.
func (s *State) AllForage(fn func(*ForageNode)) {
	for i := range s.forage {
		fn(&s.forage[i])
	}
}

// NearestForage returns the forage node of the given kind nearest to
// (x, y) within radius, or nil.
func (s *State) NearestForage(x, y, radius float64, kind string) *ForageNode {
	var best *ForageNode
	bestDist := math.MaxFloat64
	for i := range s.forage {
		n := &s.forage[i]
		if kind != "" && n.Kind != kind {
			continue
		}
		dx, dy := n.X-x, n.Y-y
		d := dx*dx + dy*dy
		if d <= radius*radius && d < bestDist {
			best = n
			bestDist = d
		}
	}
	return best
}

// Snapshot is a read-only view of world state for external HTTP reads
// (registration count, leaderboard, activity feed). Safe to build and hand
// off because it copies only scalar summary data, never pointers into live
// resident state.
type Snapshot struct {
	ResidentCount int
	WorldSeconds  int64
}

// TakeSnapshot builds a read-only snapshot. Must be called from the
// scheduler goroutine, same as every other State method.
func (s *State) TakeSnapshot() Snapshot {
	return Snapshot{
		ResidentCount: len(s.residents),
		WorldSeconds:  s.Clock.WorldSeconds,
	}
}
