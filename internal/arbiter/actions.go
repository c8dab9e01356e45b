package arbiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/world"
)

func (s *System) handleConsume(r *world.Resident, args map[string]any) error {
	itemID := argString(args, "item_id")
	if itemID == "" {
		return fmt.Errorf("missing item_id")
	}
	return s.economy.Consume(r, itemID)
}

func (s *System) handleBuy(r *world.Resident, args map[string]any) error {
	itemType := argString(args, "item_type")
	if itemType == "" {
		return fmt.Errorf("missing item_type")
	}
	return s.economy.Buy(r, itemType)
}

func (s *System) handleApplyJob(r *world.Resident, args map[string]any) error {
	jobID := argString(args, "job_id")
	if jobID == "" {
		return fmt.Errorf("missing job_id")
	}
	return s.economy.ApplyJob(r, jobID)
}

func (s *System) handleListJobs() map[string]any {
	statuses := s.economy.ListJobs()
	jobs := make([]map[string]any, 0, len(statuses))
	for _, js := range statuses {
		jobs = append(jobs, map[string]any{
			"id": js.Job.ID, "name": js.Job.Name, "wage": js.Job.Wage,
			"vacancies": js.Job.Vacancies, "occupied": js.Occupied,
		})
	}
	return map[string]any{"jobs": jobs}
}

func (s *System) handleSpeak(r *world.Resident, args map[string]any, worldTime int64) error {
	text := argString(args, "text")
	if text == "" {
		return fmt.Errorf("missing text")
	}
	volume := argString(args, "volume")
	if volume == "" {
		volume = "normal"
	}
	toID := argString(args, "to_id")
	return s.social.Speak(r, text, volume, toID, worldTime)
}

// handleTrade is a one-directional currency gift: the protocol's trade
// envelope carries both an offered and a requested amount, but this
// server only honours the pure-gift case (requested_quid absent or 0);
// a non-zero request is a barter offer, which is not implemented.
func (s *System) handleTrade(r *world.Resident, args map[string]any) error {
	target, err := s.targetResident(args, "to_id")
	if err != nil {
		return err
	}
	if requested, ok := argFloat64(args, "requested_quid"); ok && requested != 0 {
		return fmt.Errorf("bartered trade is not supported; requested_quid must be zero")
	}
	quid, ok := argFloat64(args, "quid")
	if !ok || quid <= 0 {
		return fmt.Errorf("quid must be a positive amount")
	}
	amount := int64(quid)
	if r.Wallet < amount {
		return fmt.Errorf("insufficient funds")
	}
	if !s.withinProximity(r, target, s.cfg.GiveProximityRadius) {
		return fmt.Errorf("too far away to trade")
	}
	r.Wallet -= amount
	target.Wallet += amount
	if s.events != nil {
		s.events.Append("trade", r.ID, map[string]any{"to_id": target.ID, "quid": amount})
	}
	return nil
}

func (s *System) handleGive(r *world.Resident, args map[string]any) error {
	target, err := s.targetResident(args, "to_id")
	if err != nil {
		return err
	}
	itemID := argString(args, "item_id")
	if itemID == "" {
		return fmt.Errorf("missing item_id")
	}
	idx := r.InventoryIndex(itemID)
	if idx < 0 {
		return fmt.Errorf("item not carried")
	}
	if !s.withinProximity(r, target, s.cfg.GiveProximityRadius) {
		return fmt.Errorf("too far away to give")
	}
	stack := r.Inventory[idx]
	if !r.RemoveItem(itemID, 1) {
		return fmt.Errorf("item not carried")
	}
	target.AddItem(newItemInstanceID(), stack.Type, 1, stack.Durability)
	if s.events != nil {
		s.events.Append("give", r.ID, map[string]any{"to_id": target.ID, "item_type": stack.Type})
	}
	return nil
}

// newItemInstanceID mints an opaque id for a freshly created inventory
// stack (a gift or a foraged item). A uuid rather than a name/count
// composite means it stays unique even across stacks that get removed
// and re-added in the same tick.
func newItemInstanceID() string {
	return uuid.NewString()
}

func (s *System) withinProximity(a, b *world.Resident, radius float64) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= radius
}

func (s *System) handleWritePetition(r *world.Resident, args map[string]any, worldTime int64) (map[string]any, error) {
	title := argString(args, "title")
	body := argString(args, "body")
	if title == "" || body == "" {
		return nil, fmt.Errorf("petition requires a title and body")
	}
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil || b.Kind != "council_hall" {
		return nil, fmt.Errorf("must be inside the council hall to file a petition")
	}
	p := s.world.WritePetition(r.ID, title, body, worldTime, s.cfg.PetitionDurationSeconds)
	if s.events != nil {
		s.events.Append("write_petition", r.ID, map[string]any{"petition_id": p.ID})
	}
	if s.petitionStore != nil {
		scale := s.cfg.WorldTimeScale
		if scale <= 0 {
			scale = 1
		}
		expiresAt := time.Now().Add(time.Duration(float64(s.cfg.PetitionDurationSeconds)/scale*float64(time.Second)))
		store := s.petitionStore
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			store.Create(ctx, p, expiresAt)
		}()
	}
	return map[string]any{"petition_id": p.ID}, nil
}

func (s *System) handleVotePetition(r *world.Resident, args map[string]any) error {
	petitionID := argString(args, "petition_id")
	if petitionID == "" {
		return fmt.Errorf("missing petition_id")
	}
	forIt := argBool(args, "for")
	if !s.world.VotePetition(petitionID, r.ID, forIt) {
		return fmt.Errorf("no open petition %q", petitionID)
	}
	if s.events != nil {
		s.events.Append("vote_petition", r.ID, map[string]any{"petition_id": petitionID, "for": forIt})
	}
	if s.petitionStore != nil {
		store := s.petitionStore
		residentID := r.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			store.Vote(ctx, petitionID, residentID, forIt)
		}()
	}
	return nil
}

func (s *System) handleListPetitions() map[string]any {
	petitions := s.world.ListPetitions()
	out := make([]map[string]any, 0, len(petitions))
	for _, p := range petitions {
		out = append(out, map[string]any{
			"id": p.ID, "author_id": p.AuthorID, "title": p.Title, "body": p.Body,
			"status": string(p.Status), "expires_at": p.ExpiresAt,
		})
	}
	return map[string]any{"petitions": out}
}

func (s *System) handleCollectBody(r *world.Resident, args map[string]any) error {
	if r.CarryingBodyID != "" {
		return fmt.Errorf("already carrying a body")
	}
	bodyID := argString(args, "body_id")
	if bodyID == "" {
		return fmt.Errorf("missing body_id")
	}
	body := s.world.Get(bodyID)
	if body == nil || body.Status != world.StatusDeceased {
		return fmt.Errorf("no body %q to collect", bodyID)
	}
	if !s.withinProximity(r, body, s.cfg.GiveProximityRadius) {
		return fmt.Errorf("too far from the body")
	}
	s.world.All(func(other *world.Resident) {
		if other.CarryingBodyID == bodyID {
			other.CarryingBodyID = ""
		}
	})
	r.CarryingBodyID = bodyID
	// A carried corpse has no meaningful position of its own; park it off
	// the map so perception never renders it sitting wherever it died.
	s.world.Move(body, carriedBodySentinelX, carriedBodySentinelY)
	return nil
}

func (s *System) handleProcessBody(r *world.Resident) error {
	if r.CarryingBodyID == "" {
		return fmt.Errorf("not carrying a body")
	}
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil || b.Kind != "mortuary" {
		return fmt.Errorf("must be inside the mortuary to process a body")
	}
	bodyID := r.CarryingBodyID
	body := s.world.Get(bodyID)
	if body == nil {
		r.CarryingBodyID = ""
		return fmt.Errorf("body no longer present")
	}
	body.Status = world.StatusProcessed
	r.CarryingBodyID = ""
	s.world.Remove(bodyID)
	if s.bus != nil {
		event.Emit(s.bus, event.BodyProcessed{ResidentID: bodyID, ByID: r.ID})
	}
	if s.events != nil {
		s.events.Append("process_body", r.ID, map[string]any{"resident_id": bodyID})
	}
	return nil
}

func (s *System) handleArrest(r *world.Resident, args map[string]any) error {
	suspect, err := s.targetResident(args, "suspect_id")
	if err != nil {
		return err
	}
	return s.law.Arrest(r, suspect)
}

func (s *System) handleForage(r *world.Resident, worldTime int64) (map[string]any, error) {
	node := s.world.NearestForage(r.X, r.Y, s.cfg.BuildingForageRadius, "")
	if node == nil {
		return nil, fmt.Errorf("no forage node nearby")
	}
	itemType, ok := node.Forage(worldTime)
	if !ok {
		return nil, fmt.Errorf("forage node is depleted")
	}
	r.AddItem(newItemInstanceID(), itemType, 1, -1)
	if node.UsesRemaining == 0 && s.bus != nil {
		event.Emit(s.bus, event.ForageDepleted{NodeIndex: node.Index})
	}
	if s.events != nil {
		s.events.Append("forage", r.ID, map[string]any{"item_type": itemType})
	}
	return map[string]any{"item_type": itemType}, nil
}

func (s *System) handleGetReferralLink(r *world.Resident) map[string]any {
	code := s.world.ReferralCodeFor(r.ID)
	if s.referralStore != nil {
		store := s.referralStore
		residentID := r.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			store.EnsureCode(ctx, code.Code, residentID)
		}()
	}
	return map[string]any{"code": code.Code}
}

func (s *System) handleClaimReferrals(r *world.Resident, worldTime int64) (map[string]any, error) {
	matured := s.world.ClaimReferrals(r.ID, worldTime, s.cfg.ReferralMaturationSeconds)
	if len(matured) == 0 {
		return map[string]any{"claimed": 0, "bonus": int64(0)}, nil
	}
	bonus := s.cfg.ReferralBonus * int64(len(matured))
	r.Wallet += bonus
	if s.events != nil {
		s.events.Append("claim_referrals", r.ID, map[string]any{"claimed": len(matured), "bonus": bonus})
	}
	return map[string]any{"claimed": len(matured), "bonus": bonus}, nil
}

func (s *System) handleSubmitFeedback(r *world.Resident, args map[string]any) error {
	if s.feedback == nil {
		return fmt.Errorf("feedback is not accepted right now")
	}
	token := argString(args, "token")
	body := argString(args, "body")
	if token == "" || body == "" {
		return fmt.Errorf("submit_feedback requires a token and body")
	}
	residentID, err := s.feedback.ConsumeFeedbackToken(token)
	if err != nil {
		return err
	}
	if residentID != r.ID {
		return fmt.Errorf("feedback token was not issued to this resident")
	}
	if s.events != nil {
		s.events.Append("submit_feedback", r.ID, map[string]any{"body": body})
	}
	if s.feedbackStore != nil {
		store := s.feedbackStore
		residentID := r.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			store.Submit(ctx, residentID, body)
		}()
	}
	return nil
}

func (s *System) handleInspect(r *world.Resident, args map[string]any) (map[string]any, error) {
	target, err := s.targetResident(args, "target_id")
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"id": target.ID, "display_name": target.DisplayName, "status": string(target.Status),
		"x": target.X, "y": target.Y, "facing": target.Facing,
	}
	if target.Job != nil {
		out["job_id"] = target.Job.JobID
	}
	return out, nil
}
