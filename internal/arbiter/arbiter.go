// Package arbiter is the single entry point every client command passes
// through: request-id deduplication, resident-status gating, and the
// per-action dispatch table that validates and applies the command
// against the other systems (economy, law, social) or against world
// state directly for actions none of them own.
package arbiter

import (
	"context"
	"fmt"
	"time"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/event"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/data"
	"github.com/havenport/worldserver/internal/economy"
	"github.com/havenport/worldserver/internal/law"
	"github.com/havenport/worldserver/internal/social"
	"github.com/havenport/worldserver/internal/world"
)

// Webhook is the narrow interface the arbiter needs from the dispatcher.
type Webhook interface {
	Fire(kind string, payload map[string]any)
}

// EventLog is the narrow interface the arbiter needs from the durable
// event feed.
type EventLog interface {
	Append(kind, residentID string, payload map[string]any)
}

// FeedbackConsumer redeems a single-use feedback token, returning the
// resident it was minted for.
type FeedbackConsumer interface {
	ConsumeFeedbackToken(token string) (string, error)
}

// PetitionStore persists a filed petition and the votes cast against it.
// Matches the method shapes of *persist.PetitionRepo directly, so the
// composition root can wire the concrete repo with no adapter.
type PetitionStore interface {
	Create(ctx context.Context, p *world.Petition, expiresAt time.Time) error
	Vote(ctx context.Context, petitionID, residentID string, forIt bool) error
}

// ReferralStore persists a resident's referral code. Matches
// *persist.ReferralRepo's EnsureCode method directly.
type ReferralStore interface {
	EnsureCode(ctx context.Context, code, referrerID string) error
}

// FeedbackStore persists a submitted feedback body. Matches
// *persist.FeedbackRepo's Submit method directly.
type FeedbackStore interface {
	Submit(ctx context.Context, residentID, body string) error
}

// storeTimeout bounds the fire-and-forget goroutine each persistence call
// below runs in, so a stalled connection pool can't leak goroutines
// indefinitely.
const storeTimeout = 5 * time.Second

// carriedBodySentinelX and carriedBodySentinelY are where a collected
// corpse is parked: off the map, since it no longer has a position of its
// own once someone is carrying it.
const (
	carriedBodySentinelX = -9999
	carriedBodySentinelY = -9999
)

// ResultSink delivers a completed action result to the connection that
// submitted it. The gateway is the only real implementation; tests fake
// it.
type ResultSink interface {
	Deliver(Result)
}

// Request is one submitted client command, queued by the gateway and
// drained by Update on the scheduler goroutine.
type Request struct {
	ResidentID string
	RequestID  string // client-chosen idempotency key; empty skips dedup
	Action     string
	Args       map[string]any
}

// Result reports the outcome of a processed request.
type Result struct {
	ResidentID string
	RequestID  string
	Action     string
	OK         bool
	Error      string
	Data       map[string]any
}

// imprisonedAllowed is the action allowlist for imprisoned residents.
var imprisonedAllowed = map[string]bool{
	"inspect":         true,
	"speak":           true,
	"submit_feedback": true,
}

// System owns the inbound request queue and the full action dispatch
// table. Registered at coresys.PhaseInput so submitted commands are
// applied before the same tick's position/simulation/perception passes
// see their effects.
type System struct {
	world *world.State
	items *data.ItemTable
	cfg   config.SimulationConfig
	bus   *event.Bus
	hooks Webhook
	events EventLog

	economy  *economy.System
	law      *law.System
	social   *social.System
	feedback FeedbackConsumer
	results  ResultSink

	petitionStore PetitionStore
	referralStore ReferralStore
	feedbackStore FeedbackStore

	queue chan Request
}

func New(
	w *world.State,
	items *data.ItemTable,
	cfg config.SimulationConfig,
	bus *event.Bus,
	hooks Webhook,
	events EventLog,
	econ *economy.System,
	lawSys *law.System,
	socialSys *social.System,
	feedback FeedbackConsumer,
	results ResultSink,
	queueSize int,
) *System {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &System{
		world: w, items: items, cfg: cfg, bus: bus, hooks: hooks, events: events,
		economy: econ, law: lawSys, social: socialSys, feedback: feedback, results: results,
		queue: make(chan Request, queueSize),
	}
}

// SetResults wires the result sink after construction, for callers (the
// composition root) where the sink itself — the gateway — needs a
// reference to this System to submit requests, creating a dependency
// cycle New alone can't resolve.
func (s *System) SetResults(results ResultSink) { s.results = results }

// SetPetitionStore, SetReferralStore, and SetFeedbackStore wire the
// optional persistence paths for civic actions after construction, the
// same deferred-wiring pattern as SetResults. Nil leaves the action
// working in-memory only (used by tests with no database).
func (s *System) SetPetitionStore(store PetitionStore) { s.petitionStore = store }
func (s *System) SetReferralStore(store ReferralStore) { s.referralStore = store }
func (s *System) SetFeedbackStore(store FeedbackStore) { s.feedbackStore = store }

func (s *System) Phase() coresys.Phase { return coresys.PhaseInput }

// Submit enqueues a request for processing on the next Update. Returns
// false if the queue is saturated; the caller (the gateway's read loop)
// must not block on a full queue.
func (s *System) Submit(req Request) bool {
	select {
	case s.queue <- req:
		return true
	default:
		return false
	}
}

// Update garbage-collects expired dedup entries and drains every queued
// request.
func (s *System) Update(dt time.Duration) {
	worldTime := s.world.Clock.WorldSeconds
	s.gcDedup(worldTime)

	for {
		select {
		case req := <-s.queue:
			s.handle(req, worldTime)
		default:
			return
		}
	}
}

func (s *System) gcDedup(worldTime int64) {
	window := int64(s.cfg.RequestDedupWindow.Seconds())
	s.world.All(func(r *world.Resident) {
		for id, seenAt := range r.RequestDedup {
			if worldTime-seenAt > window {
				delete(r.RequestDedup, id)
			}
		}
	})
}

func (s *System) handle(req Request, worldTime int64) {
	r := s.world.Get(req.ResidentID)
	if r == nil {
		s.deliver(req, false, "unknown resident", nil)
		return
	}

	if req.RequestID != "" {
		if _, seen := r.RequestDedup[req.RequestID]; seen {
			s.deliver(req, false, "duplicate request", nil)
			return
		}
		if r.RequestDedup == nil {
			r.RequestDedup = make(map[string]int64)
		}
		r.RequestDedup[req.RequestID] = worldTime
	}

	if r.Status != world.StatusAlive {
		s.deliver(req, false, "resident is not active", nil)
		return
	}
	if r.IsImprisoned() && !imprisonedAllowed[req.Action] {
		s.deliver(req, false, "imprisoned residents may only inspect, speak, or submit feedback", nil)
		return
	}

	out, err := s.dispatch(r, req, worldTime)
	if err != nil {
		s.deliver(req, false, err.Error(), nil)
		return
	}
	s.deliver(req, true, "", out)
}

func (s *System) deliver(req Request, ok bool, errMsg string, data map[string]any) {
	if s.results == nil {
		return
	}
	s.results.Deliver(Result{
		ResidentID: req.ResidentID, RequestID: req.RequestID, Action: req.Action,
		OK: ok, Error: errMsg, Data: data,
	})
}

func (s *System) dispatch(r *world.Resident, req Request, worldTime int64) (map[string]any, error) {
	switch req.Action {
	case "move":
		return nil, s.handleMove(r, req.Args)
	case "stop":
		return nil, s.handleStop(r)
	case "face":
		return nil, s.handleFace(r, req.Args)
	case "move_to":
		return nil, s.handleMoveTo(r, req.Args)
	case "sleep":
		return nil, s.handleSleep(r)
	case "wake":
		return nil, s.handleWake(r)
	case "enter_building":
		return nil, s.handleEnterBuilding(r, req.Args)
	case "exit_building":
		return nil, s.handleExitBuilding(r)
	case "use_toilet":
		return nil, s.handleUseToilet(r)
	case "eat", "drink":
		return nil, s.handleConsume(r, req.Args)
	case "buy":
		return nil, s.handleBuy(r, req.Args)
	case "collect_ubi":
		return nil, s.economy.CollectUBI(r, worldTime)
	case "apply_job":
		return nil, s.handleApplyJob(r, req.Args)
	case "quit_job":
		return nil, s.economy.QuitJob(r)
	case "list_jobs":
		return s.handleListJobs(), nil
	case "speak":
		return nil, s.handleSpeak(r, req.Args, worldTime)
	case "trade":
		return nil, s.handleTrade(r, req.Args)
	case "give":
		return nil, s.handleGive(r, req.Args)
	case "write_petition":
		return s.handleWritePetition(r, req.Args, worldTime)
	case "vote_petition":
		return nil, s.handleVotePetition(r, req.Args)
	case "list_petitions":
		return s.handleListPetitions(), nil
	case "depart":
		return nil, s.handleDepart(r, worldTime)
	case "collect_body":
		return nil, s.handleCollectBody(r, req.Args)
	case "process_body":
		return nil, s.handleProcessBody(r)
	case "arrest":
		return nil, s.handleArrest(r, req.Args)
	case "book_suspect":
		return nil, s.law.Book(r, worldTime)
	case "forage":
		return s.handleForage(r, worldTime)
	case "get_referral_link":
		return s.handleGetReferralLink(r), nil
	case "claim_referrals":
		return s.handleClaimReferrals(r, worldTime)
	case "submit_feedback":
		return nil, s.handleSubmitFeedback(r, req.Args)
	case "inspect":
		return s.handleInspect(r, req.Args)
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argFloat64(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func (s *System) targetResident(args map[string]any, key string) (*world.Resident, error) {
	id := argString(args, key)
	if id == "" {
		return nil, fmt.Errorf("missing %q", key)
	}
	target := s.world.Get(id)
	if target == nil || !target.IsAlive() {
		return nil, fmt.Errorf("no such resident %q", id)
	}
	return target, nil
}
