// Package pain turns raw need levels into the "pain" messages delivered to
// agents out-of-band from perception, and watches for the milestone and
// periodic-reflection webhooks that accompany them.
package pain

import (
	"fmt"

	"github.com/havenport/worldserver/internal/world"
)

// tier boundaries, shared across all four monitored needs.
const (
	tierMild   = 50.0
	tierSevere = 25.0
	tierAgony  = 10.0
)

// cooldownSeconds bounds how often the same source can re-fire the same
// tier, so a need sitting just under a boundary doesn't spam every tick.
const cooldownSeconds = 30

// Webhook is the narrow interface the pain tracker needs from the
// dispatcher, kept small so tests can fake it.
type Webhook interface {
	Fire(kind string, payload map[string]any)
}

// Tokens mints single-use feedback tokens embedded in the reflection
// webhook payload.
type Tokens interface {
	IssueFeedbackToken(residentID string) (string, error)
}

// Tracker evaluates a resident's needs every simulation tick and emits
// pain messages and milestone/reflection webhooks.
type Tracker struct {
	hooks              Webhook
	tokens             Tokens
	reflectionPeriod   int64 // world-seconds between reflection webhooks
}

func New(hooks Webhook, tokens Tokens, reflectionPeriodSeconds int64) *Tracker {
	return &Tracker{hooks: hooks, tokens: tokens, reflectionPeriod: reflectionPeriodSeconds}
}

// Evaluate checks the four monitored needs for a severity-tier crossing,
// queues a pain message when one fires and its per-source cooldown has
// elapsed, and separately checks milestones and the periodic reflection
// webhook.
func (t *Tracker) Evaluate(r *world.Resident, worldTime int64) {
	if r.LastPainAt == nil {
		r.LastPainAt = make(map[string]int64)
	}
	if r.Milestones == nil {
		r.Milestones = make(map[string]bool)
	}

	t.checkNeed(r, worldTime, "hunger", r.Hunger)
	t.checkNeed(r, worldTime, "thirst", r.Thirst)
	t.checkNeed(r, worldTime, "social", r.Social)
	t.checkNeed(r, worldTime, "health", r.Health)

	t.checkMilestones(r, worldTime)
	t.checkReflection(r, worldTime)
}

func (t *Tracker) checkNeed(r *world.Resident, worldTime int64, source string, level float64) {
	tier, intensity := classify(level)
	if source == "health" && level < 20 {
		r.HealthWasBelow20 = true
	}
	if tier == "" {
		return
	}

	key := source + ":" + tier
	if worldTime-r.LastPainAt[key] < cooldownSeconds {
		return
	}
	r.LastPainAt[key] = worldTime

	msg := world.PainMessage{
		Source:    source,
		Tier:      tier,
		Message:   fmt.Sprintf("%s is %s (%s)", source, tier, descriptor(source, tier)),
		Intensity: intensity,
	}
	r.PendingPain = append(r.PendingPain, msg)
}

// classify maps a need level to a tier name and a normalized intensity in
// [0, 1] (0 exactly at a tier's upper boundary), or ("", 0) if the need is above the mild threshold.
func classify(level float64) (string, float64) {
	switch {
	case level <= tierAgony:
		return "agony", 1
	case level <= tierSevere:
		return "severe", (tierSevere - level) / tierSevere
	case level <= tierMild:
		return "mild", (tierMild - level) / tierMild
	default:
		return "", 0
	}
}

func descriptor(source, tier string) string {
	switch source {
	case "hunger":
		return "hungry"
	case "thirst":
		return "thirsty"
	case "social":
		return "lonely"
	case "health":
		return "unwell"
	default:
		return tier
	}
}

// checkMilestones fires a one-shot webhook the first time each of three
// milestones is reached: 30 minutes of wall-clock survival, the first
// successful conversation, and a health recovery above 50 after having
// dropped below 20.
func (t *Tracker) checkMilestones(r *world.Resident, worldTime int64) {
	if t.hooks == nil {
		return
	}

	if !r.Milestones["survived_30m"] && worldTime-r.RegisteredAtMillis/1000 >= 1800 {
		r.Milestones["survived_30m"] = true
		t.hooks.Fire("milestone", map[string]any{"resident_id": r.ID, "milestone": "survived_30m"})
	}
	if !r.Milestones["first_conversation"] && r.ConversationCount > 0 {
		r.Milestones["first_conversation"] = true
		t.hooks.Fire("milestone", map[string]any{"resident_id": r.ID, "milestone": "first_conversation"})
	}
	if !r.Milestones["recovered_from_critical"] && r.HealthWasBelow20 && r.Health > 50 {
		r.Milestones["recovered_from_critical"] = true
		t.hooks.Fire("milestone", map[string]any{"resident_id": r.ID, "milestone": "recovered_from_critical"})
	}
}

// checkReflection fires the periodic reflection webhook, attaching a
// single-use feedback token when a token issuer is configured.
func (t *Tracker) checkReflection(r *world.Resident, worldTime int64) {
	if t.hooks == nil || t.reflectionPeriod <= 0 {
		return
	}
	nowMillis := worldTime * 1000
	if r.Milestones["reflected_once"] && nowMillis-r.LastReflectionAt < t.reflectionPeriod*1000 {
		return
	}
	r.Milestones["reflected_once"] = true
	r.LastReflectionAt = nowMillis

	payload := map[string]any{"resident_id": r.ID}
	if t.tokens != nil {
		if token, err := t.tokens.IssueFeedbackToken(r.ID); err == nil {
			payload["feedback_token"] = token
		}
	}
	t.hooks.Fire("reflection", payload)
}
