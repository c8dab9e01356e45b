// Package social implements conversation turn-taking: the speak action's
// cooldown/duplicate/turn-lock gating, and the perception-tick pass that
// delivers queued speech to listeners within audible range.
package social

import (
	"fmt"
	"math"
	"time"

	"github.com/havenport/worldserver/internal/config"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/spatial"
	"github.com/havenport/worldserver/internal/textnorm"
	"github.com/havenport/worldserver/internal/world"
)

// speechTTLTicks is how many perception ticks a queued speech entry
// survives before being dropped, per the TTL-in-ticks discipline chosen
// over clear-after-broadcast.
const speechTTLTicks = 3

// maxListenerSearchRadius bounds the proximity query before the precise
// wall-attenuated audible check runs.
const maxListenerSearchRadius = 1024

// Webhook is the narrow interface the social system needs from the
// dispatcher.
type Webhook interface {
	Fire(kind string, payload map[string]any)
}

// EventLog is the narrow interface the social system needs from the
// durable event feed.
type EventLog interface {
	Append(kind, residentID string, payload map[string]any)
}

// System owns speech validation and the perception-tick delivery pass.
type System struct {
	world  *world.State
	cfg    config.SimulationConfig
	bus    *event.Bus
	hooks  Webhook
	events EventLog
}

func New(w *world.State, cfg config.SimulationConfig, bus *event.Bus, hooks Webhook, events EventLog) *System {
	return &System{world: w, cfg: cfg, bus: bus, hooks: hooks, events: events}
}

func (s *System) Phase() coresys.Phase { return coresys.PhasePerception }

// Speak validates and queues a speech act on the speaker, enforcing the
// per-act cooldown, duplicate suppression, and directed-speech turn
// lock.
func (s *System) Speak(speaker *world.Resident, text, volume, toID string, worldTime int64) error {
	if worldTime-speaker.LastSpeakAt < int64(s.cfg.SpeakCooldown.Seconds()) {
		return fmt.Errorf("speaking too quickly")
	}
	normalized := normalize(text)
	if s.isDuplicate(speaker, normalized, worldTime) {
		return fmt.Errorf("duplicate utterance suppressed")
	}
	if toID != "" {
		if ts, locked := speaker.AwaitingReplyFrom[toID]; locked && worldTime-ts < int64(s.cfg.TurnTimeout.Seconds()) {
			return fmt.Errorf("awaiting a reply from %s before addressing them again", toID)
		}
	}
	cost := s.cfg.SpeakEnergyCost
	if volume == "shout" {
		cost = s.cfg.ShoutEnergyCost
	}
	if speaker.Energy < cost {
		return fmt.Errorf("insufficient energy to speak")
	}

	speaker.Energy -= cost
	speaker.LastSpeakAt = worldTime
	speaker.RecentUtterances = append(speaker.RecentUtterances, world.RecentUtterance{Normalized: normalized, WorldTime: worldTime})
	s.pruneUtterances(speaker, worldTime)

	speaker.PendingSpeech = append(speaker.PendingSpeech, world.SpeechEntry{
		Text: text, Volume: volume, ToID: toID, WorldTime: worldTime, TTL: speechTTLTicks,
	})

	if toID != "" {
		if speaker.AwaitingReplyFrom == nil {
			speaker.AwaitingReplyFrom = make(map[string]int64)
		}
		speaker.AwaitingReplyFrom[toID] = worldTime
		if target := s.world.Get(toID); target != nil {
			delete(target.AwaitingReplyFrom, speaker.ID)
		}
	}
	return nil
}

func normalize(text string) string {
	return textnorm.Normalize(text)
}

func (s *System) isDuplicate(speaker *world.Resident, normalized string, worldTime int64) bool {
	window := int64(s.cfg.DuplicateWindow.Seconds())
	for _, u := range speaker.RecentUtterances {
		if worldTime-u.WorldTime <= window && u.Normalized == normalized {
			return true
		}
	}
	return false
}

func (s *System) pruneUtterances(speaker *world.Resident, worldTime int64) {
	window := int64(s.cfg.DuplicateWindow.Seconds())
	kept := speaker.RecentUtterances[:0]
	for _, u := range speaker.RecentUtterances {
		if worldTime-u.WorldTime <= window {
			kept = append(kept, u)
		}
	}
	speaker.RecentUtterances = kept
}

// Update delivers queued speech to listeners within audible range,
// advances conversation bookkeeping, expires stale turn locks, and ages
// out undelivered speech entries past their TTL.
func (s *System) Update(dt time.Duration) {
	worldTime := s.world.Clock.WorldSeconds
	turnTimeout := int64(s.cfg.TurnTimeout.Seconds())

	s.world.AllAlive(func(speaker *world.Resident) {
		s.expireTurnLocks(speaker, worldTime, turnTimeout)
		s.deliverSpeech(speaker, worldTime)
	})
}

func (s *System) expireTurnLocks(r *world.Resident, worldTime, turnTimeout int64) {
	for target, ts := range r.AwaitingReplyFrom {
		if worldTime-ts >= turnTimeout {
			delete(r.AwaitingReplyFrom, target)
		}
	}
}

func (s *System) deliverSpeech(speaker *world.Resident, worldTime int64) {
	if len(speaker.PendingSpeech) == 0 {
		return
	}

	remaining := speaker.PendingSpeech[:0]
	for _, entry := range speaker.PendingSpeech {
		s.broadcast(speaker, entry, worldTime)
		entry.TTL--
		if entry.TTL > 0 {
			remaining = append(remaining, entry)
		}
	}
	speaker.PendingSpeech = remaining
}

func (s *System) broadcast(speaker *world.Resident, entry world.SpeechEntry, worldTime int64) {
	heard := 0
	for _, listener := range s.world.Nearby(speaker.X, speaker.Y, maxListenerSearchRadius, speaker.ID) {
		if !s.canHear(speaker, listener, entry.Volume) {
			continue
		}

		dist := math.Hypot(listener.X-speaker.X, listener.Y-speaker.Y)
		if dist <= s.cfg.SocialProximityRadius {
			speaker.LastConversationTime = worldTime
			listener.LastConversationTime = worldTime
			heard++
		}

		directed := entry.ToID != "" && entry.ToID == listener.ID
		listener.PendingNotifications = append(listener.PendingNotifications, entry.Text)

		if s.bus != nil {
			event.Emit(s.bus, event.SpeechHeard{SpeakerID: speaker.ID, ListenerID: listener.ID, Directed: directed})
		}
		if s.hooks != nil && (directed || worldTime-speaker.LastSpeechWebhookAt >= 1) {
			speaker.LastSpeechWebhookAt = worldTime
			s.hooks.Fire("speech_heard", map[string]any{
				"speaker_id": speaker.ID, "listener_id": listener.ID, "text": entry.Text, "directed": directed,
			})
		}
	}
	if heard > 0 {
		speaker.ConversationCount++
	}
	if s.events != nil {
		s.events.Append("speak", speaker.ID, map[string]any{"volume": entry.Volume, "heard": heard})
	}
}

func (s *System) canHear(speaker, listener *world.Resident, volume string) bool {
	return spatial.CanHear(s.world.Map, speaker.X, speaker.Y, listener.X, listener.Y, volume,
		s.cfg.SpeechRangeWhisper, s.cfg.SpeechRangeNormal, s.cfg.SpeechRangeShout, s.cfg.WallAttenuation)
}
