package webhook

import "github.com/havenport/worldserver/internal/world"

// residents is the narrow read the router needs from world state: a
// single lookup by id, safe to call from the scheduler goroutine that
// owns every Fire call this router receives.
type residents interface {
	Get(id string) *world.Resident
}

// Router adapts the narrow per-package Webhook interface (Fire only) to
// per-resident delivery: every domain package already stamps
// payload["resident_id"] on the events that concern one resident (pain
// milestones, reflections, action results), so Router looks that id up
// and posts to the resident's own configured URL instead of the
// dispatcher's unconfigured system-wide endpoint.
type Router struct {
	dispatcher *Dispatcher
	world      residents
}

func NewRouter(d *Dispatcher, w residents) *Router {
	return &Router{dispatcher: d, world: w}
}

// Fire implements every domain package's local Webhook interface.
func (r *Router) Fire(kind string, payload map[string]any) {
	id, _ := payload["resident_id"].(string)
	if id == "" {
		r.dispatcher.Fire(kind, payload)
		return
	}
	res := r.world.Get(id)
	if res == nil || res.WebhookURL == "" {
		return
	}
	r.dispatcher.Deliver(res.WebhookURL, kind, payload)
}
