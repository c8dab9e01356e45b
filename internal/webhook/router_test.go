package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/havenport/worldserver/internal/world"
)

type fakeResidents map[string]*world.Resident

func (f fakeResidents) Get(id string) *world.Resident { return f[id] }

func TestRouterDeliversToResidentURL(t *testing.T) {
	var mu sync.Mutex
	var received map[string]any
	done := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		json.NewDecoder(r.Body).Decode(&received)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	residents := fakeResidents{
		"r1": {ID: "r1", WebhookURL: srv.URL},
	}
	router := NewRouter(New(testCfg(), zap.NewNop()), residents)

	router.Fire("milestone", map[string]any{"resident_id": "r1", "milestone": "survived_30m"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if received["type"] != "milestone" {
		t.Fatalf("expected type milestone, got %v", received["type"])
	}
}

func TestRouterIsNoOpForUnknownResident(t *testing.T) {
	router := NewRouter(New(testCfg(), zap.NewNop()), fakeResidents{})
	// should not panic
	router.Fire("milestone", map[string]any{"resident_id": "ghost"})
}

func TestRouterIsNoOpWithoutConfiguredURL(t *testing.T) {
	residents := fakeResidents{"r1": {ID: "r1"}}
	router := NewRouter(New(testCfg(), zap.NewNop()), residents)
	// should not panic even though the resident has no webhook url
	router.Fire("milestone", map[string]any{"resident_id": "r1"})
}

func TestRouterFallsBackToSystemFireWithoutResidentID(t *testing.T) {
	router := NewRouter(New(testCfg(), zap.NewNop()), fakeResidents{})
	// no resident_id in payload: falls back to the dispatcher's system-wide
	// Fire, which is a no-op without a configured system URL but must not
	// panic on the missing key.
	router.Fire("system_announcement", map[string]any{"title": "v2"})
}
