package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/havenport/worldserver/internal/arbiter"
	"github.com/havenport/worldserver/internal/auth"
	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/data"
	"github.com/havenport/worldserver/internal/economy"
	"github.com/havenport/worldserver/internal/law"
	"github.com/havenport/worldserver/internal/social"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
	"go.uber.org/zap"
)

type fakeEvents struct{}

func (fakeEvents) Append(kind, residentID string, payload map[string]any) {}

type harness struct {
	world  *world.State
	tokens *auth.Tokens
	server *Server
	gw     *GatewaySystem
	arb    *arbiter.System
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m := &tilemap.Map{Width: 40, Height: 40, SpawnX: 16, SpawnY: 16}
	clock := world.NewClock(60, 120, 3600, 30, 0)
	w := world.NewState(m, clock)
	cfg := config.SimulationConfig{RequestDedupWindow: 30 * time.Second}
	bus := event.NewBus()

	econ := economy.New(w, &data.ShopTable{}, &data.JobTable{}, &data.ItemTable{}, cfg, bus, nil, fakeEvents{}, nil)
	lawSys := law.New(w, cfg, bus, nil, fakeEvents{}, nil)
	socialSys := social.New(w, cfg, bus, nil, fakeEvents{})

	arb := arbiter.New(w, &data.ItemTable{}, cfg, bus, nil, fakeEvents{}, econ, lawSys, socialSys, nil, nil, 32)

	tokens := auth.New(config.AuthConfig{JWTSecret: "test-secret", ConnectionTokenTTL: time.Hour})
	netCfg := config.NetworkConfig{WebSocketPath: "/ws", OutQueueSize: 16, WriteTimeout: time.Second, ReadTimeout: time.Minute}
	srvCfg := config.ServerConfig{ClientDist: "https://client.example/", StartHourOfDay: 8}

	s := NewServer(w, tokens, arb, netCfg, config.RateLimitConfig{}, srvCfg, zap.NewNop())
	arb.SetResults(s)

	return &harness{world: w, tokens: tokens, server: s, gw: NewGatewaySystem(s), arb: arb}
}

func (h *harness) tick() {
	h.gw.Update(0)
	h.arb.Update(0)
}

func register(w *world.State, id string) *world.Resident {
	return w.Register(world.ResidentRow{ID: id, Passport: "OC-00000" + id, Type: world.TypeAgent, Status: world.StatusAlive, Energy: 100}, true)
}

func wsURL(httpURL, path, query string) string {
	u, _ := url.Parse(httpURL)
	u.Scheme = "ws"
	u.Path = path
	u.RawQuery = query
	return u.String()
}

func TestPlayerConnectReceivesWelcome(t *testing.T) {
	h := newHarness(t)
	register(h.world, "1")
	token, err := h.tokens.IssueConnectionToken("1", "OC-000001", "agent")
	if err != nil {
		t.Fatalf("IssueConnectionToken: %v", err)
	}

	mux := http.NewServeMux()
	h.server.Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws", "token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.tick()
		h.server.mu.Lock()
		_, bound := h.server.byResident["1"]
		h.server.mu.Unlock()
		if bound {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outbound
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if msg.Type != "welcome" {
		t.Fatalf("expected welcome packet, got %q", msg.Type)
	}
}

func TestUnknownResidentTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	token, err := h.tokens.IssueConnectionToken("ghost", "OC-000999", "agent")
	if err != nil {
		t.Fatalf("IssueConnectionToken: %v", err)
	}

	mux := http.NewServeMux()
	h.server.Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws", "token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	var gotErr bool
	for time.Now().Before(deadline) {
		h.tick()
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		var msg outbound
		if err := conn.ReadJSON(&msg); err == nil {
			if msg.Type == "error" {
				gotErr = true
				break
			}
		}
	}
	if !gotErr {
		t.Fatal("expected an error packet for an unknown resident id")
	}
}

func TestSpectatorConnectRejectsUnknownTarget(t *testing.T) {
	h := newHarness(t)

	mux := http.NewServeMux()
	h.server.Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws", "target=nobody"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	var gotErr bool
	for time.Now().Before(deadline) {
		h.tick()
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		var msg outbound
		if err := conn.ReadJSON(&msg); err == nil && msg.Type == "error" {
			gotErr = true
			break
		}
	}
	if !gotErr {
		t.Fatal("expected an error packet for an unknown spectator target")
	}
}

func TestDisconnectReleasesCarriedSuspect(t *testing.T) {
	h := newHarness(t)
	officer := register(h.world, "1")
	suspect := register(h.world, "2")
	suspect.Offenses = []string{"loitering"}
	officer.CarryingSuspectID = suspect.ID
	suspect.ArrestedBy = officer.ID

	c := &Connection{mode: modePlayer, residentID: officer.ID}
	h.server.mu.Lock()
	h.server.byResident[officer.ID] = c
	h.server.mu.Unlock()

	h.server.unregister(c)
	ds := NewDisconnectSystem(h.server)
	ds.Update(0)

	if officer.CarryingSuspectID != "" {
		t.Fatal("expected carried suspect link to be cleared on disconnect")
	}
}

func TestWelcomeIncludesConfiguredMapURL(t *testing.T) {
	h := newHarness(t)
	r := register(h.world, "1")
	c := &Connection{out: make(chan outbound, 1)}

	h.server.sendWelcome(c, r)

	select {
	case msg := <-c.out:
		if msg.MapURL != "https://client.example/" {
			t.Fatalf("expected configured map url, got %q", msg.MapURL)
		}
	default:
		t.Fatal("expected a welcome packet to be queued")
	}
}
