package gateway

import (
	"testing"
	"time"

	"github.com/havenport/worldserver/internal/config"
	"go.uber.org/zap"
)

func testConnection(rate config.RateLimitConfig) *Connection {
	return &Connection{
		out:  make(chan outbound, 2),
		rate: rate,
		net:  config.NetworkConfig{WriteTimeout: time.Second},
		log:  zap.NewNop(),
	}
}

func TestAllowActionDisabledAlwaysAllows(t *testing.T) {
	c := testConnection(config.RateLimitConfig{Enabled: false})
	for i := 0; i < 100; i++ {
		if !c.allowAction() {
			t.Fatal("expected disabled rate limit to always allow")
		}
	}
}

func TestAllowActionCapsWithinWindow(t *testing.T) {
	c := testConnection(config.RateLimitConfig{Enabled: true, ActionsPerSecond: 3})
	for i := 0; i < 3; i++ {
		if !c.allowAction() {
			t.Fatalf("expected action %d to be allowed within the window", i)
		}
	}
	if c.allowAction() {
		t.Fatal("expected the fourth action in the same window to be refused")
	}
}

func TestAllowActionResetsAfterWindow(t *testing.T) {
	c := testConnection(config.RateLimitConfig{Enabled: true, ActionsPerSecond: 1})
	if !c.allowAction() {
		t.Fatal("expected first action to be allowed")
	}
	if c.allowAction() {
		t.Fatal("expected second action in the same window to be refused")
	}
	c.windowStart = c.windowStart.Add(-2 * time.Second)
	if !c.allowAction() {
		t.Fatal("expected the window to have rolled over")
	}
}

func TestSendDropsOldestOnFullQueue(t *testing.T) {
	c := testConnection(config.RateLimitConfig{})
	c.Send(outbound{Type: "perception", RequestID: "1"})
	c.Send(outbound{Type: "perception", RequestID: "2"})
	c.Send(outbound{Type: "perception", RequestID: "3"})

	first := <-c.out
	if first.RequestID != "2" {
		t.Fatalf("expected the oldest queued packet to have been dropped, got request id %q", first.RequestID)
	}
}

func TestSendIsNoOpOnceClosed(t *testing.T) {
	c := testConnection(config.RateLimitConfig{})
	c.closed.Store(true)
	c.Send(outbound{Type: "perception"})
	select {
	case <-c.out:
		t.Fatal("expected no packet to be queued on a closed connection")
	default:
	}
}
