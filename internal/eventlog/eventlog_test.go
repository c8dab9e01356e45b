package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRepo struct {
	mu      sync.Mutex
	entries []entry
	block   chan struct{} // if non-nil, Append blocks until closed
}

func (f *fakeRepo) Append(ctx context.Context, kind, residentID string, payload map[string]any) (int64, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry{kind: kind, residentID: residentID, payload: payload})
	return int64(len(f.entries)), nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func newTestLog(repo Repo, queueSize int) *Log {
	return &Log{repo: repo, queue: make(chan entry, queueSize), log: zap.NewNop()}
}

func TestAppendIsDrainedByRun(t *testing.T) {
	repo := &fakeRepo{}
	l := newTestLog(repo, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	l.Append("shift_complete", "r1", map[string]any{"wage": 30})
	l.Append("buy", "r1", map[string]any{"item_type": "bread"})

	deadline := time.After(2 * time.Second)
	for repo.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 events drained, got %d", repo.count())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestAppendDropsWhenQueueSaturated(t *testing.T) {
	block := make(chan struct{})
	repo := &fakeRepo{block: block}
	l := newTestLog(repo, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	// first event is picked up by Run and blocks inside Append forever
	// (until we close block); the channel itself has capacity 1, so a
	// second and third Append should not block the caller.
	l.Append("a", "r1", nil)
	time.Sleep(20 * time.Millisecond) // let Run pull the first entry and block on repo.Append

	doneCh := make(chan struct{})
	go func() {
		l.Append("b", "r1", nil) // fills the queue
		l.Append("c", "r1", nil) // queue full, must drop without blocking
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked the caller when the queue was saturated")
	}

	close(block)
}

func TestRunDrainsRemainingQueueOnShutdown(t *testing.T) {
	repo := &fakeRepo{}
	l := newTestLog(repo, 16)

	ctx, cancel := context.WithCancel(context.Background())
	// Don't start Run yet: fill the queue directly so Run sees pending
	// work the moment ctx is already cancelled.
	l.queue <- entry{kind: "x", residentID: "r1"}
	l.queue <- entry{kind: "y", residentID: "r1"}
	cancel()

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	if repo.count() != 2 {
		t.Fatalf("expected both queued entries drained on shutdown, got %d", repo.count())
	}
}
