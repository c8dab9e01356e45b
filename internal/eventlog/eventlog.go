// Package eventlog adapts the durable, totally-ordered event feed to the
// narrow, synchronous EventLog interface every simulation system calls
// from the tick scheduler goroutine. Append never blocks on the
// database: it enqueues onto a buffered channel drained by a background
// goroutine, the same off-hot-path discipline internal/webhook uses for
// outbound HTTP.
package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/havenport/worldserver/internal/persist"
)

// Repo is the narrow persistence dependency this package needs.
type Repo interface {
	Append(ctx context.Context, kind, residentID string, payload map[string]any) (int64, error)
}

type entry struct {
	kind       string
	residentID string
	payload    map[string]any
}

// Log buffers event appends and drains them to Postgres off the
// scheduler's hot path.
type Log struct {
	repo  Repo
	queue chan entry
	log   *zap.Logger
}

func New(repo *persist.EventRepo, queueSize int, log *zap.Logger) *Log {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Log{repo: repo, queue: make(chan entry, queueSize), log: log}
}

// Append satisfies every domain package's local EventLog interface. If
// the queue is saturated the event is dropped and logged rather than
// blocking the caller.
func (l *Log) Append(kind, residentID string, payload map[string]any) {
	select {
	case l.queue <- entry{kind: kind, residentID: residentID, payload: payload}:
	default:
		l.log.Warn("event log queue saturated, dropping event",
			zap.String("kind", kind), zap.String("resident_id", residentID))
	}
}

// Run drains the queue until ctx is cancelled. Intended to run on its
// own goroutine for the lifetime of the process.
func (l *Log) Run(ctx context.Context) {
	for {
		select {
		case e := <-l.queue:
			l.write(ctx, e)
		case <-ctx.Done():
			l.drainRemaining(context.Background())
			return
		}
	}
}

func (l *Log) write(ctx context.Context, e entry) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := l.repo.Append(writeCtx, e.kind, e.residentID, e.payload); err != nil {
		l.log.Error("event append failed", zap.String("kind", e.kind), zap.Error(err))
	}
}

func (l *Log) drainRemaining(shutdownCtx context.Context) {
	for {
		select {
		case e := <-l.queue:
			l.write(shutdownCtx, e)
		default:
			return
		}
	}
}
