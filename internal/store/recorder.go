package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sortline/internal/sorter"
)

// statsInterval spaces the periodic statistics snapshots.
const statsInterval = time.Minute

// Recorder drains the orchestrator's decision channel into the log and
// snapshots statistics periodically (CP-2).
type Recorder struct {
	store *Store
	sink  *sorter.Sink
	stats func() sorter.Stats
	log   *slog.Logger

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// NewRecorder returns a stopped recorder. stats may be nil to disable
// snapshots.
func NewRecorder(s *Store, sink *sorter.Sink, stats func() sorter.Stats, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: s, sink: sink, stats: stats, log: log}
}

// Start launches the draining goroutine. Idempotent.
func (r *Recorder) Start() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
	r.log.Info("sorting log recorder started")
}

// Stop drains remaining buffered decisions and halts. Idempotent.
func (r *Recorder) Stop() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.stop == nil {
		return
	}
	close(r.stop)
	<-r.done
	r.stop = nil
	r.done = nil
	r.log.Info("sorting log recorder stopped")
}

func (r *Recorder) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			r.drain()
			return
		case d, ok := <-r.sink.Events():
			if !ok {
				return
			}
			r.record(d)
		case <-ticker.C:
			r.snapshot()
		}
	}
}

// drain flushes whatever is still buffered at shutdown.
func (r *Recorder) drain() {
	for {
		select {
		case d, ok := <-r.sink.Events():
			if !ok {
				return
			}
			r.record(d)
		default:
			return
		}
	}
}

func (r *Recorder) record(d sorter.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.WriteDecision(ctx, d); err != nil {
		r.log.Error("decision append failed", "id", d.ID, "error", err)
	}
}

func (r *Recorder) snapshot() {
	if r.stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.WriteStats(ctx, time.Now(), r.stats()); err != nil {
		r.log.Error("stats snapshot failed", "error", err)
	}
}
