// Package recycler periodically sweeps expired resources out of a
// store.Store, grounded on the ticker+stopCh+sweep shape of the teacher's
// internal/reputation.TrustScoreDecayScheduler.
package recycler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fioncat/csync-go/internal/store"
)

// Config tunes the recycler's sweep cadence.
type Config struct {
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// Recycler calls store.DeleteExpired(now) every Interval, advancing a
// monotonic revision counter and emitting an event on each sweep that
// actually removed something, per spec.md §4.7 ("Advance a monotonic
// revision counter; emit an event so subscribers refresh").
type Recycler struct {
	log    *slog.Logger
	store  store.Store
	cfg    Config
	stopCh chan struct{}
	once   sync.Once

	revision atomic.Uint64
	notify   chan<- Event
}

// Event is emitted after a sweep that removed at least one resource.
type Event struct {
	Revision uint64
	Removed  int
	At       time.Time
}

// New starts a Recycler. notify may be nil; sends on it are non-blocking
// best-effort, the same convention internal/syncengine uses for its own
// notification channel.
func New(log *slog.Logger, st store.Store, cfg Config, notify chan<- Event) *Recycler {
	r := &Recycler{
		log:    log,
		store:  st,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		notify: notify,
	}
	go r.run()
	return r
}

func (r *Recycler) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

// Revision returns the current sweep revision, incremented once per
// successful sweep whether or not it removed anything. A sweep whose
// DeleteExpired call fails leaves it unchanged.
func (r *Recycler) Revision() uint64 {
	return r.revision.Load()
}

func (r *Recycler) run() {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recycler) sweep() {
	now := time.Now()
	removed, err := r.store.DeleteExpired(context.Background(), now)
	if err != nil {
		r.log.Error("recycler sweep failed", "err", err)
		return
	}

	revision := r.revision.Add(1)
	if removed == 0 {
		return
	}

	r.log.Info("recycler removed expired resources", "count", removed, "revision", revision)
	if r.notify == nil {
		return
	}
	select {
	case r.notify <- Event{Revision: revision, Removed: removed, At: now}:
	default:
	}
}
