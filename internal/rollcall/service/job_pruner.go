package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

// JobPruner periodically deletes cleanup jobs older than the job TTL. It
// runs as a background goroutine and is stopped via its context or Stop.
type JobPruner struct {
	store    store.JobStore
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewJobPruner creates a pruner but does not start it. An interval of 0
// defaults to ten minutes.
func NewJobPruner(s store.JobStore, ttl, interval time.Duration, logger *slog.Logger) *JobPruner {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &JobPruner{
		store:    s,
		ttl:      ttl,
		interval: interval,
		logger:   logger.With("component", "job_pruner"),
		done:     make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the interval until ctx is
// cancelled or Stop is called.
func (p *JobPruner) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
	p.logger.Info("job pruner started", "ttl", p.ttl, "interval", p.interval)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *JobPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *JobPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.Prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes expired jobs once.
func (p *JobPruner) Prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.ttl)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("job prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("expired cleanup jobs deleted", "count", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
}
