package room

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically evicts rooms that have been empty for IdleTTL.
type Janitor struct {
	registry *Registry
	interval time.Duration
	idleTTL  time.Duration
	logger   *zap.Logger
}

type JanitorOptions struct {
	Registry *Registry
	Interval time.Duration
	// IdleTTL of zero disables eviction.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

func NewJanitor(opts JanitorOptions) *Janitor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		registry: opts.Registry,
		interval: opts.Interval,
		idleTTL:  opts.IdleTTL,
		logger:   logger.Named("janitor"),
	}
}

// Start blocks until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	if j.idleTTL <= 0 || j.interval <= 0 {
		j.logger.Info("idle room eviction disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.Sweep(now)
		}
	}
}

// Sweep runs one eviction pass as of now.
func (j *Janitor) Sweep(now time.Time) int {
	n := j.registry.EvictIdle(now, j.idleTTL)
	if n > 0 {
		j.logger.Info("evicted idle rooms",
			zap.Int("count", n),
			zap.Int("remaining", j.registry.Len()),
		)
	}

	return n
}
