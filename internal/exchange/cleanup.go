package exchange

import (
	"context"
	"time"

	"github.com/dgellow/authbridge/internal/log"
)

// Sweeper periodically removes expired entries from a Store
type Sweeper struct {
	store    Store
	interval time.Duration
}

// NewSweeper creates a new sweeper
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// It always returns nil so it can run inside an errgroup.
func (s *Sweeper) Run(ctx context.Context) error {
	log.LogInfoWithFields("sweeper", "Starting exchange token sweeper", map[string]any{
		"interval": s.interval.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			log.Logf("Exchange token sweeper stopped")
			return nil
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.store.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.LogErrorWithFields("sweeper", "Failed to delete expired exchange tokens", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count == 0 {
		log.LogTrace("Exchange token sweep found nothing to delete")
		return
	}
	log.LogInfoWithFields("sweeper", "Deleted expired exchange tokens", map[string]any{
		"count": count,
	})
}
